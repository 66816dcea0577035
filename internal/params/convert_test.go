package params

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"neurosim/internal/model"
)

func TestFromMapDefaults(t *testing.T) {
	p, notes, err := FromMap(nil)
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("unexpected notes: %v", notes)
	}
	lif, ok := p.Neuron.(model.LIFParams)
	if !ok {
		t.Fatalf("expected lif params, got %T", p.Neuron)
	}
	if lif.Threshold != 1 || lif.Reset != 0 || lif.Tau != 1 {
		t.Fatalf("unexpected lif defaults: %+v", lif)
	}
	if p.SimTime != 100 || p.Dt != 0.1 || p.NumNeurons != 5 || p.CurrentDuration != 100 {
		t.Fatalf("unexpected run defaults: %+v", p)
	}
	if p.Topology != model.TopologyRandom || p.NoiseMethod != model.NoiseAdditive || p.OutputType != model.OutputBoth {
		t.Fatalf("unexpected enum defaults: %+v", p)
	}
	if p.Seed != nil {
		t.Fatalf("expected no seed by default, got %d", *p.Seed)
	}
}

func TestCurrentDurationFollowsSimTimeUnlessSet(t *testing.T) {
	p, _, err := FromMap(map[string]any{"sim_time": 250.0})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if p.CurrentDuration != 250 {
		t.Fatalf("expected duration to follow sim_time, got %f", p.CurrentDuration)
	}

	p, _, err = FromMap(map[string]any{"sim_time": 250.0, "current_duration": 40})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if p.CurrentDuration != 40 {
		t.Fatalf("expected explicit duration, got %f", p.CurrentDuration)
	}
}

func TestRoundTripPerModel(t *testing.T) {
	inputs := []map[string]any{
		{"neuron_model": "lif", "threshold": 1.5, "reset": -0.5, "lif_tau": 10.0, "seed": int64(42)},
		{"neuron_model": "izhikevich", "izh_a": 0.1, "izh_b": 0.25, "izh_c": -60.0, "izh_d": 4.0, "noise_enabled": true, "noise_method": "multiplicative"},
		{"neuron_model": "adex", "adex_a": 4.0, "adex_b": 80.0, "adex_deltaT": 2.0, "adex_tau_w": 100.0, "synapse_enabled": true, "topology_type": "modular", "topology_n_modules": 2},
		{"neuron_model": "custom", "custom_eqs": "dv/dt = (I - v)/ms\n", "custom_threshold": "v > 1", "custom_reset": "v = 0", "output_type": "all"},
	}
	for _, in := range inputs {
		t.Run(in["neuron_model"].(string), func(t *testing.T) {
			first, _, err := FromMap(in)
			if err != nil {
				t.Fatalf("from map: %v", err)
			}
			second, _, err := FromMap(ToMap(first))
			if err != nil {
				t.Fatalf("from flattened map: %v", err)
			}
			if !reflect.DeepEqual(first, second) {
				t.Fatalf("round trip mismatch:\nfirst=%+v\nsecond=%+v", first, second)
			}

			// Persisted configs pass through JSON, which turns every number into float64.
			raw, err := json.Marshal(ToMap(first))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var decoded map[string]any
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			third, _, err := FromMap(decoded)
			if err != nil {
				t.Fatalf("from json map: %v", err)
			}
			if !reflect.DeepEqual(first, third) {
				t.Fatalf("json round trip mismatch:\nfirst=%+v\nthird=%+v", first, third)
			}
		})
	}
}

func TestToMapWritesOnlyActiveModelKeys(t *testing.T) {
	p, _, err := FromMap(map[string]any{"neuron_model": "izhikevich"})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	m := ToMap(p)
	for _, key := range []string{KeyThreshold, KeyReset, KeyAdExTauW, KeyCustomEqs} {
		if _, ok := m[key]; ok {
			t.Fatalf("unexpected inactive key %s", key)
		}
	}
	if m[KeyIzhC] != -65.0 {
		t.Fatalf("expected izh_c default, got %v", m[KeyIzhC])
	}
}

func TestFormStyleCoercion(t *testing.T) {
	p, _, err := FromMap(map[string]any{
		"neuron_model":    "LIF",
		"num_neurons":     "12",
		"input_current":   "2.5",
		"noise_enabled":   "on",
		"synapse_enabled": "off",
		"seed":            "7",
	})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if p.NumNeurons != 12 || p.InputCurrent != 2.5 || !p.NoiseEnabled || p.SynapseEnabled {
		t.Fatalf("unexpected coercion result: %+v", p)
	}
	if p.Seed == nil || *p.Seed != 7 {
		t.Fatalf("expected seed 7, got %v", p.Seed)
	}
}

func TestFromMapRejectsBadValues(t *testing.T) {
	cases := []struct {
		name     string
		in       map[string]any
		sentinel error
		field    string
	}{
		{name: "non numeric", in: map[string]any{"sim_time": "long"}, sentinel: model.ErrInvalidParameter, field: "sim_time"},
		{name: "fractional neuron count", in: map[string]any{"num_neurons": 2.5}, sentinel: model.ErrInvalidParameter, field: "num_neurons"},
		{name: "zero neurons", in: map[string]any{"num_neurons": 0}, sentinel: model.ErrInvalidParameter, field: "num_neurons"},
		{name: "negative sim time", in: map[string]any{"sim_time": -1.0}, sentinel: model.ErrInvalidParameter, field: "sim_time"},
		{name: "negative duration", in: map[string]any{"current_duration": -5.0}, sentinel: model.ErrInvalidParameter, field: "current_duration"},
		{name: "negative noise", in: map[string]any{"noise_intensity": -0.1}, sentinel: model.ErrInvalidParameter, field: "noise_intensity"},
		{name: "bad noise method", in: map[string]any{"noise_enabled": true, "noise_method": "pink"}, sentinel: model.ErrInvalidParameter, field: "noise_method"},
		{name: "bad topology", in: map[string]any{"synapse_enabled": true, "topology_type": "lattice"}, sentinel: model.ErrInvalidParameter, field: "topology_type"},
		{name: "bad output", in: map[string]any{"output_type": "movie"}, sentinel: model.ErrInvalidParameter, field: "output_type"},
		{name: "bad seed", in: map[string]any{"seed": "abc"}, sentinel: model.ErrInvalidParameter, field: "seed"},
		{name: "unknown model", in: map[string]any{"neuron_model": "hodgkin_huxley"}, sentinel: model.ErrUnsupportedModel},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := FromMap(tc.in)
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("expected %v, got %v", tc.sentinel, err)
			}
			if tc.field == "" {
				return
			}
			var perr *model.InvalidParameterError
			if !errors.As(err, &perr) || perr.Field != tc.field {
				t.Fatalf("expected field %s, got %+v", tc.field, perr)
			}
		})
	}
}

func TestUnknownKeysAreReported(t *testing.T) {
	_, notes, err := FromMap(map[string]any{"plot_colour": "red", "csrf_token": "x"})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("expected two notes, got %v", notes)
	}
}

func TestParameterSetCodecRoundTrip(t *testing.T) {
	p, _, err := FromMap(map[string]any{"neuron_model": "adex", "seed": 99})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	data, err := EncodeParameterSet(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeParameterSet(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(p, decoded) {
		t.Fatalf("codec mismatch:\nwant=%+v\ngot=%+v", p, decoded)
	}

	var env RecordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	env.CodecVersion = SupportedCodecVersion + 1
	bumped, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if _, err := DecodeParameterSet(bumped); !errors.Is(err, ErrRecordVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}
}

func TestParameterSetCodecKeepsClockSeed(t *testing.T) {
	const seed = int64(1760880000123456789)
	p, _, err := FromMap(map[string]any{"neuron_model": "lif", "threshold": 1.25})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	p = p.WithSeed(seed)
	data, err := EncodeParameterSet(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeParameterSet(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Seed == nil || *decoded.Seed != seed {
		t.Fatalf("seed changed: %v", decoded.Seed)
	}
	if !reflect.DeepEqual(p, decoded) {
		t.Fatalf("codec mismatch:\nwant=%+v\ngot=%+v", p, decoded)
	}

	values, err := Parse(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	if values[KeySeed] != seed {
		t.Fatalf("parsed seed changed: %T %v", values[KeySeed], values[KeySeed])
	}
}

func TestParseAcceptsEnvelope(t *testing.T) {
	p, _, err := FromMap(map[string]any{"neuron_model": "izhikevich", "num_neurons": 6, "seed": 4})
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	data, err := EncodeParameterSet(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	values, err := Parse(data)
	if err != nil {
		t.Fatalf("parse envelope: %v", err)
	}
	again, _, err := FromMap(values)
	if err != nil {
		t.Fatalf("from parsed map: %v", err)
	}
	if !reflect.DeepEqual(p, again) {
		t.Fatalf("envelope mismatch:\nwant=%+v\ngot=%+v", p, again)
	}
}

func TestLoadFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	content := "neuron_model: izhikevich\nnum_neurons: 20\nsynapse_enabled: true\ntopology_type: small_world\ntopology_k: 3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	values, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	values, err = ApplyOverrides(values, []string{"num_neurons=8", "seed=3"})
	if err != nil {
		t.Fatalf("overrides: %v", err)
	}
	p, _, err := FromMap(values)
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	if p.ModelKind() != model.ModelIzhikevich || p.NumNeurons != 8 || p.TopologyParams.K != 3 || p.Seed == nil || *p.Seed != 3 {
		t.Fatalf("unexpected parameters: %+v", p)
	}

	if _, err := ApplyOverrides(values, []string{"novalue"}); err == nil {
		t.Fatal("expected malformed override error")
	}
	if _, err := Parse([]byte("topology:\n  k: 2\n")); err == nil {
		t.Fatal("expected nested value error")
	}
}

func TestParseAcceptsJSON(t *testing.T) {
	values, err := Parse([]byte(`{"neuron_model": "custom", "custom_eqs": "dv/dt = -v/ms", "custom_threshold": "v > 1", "custom_reset": "v = 0"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p, _, err := FromMap(values)
	if err != nil {
		t.Fatalf("from map: %v", err)
	}
	custom, ok := p.Neuron.(model.CustomParams)
	if !ok || custom.Equations != "dv/dt = -v/ms" {
		t.Fatalf("unexpected custom params: %+v", p.Neuron)
	}
}
