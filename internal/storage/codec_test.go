package storage

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"neurosim/internal/model"
)

func TestDecodeConfigFixture(t *testing.T) {
	config, err := DecodeConfig(readFixture(t, "config_record_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if config.ID != "cfg-izh-1" || config.Name != "izhikevich burst" {
		t.Fatalf("unexpected config: %+v", config)
	}
	if config.Values["neuron_model"] != "izhikevich" || config.Values["izh_c"] != int64(-50) || config.Values["izh_a"] != 0.02 {
		t.Fatalf("unexpected values: %+v", config.Values)
	}
	if !config.CreatedAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected created_at: %s", config.CreatedAt)
	}
}

func TestDecodeRunFixture(t *testing.T) {
	run, err := DecodeRun(readFixture(t, "run_record_v1.json"))
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	if run.ID != "run-lif-1" || run.Status != model.RunCompleted || run.SizeBytes != 231 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.Bundle == nil || run.Bundle.Seed != 42 || len(run.Bundle.Voltage) != 3 {
		t.Fatalf("unexpected bundle: %+v", run.Bundle)
	}
	v, ok := run.Bundle.VoltageAt(2, 1)
	if !ok || v != 0.3252 {
		t.Fatalf("unexpected voltage sample: %v %v", v, ok)
	}
}

func TestDecodeRejectsOldSchema(t *testing.T) {
	_, err := DecodeRun(readFixture(t, "run_record_v0.json"))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected version mismatch, got %v", err)
	}

	_, err = DecodeConfig([]byte(`{"schema_version":1,"codec_version":2,"id":"x"}`))
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected codec version mismatch, got %v", err)
	}
}

func TestRunCodecRoundTrip(t *testing.T) {
	input := model.RunRecord{
		VersionedRecord: Stamp(),
		ID:              "run-1",
		ConfigID:        "cfg-1",
		Values:          map[string]any{"neuron_model": "adex", "num_neurons": int64(3), "threshold": 1.5},
		Status:          model.RunDiverged,
		Error:           "numerical divergence at step 12",
		CreatedAt:       time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC),
	}
	data, err := EncodeRun(input)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	output, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(input, output) {
		t.Fatalf("round trip mismatch:\ninput=%+v\noutput=%+v", input, output)
	}
}

func TestRunCodecKeepsLargeSeed(t *testing.T) {
	const seed = int64(1760880000123456789)
	data, err := EncodeRun(model.RunRecord{
		VersionedRecord: Stamp(),
		ID:              "run-seed",
		Values:          map[string]any{"seed": seed, "dt": 0.1},
		Status:          model.RunCompleted,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	run, err := DecodeRun(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got, ok := run.Values["seed"].(int64); !ok || got != seed {
		t.Fatalf("seed changed: %T %v", run.Values["seed"], run.Values["seed"])
	}
	if run.Values["dt"] != 0.1 {
		t.Fatalf("unexpected dt: %T %v", run.Values["dt"], run.Values["dt"])
	}

	data, err = EncodeConfig(model.ConfigRecord{VersionedRecord: Stamp(), ID: "cfg-seed", Values: map[string]any{"seed": seed}})
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	config, err := DecodeConfig(data)
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if config.Values["seed"] != seed {
		t.Fatalf("config seed changed: %T %v", config.Values["seed"], config.Values["seed"])
	}
}

func TestMeasureRun(t *testing.T) {
	run := model.RunRecord{ID: "r", SizeBytes: 99}
	if err := MeasureRun(&run); err != nil {
		t.Fatalf("measure: %v", err)
	}
	if run.SizeBytes != 0 {
		t.Fatalf("expected zero size without bundle, got %d", run.SizeBytes)
	}

	run.Bundle = &model.ResultBundle{RunID: "r", NeuronCount: 1, Voltage: []model.VoltageSample{{Time: 0, V: []float64{1}}}}
	if err := MeasureRun(&run); err != nil {
		t.Fatalf("measure: %v", err)
	}
	if run.SizeBytes <= 0 {
		t.Fatalf("expected positive size, got %d", run.SizeBytes)
	}
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "testdata", "fixtures", name))
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return data
}
