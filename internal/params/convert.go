package params

import (
	"fmt"
	"sort"
	"strings"

	"neurosim/internal/model"
)

const (
	KeyNeuronModel      = "neuron_model"
	KeyThreshold        = "threshold"
	KeyReset            = "reset"
	KeyLIFTau           = "lif_tau"
	KeyIzhA             = "izh_a"
	KeyIzhB             = "izh_b"
	KeyIzhC             = "izh_c"
	KeyIzhD             = "izh_d"
	KeyAdExA            = "adex_a"
	KeyAdExB            = "adex_b"
	KeyAdExDeltaT       = "adex_deltaT"
	KeyAdExTauW         = "adex_tau_w"
	KeyCustomEqs        = "custom_eqs"
	KeyCustomThreshold  = "custom_threshold"
	KeyCustomReset      = "custom_reset"
	KeySimTime          = "sim_time"
	KeyDt               = "dt"
	KeyInputCurrent     = "input_current"
	KeyNumNeurons       = "num_neurons"
	KeyCurrentStart     = "current_start"
	KeyCurrentDuration  = "current_duration"
	KeyCurrentSpread    = "current_spread"
	KeyNoiseEnabled     = "noise_enabled"
	KeyNoiseIntensity   = "noise_intensity"
	KeyNoiseMethod      = "noise_method"
	KeySynapseEnabled   = "synapse_enabled"
	KeySynWeight        = "syn_weight"
	KeySynProb          = "syn_prob"
	KeyTopologyType     = "topology_type"
	KeyTopologyK        = "topology_k"
	KeyTopologyKReg     = "topology_k_reg"
	KeyTopologyPRewire  = "topology_p_rewire"
	KeyTopologyM        = "topology_m"
	KeyTopologyNModules = "topology_n_modules"
	KeyTopologyPIntra   = "topology_p_intra"
	KeyTopologyPInter   = "topology_p_inter"
	KeyOutputType       = "output_type"
	KeyPlotType         = "plot_type"
	KeySeed             = "seed"
)

// Defaults returns the flat parameter map used when a key is absent.
func Defaults() map[string]any {
	return map[string]any{
		KeyNeuronModel:      string(model.ModelLIF),
		KeyThreshold:        1.0,
		KeyReset:            0.0,
		KeyLIFTau:           1.0,
		KeyIzhA:             0.02,
		KeyIzhB:             0.2,
		KeyIzhC:             -65.0,
		KeyIzhD:             2.0,
		KeyAdExA:            0.02,
		KeyAdExB:            0.2,
		KeyAdExDeltaT:       2.0,
		KeyAdExTauW:         30.0,
		KeyCustomEqs:        "",
		KeyCustomThreshold:  "",
		KeyCustomReset:      "",
		KeySimTime:          100.0,
		KeyDt:               0.1,
		KeyInputCurrent:     1.2,
		KeyNumNeurons:       5,
		KeyCurrentStart:     0.0,
		KeyCurrentSpread:    0.0,
		KeyNoiseEnabled:     false,
		KeyNoiseIntensity:   0.2,
		KeyNoiseMethod:      string(model.NoiseAdditive),
		KeySynapseEnabled:   false,
		KeySynWeight:        0.2,
		KeySynProb:          0.2,
		KeyTopologyType:     string(model.TopologyRandom),
		KeyTopologyK:        2,
		KeyTopologyKReg:     2,
		KeyTopologyPRewire:  0.1,
		KeyTopologyM:        2,
		KeyTopologyNModules: 4,
		KeyTopologyPIntra:   0.2,
		KeyTopologyPInter:   0.01,
		KeyOutputType:       string(model.OutputBoth),
		KeyPlotType:         string(model.PlotInteractive),
	}
}

// FromMap resolves a flat key-value map into a ParameterSet. Missing keys take
// their default; values of the wrong type are rejected. Unknown keys are
// ignored and reported in the returned notes.
func FromMap(in map[string]any) (model.ParameterSet, []string, error) {
	values := Defaults()
	var notes []string
	known := make(map[string]struct{}, len(values)+2)
	for key := range values {
		known[key] = struct{}{}
	}
	known[KeyCurrentDuration] = struct{}{}
	known[KeySeed] = struct{}{}

	for key, val := range in {
		if _, ok := known[key]; !ok {
			notes = append(notes, fmt.Sprintf("unknown parameter %q ignored", key))
			continue
		}
		values[key] = val
	}
	sort.Strings(notes)

	r := reader{values: values}
	var out model.ParameterSet

	kind := model.NeuronModel(strings.ToLower(r.str(KeyNeuronModel)))
	switch kind {
	case model.ModelLIF:
		out.Neuron = model.LIFParams{
			Threshold: r.float(KeyThreshold),
			Reset:     r.float(KeyReset),
			Tau:       r.float(KeyLIFTau),
		}
	case model.ModelIzhikevich:
		out.Neuron = model.IzhikevichParams{
			A: r.float(KeyIzhA),
			B: r.float(KeyIzhB),
			C: r.float(KeyIzhC),
			D: r.float(KeyIzhD),
		}
	case model.ModelAdEx:
		out.Neuron = model.AdExParams{
			A:      r.float(KeyAdExA),
			B:      r.float(KeyAdExB),
			DeltaT: r.float(KeyAdExDeltaT),
			TauW:   r.float(KeyAdExTauW),
		}
	case model.ModelCustom:
		out.Neuron = model.CustomParams{
			Equations: r.text(KeyCustomEqs),
			Threshold: r.text(KeyCustomThreshold),
			Reset:     r.text(KeyCustomReset),
		}
	default:
		if r.err == nil {
			return model.ParameterSet{}, notes, &model.UnsupportedModelError{Kind: string(kind)}
		}
	}

	out.SimTime = r.float(KeySimTime)
	out.Dt = r.float(KeyDt)
	out.InputCurrent = r.float(KeyInputCurrent)
	out.NumNeurons = r.int(KeyNumNeurons)
	out.CurrentStart = r.float(KeyCurrentStart)
	out.CurrentDuration = out.SimTime
	if _, ok := values[KeyCurrentDuration]; ok {
		out.CurrentDuration = r.float(KeyCurrentDuration)
	}
	out.CurrentSpread = r.float(KeyCurrentSpread)

	out.NoiseEnabled = r.bool(KeyNoiseEnabled)
	out.NoiseIntensity = r.float(KeyNoiseIntensity)
	out.NoiseMethod = model.NoiseMethod(strings.ToLower(r.str(KeyNoiseMethod)))

	out.SynapseEnabled = r.bool(KeySynapseEnabled)
	out.SynWeight = r.float(KeySynWeight)
	out.Topology = model.TopologyKind(strings.ToLower(r.str(KeyTopologyType)))
	out.TopologyParams = model.TopologyParams{
		Prob:     r.float(KeySynProb),
		K:        r.int(KeyTopologyK),
		KReg:     r.int(KeyTopologyKReg),
		PRewire:  r.float(KeyTopologyPRewire),
		M:        r.int(KeyTopologyM),
		NModules: r.int(KeyTopologyNModules),
		PIntra:   r.float(KeyTopologyPIntra),
		PInter:   r.float(KeyTopologyPInter),
	}

	out.OutputType = model.OutputType(strings.ToLower(r.str(KeyOutputType)))
	out.PlotType = model.PlotType(strings.ToLower(r.str(KeyPlotType)))
	if raw, ok := values[KeySeed]; ok && raw != nil && raw != "" {
		seed, ok := asInt64(raw)
		if !ok {
			return model.ParameterSet{}, notes, &model.InvalidParameterError{Field: KeySeed, Value: raw, Reason: "must be an integer"}
		}
		out.Seed = &seed
	}
	if r.err != nil {
		return model.ParameterSet{}, notes, r.err
	}

	switch out.OutputType {
	case model.OutputVoltage, model.OutputRaster, model.OutputBoth, model.OutputAll:
	default:
		return model.ParameterSet{}, notes, &model.InvalidParameterError{Field: KeyOutputType, Value: out.OutputType, Reason: "must be voltage, raster, both or all"}
	}
	switch out.PlotType {
	case model.PlotStatic, model.PlotInteractive:
	default:
		return model.ParameterSet{}, notes, &model.InvalidParameterError{Field: KeyPlotType, Value: out.PlotType, Reason: "must be static or interactive"}
	}
	if err := out.Validate(); err != nil {
		return model.ParameterSet{}, notes, err
	}
	return out, notes, nil
}

// ToMap flattens a ParameterSet using the stable external key names. Only the
// active neuron model's keys are written.
func ToMap(p model.ParameterSet) map[string]any {
	out := map[string]any{
		KeySimTime:          p.SimTime,
		KeyDt:               p.Dt,
		KeyInputCurrent:     p.InputCurrent,
		KeyNumNeurons:       p.NumNeurons,
		KeyCurrentStart:     p.CurrentStart,
		KeyCurrentDuration:  p.CurrentDuration,
		KeyCurrentSpread:    p.CurrentSpread,
		KeyNoiseEnabled:     p.NoiseEnabled,
		KeyNoiseIntensity:   p.NoiseIntensity,
		KeyNoiseMethod:      string(p.NoiseMethod),
		KeySynapseEnabled:   p.SynapseEnabled,
		KeySynWeight:        p.SynWeight,
		KeySynProb:          p.TopologyParams.Prob,
		KeyTopologyType:     string(p.Topology),
		KeyTopologyK:        p.TopologyParams.K,
		KeyTopologyKReg:     p.TopologyParams.KReg,
		KeyTopologyPRewire:  p.TopologyParams.PRewire,
		KeyTopologyM:        p.TopologyParams.M,
		KeyTopologyNModules: p.TopologyParams.NModules,
		KeyTopologyPIntra:   p.TopologyParams.PIntra,
		KeyTopologyPInter:   p.TopologyParams.PInter,
		KeyOutputType:       string(p.OutputType),
		KeyPlotType:         string(p.PlotType),
	}
	if p.Seed != nil {
		out[KeySeed] = *p.Seed
	}
	switch n := p.Neuron.(type) {
	case model.LIFParams:
		out[KeyNeuronModel] = string(model.ModelLIF)
		out[KeyThreshold] = n.Threshold
		out[KeyReset] = n.Reset
		out[KeyLIFTau] = n.Tau
	case model.IzhikevichParams:
		out[KeyNeuronModel] = string(model.ModelIzhikevich)
		out[KeyIzhA] = n.A
		out[KeyIzhB] = n.B
		out[KeyIzhC] = n.C
		out[KeyIzhD] = n.D
	case model.AdExParams:
		out[KeyNeuronModel] = string(model.ModelAdEx)
		out[KeyAdExA] = n.A
		out[KeyAdExB] = n.B
		out[KeyAdExDeltaT] = n.DeltaT
		out[KeyAdExTauW] = n.TauW
	case model.CustomParams:
		out[KeyNeuronModel] = string(model.ModelCustom)
		out[KeyCustomEqs] = n.Equations
		out[KeyCustomThreshold] = n.Threshold
		out[KeyCustomReset] = n.Reset
	}
	return out
}

// reader records the first type error and keeps returning zero values after it.
type reader struct {
	values map[string]any
	err    error
}

func (r *reader) fail(key string, val any, want string) {
	if r.err == nil {
		r.err = &model.InvalidParameterError{Field: key, Value: val, Reason: "must be " + want}
	}
}

func (r *reader) float(key string) float64 {
	val := r.values[key]
	f, ok := asFloat64(val)
	if !ok {
		r.fail(key, val, "a number")
	}
	return f
}

func (r *reader) int(key string) int {
	val := r.values[key]
	n, ok := asInt(val)
	if !ok {
		r.fail(key, val, "an integer")
	}
	return n
}

func (r *reader) bool(key string) bool {
	val := r.values[key]
	b, ok := asBool(val)
	if !ok {
		r.fail(key, val, "a boolean")
	}
	return b
}

func (r *reader) str(key string) string {
	val := r.values[key]
	s, ok := asString(val)
	if !ok {
		r.fail(key, val, "a string")
	}
	return s
}

// text keeps interior whitespace so multi-line model text survives.
func (r *reader) text(key string) string {
	val := r.values[key]
	s, ok := val.(string)
	if !ok {
		r.fail(key, val, "a string")
	}
	return s
}
