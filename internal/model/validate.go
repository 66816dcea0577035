package model

import "math"

// Validate checks the run-level constraints that every component relies on.
// Model- and topology-specific constraints are enforced by the components
// that own them.
func (p ParameterSet) Validate() error {
	if p.Neuron == nil {
		return &UnsupportedModelError{}
	}
	checks := []struct {
		field  string
		value  float64
		ok     bool
		reason string
	}{
		{"sim_time", p.SimTime, p.SimTime > 0, "must be > 0"},
		{"dt", p.Dt, p.Dt > 0, "must be > 0"},
		{"dt", p.Dt, p.Dt <= p.SimTime, "must not exceed sim_time"},
		{"current_start", p.CurrentStart, p.CurrentStart >= 0, "must be >= 0"},
		{"current_duration", p.CurrentDuration, p.CurrentDuration >= 0, "must be >= 0"},
		{"noise_intensity", p.NoiseIntensity, p.NoiseIntensity >= 0, "must be >= 0"},
	}
	for _, c := range checks {
		if math.IsNaN(c.value) || math.IsInf(c.value, 0) {
			return &InvalidParameterError{Field: c.field, Value: c.value, Reason: "must be finite"}
		}
		if !c.ok {
			return &InvalidParameterError{Field: c.field, Value: c.value, Reason: c.reason}
		}
	}
	for field, value := range map[string]float64{
		"input_current":  p.InputCurrent,
		"current_spread": p.CurrentSpread,
		"syn_weight":     p.SynWeight,
	} {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return &InvalidParameterError{Field: field, Value: value, Reason: "must be finite"}
		}
	}
	if p.NumNeurons < 1 {
		return &InvalidParameterError{Field: "num_neurons", Value: p.NumNeurons, Reason: "must be >= 1"}
	}
	if p.NoiseEnabled {
		switch p.NoiseMethod {
		case NoiseAdditive, NoiseMultiplicative:
		default:
			return &InvalidParameterError{Field: "noise_method", Value: p.NoiseMethod, Reason: "must be additive or multiplicative"}
		}
	}
	if p.SynapseEnabled {
		switch p.Topology {
		case TopologyRandom, TopologySmallWorld, TopologyScaleFree, TopologyRegular, TopologyModular:
		default:
			return &InvalidParameterError{Field: "topology_type", Value: p.Topology, Reason: "unknown topology"}
		}
	}
	return nil
}

// Steps is the number of grid points in [0, SimTime) at spacing Dt.
func (p ParameterSet) Steps() int {
	if p.Dt <= 0 {
		return 0
	}
	return int(math.Round(p.SimTime / p.Dt))
}
