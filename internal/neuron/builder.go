// Package neuron turns a neuron parameter record into integrable dynamics.
package neuron

import (
	"fmt"
	"math"

	"neurosim/internal/model"
)

// AdEx constants in mV, pA, nS, pF and ms.
const (
	AdExCapacitance = 200.0
	AdExLeak        = 10.0
	AdExRest        = -65.0
	AdExThreshold   = -50.0
	AdExSpikeCutoff = 0.0

	IzhikevichPeak = 30.0
)

type DerivativeFunc func(t, current float64, state, dst []float64) error

type ThresholdFunc func(t, current float64, state []float64) (bool, error)

type ResetFunc func(t, current float64, state []float64) error

// Dynamics describes one neuron's state equations. State index 0 is always the
// membrane potential. The functions hold no mutable state and may be called
// concurrently for different neurons.
type Dynamics struct {
	Kind       model.NeuronModel
	StateNames []string
	Initial    []float64
	Derivative DerivativeFunc
	Threshold  ThresholdFunc
	Reset      ResetFunc
	Advisories []string
}

// Dim is the number of state variables per neuron.
func (d Dynamics) Dim() int { return len(d.StateNames) }

// Build produces the dynamics for p.
func Build(p model.NeuronParams) (Dynamics, error) {
	switch n := p.(type) {
	case model.LIFParams:
		return buildLIF(n)
	case model.IzhikevichParams:
		return buildIzhikevich(n)
	case model.AdExParams:
		return buildAdEx(n)
	case model.CustomParams:
		return buildCustom(n)
	case nil:
		return Dynamics{}, &model.UnsupportedModelError{}
	default:
		return Dynamics{}, &model.UnsupportedModelError{Kind: fmt.Sprintf("%T", p)}
	}
}

func buildLIF(p model.LIFParams) (Dynamics, error) {
	tau := p.Tau
	if tau == 0 {
		tau = 1
	}
	if tau < 0 || !finite(tau) {
		return Dynamics{}, &model.InvalidParameterError{Field: "lif_tau", Value: p.Tau, Reason: "must be > 0"}
	}
	if !finite(p.Threshold) || !finite(p.Reset) {
		return Dynamics{}, &model.InvalidParameterError{Field: "threshold", Value: p.Threshold, Reason: "threshold and reset must be finite"}
	}
	d := Dynamics{
		Kind:       model.ModelLIF,
		StateNames: []string{"v"},
		Initial:    []float64{0},
		Derivative: func(_, current float64, state, dst []float64) error {
			dst[0] = (current - state[0]) / tau
			return nil
		},
		Threshold: func(_, _ float64, state []float64) (bool, error) {
			return state[0] >= p.Threshold, nil
		},
		Reset: func(_, _ float64, state []float64) error {
			state[0] = p.Reset
			return nil
		},
	}
	if p.Threshold <= p.Reset {
		d.Advisories = append(d.Advisories, fmt.Sprintf("lif threshold %g <= reset %g: neurons will not fire meaningfully", p.Threshold, p.Reset))
	}
	return d, nil
}

func buildIzhikevich(p model.IzhikevichParams) (Dynamics, error) {
	for name, v := range map[string]float64{"izh_a": p.A, "izh_b": p.B, "izh_c": p.C, "izh_d": p.D} {
		if !finite(v) {
			return Dynamics{}, &model.InvalidParameterError{Field: name, Value: v, Reason: "must be finite"}
		}
	}
	return Dynamics{
		Kind:       model.ModelIzhikevich,
		StateNames: []string{"v", "u"},
		Initial:    []float64{p.C, p.B * p.C},
		Derivative: func(_, current float64, state, dst []float64) error {
			v, u := state[0], state[1]
			dst[0] = 0.04*v*v + 5*v + 140 - u + current
			dst[1] = p.A * (p.B*v - u)
			return nil
		},
		Threshold: func(_, _ float64, state []float64) (bool, error) {
			return state[0] >= IzhikevichPeak, nil
		},
		Reset: func(_, _ float64, state []float64) error {
			state[0] = p.C
			state[1] += p.D
			return nil
		},
	}, nil
}

func buildAdEx(p model.AdExParams) (Dynamics, error) {
	if !(p.TauW > 0) || !finite(p.TauW) {
		return Dynamics{}, &model.InvalidParameterError{Field: "adex_tau_w", Value: p.TauW, Reason: "must be > 0"}
	}
	if !(p.DeltaT > 0) || !finite(p.DeltaT) {
		return Dynamics{}, &model.InvalidParameterError{Field: "adex_deltaT", Value: p.DeltaT, Reason: "must be > 0"}
	}
	if !finite(p.A) || !finite(p.B) {
		return Dynamics{}, &model.InvalidParameterError{Field: "adex_a", Value: p.A, Reason: "adaptation parameters must be finite"}
	}
	return Dynamics{
		Kind:       model.ModelAdEx,
		StateNames: []string{"v", "w"},
		Initial:    []float64{AdExRest, 0},
		Derivative: func(_, current float64, state, dst []float64) error {
			v, w := state[0], state[1]
			spike := AdExLeak * p.DeltaT * math.Exp((v-AdExThreshold)/p.DeltaT)
			dst[0] = (-AdExLeak*(v-AdExRest) + spike - w + current) / AdExCapacitance
			dst[1] = (p.A*(v-AdExRest) - w) / p.TauW
			return nil
		},
		Threshold: func(_, _ float64, state []float64) (bool, error) {
			return state[0] >= AdExSpikeCutoff, nil
		},
		Reset: func(_, _ float64, state []float64) error {
			state[0] = AdExRest
			state[1] += p.B
			return nil
		},
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
