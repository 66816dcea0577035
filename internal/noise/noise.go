// Package noise perturbs injected currents with Gaussian noise.
package noise

import (
	"fmt"
	"strings"

	"neurosim/internal/model"
)

// Source yields standard normal samples. *rand.Rand from math/rand/v2
// satisfies it.
type Source interface {
	NormFloat64() float64
}

// Sample perturbs base. A zero intensity returns base unchanged and draws
// nothing from rng.
func Sample(base, intensity float64, method model.NoiseMethod, rng Source) float64 {
	if intensity == 0 {
		return base
	}
	switch method {
	case model.NoiseMultiplicative:
		return base * (1 + intensity*rng.NormFloat64())
	default:
		return base + intensity*rng.NormFloat64()
	}
}

func ParseMethod(name string) (model.NoiseMethod, error) {
	switch m := model.NoiseMethod(strings.ToLower(strings.TrimSpace(name))); m {
	case model.NoiseAdditive, model.NoiseMultiplicative:
		return m, nil
	default:
		return "", &model.InvalidParameterError{Field: "noise_method", Value: name, Reason: "must be additive or multiplicative"}
	}
}

// Process is the per-run noise configuration handed to the engine. A nil
// *Process or a disabled one leaves currents untouched.
type Process struct {
	Method    model.NoiseMethod
	Intensity float64
	rng       Source
}

func NewProcess(method model.NoiseMethod, intensity float64, rng Source) (*Process, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	if intensity < 0 {
		return nil, &model.InvalidParameterError{Field: "noise_intensity", Value: intensity, Reason: "must be >= 0"}
	}
	if rng == nil && intensity != 0 {
		return nil, fmt.Errorf("noise: random source is required")
	}
	return &Process{Method: method, Intensity: intensity, rng: rng}, nil
}

// Apply perturbs currents in place, one draw per neuron in index order.
func (p *Process) Apply(currents []float64) {
	if p == nil || p.Intensity == 0 {
		return
	}
	for i, c := range currents {
		currents[i] = Sample(c, p.Intensity, p.Method, p.rng)
	}
}
