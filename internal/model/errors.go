package model

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter         = errors.New("invalid parameter")
	ErrUnsupportedModel         = errors.New("unsupported neuron model")
	ErrInvalidTopologyParameter = errors.New("invalid topology parameter")
	ErrModelDefinition          = errors.New("invalid model definition")
	ErrNumericalDivergence      = errors.New("numerical divergence")
)

// InvalidParameterError reports a field that violates a documented constraint.
type InvalidParameterError struct {
	Field  string
	Value  any
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("%v: %s=%v: %s", ErrInvalidParameter, e.Field, e.Value, e.Reason)
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

type UnsupportedModelError struct {
	Kind string
}

func (e *UnsupportedModelError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("%v: no model selected", ErrUnsupportedModel)
	}
	return fmt.Sprintf("%v: %s", ErrUnsupportedModel, e.Kind)
}

func (e *UnsupportedModelError) Is(target error) bool { return target == ErrUnsupportedModel }

type InvalidTopologyParameterError struct {
	Topology TopologyKind
	Field    string
	Value    any
	Reason   string
}

func (e *InvalidTopologyParameterError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: %s: %s", ErrInvalidTopologyParameter, e.Topology, e.Reason)
	}
	return fmt.Sprintf("%v: %s %s=%v: %s", ErrInvalidTopologyParameter, e.Topology, e.Field, e.Value, e.Reason)
}

func (e *InvalidTopologyParameterError) Is(target error) bool {
	return target == ErrInvalidTopologyParameter
}

// ModelDefinitionError reports custom model text that cannot be accepted.
// Section is one of equations, threshold or reset; Token is the offending
// symbol or fragment when one can be isolated.
type ModelDefinitionError struct {
	Section string
	Source  string
	Token   string
	Reason  string
}

func (e *ModelDefinitionError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("%v: %s %q: %s (at %q)", ErrModelDefinition, e.Section, e.Source, e.Reason, e.Token)
	}
	return fmt.Sprintf("%v: %s %q: %s", ErrModelDefinition, e.Section, e.Source, e.Reason)
}

func (e *ModelDefinitionError) Is(target error) bool { return target == ErrModelDefinition }

// NumericalDivergenceError is returned when a state variable stops being
// finite. LastFiniteTime is the time of the last fully finite step.
type NumericalDivergenceError struct {
	Step           int
	LastFiniteTime float64
	Neuron         int
	Variable       string
}

func (e *NumericalDivergenceError) Error() string {
	return fmt.Sprintf("%v: neuron %d variable %s non-finite at step %d (last finite t=%g ms)",
		ErrNumericalDivergence, e.Neuron, e.Variable, e.Step, e.LastFiniteTime)
}

func (e *NumericalDivergenceError) Is(target error) bool { return target == ErrNumericalDivergence }
