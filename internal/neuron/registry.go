package neuron

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrFunctionExists   = errors.New("function already registered")
	ErrFunctionNotFound = errors.New("function not found")
)

// ScalarFunc is a one-argument function callable from custom model text.
type ScalarFunc func(x float64) float64

var functionRegistry = struct {
	mu sync.RWMutex
	m  map[string]ScalarFunc
}{
	m: make(map[string]ScalarFunc),
}

func init() {
	initializeBuiltInFunctions()
}

func initializeBuiltInFunctions() {
	MustRegisterFunction("exp", math.Exp)
	MustRegisterFunction("log", math.Log)
	MustRegisterFunction("sqrt", math.Sqrt)
	MustRegisterFunction("sin", math.Sin)
	MustRegisterFunction("cos", math.Cos)
	MustRegisterFunction("tanh", math.Tanh)
}

func RegisterFunction(name string, fn ScalarFunc) error {
	if name == "" {
		return errors.New("function name is required")
	}
	if fn == nil {
		return errors.New("function is required")
	}
	if isReservedSymbol(name) {
		return fmt.Errorf("function name %s is reserved", name)
	}

	functionRegistry.mu.Lock()
	defer functionRegistry.mu.Unlock()

	if _, exists := functionRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrFunctionExists, name)
	}
	functionRegistry.m[name] = fn
	return nil
}

func MustRegisterFunction(name string, fn ScalarFunc) {
	if err := RegisterFunction(name, fn); err != nil {
		panic(err)
	}
}

func GetFunction(name string) (ScalarFunc, error) {
	functionRegistry.mu.RLock()
	fn, ok := functionRegistry.m[name]
	functionRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFunctionNotFound, name)
	}
	return fn, nil
}

func ListFunctions() []string {
	functionRegistry.mu.RLock()
	defer functionRegistry.mu.RUnlock()

	names := make([]string, 0, len(functionRegistry.m))
	for name := range functionRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func snapshotFunctions() map[string]ScalarFunc {
	functionRegistry.mu.RLock()
	defer functionRegistry.mu.RUnlock()

	out := make(map[string]ScalarFunc, len(functionRegistry.m))
	for name, fn := range functionRegistry.m {
		out[name] = fn
	}
	return out
}

func resetFunctionRegistryForTests() {
	functionRegistry.mu.Lock()
	functionRegistry.m = make(map[string]ScalarFunc)
	functionRegistry.mu.Unlock()
	initializeBuiltInFunctions()
}
