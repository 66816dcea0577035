// Package engine integrates a population of neurons over a fixed time grid.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"neurosim/internal/model"
	"neurosim/internal/neuron"
	"neurosim/internal/noise"
)

type State int

const (
	StateBuilt State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilt:
		return "built"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrEngineState = errors.New("engine already ran")

// minNeuronsPerWorker keeps tiny populations on the serial path.
const minNeuronsPerWorker = 8

type Config struct {
	Dynamics neuron.Dynamics
	// Graph is nil when synapses are disabled.
	Graph *model.ConnectivityGraph
	// Noise is nil when noise is disabled.
	Noise *noise.Process

	NumNeurons      int
	Dt              float64
	SimTime         float64
	InputCurrent    float64
	CurrentStart    float64
	CurrentDuration float64
	CurrentSpread   float64

	// Workers bounds the goroutines used for the per-step neuron update.
	Workers int
	Logger  *zap.Logger
}

// Engine runs one simulation. It is single use: Run may be called once.
type Engine struct {
	cfg      Config
	steps    int
	outgoing [][]model.Edge
	logger   *zap.Logger

	mu    sync.Mutex
	state State
}

func New(cfg Config) (*Engine, error) {
	if cfg.NumNeurons < 1 {
		return nil, &model.InvalidParameterError{Field: "num_neurons", Value: cfg.NumNeurons, Reason: "must be >= 1"}
	}
	if !(cfg.Dt > 0) || math.IsInf(cfg.Dt, 0) {
		return nil, &model.InvalidParameterError{Field: "dt", Value: cfg.Dt, Reason: "must be > 0"}
	}
	if !(cfg.SimTime >= cfg.Dt) || math.IsInf(cfg.SimTime, 0) {
		return nil, &model.InvalidParameterError{Field: "sim_time", Value: cfg.SimTime, Reason: "must be finite and >= dt"}
	}
	d := cfg.Dynamics
	if d.Dim() == 0 || len(d.Initial) != d.Dim() || d.Derivative == nil || d.Threshold == nil || d.Reset == nil {
		return nil, errors.New("engine: incomplete neuron dynamics")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		cfg:    cfg,
		steps:  int(math.Round(cfg.SimTime / cfg.Dt)),
		logger: logger.Named("engine"),
		state:  StateBuilt,
	}
	if cfg.Graph != nil {
		if cfg.Graph.NeuronCount != cfg.NumNeurons {
			return nil, fmt.Errorf("engine: graph has %d neurons, want %d", cfg.Graph.NeuronCount, cfg.NumNeurons)
		}
		e.outgoing = make([][]model.Edge, cfg.NumNeurons)
		for _, edge := range cfg.Graph.Edges {
			if edge.Source < 0 || edge.Source >= cfg.NumNeurons || edge.Target < 0 || edge.Target >= cfg.NumNeurons {
				return nil, fmt.Errorf("engine: edge %d->%d out of range", edge.Source, edge.Target)
			}
			e.outgoing[edge.Source] = append(e.outgoing[edge.Source], edge)
		}
	}
	return e, nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Steps is the number of grid points the run will integrate.
func (e *Engine) Steps() int { return e.steps }

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run integrates every step of the grid. Cancellation is observed between
// steps. On failure no bundle is returned.
func (e *Engine) Run(ctx context.Context) (model.ResultBundle, error) {
	e.mu.Lock()
	if e.state != StateBuilt {
		state := e.state
		e.mu.Unlock()
		return model.ResultBundle{}, fmt.Errorf("%w: state=%s", ErrEngineState, state)
	}
	e.state = StateRunning
	e.mu.Unlock()

	e.logger.Debug("run started",
		zap.String("model", string(e.cfg.Dynamics.Kind)),
		zap.Int("neurons", e.cfg.NumNeurons),
		zap.Int("steps", e.steps),
		zap.Int("workers", e.cfg.Workers),
	)
	start := time.Now()
	bundle, err := e.integrate(ctx)
	elapsed := time.Since(start)
	if err != nil {
		e.setState(StateFailed)
		var div *model.NumericalDivergenceError
		if errors.As(err, &div) {
			e.logger.Warn("run diverged", zap.Int("step", div.Step), zap.Int("neuron", div.Neuron), zap.String("variable", div.Variable))
		}
		return model.ResultBundle{}, err
	}
	bundle.RunDurationSeconds = elapsed.Seconds()
	e.setState(StateCompleted)
	e.logger.Debug("run completed", zap.Int("spikes", len(bundle.Spikes)), zap.Duration("elapsed", elapsed))
	return bundle, nil
}

func (e *Engine) integrate(ctx context.Context) (model.ResultBundle, error) {
	cfg := e.cfg
	n, dim := cfg.NumNeurons, cfg.Dynamics.Dim()

	state := make([][]float64, n)
	deriv := make([][]float64, n)
	for i := range state {
		state[i] = append([]float64(nil), cfg.Dynamics.Initial...)
		deriv[i] = make([]float64, dim)
	}
	currents := make([]float64, n)
	spiked := make([]int, 0, n)
	next := make([]int, 0, n)

	voltage := make([]model.VoltageSample, 0, e.steps)
	spikes := make([]model.SpikeEvent, 0, 64)
	lastFinite := 0.0

	for k := 0; k < e.steps; k++ {
		if err := ctx.Err(); err != nil {
			return model.ResultBundle{}, err
		}
		t := float64(k) * cfg.Dt

		active := t >= cfg.CurrentStart && t < cfg.CurrentStart+cfg.CurrentDuration
		for i := range currents {
			if active {
				currents[i] = cfg.InputCurrent + float64(i)*cfg.CurrentSpread
			} else {
				currents[i] = 0
			}
		}
		cfg.Noise.Apply(currents)

		// Spikes from the previous step arrive now.
		for _, src := range spiked {
			for _, edge := range e.outgoing[src] {
				currents[edge.Target] += edge.Weight
			}
		}

		if err := e.step(t, currents, state, deriv); err != nil {
			return model.ResultBundle{}, err
		}
		if err := e.checkFinite(k, lastFinite, state, nil); err != nil {
			return model.ResultBundle{}, err
		}

		next = next[:0]
		for i := 0; i < n; i++ {
			fired, err := cfg.Dynamics.Threshold(t, currents[i], state[i])
			if err != nil {
				return model.ResultBundle{}, fmt.Errorf("neuron %d threshold at t=%g: %w", i, t, err)
			}
			if !fired {
				continue
			}
			spikes = append(spikes, model.SpikeEvent{Time: t, Neuron: i})
			if err := cfg.Dynamics.Reset(t, currents[i], state[i]); err != nil {
				return model.ResultBundle{}, fmt.Errorf("neuron %d reset at t=%g: %w", i, t, err)
			}
			next = append(next, i)
		}
		if err := e.checkFinite(k, lastFinite, state, next); err != nil {
			return model.ResultBundle{}, err
		}
		spiked, next = next, spiked

		v := make([]float64, n)
		for i := range state {
			v[i] = state[i][0]
		}
		voltage = append(voltage, model.VoltageSample{Time: t, V: v})
		lastFinite = t
	}

	bundle := model.ResultBundle{
		Dt:          cfg.Dt,
		NeuronCount: n,
		Voltage:     voltage,
		Spikes:      spikes,
	}
	if cfg.Graph != nil {
		g := cfg.Graph.Clone()
		bundle.Connectivity = &g
	}
	return bundle, nil
}

// step advances every neuron by one explicit Euler step.
func (e *Engine) step(t float64, currents []float64, state, deriv [][]float64) error {
	n := len(state)
	workers := e.cfg.Workers
	if workers > n/minNeuronsPerWorker {
		workers = n / minNeuronsPerWorker
	}
	if workers <= 1 {
		return e.stepRange(t, 0, n, currents, state, deriv)
	}

	var g errgroup.Group
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			return e.stepRange(t, lo, hi, currents, state, deriv)
		})
	}
	return g.Wait()
}

func (e *Engine) stepRange(t float64, lo, hi int, currents []float64, state, deriv [][]float64) error {
	dt := e.cfg.Dt
	for i := lo; i < hi; i++ {
		if err := e.cfg.Dynamics.Derivative(t, currents[i], state[i], deriv[i]); err != nil {
			return fmt.Errorf("neuron %d derivative at t=%g: %w", i, t, err)
		}
		s, d := state[i], deriv[i]
		for j := range s {
			s[j] += dt * d[j]
		}
	}
	return nil
}

// checkFinite scans the given neurons, or all of them when only is nil.
func (e *Engine) checkFinite(step int, lastFinite float64, state [][]float64, only []int) error {
	check := func(i int) error {
		for j, x := range state[i] {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return &model.NumericalDivergenceError{
					Step:           step,
					LastFiniteTime: lastFinite,
					Neuron:         i,
					Variable:       e.cfg.Dynamics.StateNames[j],
				}
			}
		}
		return nil
	}
	if only != nil {
		for _, i := range only {
			if err := check(i); err != nil {
				return err
			}
		}
		return nil
	}
	for i := range state {
		if err := check(i); err != nil {
			return err
		}
	}
	return nil
}
