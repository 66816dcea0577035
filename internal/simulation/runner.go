// Package simulation turns a ParameterSet into a finished ResultBundle.
package simulation

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"neurosim/internal/engine"
	"neurosim/internal/model"
	"neurosim/internal/neuron"
	"neurosim/internal/noise"
	"neurosim/internal/topology"
)

// Stream identifiers keep topology and noise draws independent for a seed.
const (
	TopologyStream uint64 = 1000
	NoiseStream    uint64 = 2000
)

type Options struct {
	// Workers bounds the per-step integration pool. Zero means serial.
	Workers int
	Logger  *zap.Logger
	// Now supplies the clock used for seeds of unseeded runs.
	Now func() time.Time
}

type Runner struct {
	workers int
	logger  *zap.Logger
	now     func() time.Time
}

func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		workers: opts.Workers,
		logger:  logger.Named("simulation"),
		now:     now,
	}
}

// Components are the independently built inputs of one engine.
type Components struct {
	Dynamics neuron.Dynamics
	Graph    *model.ConnectivityGraph
	Noise    *noise.Process
	Warnings []string
}

// ResolveSeed returns the pinned seed of ps, or a clock-derived one.
func (r *Runner) ResolveSeed(ps model.ParameterSet) int64 {
	if ps.Seed != nil {
		return *ps.Seed
	}
	return r.now().UnixNano()
}

// Build constructs the neuron dynamics, connectivity and noise for ps
// concurrently. Warnings are ordered: model advisories, then topology.
func (r *Runner) Build(ctx context.Context, ps model.ParameterSet, seed int64) (Components, error) {
	var (
		dynamics  neuron.Dynamics
		graph     *model.ConnectivityGraph
		graphNote []string
		proc      *noise.Process
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := neuron.Build(ps.Neuron)
		if err != nil {
			return err
		}
		dynamics = d
		return nil
	})
	if ps.SynapseEnabled {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(seed), TopologyStream))
			built, notes, err := topology.Generate(ps.Topology, ps.NumNeurons, ps.TopologyParams, ps.SynWeight, rng)
			if err != nil {
				return err
			}
			graph, graphNote = &built, notes
			return nil
		})
	}
	if ps.NoiseEnabled {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(uint64(seed), NoiseStream))
			p, err := noise.NewProcess(ps.NoiseMethod, ps.NoiseIntensity, rng)
			if err != nil {
				return err
			}
			proc = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Components{}, err
	}

	warnings := make([]string, 0, len(dynamics.Advisories)+len(graphNote))
	warnings = append(warnings, dynamics.Advisories...)
	warnings = append(warnings, graphNote...)
	return Components{Dynamics: dynamics, Graph: graph, Noise: proc, Warnings: warnings}, nil
}

// Run validates ps, builds its components and integrates it. The returned
// bundle carries a fresh run ID and the seed actually used.
func (r *Runner) Run(ctx context.Context, ps model.ParameterSet) (model.ResultBundle, error) {
	if err := ps.Validate(); err != nil {
		return model.ResultBundle{}, err
	}
	seed := r.ResolveSeed(ps)
	logger := r.logger.With(zap.Int64("seed", seed), zap.String("model", string(ps.ModelKind())))

	parts, err := r.Build(ctx, ps, seed)
	if err != nil {
		logger.Debug("component build failed", zap.Error(err))
		return model.ResultBundle{}, err
	}
	for _, w := range parts.Warnings {
		logger.Warn(w)
	}

	eng, err := engine.New(engine.Config{
		Dynamics:        parts.Dynamics,
		Graph:           parts.Graph,
		Noise:           parts.Noise,
		NumNeurons:      ps.NumNeurons,
		Dt:              ps.Dt,
		SimTime:         ps.SimTime,
		InputCurrent:    ps.InputCurrent,
		CurrentStart:    ps.CurrentStart,
		CurrentDuration: ps.CurrentDuration,
		CurrentSpread:   ps.CurrentSpread,
		Workers:         r.workers,
		Logger:          logger,
	})
	if err != nil {
		return model.ResultBundle{}, fmt.Errorf("configure engine: %w", err)
	}
	bundle, err := eng.Run(ctx)
	if err != nil {
		return model.ResultBundle{}, err
	}

	bundle.RunID = uuid.NewString()
	bundle.Seed = seed
	bundle.Warnings = parts.Warnings
	logger.Info("run completed",
		zap.String("run_id", bundle.RunID),
		zap.Int("neurons", bundle.NeuronCount),
		zap.Int("spikes", len(bundle.Spikes)),
		zap.Float64("duration_s", bundle.RunDurationSeconds),
	)
	return bundle, nil
}
