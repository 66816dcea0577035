package engine

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"neurosim/internal/model"
	"neurosim/internal/neuron"
	"neurosim/internal/noise"
	"neurosim/internal/topology"
)

func mustDynamics(t *testing.T, p model.NeuronParams) neuron.Dynamics {
	t.Helper()
	d, err := neuron.Build(p)
	require.NoError(t, err)
	return d
}

func lifConfig(t *testing.T, n int, current float64) Config {
	return Config{
		Dynamics:        mustDynamics(t, model.LIFParams{Threshold: 1, Reset: 0, Tau: 1}),
		NumNeurons:      n,
		Dt:              0.1,
		SimTime:         10,
		InputCurrent:    current,
		CurrentDuration: 10,
		Logger:          zaptest.NewLogger(t),
	}
}

func runEngine(t *testing.T, cfg Config) (model.ResultBundle, error) {
	t.Helper()
	e, err := New(cfg)
	require.NoError(t, err)
	return e.Run(context.Background())
}

func TestLIFBelowThresholdNeverFires(t *testing.T) {
	bundle, err := runEngine(t, lifConfig(t, 3, 0.8))
	require.NoError(t, err)
	assert.Empty(t, bundle.Spikes)
	require.Len(t, bundle.Voltage, 100)
	for _, sample := range bundle.Voltage {
		for _, v := range sample.V {
			assert.Less(t, v, 0.8+1e-9)
		}
	}
}

func TestLIFFiresPeriodically(t *testing.T) {
	bundle, err := runEngine(t, lifConfig(t, 1, 2))
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Spikes)

	// v(k+1) = 0.9 v(k) + 0.2 crosses 1 on the seventh step.
	assert.InDelta(t, 0.6, bundle.Spikes[0].Time, 1e-9)
	for i := 1; i < len(bundle.Spikes); i++ {
		assert.Greater(t, bundle.Spikes[i].Time, bundle.Spikes[i-1].Time)
	}
	for _, sample := range bundle.Voltage {
		assert.GreaterOrEqual(t, sample.V[0], 0.0)
		assert.Less(t, sample.V[0], 1.0)
	}
	for k, sample := range bundle.Voltage {
		assert.InDelta(t, float64(k)*0.1, sample.Time, 1e-12)
	}
	assert.Equal(t, 1, bundle.NeuronCount)
	assert.Equal(t, 0.1, bundle.Dt)
	assert.GreaterOrEqual(t, bundle.RunDurationSeconds, 0.0)
}

func TestCurrentWindowAndSpread(t *testing.T) {
	cfg := lifConfig(t, 2, 0.5)
	cfg.CurrentStart = 2
	cfg.CurrentDuration = 3
	cfg.CurrentSpread = 0.25
	bundle, err := runEngine(t, cfg)
	require.NoError(t, err)

	v, ok := bundle.VoltageAt(19, 0)
	require.True(t, ok)
	assert.Zero(t, v, "no current before the window opens")

	v0, _ := bundle.VoltageAt(49, 0)
	v1, _ := bundle.VoltageAt(49, 1)
	assert.Greater(t, v1, v0, "spread raises the second neuron's drive")

	late, _ := bundle.VoltageAt(99, 0)
	assert.Less(t, late, v0, "membrane decays after the window closes")
}

func TestSpikesArriveOneStepLater(t *testing.T) {
	cfg := lifConfig(t, 2, 20)
	cfg.CurrentSpread = -20
	cfg.SimTime = 1
	cfg.Graph = &model.ConnectivityGraph{
		Topology:    model.TopologyRandom,
		NeuronCount: 2,
		Edges:       []model.Edge{{Source: 0, Target: 1, Weight: 50}},
	}
	bundle, err := runEngine(t, cfg)
	require.NoError(t, err)

	first := bundle.SpikesFor(0)
	require.NotEmpty(t, first)
	assert.InDelta(t, 0.0, first[0], 1e-12)

	second := bundle.SpikesFor(1)
	require.NotEmpty(t, second)
	assert.InDelta(t, 0.1, second[0], 1e-12)

	require.NotNil(t, bundle.Connectivity)
	assert.Equal(t, cfg.Graph.Edges, bundle.Connectivity.Edges)
}

func noisyNetworkConfig(t *testing.T, workers int) Config {
	graph, _, err := topology.Generate(model.TopologyRandom, 48, model.TopologyParams{Prob: 0.2}, 0.3, rand.New(rand.NewPCG(9, 1000)))
	require.NoError(t, err)
	proc, err := noise.NewProcess(model.NoiseAdditive, 0.5, rand.New(rand.NewPCG(9, 2000)))
	require.NoError(t, err)

	cfg := lifConfig(t, 48, 1.1)
	cfg.SimTime = 20
	cfg.CurrentDuration = 20
	cfg.Graph = &graph
	cfg.Noise = proc
	cfg.Workers = workers
	return cfg
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	serial, err := runEngine(t, noisyNetworkConfig(t, 1))
	require.NoError(t, err)
	require.NotEmpty(t, serial.Spikes)

	for _, workers := range []int{1, 3, 6} {
		parallel, err := runEngine(t, noisyNetworkConfig(t, workers))
		require.NoError(t, err)
		assert.Equal(t, serial.Voltage, parallel.Voltage, "workers=%d", workers)
		assert.Equal(t, serial.Spikes, parallel.Spikes, "workers=%d", workers)
	}
}

func TestAdExRunawayDiverges(t *testing.T) {
	cfg := Config{
		Dynamics:        mustDynamics(t, model.AdExParams{A: 0.02, B: 0.2, DeltaT: 0.01, TauW: 30}),
		NumNeurons:      2,
		Dt:              0.1,
		SimTime:         10,
		InputCurrent:    1e5,
		CurrentDuration: 10,
		Logger:          zaptest.NewLogger(t),
	}
	e, err := New(cfg)
	require.NoError(t, err)
	bundle, err := e.Run(context.Background())
	require.ErrorIs(t, err, model.ErrNumericalDivergence)
	assert.Empty(t, bundle.Voltage)
	assert.Equal(t, StateFailed, e.State())

	var div *model.NumericalDivergenceError
	require.ErrorAs(t, err, &div)
	assert.Equal(t, 1, div.Step)
	assert.Equal(t, 0, div.Neuron)
	assert.Equal(t, "v", div.Variable)
	assert.Equal(t, 0.0, div.LastFiniteTime)
}

func TestAdExSpikeCutoffKeepsRunFinite(t *testing.T) {
	cfg := Config{
		Dynamics:        mustDynamics(t, model.AdExParams{A: 0.02, B: 0.2, DeltaT: 2, TauW: 30}),
		NumNeurons:      1,
		Dt:              0.1,
		SimTime:         50,
		InputCurrent:    1e5,
		CurrentDuration: 50,
	}
	bundle, err := runEngine(t, cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, bundle.Spikes)
}

func TestCustomModelDivergence(t *testing.T) {
	cfg := lifConfig(t, 1, 1)
	cfg.Dynamics = mustDynamics(t, model.CustomParams{
		Equations: "dv/dt = v*v + I : mV",
		Threshold: "v < -1",
		Reset:     "v = 0",
	})
	cfg.SimTime = 100
	_, err := runEngine(t, cfg)
	require.ErrorIs(t, err, model.ErrNumericalDivergence)

	var div *model.NumericalDivergenceError
	require.ErrorAs(t, err, &div)
	assert.Positive(t, div.Step)
	assert.InDelta(t, float64(div.Step-1)*0.1, div.LastFiniteTime, 1e-9)
}

func TestCustomThresholdAndResetSeeStepCurrent(t *testing.T) {
	cfg := lifConfig(t, 1, 2)
	cfg.Dynamics = mustDynamics(t, model.CustomParams{
		Equations: "dv/dt = -v",
		Threshold: "I > 1",
		Reset:     "v = I / 2",
	})
	bundle, err := runEngine(t, cfg)
	require.NoError(t, err)
	assert.Len(t, bundle.Spikes, 100)
	for _, sample := range bundle.Voltage {
		assert.InDelta(t, 1.0, sample.V[0], 1e-12)
	}

	cfg.InputCurrent = 0.5
	bundle, err = runEngine(t, cfg)
	require.NoError(t, err)
	assert.Empty(t, bundle.Spikes)
}

func TestCancelledContextFailsRun(t *testing.T) {
	e, err := New(lifConfig(t, 2, 2))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFailed, e.State())
}

func TestEngineIsSingleUse(t *testing.T) {
	e, err := New(lifConfig(t, 1, 2))
	require.NoError(t, err)
	assert.Equal(t, StateBuilt, e.State())
	assert.Equal(t, 100, e.Steps())

	_, err = e.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, e.State())

	_, err = e.Run(context.Background())
	require.ErrorIs(t, err, ErrEngineState)
}

func TestNewRejectsInconsistentConfig(t *testing.T) {
	cfg := lifConfig(t, 2, 1)
	cfg.Graph = &model.ConnectivityGraph{NeuronCount: 3}
	_, err := New(cfg)
	require.Error(t, err)

	cfg = lifConfig(t, 2, 1)
	cfg.Dynamics = neuron.Dynamics{}
	_, err = New(cfg)
	require.Error(t, err)

	cfg = lifConfig(t, 2, 1)
	cfg.Dt = 0
	_, err = New(cfg)
	require.ErrorIs(t, err, model.ErrInvalidParameter)

	cfg = lifConfig(t, 0, 1)
	_, err = New(cfg)
	require.ErrorIs(t, err, model.ErrInvalidParameter)
}
