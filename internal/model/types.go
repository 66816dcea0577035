package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

type TopologyKind string

const (
	TopologyRandom     TopologyKind = "random"
	TopologySmallWorld TopologyKind = "small_world"
	TopologyScaleFree  TopologyKind = "scale_free"
	TopologyRegular    TopologyKind = "regular"
	TopologyModular    TopologyKind = "modular"
)

type NoiseMethod string

const (
	NoiseAdditive       NoiseMethod = "additive"
	NoiseMultiplicative NoiseMethod = "multiplicative"
)

// OutputType selects which views a plotting collaborator renders.
type OutputType string

const (
	OutputVoltage OutputType = "voltage"
	OutputRaster  OutputType = "raster"
	OutputBoth    OutputType = "both"
	OutputAll     OutputType = "all"
)

type PlotType string

const (
	PlotStatic      PlotType = "static"
	PlotInteractive PlotType = "interactive"
)

// TopologyParams holds every topology-specific field. Generators read only the
// fields that belong to their kind.
type TopologyParams struct {
	Prob     float64 `json:"syn_prob"`
	K        int     `json:"topology_k"`
	KReg     int     `json:"topology_k_reg"`
	PRewire  float64 `json:"topology_p_rewire"`
	M        int     `json:"topology_m"`
	NModules int     `json:"topology_n_modules"`
	PIntra   float64 `json:"topology_p_intra"`
	PInter   float64 `json:"topology_p_inter"`
}

// ParameterSet is the resolved input of one simulation run. Values are
// treated as immutable once built.
type ParameterSet struct {
	Neuron NeuronParams

	SimTime         float64
	Dt              float64
	InputCurrent    float64
	CurrentStart    float64
	CurrentDuration float64
	CurrentSpread   float64
	NumNeurons      int

	NoiseEnabled   bool
	NoiseIntensity float64
	NoiseMethod    NoiseMethod

	SynapseEnabled bool
	SynWeight      float64
	Topology       TopologyKind
	TopologyParams TopologyParams

	OutputType OutputType
	PlotType   PlotType

	// Seed is nil when the run should draw a fresh seed.
	Seed *int64
}

// ModelKind reports the active neuron model kind, or an empty kind when unset.
func (p ParameterSet) ModelKind() NeuronModel {
	if p.Neuron == nil {
		return ""
	}
	return p.Neuron.Kind()
}

// WithSeed returns a copy of p pinned to seed.
func (p ParameterSet) WithSeed(seed int64) ParameterSet {
	p.Seed = &seed
	return p
}

type Edge struct {
	Source int     `json:"source"`
	Target int     `json:"target"`
	Weight float64 `json:"weight"`
}

// ConnectivityGraph is a directed edge list over neuron indices [0, NeuronCount).
// Edges are sorted by (Source, Target), carry no self-loops and at most one
// edge per ordered pair. Symmetric graphs list both directions of every link.
type ConnectivityGraph struct {
	Topology    TopologyKind `json:"topology"`
	NeuronCount int          `json:"neuron_count"`
	Symmetric   bool         `json:"symmetric"`
	Degree      int          `json:"degree,omitempty"`
	Edges       []Edge       `json:"edges"`
}

func (g ConnectivityGraph) HasEdge(source, target int) bool {
	for _, e := range g.Edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}

func (g ConnectivityGraph) Clone() ConnectivityGraph {
	g.Edges = append([]Edge(nil), g.Edges...)
	return g
}

type VoltageSample struct {
	Time float64   `json:"time_ms"`
	V    []float64 `json:"v"`
}

type SpikeEvent struct {
	Time   float64 `json:"time_ms"`
	Neuron int     `json:"neuron"`
}

// ResultBundle is the output of one completed run.
type ResultBundle struct {
	RunID              string             `json:"run_id"`
	Seed               int64              `json:"seed"`
	Dt                 float64            `json:"dt"`
	NeuronCount        int                `json:"neuron_count"`
	Voltage            []VoltageSample    `json:"voltage"`
	Spikes             []SpikeEvent       `json:"spikes"`
	Connectivity       *ConnectivityGraph `json:"connectivity,omitempty"`
	Warnings           []string           `json:"warnings,omitempty"`
	RunDurationSeconds float64            `json:"run_duration_seconds"`
}

// VoltageAt returns the potential of neuron at trace sample index sample.
func (b ResultBundle) VoltageAt(sample, neuron int) (float64, bool) {
	if sample < 0 || sample >= len(b.Voltage) {
		return 0, false
	}
	v := b.Voltage[sample].V
	if neuron < 0 || neuron >= len(v) {
		return 0, false
	}
	return v[neuron], true
}

// SpikesFor returns the spike times of a single neuron in time order.
func (b ResultBundle) SpikesFor(neuron int) []float64 {
	times := make([]float64, 0, 16)
	for _, s := range b.Spikes {
		if s.Neuron == neuron {
			times = append(times, s.Time)
		}
	}
	return times
}

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunDiverged  RunStatus = "diverged"
	RunFailed    RunStatus = "failed"
)

// ConfigRecord is a saved parameter set in its flat key-value form.
type ConfigRecord struct {
	VersionedRecord
	ID        string         `json:"id"`
	Name      string         `json:"name,omitempty"`
	Values    map[string]any `json:"values"`
	CreatedAt time.Time      `json:"created_at"`
}

// RunRecord is a stored run outcome keyed by run ID. Bundle is nil unless the
// run completed.
type RunRecord struct {
	VersionedRecord
	ID        string         `json:"id"`
	ConfigID  string         `json:"config_id,omitempty"`
	Values    map[string]any `json:"values"`
	Status    RunStatus      `json:"status"`
	Error     string         `json:"error,omitempty"`
	Bundle    *ResultBundle  `json:"bundle,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	SizeBytes int64          `json:"size_bytes"`
}
