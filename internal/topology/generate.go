// Package topology builds synaptic connectivity graphs. Every generator is a
// pure function of its inputs and the state of the supplied random source.
package topology

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"neurosim/internal/model"
)

// Generate builds the connectivity graph for kind over n neurons. Every edge
// carries weight. The returned warnings describe documented normalizations
// (probability clamping, ring degree rounding).
func Generate(kind model.TopologyKind, n int, p model.TopologyParams, weight float64, rng *rand.Rand) (model.ConnectivityGraph, []string, error) {
	if rng == nil {
		return model.ConnectivityGraph{}, nil, errors.New("topology: random source is required")
	}
	if n < 1 {
		return model.ConnectivityGraph{}, nil, &model.InvalidTopologyParameterError{Topology: kind, Field: "num_neurons", Value: n, Reason: "must be >= 1"}
	}

	var (
		warnings []string
		g        model.ConnectivityGraph
		err      error
	)
	switch kind {
	case model.TopologyRandom:
		prob := clampProbability("syn_prob", p.Prob, &warnings)
		g = random(n, prob, rng)
	case model.TopologySmallWorld:
		var k int
		k, err = normalizeRingDegree(kind, "topology_k", p.K, n, &warnings)
		if err != nil {
			return model.ConnectivityGraph{}, warnings, err
		}
		rewire := clampProbability("topology_p_rewire", p.PRewire, &warnings)
		g = ring(n, k, rewire, rng)
		g.Degree = k
	case model.TopologyRegular:
		var k int
		k, err = normalizeRingDegree(kind, "topology_k_reg", p.KReg, n, &warnings)
		if err != nil {
			return model.ConnectivityGraph{}, warnings, err
		}
		g = ring(n, k, 0, rng)
		g.Degree = k
	case model.TopologyScaleFree:
		if p.M < 1 || p.M >= n {
			return model.ConnectivityGraph{}, nil, &model.InvalidTopologyParameterError{
				Topology: kind, Field: "topology_m", Value: p.M,
				Reason: fmt.Sprintf("must satisfy 1 <= m < num_neurons (%d)", n),
			}
		}
		g = scaleFree(n, p.M, rng)
		g.Degree = p.M
	case model.TopologyModular:
		if p.NModules < 2 || p.NModules > n {
			return model.ConnectivityGraph{}, nil, &model.InvalidTopologyParameterError{
				Topology: kind, Field: "topology_n_modules", Value: p.NModules,
				Reason: fmt.Sprintf("must satisfy 2 <= n_modules <= num_neurons (%d)", n),
			}
		}
		intra := clampProbability("topology_p_intra", p.PIntra, &warnings)
		inter := clampProbability("topology_p_inter", p.PInter, &warnings)
		g = modular(n, p.NModules, intra, inter, rng)
	default:
		return model.ConnectivityGraph{}, nil, &model.InvalidTopologyParameterError{Topology: kind, Field: "topology_type", Value: string(kind), Reason: "unknown topology"}
	}

	g.Topology = kind
	g.NeuronCount = n
	for i := range g.Edges {
		g.Edges[i].Weight = weight
	}
	sortEdges(g.Edges)
	return g, warnings, nil
}

// Modules returns the module index of every neuron for a contiguous split of
// n neurons into count groups; the first n%count groups get one extra neuron.
func Modules(n, count int) []int {
	out := make([]int, n)
	if count < 1 {
		return out
	}
	base, rem := n/count, n%count
	idx := 0
	for m := 0; m < count; m++ {
		size := base
		if m < rem {
			size++
		}
		for i := 0; i < size; i++ {
			out[idx] = m
			idx++
		}
	}
	return out
}

func random(n int, prob float64, rng *rand.Rand) model.ConnectivityGraph {
	g := model.ConnectivityGraph{}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if rng.Float64() < prob {
				g.Edges = append(g.Edges, model.Edge{Source: i, Target: j})
			}
		}
	}
	return g
}

func modular(n, count int, intra, inter float64, rng *rand.Rand) model.ConnectivityGraph {
	modules := Modules(n, count)
	g := model.ConnectivityGraph{}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			prob := inter
			if modules[i] == modules[j] {
				prob = intra
			}
			if rng.Float64() < prob {
				g.Edges = append(g.Edges, model.Edge{Source: i, Target: j})
			}
		}
	}
	return g
}

func clampProbability(field string, p float64, warnings *[]string) float64 {
	switch {
	case math.IsNaN(p):
		*warnings = append(*warnings, fmt.Sprintf("%s is NaN, clamped to 0", field))
		return 0
	case p < 0:
		*warnings = append(*warnings, fmt.Sprintf("%s %g clamped to 0", field, p))
		return 0
	case p > 1:
		*warnings = append(*warnings, fmt.Sprintf("%s %g clamped to 1", field, p))
		return 1
	default:
		return p
	}
}

// normalizeRingDegree rounds an odd ring degree up to the next even value.
func normalizeRingDegree(kind model.TopologyKind, field string, k, n int, warnings *[]string) (int, error) {
	if k < 1 {
		return 0, &model.InvalidTopologyParameterError{Topology: kind, Field: field, Value: k, Reason: "must be >= 1"}
	}
	if k%2 == 1 {
		*warnings = append(*warnings, fmt.Sprintf("%s %d is odd, normalized to %d", field, k, k+1))
		k++
	}
	if k >= n {
		return 0, &model.InvalidTopologyParameterError{
			Topology: kind, Field: field, Value: k,
			Reason: fmt.Sprintf("normalized degree must be < num_neurons (%d)", n),
		}
	}
	return k, nil
}

func sortEdges(edges []model.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Source != edges[j].Source {
			return edges[i].Source < edges[j].Source
		}
		return edges[i].Target < edges[j].Target
	})
}
