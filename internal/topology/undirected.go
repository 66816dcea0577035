package topology

import (
	"math/rand/v2"

	"neurosim/internal/model"
)

// linkSet is an undirected simple graph used while building ring and
// preferential-attachment topologies.
type linkSet struct {
	n   int
	adj []map[int]struct{}
}

func newLinkSet(n int) *linkSet {
	adj := make([]map[int]struct{}, n)
	for i := range adj {
		adj[i] = make(map[int]struct{})
	}
	return &linkSet{n: n, adj: adj}
}

func (s *linkSet) has(u, v int) bool {
	_, ok := s.adj[u][v]
	return ok
}

func (s *linkSet) add(u, v int) {
	s.adj[u][v] = struct{}{}
	s.adj[v][u] = struct{}{}
}

func (s *linkSet) remove(u, v int) {
	delete(s.adj[u], v)
	delete(s.adj[v], u)
}

func (s *linkSet) degree(u int) int { return len(s.adj[u]) }

// directed lists every link in both directions.
func (s *linkSet) directed() model.ConnectivityGraph {
	g := model.ConnectivityGraph{Symmetric: true}
	for u := 0; u < s.n; u++ {
		for v := range s.adj[u] {
			g.Edges = append(g.Edges, model.Edge{Source: u, Target: v})
		}
	}
	sortEdges(g.Edges)
	return g
}

// ring builds a lattice where every neuron links to its k nearest neighbours
// (k/2 on each side), then rewires the far end of each lattice link with
// probability rewire. Links are visited by offset, then by neuron index.
func ring(n, k int, rewire float64, rng *rand.Rand) model.ConnectivityGraph {
	s := newLinkSet(n)
	for j := 1; j <= k/2; j++ {
		for u := 0; u < n; u++ {
			s.add(u, (u+j)%n)
		}
	}
	if rewire > 0 {
		for j := 1; j <= k/2; j++ {
			for u := 0; u < n; u++ {
				v := (u + j) % n
				if rng.Float64() >= rewire {
					continue
				}
				if s.degree(u) >= n-1 {
					continue
				}
				w := rng.IntN(n)
				for w == u || s.has(u, w) {
					w = rng.IntN(n)
				}
				s.remove(u, v)
				s.add(u, w)
			}
		}
	}
	return s.directed()
}

// scaleFree grows a Barabasi-Albert graph from a clique of m neurons. Each new
// neuron links to m distinct existing neurons drawn proportionally to degree.
func scaleFree(n, m int, rng *rand.Rand) model.ConnectivityGraph {
	s := newLinkSet(n)
	// repeated holds every neuron once per incident link.
	repeated := make([]int, 0, 2*m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < i; j++ {
			s.add(i, j)
			repeated = append(repeated, i, j)
		}
	}
	chosen := make(map[int]struct{}, m)
	targets := make([]int, 0, m)
	for src := m; src < n; src++ {
		clear(chosen)
		targets = targets[:0]
		for len(targets) < m {
			var candidate int
			if len(repeated) == 0 {
				candidate = rng.IntN(src)
			} else {
				candidate = repeated[rng.IntN(len(repeated))]
			}
			if _, dup := chosen[candidate]; dup {
				continue
			}
			chosen[candidate] = struct{}{}
			targets = append(targets, candidate)
		}
		for _, t := range targets {
			s.add(src, t)
			repeated = append(repeated, src, t)
		}
	}
	return s.directed()
}
