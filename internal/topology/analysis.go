package topology

import (
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"neurosim/internal/model"
)

type Summary struct {
	Neurons       int     `json:"neurons"`
	Edges         int     `json:"edges"`
	Density       float64 `json:"density"`
	MeanOutDegree float64 `json:"mean_out_degree"`
	MaxOutDegree  int     `json:"max_out_degree"`
	MaxInDegree   int     `json:"max_in_degree"`
	Isolated      int     `json:"isolated"`
	Components    int     `json:"strongly_connected_components"`
}

// Analyze reports degree and connectedness statistics for g.
func Analyze(g model.ConnectivityGraph) Summary {
	dg := toDirected(g)
	s := Summary{Neurons: g.NeuronCount, Edges: len(g.Edges)}
	if g.NeuronCount > 1 {
		s.Density = float64(len(g.Edges)) / float64(g.NeuronCount*(g.NeuronCount-1))
	}
	if g.NeuronCount > 0 {
		s.MeanOutDegree = float64(len(g.Edges)) / float64(g.NeuronCount)
	}
	for i := 0; i < g.NeuronCount; i++ {
		out := dg.From(int64(i)).Len()
		in := dg.To(int64(i)).Len()
		if out > s.MaxOutDegree {
			s.MaxOutDegree = out
		}
		if in > s.MaxInDegree {
			s.MaxInDegree = in
		}
		if out == 0 && in == 0 {
			s.Isolated++
		}
	}
	s.Components = len(topo.TarjanSCC(dg))
	return s
}

// EncodeDOT renders g in Graphviz DOT form. Symmetric graphs are written as
// undirected graphs with one line per link.
func EncodeDOT(g model.ConnectivityGraph, name string) ([]byte, error) {
	if !g.Symmetric {
		return dot.Marshal(toDirected(g), name, "", "  ")
	}
	ug := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < g.NeuronCount; i++ {
		ug.AddNode(simple.Node(i))
	}
	for _, e := range g.Edges {
		if e.Source < e.Target {
			ug.SetWeightedEdge(weightedEdge{from: simple.Node(e.Source), to: simple.Node(e.Target), weight: e.Weight})
		}
	}
	return dot.Marshal(ug, name, "", "  ")
}

func toDirected(g model.ConnectivityGraph) *simple.WeightedDirectedGraph {
	dg := simple.NewWeightedDirectedGraph(0, 0)
	for i := 0; i < g.NeuronCount; i++ {
		dg.AddNode(simple.Node(i))
	}
	for _, e := range g.Edges {
		dg.SetWeightedEdge(weightedEdge{from: simple.Node(e.Source), to: simple.Node(e.Target), weight: e.Weight})
	}
	return dg
}

// weightedEdge carries the synaptic weight as a DOT attribute.
type weightedEdge struct {
	from, to graph.Node
	weight   float64
}

func (e weightedEdge) From() graph.Node { return e.from }

func (e weightedEdge) To() graph.Node { return e.to }

func (e weightedEdge) Weight() float64 { return e.weight }

func (e weightedEdge) ReversedEdge() graph.Edge {
	return weightedEdge{from: e.to, to: e.from, weight: e.weight}
}

func (e weightedEdge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "weight", Value: strconv.FormatFloat(e.weight, 'g', -1, 64)}}
}
