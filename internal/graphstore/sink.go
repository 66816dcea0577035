package graphstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"neurosim/internal/model"
)

// edgeBatch caps the edges sent in a single UNWIND statement.
const edgeBatch = 1000

const (
	deleteRunQuery = `MATCH (n:Neuron {run_id: $run_id}) DETACH DELETE n`

	createNeuronsQuery = `
UNWIND $neurons AS idx
CREATE (:Neuron {run_id: $run_id, index: idx, topology: $topology})`

	createSynapsesQuery = `
UNWIND $edges AS e
MATCH (a:Neuron {run_id: $run_id, index: e.source})
MATCH (b:Neuron {run_id: $run_id, index: e.target})
CREATE (a)-[:SYNAPSE {weight: e.weight}]->(b)`

	outDegreeQuery = `
MATCH (n:Neuron {run_id: $run_id})
OPTIONAL MATCH (n)-[s:SYNAPSE]->()
RETURN n.index AS index, count(s) AS degree
ORDER BY index`
)

type PublishReport struct {
	RunID    string
	Neurons  int
	Synapses int
	Batches  int
}

// Sink writes one (:Neuron) node per neuron and one [:SYNAPSE] relationship
// per directed edge, keyed by run ID. Publishing a run again replaces it.
type Sink struct {
	runner Runner
	logger *zap.Logger
}

func NewSink(runner Runner, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{runner: runner, logger: logger.Named("graphstore")}
}

func (s *Sink) Publish(ctx context.Context, runID string, g model.ConnectivityGraph) (PublishReport, error) {
	if runID == "" {
		return PublishReport{}, errors.New("graphstore: run id is required")
	}
	report := PublishReport{RunID: runID}

	if _, err := s.runner.Run(ctx, deleteRunQuery, map[string]any{"run_id": runID}); err != nil {
		return report, fmt.Errorf("clear run %s: %w", runID, err)
	}

	neurons := make([]int64, g.NeuronCount)
	for i := range neurons {
		neurons[i] = int64(i)
	}
	params := map[string]any{"run_id": runID, "neurons": neurons, "topology": string(g.Topology)}
	if _, err := s.runner.Run(ctx, createNeuronsQuery, params); err != nil {
		return report, fmt.Errorf("create neurons for %s: %w", runID, err)
	}
	report.Neurons = g.NeuronCount

	for start := 0; start < len(g.Edges); start += edgeBatch {
		end := min(start+edgeBatch, len(g.Edges))
		batch := make([]map[string]any, 0, end-start)
		for _, e := range g.Edges[start:end] {
			batch = append(batch, map[string]any{
				"source": int64(e.Source),
				"target": int64(e.Target),
				"weight": e.Weight,
			})
		}
		if _, err := s.runner.Run(ctx, createSynapsesQuery, map[string]any{"run_id": runID, "edges": batch}); err != nil {
			return report, fmt.Errorf("create synapses for %s: %w", runID, err)
		}
		report.Synapses += len(batch)
		report.Batches++
	}

	s.logger.Info("graph published",
		zap.String("run_id", runID),
		zap.Int("neurons", report.Neurons),
		zap.Int("synapses", report.Synapses),
	)
	return report, nil
}

func (s *Sink) Delete(ctx context.Context, runID string) error {
	if _, err := s.runner.Run(ctx, deleteRunQuery, map[string]any{"run_id": runID}); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// OutDegrees reads back the stored out-degree of every neuron of runID.
func (s *Sink) OutDegrees(ctx context.Context, runID string) (map[int]int, error) {
	result, err := s.runner.Run(ctx, outDegreeQuery, map[string]any{"run_id": runID})
	if err != nil {
		return nil, fmt.Errorf("read degrees for %s: %w", runID, err)
	}
	out := make(map[int]int, len(result.Records))
	for _, record := range result.Records {
		index, ok := record.Get("index")
		if !ok {
			return nil, errors.New("graphstore: record missing index")
		}
		degree, ok := record.Get("degree")
		if !ok {
			return nil, errors.New("graphstore: record missing degree")
		}
		i, iok := index.(int64)
		d, dok := degree.(int64)
		if !iok || !dok {
			return nil, fmt.Errorf("graphstore: unexpected record types %T, %T", index, degree)
		}
		out[int(i)] = int(d)
	}
	return out, nil
}
