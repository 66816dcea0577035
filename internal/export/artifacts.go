package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"neurosim/internal/model"
	"neurosim/internal/topology"
)

const (
	ConfigFile      = "config.json"
	VoltageCSVFile  = "voltage.csv"
	SpikesCSVFile   = "spikes.csv"
	VoltageJSONFile = "voltage.json"
	SummaryFile     = "summary.json"
	PlotFile        = "plot.json"
	TopologyFile    = "topology.dot"
)

// DefaultMaxOutputAge bounds how long run directories stay in the output
// folder before CleanupOutputs removes them.
const DefaultMaxOutputAge = 180 * time.Second

// RunArtifacts is everything written for one run. Values is the flat
// parameter map the run was resolved from.
type RunArtifacts struct {
	Values     map[string]any
	Bundle     model.ResultBundle
	OutputType model.OutputType
}

type ArtifactConfig struct {
	RunID  string         `json:"run_id"`
	Seed   int64          `json:"seed"`
	Values map[string]any `json:"values"`
}

// WriteRunArtifacts writes the artifacts of one run to baseDir/<run id> and
// returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	b := artifacts.Bundle
	if b.RunID == "" {
		return "", errors.New("run id is required")
	}
	if baseDir == "" {
		baseDir = "neurosim-output"
	}
	runDir := filepath.Join(baseDir, b.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, ConfigFile), ArtifactConfig{
		RunID:  b.RunID,
		Seed:   b.Seed,
		Values: artifacts.Values,
	}); err != nil {
		return "", err
	}
	if err := writeWith(filepath.Join(runDir, VoltageCSVFile), b, WriteVoltageCSV); err != nil {
		return "", err
	}
	if err := writeWith(filepath.Join(runDir, SpikesCSVFile), b, WriteSpikesCSV); err != nil {
		return "", err
	}
	if err := writeWith(filepath.Join(runDir, VoltageJSONFile), b, WriteVoltageJSON); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, SummaryFile), Summarize(b)); err != nil {
		return "", err
	}

	outputType := artifacts.OutputType
	if outputType == "" {
		outputType = model.OutputBoth
	}
	plot, err := BuildPlotData(b, outputType)
	if err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, PlotFile), plot); err != nil {
		return "", err
	}

	if b.Connectivity != nil {
		data, err := topology.EncodeDOT(*b.Connectivity, b.RunID)
		if err != nil {
			return "", fmt.Errorf("encode topology: %w", err)
		}
		if err := os.WriteFile(filepath.Join(runDir, TopologyFile), append(data, '\n'), 0o644); err != nil {
			return "", err
		}
	}
	return runDir, nil
}

// CleanupOutputs removes run directories under baseDir last modified more
// than maxAge before now and returns their names in sorted order. A missing
// baseDir is not an error.
func CleanupOutputs(baseDir string, maxAge time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	cutoff := now.Add(-maxAge)
	removed := make([]string, 0)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return removed, err
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(baseDir, entry.Name())); err != nil {
			return removed, err
		}
		removed = append(removed, entry.Name())
	}
	sort.Strings(removed)
	return removed, nil
}

func writeWith(path string, b model.ResultBundle, write func(io.Writer, model.ResultBundle) error) error {
	var buf bytes.Buffer
	if err := write(&buf, b); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
