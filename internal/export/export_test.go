package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"neurosim/internal/model"
)

func sampleBundle() model.ResultBundle {
	return model.ResultBundle{
		RunID:       "run-7",
		Seed:        42,
		Dt:          0.5,
		NeuronCount: 2,
		Voltage: []model.VoltageSample{
			{Time: 0.5, V: []float64{-65, -70}},
			{Time: 1, V: []float64{-64.5, -69.25}},
			{Time: 1.5, V: []float64{-60, -68}},
			{Time: 2, V: []float64{-65, -67.5}},
		},
		Spikes: []model.SpikeEvent{
			{Time: 0.5, Neuron: 0},
			{Time: 1, Neuron: 0},
			{Time: 1.5, Neuron: 1},
			{Time: 2, Neuron: 0},
		},
	}
}

func withGraph(b model.ResultBundle) model.ResultBundle {
	b.Connectivity = &model.ConnectivityGraph{
		Topology:    model.TopologyRandom,
		NeuronCount: 2,
		Edges:       []model.Edge{{Source: 0, Target: 1, Weight: 0.5}},
	}
	return b
}

func TestWriteVoltageCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVoltageCSV(&buf, sampleBundle()); err != nil {
		t.Fatalf("write voltage csv: %v", err)
	}
	want := strings.Join([]string{
		"Time(ms),Neuron_0,Neuron_1",
		"0.5,-65,-70",
		"1,-64.5,-69.25",
		"1.5,-60,-68",
		"2,-65,-67.5",
		"",
	}, "\n")
	if buf.String() != want {
		t.Fatalf("unexpected voltage csv:\n%s", buf.String())
	}

	bad := sampleBundle()
	bad.Voltage[2].V = []float64{1}
	if err := WriteVoltageCSV(&bytes.Buffer{}, bad); err == nil {
		t.Fatal("expected ragged sample error")
	}
}

func TestWriteSpikesCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSpikesCSV(&buf, sampleBundle()); err != nil {
		t.Fatalf("write spikes csv: %v", err)
	}
	want := "Time(ms),Neuron\n0.5,0\n1,0\n1.5,1\n2,0\n"
	if buf.String() != want {
		t.Fatalf("unexpected spikes csv:\n%s", buf.String())
	}

	buf.Reset()
	empty := sampleBundle()
	empty.Spikes = nil
	if err := WriteSpikesCSV(&buf, empty); err != nil {
		t.Fatalf("write empty spikes csv: %v", err)
	}
	if buf.String() != "Time(ms),Neuron\n" {
		t.Fatalf("expected header only, got %q", buf.String())
	}
}

func TestWriteVoltageJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteVoltageJSON(&buf, sampleBundle()); err != nil {
		t.Fatalf("write voltage json: %v", err)
	}
	var doc VoltageDocument
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("decode voltage json: %v", err)
	}
	if doc.Unit != "mV" {
		t.Fatalf("unit = %q", doc.Unit)
	}
	if len(doc.TimeMs) != 4 || doc.TimeMs[3] != 2 {
		t.Fatalf("unexpected time axis: %v", doc.TimeMs)
	}
	if got := doc.Neurons["Neuron_1"]; len(got) != 4 || got[1] != -69.25 {
		t.Fatalf("unexpected Neuron_1 column: %v", got)
	}
	if len(doc.Neurons) != 2 {
		t.Fatalf("expected 2 neuron columns, got %d", len(doc.Neurons))
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(withGraph(sampleBundle()))
	if s.DurationMs != 2 || s.TotalSpikes != 4 || s.Neurons != 2 {
		t.Fatalf("unexpected totals: %+v", s)
	}

	n0 := s.PerNeuron[0]
	if n0.Spikes != 3 || math.Abs(n0.RateHz-1500) > 1e-9 {
		t.Fatalf("unexpected neuron 0 rate: %+v", n0)
	}
	if math.Abs(n0.MeanISI-0.75) > 1e-12 {
		t.Fatalf("mean isi = %v, want 0.75", n0.MeanISI)
	}
	if math.Abs(n0.ISICV-math.Sqrt(0.125)/0.75) > 1e-12 {
		t.Fatalf("isi cv = %v", n0.ISICV)
	}

	n1 := s.PerNeuron[1]
	if n1.Spikes != 1 || n1.MeanISI != 0 || n1.ISICV != 0 {
		t.Fatalf("unexpected single-spike summary: %+v", n1)
	}
	if math.Abs(s.MeanRateHz-1000) > 1e-9 {
		t.Fatalf("mean rate = %v, want 1000", s.MeanRateHz)
	}
	if s.Topology == nil || s.Topology.Edges != 1 {
		t.Fatalf("expected topology summary, got %+v", s.Topology)
	}

	if _, err := json.Marshal(Summarize(model.ResultBundle{})); err != nil {
		t.Fatalf("empty bundle summary should encode: %v", err)
	}
}

func TestBuildPlotDataSelectsViews(t *testing.T) {
	b := withGraph(sampleBundle())
	cases := []struct {
		output   model.OutputType
		voltage  bool
		raster   bool
		topology bool
	}{
		{model.OutputVoltage, true, false, false},
		{model.OutputRaster, false, true, false},
		{model.OutputBoth, true, true, false},
		{model.OutputAll, true, true, true},
	}
	for _, tc := range cases {
		data, err := BuildPlotData(b, tc.output)
		if err != nil {
			t.Fatalf("%s: %v", tc.output, err)
		}
		if (data.Voltage != nil) != tc.voltage || (data.Raster != nil) != tc.raster || (data.Topology != nil) != tc.topology {
			t.Fatalf("%s: unexpected views %+v", tc.output, data)
		}
	}

	data, err := BuildPlotData(b, model.OutputAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Voltage) != 2 || data.Voltage[1].Label != "Neuron_1" || len(data.Voltage[1].Points) != 4 {
		t.Fatalf("unexpected voltage series: %+v", data.Voltage)
	}
	if data.Voltage[0].Points[2] != (PlotPoint{TimeMs: 1.5, Value: -60}) {
		t.Fatalf("unexpected point: %+v", data.Voltage[0].Points[2])
	}
	if len(data.Raster) != 4 || data.Raster[2] != (RasterPoint{TimeMs: 1.5, Neuron: 1}) {
		t.Fatalf("unexpected raster: %+v", data.Raster)
	}

	noGraph, err := BuildPlotData(sampleBundle(), model.OutputAll)
	if err != nil {
		t.Fatal(err)
	}
	if noGraph.Topology != nil {
		t.Fatal("topology view without a graph")
	}

	_, err = BuildPlotData(b, "heatmap")
	if !errors.Is(err, model.ErrInvalidParameter) {
		t.Fatalf("expected invalid parameter, got %v", err)
	}
}

func TestWriteRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	artifacts := RunArtifacts{
		Values:     map[string]any{"neuron_model": "LIF", "num_neurons": 2},
		Bundle:     withGraph(sampleBundle()),
		OutputType: model.OutputAll,
	}
	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if runDir != filepath.Join(baseDir, "run-7") {
		t.Fatalf("unexpected run dir %s", runDir)
	}
	for _, file := range []string{ConfigFile, VoltageCSVFile, SpikesCSVFile, VoltageJSONFile, SummaryFile, PlotFile, TopologyFile} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(runDir, ConfigFile))
	if err != nil {
		t.Fatal(err)
	}
	var cfg ArtifactConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("decode config: %v", err)
	}
	if cfg.Seed != 42 || cfg.Values["neuron_model"] != "LIF" {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	dotData, err := os.ReadFile(filepath.Join(runDir, TopologyFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(dotData), "digraph") {
		t.Fatalf("expected directed dot graph:\n%s", dotData)
	}

	plain := artifacts
	plain.Bundle = sampleBundle()
	plain.Bundle.RunID = "run-8"
	runDir, err = WriteRunArtifacts(baseDir, plain)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(runDir, TopologyFile)); !os.IsNotExist(err) {
		t.Fatalf("topology file written without a graph: %v", err)
	}

	plain.Bundle.RunID = ""
	if _, err := WriteRunArtifacts(baseDir, plain); err == nil {
		t.Fatal("expected missing run id error")
	}
}

func TestCleanupOutputs(t *testing.T) {
	baseDir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, age := range map[string]time.Duration{"old": 10 * time.Minute, "older": time.Hour, "fresh": time.Second} {
		dir := filepath.Join(baseDir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		stamp := now.Add(-age)
		if err := os.Chtimes(dir, stamp, stamp); err != nil {
			t.Fatal(err)
		}
	}

	removed, err := CleanupOutputs(baseDir, DefaultMaxOutputAge, now)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if strings.Join(removed, ",") != "old,older" {
		t.Fatalf("unexpected removals: %v", removed)
	}
	if _, err := os.Stat(filepath.Join(baseDir, "fresh")); err != nil {
		t.Fatalf("fresh output removed: %v", err)
	}

	removed, err = CleanupOutputs(filepath.Join(baseDir, "missing"), time.Minute, now)
	if err != nil || len(removed) != 0 {
		t.Fatalf("missing dir: %v %v", removed, err)
	}
}
