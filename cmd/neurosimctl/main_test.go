package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"neurosim/internal/export"
	"neurosim/pkg/neurosim"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, _, err := execute(t, "validate", "--set", "num_neurons=3", "--set", "sim_time=10", "--set", "shape=round")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "valid: model=lif neurons=3 steps=100") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, `note: unknown parameter "shape" ignored`) {
		t.Fatalf("expected unknown-key note:\n%s", out)
	}

	_, _, err = execute(t, "validate", "--set", "dt=0")
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestValidateReadsParameterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	content := "neuron_model: izhikevich\nnum_neurons: 7\nsynapse_enabled: true\ntopology_type: small_world\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err := execute(t, "validate", "--params", path)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "model=izhikevich neurons=7") || !strings.Contains(out, "topology: small_world") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestValidateWritesReusableParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resolved.json")
	if _, _, err := execute(t, "validate", "--set", "neuron_model=adex", "--set", "num_neurons=4", "--write", path); err != nil {
		t.Fatalf("validate --write: %v", err)
	}
	out, _, err := execute(t, "validate", "--params", path)
	if err != nil {
		t.Fatalf("validate resolved file: %v", err)
	}
	if !strings.Contains(out, "model=adex neurons=4") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestRunCommandExports(t *testing.T) {
	outDir := t.TempDir()
	out, _, err := execute(t,
		"--output-dir", outDir,
		"run", "--json", "--seed", "5", "--run-id", "cli-run", "--export",
		"--set", "num_neurons=2", "--set", "sim_time=10", "--set", "input_current=2",
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var summary export.Summary
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode summary: %v\n%s", err, out)
	}
	if summary.RunID != "cli-run" || summary.Seed != 5 || summary.Neurons != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if _, err := os.Stat(filepath.Join(outDir, "cli-run", export.VoltageCSVFile)); err != nil {
		t.Fatalf("expected exported voltage csv: %v", err)
	}

	_, _, err = execute(t, "run", "--persist=false", "--export")
	if err == nil || !strings.Contains(err.Error(), "--export requires --persist") {
		t.Fatalf("expected flag conflict, got %v", err)
	}
}

func TestRunCommandReportsDivergence(t *testing.T) {
	_, errOut, err := execute(t, "run", "--seed", "1", "--run-id", "bad",
		"--set", "neuron_model=adex", "--set", "adex_deltaT=0.01", "--set", "input_current=100000",
		"--set", "num_neurons=1", "--set", "sim_time=1")
	if err == nil {
		t.Fatal("expected divergence error")
	}
	if !strings.Contains(errOut, "run bad diverged (seed 1)") {
		t.Fatalf("expected divergence status on stderr:\n%s", errOut)
	}
}

func TestStoreCommands(t *testing.T) {
	out, _, err := execute(t, "runs", "evict", "--max-bytes", "1MB")
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if !strings.Contains(out, "evicted 0 runs") {
		t.Fatalf("unexpected evict output:\n%s", out)
	}

	out, _, err = execute(t, "config", "list")
	if err != nil {
		t.Fatalf("config list: %v", err)
	}
	if !strings.HasPrefix(out, "ID") {
		t.Fatalf("expected table header:\n%s", out)
	}

	_, _, err = execute(t, "graph", "publish", "some-run")
	if !errors.Is(err, neurosim.ErrGraphUnavailable) {
		t.Fatalf("expected graph unavailable, got %v", err)
	}

	_, _, err = execute(t, "--store", "etcd", "runs", "list")
	if err == nil || !strings.Contains(err.Error(), "unsupported store.kind") {
		t.Fatalf("expected store kind error, got %v", err)
	}
}
