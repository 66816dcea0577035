package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurosim/internal/export"
	"neurosim/internal/params"
	"neurosim/pkg/neurosim"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation from a parameter file, saved config and overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := paramFlags(cmd)
			if err != nil {
				return err
			}
			configID, _ := cmd.Flags().GetString("config-id")
			runID, _ := cmd.Flags().GetString("run-id")
			persist, _ := cmd.Flags().GetBool("persist")
			exportRun, _ := cmd.Flags().GetBool("export")
			if exportRun && !persist {
				return errors.New("--export requires --persist")
			}

			req := neurosim.RunRequest{Values: values, ConfigID: configID, RunID: runID, Persist: persist}
			if cmd.Flags().Changed("seed") {
				seed, _ := cmd.Flags().GetInt64("seed")
				req.Seed = &seed
			}

			client, err := a.open()
			if err != nil {
				return err
			}
			summary, err := client.Run(cmd.Context(), req)
			if err != nil {
				if summary.Status != "" {
					fmt.Fprintf(a.errOut, "run %s %s (seed %d)\n", summary.RunID, summary.Status, summary.Seed)
				}
				return err
			}

			var dir string
			if exportRun {
				exported, err := client.Export(cmd.Context(), neurosim.ExportRequest{RunID: summary.RunID})
				if err != nil {
					return err
				}
				dir = exported.Directory
			}

			if a.jsonOut {
				return a.printJSON(export.Summarize(summary.Bundle))
			}
			b := summary.Bundle
			fmt.Fprintf(a.out, "run %s completed: seed=%d neurons=%d spikes=%d samples=%d took=%s\n",
				b.RunID, b.Seed, b.NeuronCount, len(b.Spikes), len(b.Voltage),
				time.Duration(b.RunDurationSeconds*float64(time.Second)).Round(time.Microsecond))
			for _, w := range summary.Warnings {
				fmt.Fprintf(a.out, "warning: %s\n", w)
			}
			if dir != "" {
				fmt.Fprintf(a.out, "artifacts: %s\n", dir)
			}
			return nil
		},
	}
	addParamFlags(cmd)
	cmd.Flags().String("config-id", "", "saved config to start from")
	cmd.Flags().String("run-id", "", "run identifier (generated when empty)")
	cmd.Flags().Int64("seed", 0, "random seed (clock-derived when unset)")
	cmd.Flags().Bool("persist", true, "store the run outcome")
	cmd.Flags().Bool("export", false, "write run artifacts to the output directory")
	return cmd
}

func newValidateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Resolve and validate parameters without running them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := paramFlags(cmd)
			if err != nil {
				return err
			}
			client, err := a.open()
			if err != nil {
				return err
			}
			ps, notes, err := client.Validate(values, nil)
			if err != nil {
				return err
			}
			if path, _ := cmd.Flags().GetString("write"); path != "" {
				data, err := params.EncodeParameterSet(ps)
				if err != nil {
					return err
				}
				if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
					return err
				}
			}
			if a.jsonOut {
				return a.printJSON(map[string]any{
					"valid":   true,
					"model":   ps.ModelKind(),
					"neurons": ps.NumNeurons,
					"steps":   ps.Steps(),
					"notes":   notes,
				})
			}
			fmt.Fprintf(a.out, "valid: model=%s neurons=%d steps=%s\n",
				ps.ModelKind(), ps.NumNeurons, humanize.Comma(int64(ps.Steps())))
			if ps.SynapseEnabled {
				fmt.Fprintf(a.out, "topology: %s weight=%g\n", ps.Topology, ps.SynWeight)
			}
			if ps.NoiseEnabled {
				fmt.Fprintf(a.out, "noise: %s intensity=%g\n", ps.NoiseMethod, ps.NoiseIntensity)
			}
			for _, n := range notes {
				fmt.Fprintf(a.out, "note: %s\n", n)
			}
			return nil
		},
	}
	addParamFlags(cmd)
	cmd.Flags().String("write", "", "write the resolved parameters as a versioned JSON file")
	return cmd
}
