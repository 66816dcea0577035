package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"neurosim/internal/model"
	"neurosim/internal/topology"
	"neurosim/pkg/neurosim"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run-id]",
		Short: "Write CSV, JSON and DOT artifacts of a stored run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			latest, _ := cmd.Flags().GetBool("latest")
			outDir, _ := cmd.Flags().GetString("out")
			outputType, _ := cmd.Flags().GetString("output-type")
			req := neurosim.ExportRequest{Latest: latest, OutDir: outDir, OutputType: model.OutputType(outputType)}
			if len(args) == 1 {
				req.RunID = args[0]
			}
			client, err := a.open()
			if err != nil {
				return err
			}
			summary, err := client.Export(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(summary)
			}
			fmt.Fprintf(a.out, "exported run %s to %s\n", summary.RunID, summary.Directory)
			return nil
		},
	}
	cmd.Flags().Bool("latest", false, "export the newest completed run")
	cmd.Flags().String("out", "", "output directory (defaults to output.dir)")
	cmd.Flags().String("output-type", "", "plot views: voltage|raster|both|all")
	return cmd
}

func newGraphCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render or publish the connectivity of a stored run",
	}
	cmd.AddCommand(newGraphDotCmd(a), newGraphPublishCmd(a))
	return cmd
}

func newGraphDotCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dot <run-id>",
		Short: "Print the run's connectivity in Graphviz DOT form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			record, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if record.Bundle == nil || record.Bundle.Connectivity == nil {
				return errors.New("run has no connectivity graph")
			}
			data, err := topology.EncodeDOT(*record.Bundle.Connectivity, record.ID)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, string(data))
			return nil
		},
	}
}

func newGraphPublishCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <run-id>",
		Short: "Publish the run's connectivity to Neo4j",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			if a.neo4j != nil {
				if err := a.neo4j.Verify(cmd.Context()); err != nil {
					return fmt.Errorf("connect neo4j: %w", err)
				}
			}
			report, err := client.PublishGraph(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(report)
			}
			fmt.Fprintf(a.out, "published run %s: %d neurons, %d synapses in %d batches\n",
				report.RunID, report.Neurons, report.Synapses, report.Batches)
			return nil
		},
	}
}
