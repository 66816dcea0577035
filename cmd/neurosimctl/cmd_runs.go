package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/c2h5oh/datasize"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"neurosim/internal/export"
	"neurosim/internal/model"
	"neurosim/pkg/neurosim"
)

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect and prune stored runs",
	}
	cmd.AddCommand(newRunsListCmd(a), newRunsShowCmd(a), newRunsEvictCmd(a))
	return cmd
}

func newRunsListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			status, _ := cmd.Flags().GetString("status")
			client, err := a.open()
			if err != nil {
				return err
			}
			items, err := client.Runs(cmd.Context(), neurosim.RunsRequest{Limit: limit, Status: model.RunStatus(status)})
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(items)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tCREATED\tSIZE")
			for _, item := range items {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", item.RunID, item.Status, humanize.Time(item.CreatedAt), humanize.Bytes(uint64(item.SizeBytes)))
			}
			return w.Flush()
		},
	}
	cmd.Flags().Int("limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().String("status", "", "only runs with this status: completed|diverged|failed")
	return cmd
}

func newRunsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a stored run and its firing statistics",
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
			out := map[string]any{
				"run_id":     record.ID,
				"config_id":  record.ConfigID,
				"status":     record.Status,
				"created_at": record.CreatedAt,
				"size_bytes": record.SizeBytes,
			}
			if record.Error != "" {
				out["error"] = record.Error
			}
			if record.Bundle != nil {
				out["summary"] = export.Summarize(*record.Bundle)
			}
			return a.printJSON(out)
		},
	}
}

func newRunsEvictCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evict",
		Short: "Delete runs beyond the retention limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := a.cfg.Retention.Policy()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-age") {
				policy.MaxAge, _ = cmd.Flags().GetDuration("max-age")
			}
			if cmd.Flags().Changed("max-bytes") {
				raw, _ := cmd.Flags().GetString("max-bytes")
				size, err := datasize.ParseString(strings.TrimSpace(raw))
				if err != nil {
					return fmt.Errorf("--max-bytes %q: %w", raw, err)
				}
				policy.MaxBytes = size
			}

			client, err := a.open()
			if err != nil {
				return err
			}
			report, err := client.Evict(cmd.Context(), policy)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(report)
			}
			fmt.Fprintf(a.out, "evicted %d runs (%s), %d remaining (%s)\n",
				len(report.Evicted), humanize.Bytes(uint64(report.FreedBytes)),
				report.Remaining, humanize.Bytes(uint64(report.RemainingBytes)))
			return nil
		},
	}
	cmd.Flags().Duration("max-age", 0, "delete runs older than this")
	cmd.Flags().String("max-bytes", "", "keep the newest runs within this size, e.g. 64MB")
	return cmd
}
