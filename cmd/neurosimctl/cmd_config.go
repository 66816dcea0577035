package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage saved parameter configurations",
	}
	cmd.AddCommand(
		newConfigSaveCmd(a),
		newConfigGetCmd(a),
		newConfigListCmd(a),
		newConfigDeleteCmd(a),
	)
	return cmd
}

func newConfigSaveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Validate and save a parameter configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := paramFlags(cmd)
			if err != nil {
				return err
			}
			name, _ := cmd.Flags().GetString("name")
			client, err := a.open()
			if err != nil {
				return err
			}
			record, err := client.SaveConfig(cmd.Context(), name, values)
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(record)
			}
			fmt.Fprintf(a.out, "saved config %s\n", record.ID)
			return nil
		},
	}
	addParamFlags(cmd)
	cmd.Flags().String("name", "", "display name")
	return cmd
}

func newConfigGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a saved configuration as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			record, err := client.LoadConfig(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(record)
			}
			enc := yaml.NewEncoder(a.out)
			enc.SetIndent(2)
			if err := enc.Encode(record.Values); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newConfigListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved configurations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			configs, err := client.ListConfigs(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOut {
				return a.printJSON(configs)
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMODEL\tCREATED")
			for _, c := range configs {
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", c.ID, c.Name, c.Values["neuron_model"], humanize.Time(c.CreatedAt))
			}
			return w.Flush()
		},
	}
}

func newConfigDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.open()
			if err != nil {
				return err
			}
			if err := client.DeleteConfig(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted config %s\n", args[0])
			return nil
		},
	}
}
