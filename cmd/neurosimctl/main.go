package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"neurosim/internal/config"
	"neurosim/internal/graphstore"
	"neurosim/internal/logging"
	"neurosim/internal/params"
	"neurosim/pkg/neurosim"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app carries state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	jsonOut bool

	v      *viper.Viper
	cfg    config.Config
	logger *zap.Logger
	out    io.Writer
	errOut io.Writer

	client *neurosim.Client
	neo4j  *graphstore.Neo4jExecutor
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:           "neurosimctl",
		Short:         "Simulate spiking neural networks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.v, a.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logger, "neurosimctl", a.errOut)
			if err != nil {
				return err
			}
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close(cmd.Context())
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.BoolVar(&a.jsonOut, "json", false, "print machine-readable JSON")
	flags.String("store", "memory", "store backend: memory|sqlite|postgres")
	flags.Int("workers", 1, "integration workers per step")
	flags.String("output-dir", "neurosim-output", "directory for exported run artifacts")
	flags.String("log-level", "info", "log level")
	_ = a.v.BindPFlag("store.kind", flags.Lookup("store"))
	_ = a.v.BindPFlag("engine.workers", flags.Lookup("workers"))
	_ = a.v.BindPFlag("output.dir", flags.Lookup("output-dir"))
	_ = a.v.BindPFlag("logger.level", flags.Lookup("log-level"))

	rootCmd.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newConfigCmd(a),
		newRunsCmd(a),
		newExportCmd(a),
		newGraphCmd(a),
	)
	return rootCmd
}

// open builds the client on first use so commands that never touch the store
// do not connect to it.
func (a *app) open() (*neurosim.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	opts := neurosim.Options{
		StoreKind: a.cfg.Store.Kind,
		DSN:       a.cfg.Store.DSN(),
		OutputDir: a.cfg.Output.Dir,
		Workers:   a.cfg.Engine.Workers,
		Logger:    a.logger,
	}
	if a.cfg.Neo4j.Enabled() {
		exec, err := graphstore.NewNeo4jExecutor(a.cfg.Neo4j.URI, a.cfg.Neo4j.Username, a.cfg.Neo4j.Password, a.cfg.Neo4j.Database)
		if err != nil {
			return nil, err
		}
		a.neo4j = exec
		opts.Graph = exec
	}
	client, err := neurosim.New(opts)
	if err != nil {
		return nil, err
	}
	a.client = client
	return client, nil
}

func (a *app) close(ctx context.Context) error {
	var err error
	if a.client != nil {
		err = a.client.Close()
	}
	if a.neo4j != nil {
		if cerr := a.neo4j.Close(ctx); err == nil {
			err = cerr
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return err
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadValues reads an optional parameter file and applies --set overrides.
func loadValues(file string, overrides []string) (map[string]any, error) {
	values := map[string]any{}
	if file != "" {
		loaded, err := params.LoadFile(file)
		if err != nil {
			return nil, err
		}
		values = loaded
	}
	return params.ApplyOverrides(values, overrides)
}

func addParamFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("params", "p", "", "parameter file (yaml or json)")
	cmd.Flags().StringArray("set", nil, "parameter override key=value (repeatable)")
}

func paramFlags(cmd *cobra.Command) (map[string]any, error) {
	file, _ := cmd.Flags().GetString("params")
	overrides, _ := cmd.Flags().GetStringArray("set")
	return loadValues(file, overrides)
}
