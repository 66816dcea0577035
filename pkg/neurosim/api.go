// Package neurosim is the programmatic entry point for running spiking
// network simulations and managing their stored configurations and results.
package neurosim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"neurosim/internal/export"
	"neurosim/internal/graphstore"
	"neurosim/internal/model"
	"neurosim/internal/params"
	"neurosim/internal/simulation"
	"neurosim/internal/storage"
)

const defaultOutputDir = "neurosim-output"

var (
	ErrNotFound         = errors.New("not found")
	ErrGraphUnavailable = errors.New("graph database is not configured")
	ErrNoResult         = errors.New("run has no result bundle")
)

type Options struct {
	StoreKind string
	// DSN is the sqlite path or postgres URL of the store.
	DSN       string
	OutputDir string
	// MaxOutputAge, when positive, removes older run directories from
	// OutputDir before each export.
	MaxOutputAge time.Duration
	Workers      int
	Logger       *zap.Logger
	// Graph receives published connectivity graphs. Nil disables publishing.
	Graph graphstore.Runner
	Now   func() time.Time
}

type Client struct {
	store  storage.Store
	runner *simulation.Runner
	graph  *graphstore.Sink
	logger *zap.Logger

	outputDir    string
	maxOutputAge time.Duration
	now          func() time.Time

	initMu sync.Mutex
	ready  bool
}

type RunRequest struct {
	// Values are flat parameters applied on top of the saved config, if any.
	Values   map[string]any
	ConfigID string
	// Overrides are key=value pairs applied last.
	Overrides []string
	Seed      *int64
	RunID     string
	// Persist stores the outcome, including failed and diverged runs.
	Persist bool
}

type RunSummary struct {
	RunID    string
	Seed     int64
	Status   model.RunStatus
	Bundle   model.ResultBundle
	Warnings []string
}

type RunsRequest struct {
	Limit  int
	Status model.RunStatus
}

type RunItem struct {
	RunID     string
	ConfigID  string
	Status    model.RunStatus
	Error     string
	CreatedAt time.Time
	SizeBytes int64
}

type ExportRequest struct {
	RunID      string
	Latest     bool
	OutDir     string
	OutputType model.OutputType
}

type ExportSummary struct {
	RunID     string
	Directory string
	Removed   []string
}

func New(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = defaultOutputDir
	}

	store, err := storage.NewStore(opts.StoreKind, opts.DSN)
	if err != nil {
		return nil, err
	}

	c := &Client{
		store:        store,
		runner:       simulation.NewRunner(simulation.Options{Workers: opts.Workers, Logger: logger, Now: now}),
		logger:       logger.Named("neurosim"),
		outputDir:    outputDir,
		maxOutputAge: opts.MaxOutputAge,
		now:          now,
	}
	if opts.Graph != nil {
		c.graph = graphstore.NewSink(opts.Graph, logger)
	}
	return c, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) ensureStore(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.ready {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	c.ready = true
	return nil
}

// Resolve merges a saved config, explicit values and overrides into a
// validated ParameterSet. Notes list ignored unknown keys.
func (c *Client) Resolve(ctx context.Context, req RunRequest) (model.ParameterSet, []string, error) {
	values := map[string]any{}
	if req.ConfigID != "" {
		cfg, err := c.LoadConfig(ctx, req.ConfigID)
		if err != nil {
			return model.ParameterSet{}, nil, err
		}
		for k, v := range cfg.Values {
			values[k] = v
		}
	}
	for k, v := range req.Values {
		values[k] = v
	}
	values, err := params.ApplyOverrides(values, req.Overrides)
	if err != nil {
		return model.ParameterSet{}, nil, err
	}
	ps, notes, err := params.FromMap(values)
	if err != nil {
		return model.ParameterSet{}, notes, err
	}
	if req.Seed != nil {
		ps = ps.WithSeed(*req.Seed)
	}
	return ps, notes, nil
}

// Run resolves and simulates one parameter set. With Persist set, the
// outcome is stored under the run ID whether or not the run completed.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	ps, notes, err := c.Resolve(ctx, req)
	if err != nil {
		return RunSummary{}, err
	}
	seed := c.runner.ResolveSeed(ps)
	ps = ps.WithSeed(seed)

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	summary := RunSummary{RunID: runID, Seed: seed, Status: model.RunCompleted}

	bundle, runErr := c.runner.Run(ctx, ps)
	if runErr != nil {
		summary.Status = model.RunFailed
		if errors.Is(runErr, model.ErrNumericalDivergence) {
			summary.Status = model.RunDiverged
		}
	} else {
		bundle.RunID = runID
		bundle.Warnings = append(bundle.Warnings, notes...)
		summary.Bundle = bundle
		summary.Warnings = bundle.Warnings
	}

	if req.Persist {
		record := model.RunRecord{
			VersionedRecord: storage.Stamp(),
			ID:              runID,
			ConfigID:        req.ConfigID,
			Values:          params.ToMap(ps),
			Status:          summary.Status,
			CreatedAt:       c.now().UTC(),
		}
		if runErr != nil {
			record.Error = runErr.Error()
		} else {
			record.Bundle = &bundle
		}
		if err := c.saveRun(ctx, record); err != nil {
			if runErr != nil {
				return summary, errors.Join(runErr, err)
			}
			return summary, err
		}
	}
	if runErr != nil {
		c.logger.Warn("run did not complete",
			zap.String("run_id", runID),
			zap.String("status", string(summary.Status)),
			zap.Error(runErr),
		)
		return summary, runErr
	}
	return summary, nil
}

func (c *Client) saveRun(ctx context.Context, record model.RunRecord) error {
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	if err := storage.MeasureRun(&record); err != nil {
		return err
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return fmt.Errorf("save run %s: %w", record.ID, err)
	}
	return nil
}

// Validate resolves values without running them.
func (c *Client) Validate(values map[string]any, overrides []string) (model.ParameterSet, []string, error) {
	values, err := params.ApplyOverrides(values, overrides)
	if err != nil {
		return model.ParameterSet{}, nil, err
	}
	return params.FromMap(values)
}

// SaveConfig validates values and stores their normalized form.
func (c *Client) SaveConfig(ctx context.Context, name string, values map[string]any) (model.ConfigRecord, error) {
	ps, _, err := params.FromMap(values)
	if err != nil {
		return model.ConfigRecord{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return model.ConfigRecord{}, err
	}
	record := model.ConfigRecord{
		VersionedRecord: storage.Stamp(),
		ID:              uuid.NewString(),
		Name:            name,
		Values:          params.ToMap(ps),
		CreatedAt:       c.now().UTC(),
	}
	if err := c.store.SaveConfig(ctx, record); err != nil {
		return model.ConfigRecord{}, fmt.Errorf("save config: %w", err)
	}
	return record, nil
}

func (c *Client) LoadConfig(ctx context.Context, id string) (model.ConfigRecord, error) {
	if err := c.ensureStore(ctx); err != nil {
		return model.ConfigRecord{}, err
	}
	record, ok, err := c.store.GetConfig(ctx, id)
	if err != nil {
		return model.ConfigRecord{}, err
	}
	if !ok {
		return model.ConfigRecord{}, fmt.Errorf("config %s: %w", id, ErrNotFound)
	}
	return record, nil
}

func (c *Client) ListConfigs(ctx context.Context) ([]model.ConfigRecord, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	return c.store.ListConfigs(ctx)
}

func (c *Client) DeleteConfig(ctx context.Context, id string) error {
	if err := c.ensureStore(ctx); err != nil {
		return err
	}
	ok, err := c.store.DeleteConfig(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("config %s: %w", id, ErrNotFound)
	}
	return nil
}

// Runs lists stored runs newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]RunItem, 0, len(runs))
	for i := len(runs) - 1; i >= 0; i-- {
		r := runs[i]
		if req.Status != "" && r.Status != req.Status {
			continue
		}
		items = append(items, RunItem{
			RunID:     r.ID,
			ConfigID:  r.ConfigID,
			Status:    r.Status,
			Error:     r.Error,
			CreatedAt: r.CreatedAt,
			SizeBytes: r.SizeBytes,
		})
		if req.Limit > 0 && len(items) == req.Limit {
			break
		}
	}
	return items, nil
}

func (c *Client) GetRun(ctx context.Context, id string) (model.RunRecord, error) {
	if err := c.ensureStore(ctx); err != nil {
		return model.RunRecord{}, err
	}
	record, ok, err := c.store.GetRun(ctx, id)
	if err != nil {
		return model.RunRecord{}, err
	}
	if !ok {
		return model.RunRecord{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return record, nil
}

func (c *Client) resolveRunID(ctx context.Context, runID string, latest bool) (string, error) {
	if runID != "" {
		return runID, nil
	}
	if !latest {
		return "", errors.New("run id is required unless latest is set")
	}
	items, err := c.Runs(ctx, RunsRequest{Limit: 1, Status: model.RunCompleted})
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "", fmt.Errorf("latest completed run: %w", ErrNotFound)
	}
	return items[0].RunID, nil
}

func (c *Client) completedRun(ctx context.Context, runID string) (model.RunRecord, error) {
	record, err := c.GetRun(ctx, runID)
	if err != nil {
		return model.RunRecord{}, err
	}
	if record.Bundle == nil {
		return model.RunRecord{}, fmt.Errorf("run %s (%s): %w", runID, record.Status, ErrNoResult)
	}
	return record, nil
}

// Export writes the artifacts of a stored completed run.
func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(ctx, req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}
	record, err := c.completedRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}

	outDir := req.OutDir
	if outDir == "" {
		outDir = c.outputDir
	}
	var removed []string
	if c.maxOutputAge > 0 {
		removed, err = export.CleanupOutputs(outDir, c.maxOutputAge, c.now())
		if err != nil {
			return ExportSummary{}, fmt.Errorf("clean outputs: %w", err)
		}
	}

	outputType := req.OutputType
	if outputType == "" {
		if v, ok := record.Values[params.KeyOutputType].(string); ok {
			outputType = model.OutputType(v)
		}
	}
	dir, err := export.WriteRunArtifacts(outDir, export.RunArtifacts{
		Values:     record.Values,
		Bundle:     *record.Bundle,
		OutputType: outputType,
	})
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: dir, Removed: removed}, nil
}

func (c *Client) Evict(ctx context.Context, policy storage.RetentionPolicy) (storage.EvictionReport, error) {
	if err := c.ensureStore(ctx); err != nil {
		return storage.EvictionReport{}, err
	}
	return storage.Evict(ctx, c.store, policy, c.now())
}

// PublishGraph sends the connectivity of a stored run to the graph database.
func (c *Client) PublishGraph(ctx context.Context, runID string) (graphstore.PublishReport, error) {
	if c.graph == nil {
		return graphstore.PublishReport{}, ErrGraphUnavailable
	}
	record, err := c.completedRun(ctx, runID)
	if err != nil {
		return graphstore.PublishReport{}, err
	}
	if record.Bundle.Connectivity == nil {
		return graphstore.PublishReport{}, fmt.Errorf("run %s has no connectivity graph", runID)
	}
	return c.graph.Publish(ctx, runID, *record.Bundle.Connectivity)
}
