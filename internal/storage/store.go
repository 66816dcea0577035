package storage

import (
	"context"

	"neurosim/internal/model"
)

// Store persists saved parameter configurations and run outcomes.
type Store interface {
	Init(ctx context.Context) error
	SaveConfig(ctx context.Context, config model.ConfigRecord) error
	GetConfig(ctx context.Context, id string) (model.ConfigRecord, bool, error)
	ListConfigs(ctx context.Context) ([]model.ConfigRecord, error)
	DeleteConfig(ctx context.Context, id string) (bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns run metadata oldest first. Values and Bundle are left
	// empty; use GetRun for the full record.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) (bool, error)
}
