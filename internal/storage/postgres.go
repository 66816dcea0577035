package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"neurosim/internal/model"
)

// DBPool is the subset of *pgxpool.Pool the postgres backend needs.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

type PostgresStore struct {
	url string

	mu   sync.RWMutex
	pool DBPool
}

// NewPostgresStore connects lazily to url on Init.
func NewPostgresStore(url string) *PostgresStore {
	return &PostgresStore{url: url}
}

// NewPostgresStoreWithPool uses an existing pool. Init only creates tables.
func NewPostgresStoreWithPool(pool DBPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool == nil {
		if s.url == "" {
			return errors.New("postgres url is required")
		}
		pool, err := pgxpool.New(ctx, s.url)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		s.pool = pool
	}

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS neurosim_configs (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BYTEA NOT NULL
		);
		CREATE TABLE IF NOT EXISTS neurosim_runs (
			id TEXT PRIMARY KEY,
			config_id TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			size_bytes BIGINT NOT NULL DEFAULT 0,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BYTEA NOT NULL
		);
	`)
	return err
}

func (s *PostgresStore) SaveConfig(ctx context.Context, config model.ConfigRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload, err := EncodeConfig(config)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO neurosim_configs (id, created_at, schema_version, codec_version, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			schema_version = EXCLUDED.schema_version,
			codec_version = EXCLUDED.codec_version,
			payload = EXCLUDED.payload
	`, config.ID, config.CreatedAt, config.SchemaVersion, config.CodecVersion, payload)
	return err
}

func (s *PostgresStore) GetConfig(ctx context.Context, id string) (model.ConfigRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.ConfigRecord{}, false, err
	}
	var payload []byte
	err = pool.QueryRow(ctx, `SELECT payload FROM neurosim_configs WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ConfigRecord{}, false, nil
		}
		return model.ConfigRecord{}, false, err
	}
	config, err := DecodeConfig(payload)
	if err != nil {
		return model.ConfigRecord{}, false, fmt.Errorf("decode config %s: %w", id, err)
	}
	return config, true, nil
}

func (s *PostgresStore) ListConfigs(ctx context.Context) ([]model.ConfigRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT id, payload FROM neurosim_configs ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ConfigRecord
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		config, err := DecodeConfig(payload)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", id, err)
		}
		out = append(out, config)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteConfig(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM neurosim_configs WHERE id = $1`, id)
}

func (s *PostgresStore) SaveRun(ctx context.Context, run model.RunRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	payload, err := EncodeRun(run)
	if err != nil {
		return err
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO neurosim_runs (id, config_id, status, error, created_at, size_bytes, schema_version, codec_version, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			config_id = EXCLUDED.config_id,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			created_at = EXCLUDED.created_at,
			size_bytes = EXCLUDED.size_bytes,
			schema_version = EXCLUDED.schema_version,
			codec_version = EXCLUDED.codec_version,
			payload = EXCLUDED.payload
	`, run.ID, run.ConfigID, string(run.Status), run.Error, run.CreatedAt, run.SizeBytes,
		run.SchemaVersion, run.CodecVersion, payload)
	return err
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (model.RunRecord, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.RunRecord{}, false, err
	}
	var payload []byte
	err = pool.QueryRow(ctx, `SELECT payload FROM neurosim_runs WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RunRecord{}, false, nil
		}
		return model.RunRecord{}, false, err
	}
	run, err := DecodeRun(payload)
	if err != nil {
		return model.RunRecord{}, false, fmt.Errorf("decode run %s: %w", id, err)
	}
	return run, true, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context) ([]model.RunRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `
		SELECT id, config_id, status, error, created_at, size_bytes, schema_version, codec_version
		FROM neurosim_runs ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RunRecord
	for rows.Next() {
		var (
			run     model.RunRecord
			status  string
			created time.Time
		)
		if err := rows.Scan(&run.ID, &run.ConfigID, &status, &run.Error, &created, &run.SizeBytes,
			&run.SchemaVersion, &run.CodecVersion); err != nil {
			return nil, err
		}
		run.Status = model.RunStatus(status)
		run.CreatedAt = created.UTC()
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteRun(ctx context.Context, id string) (bool, error) {
	return s.deleteByID(ctx, `DELETE FROM neurosim_runs WHERE id = $1`, id)
}

func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
	return nil
}

func (s *PostgresStore) deleteByID(ctx context.Context, query, id string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, err := pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) getPool() (DBPool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pool == nil {
		return nil, errNotInitialized
	}
	return s.pool, nil
}
