package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"recipe_importer/internal/domain"
)

// DBPool is the subset of pgxpool.Pool the checkpoint store uses.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

const defaultCheckpointTable = "import_checkpoints"

// CheckpointStore keeps one JSONB row per source name.
type CheckpointStore struct {
	pool      DBPool
	tableName string
}

func NewCheckpointStore(ctx context.Context, connString, tableName string) (*CheckpointStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping checkpoint database: %w", err)
	}

	return NewCheckpointStoreWithPool(pool, tableName), nil
}

// NewCheckpointStoreWithPool wraps an existing pool, e.g. a pgxmock pool.
func NewCheckpointStoreWithPool(pool DBPool, tableName string) *CheckpointStore {
	if tableName == "" {
		tableName = defaultCheckpointTable
	}
	return &CheckpointStore{pool: pool, tableName: tableName}
}

func (s *CheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			source_name TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			complete BOOLEAN NOT NULL DEFAULT FALSE,
			state JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Get(ctx context.Context, sourceName string) (*domain.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE source_name = $1`, s.tableName)

	var state []byte
	if err := s.pool.QueryRow(ctx, query, sourceName).Scan(&state); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(state, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *CheckpointStore) Save(ctx context.Context, cp *domain.Checkpoint) error {
	state, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (source_name, run_id, complete, state, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_name) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			complete = EXCLUDED.complete,
			state = EXCLUDED.state,
			updated_at = EXCLUDED.updated_at
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query, cp.SourceName, cp.RunID, cp.Complete, state, cp.UpdatedAt); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Close() error {
	s.pool.Close()
	return nil
}
