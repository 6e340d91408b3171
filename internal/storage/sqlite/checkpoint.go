package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"recipe_importer/internal/domain"
)

const defaultTable = "import_checkpoints"

// CheckpointStore keeps checkpoints in a local SQLite file, one row per source.
type CheckpointStore struct {
	db        *sqlx.DB
	tableName string
}

func NewCheckpointStore(ctx context.Context, path, tableName string) (*CheckpointStore, error) {
	db, err := sqlx.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite allows a single writer; one connection keeps writes ordered.
	db.SetMaxOpenConns(1)

	if tableName == "" {
		tableName = defaultTable
	}

	store := &CheckpointStore{db: db, tableName: tableName}
	if err := store.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *CheckpointStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			source_name TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			complete INTEGER NOT NULL DEFAULT 0,
			state TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Get(ctx context.Context, sourceName string) (*domain.Checkpoint, error) {
	query := fmt.Sprintf(`SELECT state FROM %s WHERE source_name = ?`, s.tableName)

	var state string
	if err := s.db.GetContext(ctx, &state, query, sourceName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(state), &cp); err != nil {
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
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_name) DO UPDATE SET
			run_id = excluded.run_id,
			complete = excluded.complete,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query, cp.SourceName, cp.RunID, cp.Complete, string(state), cp.UpdatedAt); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Close() error {
	return s.db.Close()
}
