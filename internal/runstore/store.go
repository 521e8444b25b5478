package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"tailor/internal/config"
	"tailor/internal/pipeline"
	"tailor/internal/services"
)

// Store manages run persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the run database under the data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.RunStorePath())
}

// OpenPath opens the database at path, creating the schema when needed.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	// Pragmas ride on the DSN so every pooled connection gets them.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite db %s: %w", path, err)
	}

	store := &Store{db: db, path: path, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin records a run as running.
func (s *Store) Begin(ctx context.Context, start Start) error {
	if start.RequestID == "" {
		return services.Wrap(services.ErrValidation, "", "runstore", "request id required", nil)
	}
	inputs, err := marshalNullable(start.Inputs)
	if err != nil {
		return fmt.Errorf("marshal inputs: %w", err)
	}
	timestamp := s.now().UTC().Format(timestampLayout)
	var itemIndex any
	if start.ItemIndex != nil {
		itemIndex = *start.ItemIndex
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (
            request_id, pipeline, status, batch_id, item_index, inputs_json, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(request_id) DO NOTHING`,
		start.RequestID,
		start.Pipeline,
		StatusRunning,
		nullableString(start.BatchID),
		itemIndex,
		inputs,
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return services.Wrap(services.ErrValidation, "", "runstore", fmt.Sprintf("request id %s already used", start.RequestID), nil)
	}
	return nil
}

// Finish records the outcome of run.
func (s *Store) Finish(ctx context.Context, run *pipeline.Run) error {
	if run == nil {
		return nil
	}
	status := StatusCompleted
	var errorKind, errorMessage string
	if run.Status != pipeline.StatusCompleted {
		status = StatusError
		errorKind = services.Kind(run.Err)
		if run.Err != nil {
			errorMessage = run.Err.Error()
		}
	}
	output, err := marshalNullable(run.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	stages, err := marshalNullable(run.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
            status = ?, output_json = ?, stages_json = ?,
            prompt_tokens = ?, completion_tokens = ?, total_tokens = ?,
            failed_stage = ?, error_kind = ?, error_message = ?,
            duration_ms = ?, updated_at = ?
        WHERE request_id = ?`,
		status,
		output,
		stages,
		run.Tokens.Prompt,
		run.Tokens.Completion,
		run.Tokens.Total,
		nullableString(run.FailedStage),
		nullableString(errorKind),
		nullableString(errorMessage),
		run.Duration.Milliseconds(),
		s.now().UTC().Format(timestampLayout),
		run.RequestID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "runstore", fmt.Sprintf("run %s was never started", run.RequestID), nil)
	}
	return nil
}

// Get fetches a run by request id.
func (s *Store) Get(ctx context.Context, requestID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM runs WHERE request_id = ?", requestID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "runstore", fmt.Sprintf("run %s", requestID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return record, nil
}

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]*Record, error) {
	query := "SELECT " + recordColumns + " FROM runs ORDER BY created_at DESC, request_id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// ListBatch returns the runs of one batch ordered by item index.
func (s *Store) ListBatch(ctx context.Context, batchID string) ([]*Record, error) {
	return s.query(ctx, "SELECT "+recordColumns+" FROM runs WHERE batch_id = ? ORDER BY item_index", batchID)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func marshalNullable(value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case map[string]any:
		if v == nil {
			return nil, nil
		}
	case []pipeline.StageResult:
		if v == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
