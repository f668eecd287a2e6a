package secrets

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/trimtab-dev/trimtab/internal/reconcile"
)

//go:embed schema.sql
var schemaSQL string

// Store is the SQLite-backed run state: cached secrets bundles and run
// history. Uses WAL mode; a single connection avoids SQLITE_BUSY under
// the tool's single-writer access pattern.
type Store struct {
	db *sql.DB
}

// Open creates or opens the state database at the given path and
// applies pragmas and schema. Idempotent.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to state database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying state schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetSecrets returns the cached bundle for an instance, with ok false
// when none is cached.
func (s *Store) GetSecrets(ctx context.Context, plugin, instance string) (Secrets, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM secrets WHERE plugin = ? AND instance = ?`,
		plugin, instance,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Secrets{}, false, nil
	}
	if err != nil {
		return Secrets{}, false, fmt.Errorf("reading cached secrets: %w", err)
	}

	var sec Secrets
	if err := json.Unmarshal([]byte(data), &sec); err != nil {
		return Secrets{}, false, fmt.Errorf("decoding cached secrets: %w", err)
	}
	return sec, true, nil
}

// PutSecrets caches a bundle, replacing any previous one.
func (s *Store) PutSecrets(ctx context.Context, plugin, instance string, sec Secrets) error {
	data, err := json.Marshal(sec)
	if err != nil {
		return fmt.Errorf("encoding secrets: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secrets (plugin, instance, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(plugin, instance) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, plugin, instance, string(data), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("caching secrets: %w", err)
	}
	return nil
}

// BeginRun records the start of a run.
func (s *Store) BeginRun(ctx context.Context, id string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at) VALUES (?, ?)`,
		id, startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	return nil
}

// FinishRun stamps a run as finished.
func (s *Store) FinishRun(ctx context.Context, id string, finishedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE id = ?`,
		finishedAt.UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("recording run finish: %w", err)
	}
	return nil
}

// RecordResult appends one instance outcome to a run.
func (s *Store) RecordResult(ctx context.Context, runID string, seq int, plugin, instance, state, reason string, changed bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results (run_id, seq, plugin, instance, state, reason, changed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, runID, seq, plugin, instance, state, reason, changed)
	if err != nil {
		return fmt.Errorf("recording result: %w", err)
	}
	return nil
}

// RecordChanges appends the change records one instance pushed.
func (s *Store) RecordChanges(ctx context.Context, runID, plugin, instance string, changes []reconcile.Change) error {
	for _, change := range changes {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO changes (run_id, plugin, instance, tree, field, old_value, new_value)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, runID, plugin, instance, change.Tree, change.Field, change.Old, change.New)
		if err != nil {
			return fmt.Errorf("recording change: %w", err)
		}
	}
	return nil
}
