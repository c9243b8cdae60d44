// Package sqlite implements a persistent checkpoint store backed by
// modernc.org/sqlite (pure Go, no CGO) with WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/flemzord/streamexec/internal/checkpoint"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000

// Store implements checkpoint.Store backed by SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time interface guard.
var _ checkpoint.Store = (*Store)(nil)

// Open opens (or creates) a checkpoint database at path. The database
// uses WAL mode, a 5 s busy timeout, and a single connection (SQLite
// serialises writes). The schema is migrated automatically.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.TODO()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Save implements checkpoint.Store.
func (s *Store) Save(ctx context.Context, rec checkpoint.Record) error {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("sqlite: marshal params: %w", err)
	}
	if rec.Params == nil {
		params = []byte("{}")
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	ok := 0
	if rec.OK {
		ok = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, call_id, capability, params, ok, output, failure, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, call_id) DO UPDATE SET
			capability = excluded.capability,
			params     = excluded.params,
			ok         = excluded.ok,
			output     = excluded.output,
			failure    = excluded.failure,
			state      = excluded.state,
			created_at = excluded.created_at`,
		rec.SessionID, rec.CallID, rec.Capability, string(params), ok,
		rec.Output, rec.Failure, rec.State, createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save checkpoint: %w", err)
	}
	return nil
}

// List implements checkpoint.Store.
func (s *Store) List(ctx context.Context, sessionID string) ([]checkpoint.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, call_id, capability, params, ok, output, failure, state, created_at
		FROM checkpoints
		WHERE session_id = ?
		ORDER BY call_id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list checkpoints: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []checkpoint.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list rows: %w", err)
	}
	return recs, nil
}

// Latest implements checkpoint.Store.
func (s *Store) Latest(ctx context.Context, sessionID string) (checkpoint.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, call_id, capability, params, ok, output, failure, state, created_at
		FROM checkpoints
		WHERE session_id = ?
		ORDER BY call_id DESC
		LIMIT 1`,
		sessionID,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Record{}, checkpoint.ErrNoCheckpoint
	}
	return rec, err
}

// Prune implements checkpoint.Store.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM checkpoints WHERE created_at < ?",
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune checkpoints: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune rows affected: %w", err)
	}
	return int(n), nil
}

// Close implements checkpoint.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (checkpoint.Record, error) {
	var (
		rec       checkpoint.Record
		params    string
		ok        int
		createdAt string
	)
	if err := sc.Scan(&rec.SessionID, &rec.CallID, &rec.Capability, &params, &ok,
		&rec.Output, &rec.Failure, &rec.State, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkpoint.Record{}, err
		}
		return checkpoint.Record{}, fmt.Errorf("sqlite: scan checkpoint: %w", err)
	}

	if params != "" && params != "{}" {
		if err := json.Unmarshal([]byte(params), &rec.Params); err != nil {
			return checkpoint.Record{}, fmt.Errorf("sqlite: unmarshal params: %w", err)
		}
	}
	rec.OK = ok != 0

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return checkpoint.Record{}, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	rec.CreatedAt = ts
	return rec, nil
}
