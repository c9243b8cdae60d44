// Package checkpoint persists per-session execution progress. A record is
// written after every dispatched call so an interrupted session can be
// inspected and resumed from its last known state.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// ErrNoCheckpoint is returned when a session has no recorded progress.
var ErrNoCheckpoint = errors.New("no checkpoint for session")

// Record is one checkpoint: the call that ran, its outcome, and the
// session state after it. (SessionID, CallID) is the natural key; saving
// the same pair twice overwrites, which makes retried writes harmless.
type Record struct {
	SessionID  string            `json:"session_id"`
	CallID     int64             `json:"call_id"`
	Capability string            `json:"capability"`
	Params     map[string]string `json:"params,omitempty"`
	OK         bool              `json:"ok"`
	Output     string            `json:"output,omitempty"`
	Failure    string            `json:"failure,omitempty"`
	State      string            `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Store persists checkpoint records.
type Store interface {
	// Save upserts a record keyed by (SessionID, CallID).
	Save(ctx context.Context, rec Record) error

	// List returns a session's records ordered by CallID ascending.
	List(ctx context.Context, sessionID string) ([]Record, error)

	// Latest returns the record with the highest CallID for a session,
	// or ErrNoCheckpoint.
	Latest(ctx context.Context, sessionID string) (Record, error)

	// Prune deletes records created before cutoff and returns how many
	// were removed.
	Prune(ctx context.Context, cutoff time.Time) (int, error)

	// Close releases the underlying storage.
	Close() error
}
