package checkpoint

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps checkpoints in process memory. Used when no database
// path is configured and throughout the tests.
type MemoryStore struct {
	mu   sync.RWMutex
	recs map[string]map[int64]Record // session -> call -> record
	now  func() time.Time
}

// Compile-time interface guard.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		recs: make(map[string]map[int64]Record),
		now:  time.Now,
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byCall, ok := s.recs[rec.SessionID]
	if !ok {
		byCall = make(map[int64]Record)
		s.recs[rec.SessionID] = byCall
	}
	byCall[rec.CallID] = rec
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, sessionID string) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byCall := s.recs[sessionID]
	out := make([]Record, 0, len(byCall))
	for _, rec := range byCall {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CallID < out[j].CallID })
	return out, nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context, sessionID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		best  Record
		found bool
	)
	for _, rec := range s.recs[sessionID] {
		if !found || rec.CallID > best.CallID {
			best = rec
			found = true
		}
	}
	if !found {
		return Record{}, ErrNoCheckpoint
	}
	return best, nil
}

// Prune implements Store.
func (s *MemoryStore) Prune(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for sessionID, byCall := range s.recs {
		for callID, rec := range byCall {
			if rec.CreatedAt.Before(cutoff) {
				delete(byCall, callID)
				removed++
			}
		}
		if len(byCall) == 0 {
			delete(s.recs, sessionID)
		}
	}
	return removed, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
