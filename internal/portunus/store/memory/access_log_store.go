package memory

import (
	"context"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
)

// AccessLogStore is an in-memory append-only access log.
// It is intended for use in tests and dev environments.
type AccessLogStore struct {
	mu      sync.Mutex
	entries []store.LogEntry
}

func NewAccessLogStore() *AccessLogStore {
	return &AccessLogStore{}
}

func (s *AccessLogStore) Append(_ context.Context, e store.LogEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *AccessLogStore) Recent(_ context.Context, limit int) ([]store.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.entries) {
		limit = len(s.entries)
	}
	out := make([]store.LogEntry, 0, limit)
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *AccessLogStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var deleted int64
	for _, e := range s.entries {
		if e.At.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// Entries returns a copy of all recorded entries, oldest first.  Test-only helper.
func (s *AccessLogStore) Entries() []store.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.LogEntry, len(s.entries))
	copy(out, s.entries)
	return out
}
