package store

import (
	"context"
	"time"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// LogEntry is one line of the device access log.
type LogEntry struct {
	ID   string
	At   time.Time
	Kind types.LogKind
	UID  string // "-" when the event has no credential
	Info string
}

// AccessLogStore persists the access log as an append-only sequence.
type AccessLogStore interface {
	Append(ctx context.Context, e LogEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]LogEntry, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
