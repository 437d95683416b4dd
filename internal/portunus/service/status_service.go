package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// HealthSource returns the reader's cached health snapshot.
type HealthSource interface {
	Health() types.ReaderHealth
}

// DoorSource returns the latest door state.
type DoorSource interface {
	Door() types.DoorState
}

// DropCounter reports events lost to a full bus.
type DropCounter interface {
	Dropped() uint64
}

type StatusConfig struct {
	ModuleID string
	// SnapshotTimeout bounds the counts read. On timeout the last counts
	// are served again and marked stale.
	SnapshotTimeout time.Duration
	// BulkTimeout bounds pending and log listings.
	BulkTimeout time.Duration
}

// StatusService answers read-only questions from the best-effort context.
// It never touches reader hardware.
type StatusService struct {
	guard   *guard.Guard
	reader  HealthSource
	door    DoorSource
	bus     DropCounter
	cfg     StatusConfig
	logger  *zap.Logger
	now     func() time.Time
	started time.Time

	mu     sync.Mutex
	counts types.PartitionCounts
}

func NewStatusService(g *guard.Guard, reader HealthSource, door DoorSource, bus DropCounter, cfg StatusConfig, logger *zap.Logger) *StatusService {
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 50 * time.Millisecond
	}
	if cfg.BulkTimeout <= 0 {
		cfg.BulkTimeout = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusService{
		guard:   g,
		reader:  reader,
		door:    door,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.Named("status"),
		now:     time.Now,
		started: time.Now(),
	}
}

// Counts returns the partition counts. stale is true when the guard was
// busy and the previous counts were reused.
func (s *StatusService) Counts(ctx context.Context) (counts types.PartitionCounts, stale bool) {
	// Cached inside the guard scope so snapshots land in read order.
	err := s.guard.Do(ctx, s.cfg.SnapshotTimeout, func(h *guard.Handle) error {
		fresh, err := h.Counts()
		if err != nil {
			return err
		}
		s.mu.Lock()
		s.counts = fresh
		s.mu.Unlock()
		counts = fresh
		return nil
	})
	if err != nil {
		s.logger.Debug("counts snapshot stale", zap.Error(err))
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.counts, true
	}
	return counts, false
}

func (s *StatusService) Status(ctx context.Context) types.StatusResponse {
	counts, stale := s.Counts(ctx)
	now := s.now().UTC()

	resp := types.StatusResponse{
		ModuleID:      s.cfg.ModuleID,
		Counts:        counts,
		CountsStale:   stale,
		UptimeSeconds: uint64(now.Sub(s.started).Seconds()),
		ServerTime:    now.Format(time.RFC3339Nano),
	}
	if s.reader != nil {
		resp.Reader = s.reader.Health()
	}
	if s.door != nil {
		resp.Door = s.door.Door().State.String()
	}
	if s.bus != nil {
		resp.BusDropped = s.bus.Dropped()
	}
	return resp
}

// Pending lists the pending partition in one guard scope.
func (s *StatusService) Pending(ctx context.Context) ([]string, error) {
	pending := []string{}
	err := s.guard.Do(ctx, s.cfg.BulkTimeout, func(h *guard.Handle) error {
		return h.ForEachPending(func(uid string) error {
			pending = append(pending, uid)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pending, nil
}

// RecentLogs returns up to limit access log entries, newest first.
func (s *StatusService) RecentLogs(ctx context.Context, limit int) ([]types.LogRecord, error) {
	var out []types.LogRecord
	err := s.guard.Do(ctx, s.cfg.BulkTimeout, func(h *guard.Handle) error {
		entries, err := h.RecentLogs(limit)
		if err != nil {
			return err
		}
		out = make([]types.LogRecord, 0, len(entries))
		for _, e := range entries {
			out = append(out, types.LogRecord{
				ID:   e.ID,
				At:   e.At.UTC().Format(time.RFC3339Nano),
				Kind: e.Kind,
				UID:  e.UID,
				Info: e.Info,
			})
		}
		return nil
	})
	return out, err
}

// Uptime is the time since the service was created.
func (s *StatusService) Uptime() time.Duration {
	return s.now().Sub(s.started)
}
