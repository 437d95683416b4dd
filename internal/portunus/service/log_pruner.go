package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
)

// LogPruner periodically deletes access log entries older than a
// configurable retention period. It runs as a background goroutine and
// is safe to stop via its context or the Stop method.
//
// A retention of 0 disables pruning entirely.
type LogPruner struct {
	guard     *guard.Guard
	retention time.Duration
	interval  time.Duration
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// PrunerConfig holds the parameters for NewLogPruner.
type PrunerConfig struct {
	// RetentionDays is how many days of access log to keep.
	// 0 means keep everything (pruner will not start).
	RetentionDays int

	// IntervalHours is how often the pruner runs. Defaults to 6.
	IntervalHours int

	// GuardTimeout bounds each prune's wait for the store. Defaults to 1s.
	GuardTimeout time.Duration
}

// NewLogPruner creates a pruner but does not start it.
// Call Start to begin the background loop.
func NewLogPruner(g *guard.Guard, cfg PrunerConfig, logger *zap.Logger) *LogPruner {
	interval := time.Duration(cfg.IntervalHours) * time.Hour
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	timeout := cfg.GuardTimeout
	if timeout <= 0 {
		timeout = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LogPruner{
		guard:     g,
		retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		interval:  interval,
		timeout:   timeout,
		logger:    logger.Named("log_pruner"),
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

// Start begins the background pruning loop. It runs an immediate prune
// on startup, then repeats on the configured interval. The loop exits
// when ctx is cancelled or Stop is called.
func (p *LogPruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info("log pruner disabled (retention=0)")
		close(p.done)
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)

	go p.loop(ctx)

	p.logger.Info("log pruner started",
		zap.Int("retention_days", int(p.retention.Hours()/24)),
		zap.Int("interval_hours", int(p.interval.Hours())),
	)
}

// Stop signals the pruner to exit and waits for it to finish.
func (p *LogPruner) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

func (p *LogPruner) loop(ctx context.Context) {
	defer close(p.done)

	// Run immediately on startup to clean up any backlog.
	_, _ = p.PruneOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = p.PruneOnce(ctx)
		}
	}
}

// PruneOnce deletes entries older than the retention window. A busy guard
// skips this round; the next tick tries again.
func (p *LogPruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().UTC().Add(-p.retention)

	var deleted int64
	err := p.guard.Do(ctx, p.timeout, func(h *guard.Handle) error {
		var err error
		deleted, err = h.PruneLogsOlderThan(cutoff)
		return err
	})
	switch {
	case errors.Is(err, guard.ErrTimeout):
		p.logger.Warn("log prune skipped, store busy")
		return 0, err
	case err != nil:
		p.logger.Error("log prune error", zap.Error(err))
		return 0, err
	}
	if deleted > 0 {
		p.logger.Info("log prune",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}
