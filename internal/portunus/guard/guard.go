// Package guard serializes every access to the classification store and the
// access log. Code outside this package cannot reach the stores except
// through a Handle obtained from Guard.Do, and a Handle stops working as
// soon as its scope ends.
package guard

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// DefaultTimeout applies when a caller passes a zero or negative timeout.
const DefaultTimeout = 100 * time.Millisecond

var (
	// ErrTimeout is returned when the guard could not be acquired in time.
	ErrTimeout = errors.New("guard: acquire timed out")

	// ErrReleased is returned by a Handle used after its scope ended.
	ErrReleased = errors.New("guard: handle used after release")
)

// Stores bundles the resources protected by the guard. Logs and Commands
// may be nil, in which case the matching Handle calls are no-ops.
type Stores struct {
	Classes  store.ClassificationStore
	Logs     store.AccessLogStore
	Commands store.CommandStateStore
}

type Guard struct {
	sem    chan struct{}
	stores Stores
	log    *zap.Logger
	now    func() time.Time

	timeouts atomic.Uint64
}

type Option func(*Guard)

func WithLogger(l *zap.Logger) Option {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

// WithClock sets the clock used to stamp log entries.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func New(s Stores, opts ...Option) *Guard {
	g := &Guard{
		sem:    make(chan struct{}, 1),
		stores: s,
		log:    zap.NewNop(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	g.log = g.log.Named("guard")
	return g
}

// Do acquires the guard within timeout, runs fn and releases the guard on
// every exit path, panics included. Store calls made through the Handle are
// not cancelled by ctx once the guard is held.
func (g *Guard) Do(ctx context.Context, timeout time.Duration, fn func(h *Handle) error) error {
	if err := g.acquire(ctx, timeout); err != nil {
		return err
	}
	h := &Handle{g: g, ctx: context.WithoutCancel(ctx)}
	defer func() {
		h.released.Store(true)
		<-g.sem
	}()
	return fn(h)
}

func (g *Guard) acquire(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	select {
	case g.sem <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case g.sem <- struct{}{}:
		return nil
	case <-timer.C:
		n := g.timeouts.Add(1)
		g.log.Debug("acquire timed out", zap.Duration("timeout", timeout), zap.Uint64("total", n))
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Timeouts returns how many acquisitions have timed out since start.
func (g *Guard) Timeouts() uint64 {
	return g.timeouts.Load()
}

// Log appends one access log entry in its own guard scope. A timeout skips
// the entry and reports it; the caller may ignore the returned error.
func (g *Guard) Log(ctx context.Context, timeout time.Duration, kind types.LogKind, uid, info string) error {
	err := g.Do(ctx, timeout, func(h *Handle) error {
		return h.Log(kind, uid, info)
	})
	if err != nil {
		g.log.Warn("access log entry skipped",
			zap.String("kind", string(kind)),
			zap.String("uid", uid),
			zap.Error(err),
		)
	}
	return err
}
