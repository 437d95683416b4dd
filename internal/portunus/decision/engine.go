// Package decision turns a presented UID into one of five outcomes.
package decision

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// DefaultTimeout bounds guard acquisition on the real-time path.
const DefaultTimeout = 30 * time.Millisecond

type Engine struct {
	guard   *guard.Guard
	timeout time.Duration
	log     *zap.Logger
}

func NewEngine(g *guard.Guard, timeout time.Duration, log *zap.Logger) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{guard: g, timeout: timeout, log: log.Named("decision")}
}

// Evaluate normalizes raw and decides in this order: invalid format, guard
// timeout, blacklist, whitelist, pending. It never returns DecisionGrant
// without having read the store. The outcome is logged in the same guard
// scope as the lookup.
func (e *Engine) Evaluate(ctx context.Context, raw string) types.Decision {
	uid := types.NormalizeUID(raw)
	if err := types.ValidateUID(uid); err != nil {
		return types.DecisionInvalid
	}

	var d types.Decision
	err := e.guard.Do(ctx, e.timeout, func(h *guard.Handle) error {
		var err error
		d, err = classify(h, uid)
		if err != nil {
			return err
		}
		if lerr := h.Log(d.LogKind(), uid, d.String()); lerr != nil {
			e.log.Warn("decision log entry skipped", zap.String("uid", uid), zap.Error(lerr))
		}
		return nil
	})

	switch {
	case err == nil:
		return d
	case errors.Is(err, guard.ErrTimeout):
		e.log.Warn("store busy, deferring decision", zap.String("uid", uid))
	default:
		e.log.Error("store lookup failed", zap.String("uid", uid), zap.Error(err))
	}
	return types.DecisionPendingRepeat
}

func classify(h *guard.Handle, uid string) (types.Decision, error) {
	c, err := h.Classify(uid)
	if err != nil {
		return types.DecisionPendingRepeat, err
	}
	switch c {
	case types.Blacklist:
		return types.DecisionDeny, nil
	case types.Whitelist:
		return types.DecisionGrant, nil
	}

	added, err := h.AddToPending(uid)
	if err != nil {
		return types.DecisionPendingRepeat, err
	}
	if added {
		return types.DecisionPendingNew, nil
	}
	return types.DecisionPendingRepeat, nil
}
