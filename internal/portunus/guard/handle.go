package guard

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// Handle is the only path to the guarded stores. It is valid inside the
// Guard.Do callback that produced it and must not be retained.
type Handle struct {
	g        *Guard
	ctx      context.Context
	released atomic.Bool
}

func (h *Handle) check() error {
	if h.released.Load() {
		return ErrReleased
	}
	return nil
}

func (h *Handle) Classify(uid string) (types.Classification, error) {
	if err := h.check(); err != nil {
		return types.Unclassified, err
	}
	return h.g.stores.Classes.Classify(h.ctx, uid)
}

func (h *Handle) AddToWhitelist(uid string, bypassCapacity bool) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	return h.g.stores.Classes.AddToWhitelist(h.ctx, uid, bypassCapacity)
}

func (h *Handle) AddToBlacklist(uid string, bypassCapacity bool) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	return h.g.stores.Classes.AddToBlacklist(h.ctx, uid, bypassCapacity)
}

func (h *Handle) AddToPending(uid string) (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	return h.g.stores.Classes.AddToPending(h.ctx, uid)
}

func (h *Handle) RemoveUID(uid string) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.g.stores.Classes.RemoveUID(h.ctx, uid)
}

func (h *Handle) ClearPartition(p types.Classification) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.g.stores.Classes.ClearPartition(h.ctx, p)
}

func (h *Handle) FactoryReset() error {
	if err := h.check(); err != nil {
		return err
	}
	return h.g.stores.Classes.FactoryReset(h.ctx)
}

func (h *Handle) ReplaceAll(whitelist, blacklist []string) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.g.stores.Classes.ReplaceAll(h.ctx, whitelist, blacklist)
}

// ForEach visits every key of partition p. The guard stays held for the
// whole enumeration, so no other context mutates the partition meanwhile.
func (h *Handle) ForEach(p types.Classification, fn func(uid string) error) error {
	if err := h.check(); err != nil {
		return err
	}
	return h.g.stores.Classes.ForEach(h.ctx, p, fn)
}

func (h *Handle) ForEachPending(fn func(uid string) error) error {
	return h.ForEach(types.Pending, fn)
}

func (h *Handle) Counts() (types.PartitionCounts, error) {
	if err := h.check(); err != nil {
		return types.PartitionCounts{}, err
	}
	return h.g.stores.Classes.Counts(h.ctx)
}

// VerifyCounts reports drift between maintained counts and stored keys.
// Mismatches are logged and returned; nothing is repaired.
func (h *Handle) VerifyCounts() ([]store.CountMismatch, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	mm, err := h.g.stores.Classes.VerifyCounts(h.ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range mm {
		h.g.log.Error("partition count mismatch",
			zap.Stringer("partition", m.Partition),
			zap.Int("maintained", m.Maintained),
			zap.Int("actual", m.Actual),
		)
	}
	return mm, nil
}

// Log appends an access log entry stamped with the guard's clock. An empty
// uid is stored as "-".
func (h *Handle) Log(kind types.LogKind, uid, info string) error {
	if err := h.check(); err != nil {
		return err
	}
	if h.g.stores.Logs == nil {
		return nil
	}
	if uid == "" {
		uid = "-"
	}
	return h.g.stores.Logs.Append(h.ctx, store.LogEntry{
		ID:   uuid.NewString(),
		At:   h.g.now().UTC(),
		Kind: kind,
		UID:  uid,
		Info: info,
	})
}

func (h *Handle) RecentLogs(limit int) ([]store.LogEntry, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	if h.g.stores.Logs == nil {
		return nil, nil
	}
	return h.g.stores.Logs.Recent(h.ctx, limit)
}

func (h *Handle) PruneLogsOlderThan(cutoff time.Time) (int64, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	if h.g.stores.Logs == nil {
		return 0, nil
	}
	return h.g.stores.Logs.PruneOlderThan(h.ctx, cutoff)
}

func (h *Handle) LastCommandID() (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	if h.g.stores.Commands == nil {
		return "", nil
	}
	return h.g.stores.Commands.LastCommandID(h.ctx)
}

func (h *Handle) SetLastCommandID(id string) error {
	if err := h.check(); err != nil {
		return err
	}
	if h.g.stores.Commands == nil {
		return nil
	}
	return h.g.stores.Commands.SetLastCommandID(h.ctx, id)
}
