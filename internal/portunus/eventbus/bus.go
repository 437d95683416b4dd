// Package eventbus carries events from producers to the access controller
// through a bounded queue. Neither side ever blocks.
package eventbus

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const DefaultCapacity = 10

type Bus struct {
	ch      chan types.Event
	log     *zap.Logger
	dropped atomic.Uint64
}

// New returns a bus holding at most capacity events; capacity <= 0 selects
// DefaultCapacity.
func New(capacity int, log *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		ch:  make(chan types.Event, capacity),
		log: log.Named("eventbus"),
	}
}

// Publish enqueues e and reports whether it was accepted. A full queue drops
// e; producers re-trigger naturally, so nothing is retried.
func (b *Bus) Publish(e types.Event) bool {
	if e == nil {
		return false
	}
	select {
	case b.ch <- e:
		return true
	default:
		n := b.dropped.Add(1)
		b.log.Warn("event dropped, queue full",
			zap.Stringer("kind", e.Kind()),
			zap.Uint64("dropped_total", n),
		)
		return false
	}
}

// TryReceive returns the oldest queued event, if any.
func (b *Bus) TryReceive() (types.Event, bool) {
	select {
	case e := <-b.ch:
		return e, true
	default:
		return nil, false
	}
}

func (b *Bus) Len() int { return len(b.ch) }

func (b *Bus) Cap() int { return cap(b.ch) }

func (b *Bus) Dropped() uint64 { return b.dropped.Load() }
