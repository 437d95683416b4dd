// Package exitsensor filters the exit request input into single triggers.
package exitsensor

import (
	"time"
)

const (
	DefaultDebounce = 80 * time.Millisecond
	DefaultCooldown = 4 * time.Second
)

// Input is a digital input line.
type Input interface {
	Read() bool
}

// Debouncer learns the idle level of its input at construction, so either
// wiring polarity works without configuration. It is not safe for
// concurrent use; the real-time loop owns it.
type Debouncer struct {
	in       Input
	debounce time.Duration
	cooldown time.Duration
	now      func() time.Time

	idle        bool
	stableIdle  bool
	debouncing  bool
	debounceAt  time.Time
	triggeredAt time.Time
	triggered   bool
}

// New samples in once to fix the idle level. Zero durations select the
// defaults.
func New(in Input, debounce, cooldown time.Duration, now func() time.Time) *Debouncer {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if now == nil {
		now = time.Now
	}
	idle := in.Read()
	return &Debouncer{
		in:         in,
		debounce:   debounce,
		cooldown:   cooldown,
		now:        now,
		idle:       idle,
		stableIdle: true,
	}
}

// IdleLevel is the level sampled at construction.
func (d *Debouncer) IdleLevel() bool { return d.idle }

// ActiveLevel is the complement of IdleLevel.
func (d *Debouncer) ActiveLevel() bool { return !d.idle }

// Poll samples the input once and reports whether a trigger was confirmed.
// A held input confirms exactly once; it must return to idle before the
// next trigger can start.
func (d *Debouncer) Poll() bool {
	now := d.now()
	if d.triggered && now.Sub(d.triggeredAt) < d.cooldown {
		return false
	}

	active := d.in.Read() != d.idle
	fired := false

	switch {
	case !d.debouncing:
		if d.stableIdle && active {
			d.debouncing = true
			d.debounceAt = now
		}
	case active:
		if now.Sub(d.debounceAt) >= d.debounce {
			fired = true
			d.triggered = true
			d.triggeredAt = now
			d.debouncing = false
			d.stableIdle = false
		}
	default:
		// Released inside the window: noise.
		d.debouncing = false
	}

	if !d.stableIdle && !active {
		d.stableIdle = true
	}
	return fired
}
