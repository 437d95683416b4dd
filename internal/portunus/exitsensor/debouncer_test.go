package exitsensor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/exitsensor"
)

type pin struct{ level bool }

func (p *pin) Read() bool { return p.level }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newDebouncer(idle bool) (*exitsensor.Debouncer, *pin, *clock) {
	p := &pin{level: idle}
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return exitsensor.New(p, 0, 0, c.now), p, c
}

// step advances the clock by d and polls once.
func step(d *exitsensor.Debouncer, c *clock, by time.Duration) bool {
	c.advance(by)
	return d.Poll()
}

func TestDebouncer_LearnsPolarity(t *testing.T) {
	for _, idle := range []bool{false, true} {
		d, _, _ := newDebouncer(idle)
		assert.Equal(t, idle, d.IdleLevel())
		assert.Equal(t, !idle, d.ActiveLevel())
	}
}

func TestDebouncer_HeldSignalEmitsOnce(t *testing.T) {
	for _, idle := range []bool{false, true} {
		d, p, c := newDebouncer(idle)
		p.level = !idle

		fired := 0
		for i := 0; i < 200; i++ {
			if step(d, c, 5*time.Millisecond) {
				fired++
			}
		}
		assert.Equal(t, 1, fired, "idle=%v", idle)
	}
}

func TestDebouncer_ConfirmsAtWindow(t *testing.T) {
	d, p, c := newDebouncer(false)
	p.level = true

	assert.False(t, step(d, c, 0))
	assert.False(t, step(d, c, 79*time.Millisecond))
	assert.True(t, step(d, c, time.Millisecond))
}

func TestDebouncer_BounceEmitsNothing(t *testing.T) {
	d, p, c := newDebouncer(false)

	for i := 0; i < 50; i++ {
		p.level = true
		assert.False(t, step(d, c, 5*time.Millisecond))
		assert.False(t, step(d, c, 40*time.Millisecond))
		p.level = false
		assert.False(t, step(d, c, 5*time.Millisecond))
	}
}

func TestDebouncer_CooldownSuppressesRetrigger(t *testing.T) {
	d, p, c := newDebouncer(false)
	p.level = true
	step(d, c, 0)
	assert.True(t, step(d, c, 80*time.Millisecond))

	// Release and press again well inside the cooldown.
	p.level = false
	step(d, c, 100*time.Millisecond)
	p.level = true
	for i := 0; i < 10; i++ {
		assert.False(t, step(d, c, 100*time.Millisecond))
	}

	// Past the cooldown the input must be seen idle before a new trigger.
	c.advance(4 * time.Second)
	p.level = false
	assert.False(t, d.Poll())
	p.level = true
	assert.False(t, step(d, c, 0))
	assert.True(t, step(d, c, 80*time.Millisecond))
}

func TestDebouncer_HeldThroughCooldownNeedsRelease(t *testing.T) {
	d, p, c := newDebouncer(false)
	p.level = true
	step(d, c, 0)
	assert.True(t, step(d, c, 80*time.Millisecond))

	c.advance(5 * time.Second)
	for i := 0; i < 20; i++ {
		assert.False(t, step(d, c, 10*time.Millisecond))
	}
}
