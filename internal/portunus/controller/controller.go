// Package controller owns the door state. It consumes bus events and a
// periodic tick from the real-time loop and drives the lock actuator.
package controller

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

const (
	DefaultUnlockDuration = 5 * time.Second
	DefaultCooldown       = 4 * time.Second
)

// Actuator drives the lock relay.
type Actuator interface {
	Lock() error
	Unlock() error
}

// Feedback plays the user-facing signal for an outcome.
type Feedback interface {
	Play(t types.Tone)
}

// Journal records door actions in the access log.
type Journal interface {
	Log(ctx context.Context, timeout time.Duration, kind types.LogKind, uid, info string) error
}

type Config struct {
	UnlockDuration time.Duration
	// Cooldown starts with the unlock and runs concurrently with it.
	Cooldown       time.Duration
	JournalTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		UnlockDuration: DefaultUnlockDuration,
		Cooldown:       DefaultCooldown,
		JournalTimeout: 30 * time.Millisecond,
	}
}

type Controller struct {
	act     Actuator
	fb      Feedback
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
	journal Journal

	door  types.DoorState
	armed bool
	drops atomic.Uint64
	snap  atomic.Pointer[types.DoorState]
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithJournal(j Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// New returns a controller in the LOCKED state and drives the actuator to
// match.
func New(act Actuator, fb Feedback, cfg Config, opts ...Option) *Controller {
	if cfg.UnlockDuration <= 0 {
		cfg.UnlockDuration = DefaultUnlockDuration
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	c := &Controller{
		act: act,
		fb:  fb,
		cfg: cfg,
		log: zap.NewNop(),
		now: time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.Named("controller")

	if err := c.act.Lock(); err != nil {
		c.log.Error("initial lock failed", zap.Error(err))
	}
	c.door = types.DoorState{State: types.Locked}
	c.publish()
	return c
}

// Handle applies one event. Qualifying events inside the cooldown window
// are dropped, not queued.
func (c *Controller) Handle(ctx context.Context, e types.Event) {
	switch ev := e.(type) {
	case types.CredentialGranted:
		c.unlock(ctx, types.ToneGrant, "", ev.UID)
	case types.ExitTriggered:
		c.unlock(ctx, types.ToneExit, types.LogExitUnlock, "")
	case types.RemoteUnlock:
		c.unlock(ctx, types.ToneRemote, "", ev.Source)
	case types.CredentialDenied:
		c.fb.Play(types.ToneDeny)
	case types.CredentialPending:
		c.fb.Play(types.TonePending)
	case types.CredentialInvalid:
		c.fb.Play(types.ToneInvalid)
	default:
		c.log.Warn("unhandled event", zap.Any("event", e))
	}
}

// Tick relocks the door once the unlock duration has elapsed. The cooldown
// is re-armed from the relock instant.
func (c *Controller) Tick(ctx context.Context) {
	if c.door.State != types.Unlocked {
		return
	}
	now := c.now()
	if now.Sub(c.door.UnlockStartedAt) < c.cfg.UnlockDuration {
		return
	}

	if err := c.act.Lock(); err != nil {
		c.actuationFailed(ctx, "lock", err)
	}
	c.door.State = types.Locked
	c.door.LastActionAt = now
	c.log.Info("door locked")
	c.publish()
}

func (c *Controller) unlock(ctx context.Context, tone types.Tone, kind types.LogKind, detail string) {
	now := c.now()
	if c.inCooldown(now) {
		n := c.drops.Add(1)
		c.log.Debug("cooldown active, event ignored",
			zap.Stringer("tone", tone),
			zap.Uint64("dropped_total", n),
		)
		return
	}

	if err := c.act.Unlock(); err != nil {
		c.actuationFailed(ctx, "unlock", err)
	}
	c.door = types.DoorState{State: types.Unlocked, UnlockStartedAt: now, LastActionAt: now}
	c.armed = true
	c.fb.Play(tone)
	c.log.Info("door unlocked", zap.Stringer("tone", tone), zap.String("detail", detail))

	if kind != "" && c.journal != nil {
		_ = c.journal.Log(ctx, c.cfg.JournalTimeout, kind, "", detail)
	}
	c.publish()
}

func (c *Controller) inCooldown(now time.Time) bool {
	return c.armed && now.Sub(c.door.LastActionAt) < c.cfg.Cooldown
}

// actuationFailed reports a relay failure. The state machine carries on so
// the door is never left waiting on a retry.
func (c *Controller) actuationFailed(ctx context.Context, op string, err error) {
	c.log.Error("actuation failed", zap.String("op", op), zap.Error(err))
	if c.journal != nil {
		_ = c.journal.Log(ctx, c.cfg.JournalTimeout, types.LogActuationFailed, "", op+": "+err.Error())
	}
}

func (c *Controller) publish() {
	d := c.door
	c.snap.Store(&d)
}

// Door returns the latest door state. Safe from any goroutine.
func (c *Controller) Door() types.DoorState {
	return *c.snap.Load()
}

// CooldownDrops counts qualifying events dropped during cooldown.
func (c *Controller) CooldownDrops() uint64 {
	return c.drops.Load()
}
