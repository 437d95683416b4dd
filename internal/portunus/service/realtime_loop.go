package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// ReaderTicker advances the reader state machine by one step.
type ReaderTicker interface {
	Tick(ctx context.Context)
}

// ExitPoller samples the exit sensor once.
type ExitPoller interface {
	Poll() bool
}

// EventQueue is the event bus as seen by the loop.
type EventQueue interface {
	Publish(e types.Event) bool
	TryReceive() (types.Event, bool)
}

// DoorController consumes events and relocks on tick.
type DoorController interface {
	Handle(ctx context.Context, e types.Event)
	Tick(ctx context.Context)
}

type RealtimeConfig struct {
	Reader     ReaderTicker
	Exit       ExitPoller // optional
	Bus        EventQueue
	Controller DoorController
	Tick       time.Duration
}

// RealtimeLoop is the only goroutine that touches the reader, the exit
// input and the door state. Start/Stop follow LogPruner.
type RealtimeLoop struct {
	cfg    RealtimeConfig
	logger *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRealtimeLoop(cfg RealtimeConfig, logger *zap.Logger) *RealtimeLoop {
	if cfg.Tick <= 0 {
		cfg.Tick = 5 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeLoop{
		cfg:    cfg,
		logger: logger.Named("realtime"),
		done:   make(chan struct{}),
	}
}

func (l *RealtimeLoop) Start(ctx context.Context) {
	ctx, l.cancel = context.WithCancel(ctx)
	go l.loop(ctx)
	l.logger.Info("realtime loop started", zap.Duration("tick", l.cfg.Tick))
}

// Stop signals the loop to exit and waits for it to finish.
func (l *RealtimeLoop) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	<-l.done
}

func (l *RealtimeLoop) loop(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Step(ctx)
		}
	}
}

// Step runs one tick: reader, exit sensor, at most one event, relock check.
func (l *RealtimeLoop) Step(ctx context.Context) {
	l.cfg.Reader.Tick(ctx)

	if l.cfg.Exit != nil && l.cfg.Exit.Poll() {
		l.cfg.Bus.Publish(types.ExitTriggered{})
	}

	if e, ok := l.cfg.Bus.TryReceive(); ok {
		l.cfg.Controller.Handle(ctx, e)
	}

	l.cfg.Controller.Tick(ctx)
}
