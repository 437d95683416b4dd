package hw

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// Input is a simulated digital input idling low.
type Input struct {
	level atomic.Bool
}

func NewInput() *Input { return &Input{} }

func (in *Input) Read() bool { return in.level.Load() }

func (in *Input) Set(level bool) { in.level.Store(level) }

// Press drives the input active for d, then releases it.
func (in *Input) Press(d time.Duration) {
	in.level.Store(true)
	time.AfterFunc(d, func() { in.level.Store(false) })
}

// ErrRelayFault is returned by a Relay after Fail(true).
var ErrRelayFault = errors.New("hw: relay fault")

// Relay is a simulated lock relay that logs each transition.
type Relay struct {
	mu       sync.Mutex
	unlocked bool
	fail     bool
	logger   *zap.Logger
}

func NewRelay(logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{logger: logger.Named("sim_relay")}
}

func (r *Relay) Lock() error { return r.set(false) }

func (r *Relay) Unlock() error { return r.set(true) }

func (r *Relay) set(unlocked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrRelayFault
	}
	r.unlocked = unlocked
	if unlocked {
		r.logger.Info("strike energized")
	} else {
		r.logger.Info("strike released")
	}
	return nil
}

func (r *Relay) Unlocked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unlocked
}

// Fail makes subsequent Lock and Unlock calls return ErrRelayFault.
func (r *Relay) Fail(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

// Buzzer is a simulated feedback buzzer that logs and remembers tones.
type Buzzer struct {
	mu     sync.Mutex
	played []types.Tone
	logger *zap.Logger
}

func NewBuzzer(logger *zap.Logger) *Buzzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Buzzer{logger: logger.Named("sim_buzzer")}
}

func (b *Buzzer) Play(t types.Tone) {
	b.mu.Lock()
	b.played = append(b.played, t)
	b.mu.Unlock()
	b.logger.Info("tone", zap.Stringer("tone", t))
}

// Played returns a copy of every tone played so far.
func (b *Buzzer) Played() []types.Tone {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]types.Tone(nil), b.played...)
}
