// Package reader drives the RFID reader from the real-time loop and keeps
// it alive. The hardware is touched only from Tick; other goroutines read a
// cached health snapshot.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// ErrComm marks a failed exchange with the reader IC.
var ErrComm = errors.New("reader: communication failure")

var errAntennaOff = errors.New("reader: antenna off")

// Hardware is the reader IC as seen by the driver. Every method is called
// from the driver's goroutine only.
type Hardware interface {
	Init() error
	Reset() error
	Configure() error
	// Probe reads the firmware register. An error means the IC is not
	// answering.
	Probe() (types.Firmware, error)
	// ReadCard checks once for a card in the field without blocking.
	ReadCard() (serial []byte, present bool, err error)
	// Halt puts the card to sleep so it is not read again immediately.
	Halt()
	SetAntenna(on bool) error
}

// Evaluator decides on a normalized UID.
type Evaluator interface {
	Evaluate(ctx context.Context, raw string) types.Decision
}

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(e types.Event) bool
}

// Journal records reinit outcomes in the access log.
type Journal interface {
	Log(ctx context.Context, timeout time.Duration, kind types.LogKind, uid, info string) error
}

type State uint8

const (
	StatePolling State = iota
	StateHealthCheck
	StateReinit
	StateAntennaCycle
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "POLLING"
	case StateHealthCheck:
		return "HEALTH_CHECK"
	case StateReinit:
		return "REINIT"
	case StateAntennaCycle:
		return "ANTENNA_CYCLE"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

type Config struct {
	// ReadCooldown is the minimum gap between two accepted reads.
	ReadCooldown time.Duration
	// ProbeInterval paces health probes. Zero selects the default; probes
	// cannot be disabled.
	ProbeInterval time.Duration
	// AntennaCycleInterval paces antenna power cycles. Zero disables them.
	AntennaCycleInterval time.Duration
	// JournalTimeout bounds guard acquisition for reinit log entries.
	JournalTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReadCooldown:         time.Second,
		ProbeInterval:        10 * time.Second,
		AntennaCycleInterval: 60 * time.Second,
		JournalTimeout:       30 * time.Millisecond,
	}
}

type Driver struct {
	hw      Hardware
	eval    Evaluator
	bus     Publisher
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
	journal Journal

	state       State
	lastProbe   time.Time
	lastAntenna time.Time
	lastRead    time.Time
	haveRead    bool

	commOK    bool
	configOK  bool
	antennaOn bool
	firmware  types.Firmware
	polls     uint64
	reinits   uint64
	probedAt  time.Time
	lastErr   string

	health atomic.Pointer[types.ReaderHealth]
}

type Option func(*Driver)

func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

func WithJournal(j Journal) Option {
	return func(d *Driver) { d.journal = j }
}

func NewDriver(hw Hardware, eval Evaluator, bus Publisher, cfg Config, opts ...Option) *Driver {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultConfig().ProbeInterval
	}
	d := &Driver{
		hw:   hw,
		eval: eval,
		bus:  bus,
		cfg:  cfg,
		log:  zap.NewNop(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.Named("reader")
	d.publishHealth()
	return d
}

// Start initializes the IC. A failure is logged and left to the health
// check to recover; it is never fatal.
func (d *Driver) Start(ctx context.Context) error {
	now := d.now()
	err := d.bringUp()
	d.resetTimers(now)

	if err == nil {
		if fw, perr := d.hw.Probe(); perr == nil {
			d.firmware = fw
			d.probedAt = now
		} else {
			err = perr
		}
	}
	d.commOK = err == nil
	if err != nil {
		d.lastErr = err.Error()
		d.log.Warn("reader init failed, will retry at next health check", zap.Error(err))
	} else {
		d.log.Info("reader initialized",
			zap.Uint8("ic", d.firmware.IC),
			zap.Uint8("version", d.firmware.Major),
		)
	}
	d.publishHealth()
	return err
}

// Tick runs at most one step: a due health check, else a due antenna
// cycle, else one card-presence check.
func (d *Driver) Tick(ctx context.Context) {
	now := d.now()
	switch {
	case now.Sub(d.lastProbe) >= d.cfg.ProbeInterval:
		d.healthCheck(ctx, now)
	case d.cfg.AntennaCycleInterval > 0 && now.Sub(d.lastAntenna) >= d.cfg.AntennaCycleInterval:
		d.cycleAntenna(now)
	default:
		d.poll(ctx, now)
	}
	d.publishHealth()
}

// Health returns the last cached snapshot. It performs no hardware I/O and
// is safe to call from any goroutine.
func (d *Driver) Health() types.ReaderHealth {
	return *d.health.Load()
}

// State is the step run by the most recent Tick.
func (d *Driver) State() State {
	return d.state
}

func (d *Driver) healthCheck(ctx context.Context, now time.Time) {
	d.state = StateHealthCheck
	d.lastProbe = now

	fw, err := d.hw.Probe()
	if err == nil {
		d.firmware = fw
		d.probedAt = now
		if !d.antennaOn {
			err = errAntennaOff
		}
	}
	if err == nil {
		if !d.commOK {
			d.log.Info("reader communication restored")
		}
		d.commOK = true
		d.lastErr = ""
		return
	}

	d.commOK = false
	d.lastErr = err.Error()
	d.log.Warn("reader health probe failed", zap.Error(err))
	d.reinit(ctx, now)
}

// reinit is the only recovery path and runs on every failed probe.
func (d *Driver) reinit(ctx context.Context, now time.Time) {
	d.state = StateReinit
	d.reinits++

	err := d.hw.Reset()
	if err == nil {
		err = d.bringUp()
	}
	d.resetTimers(now)
	d.commOK = err == nil

	info := "ok"
	if err != nil {
		info = err.Error()
		d.lastErr = info
		d.log.Error("reader reinit failed",
			zap.Uint64("attempt", d.reinits),
			zap.Error(err),
		)
	} else {
		d.log.Info("reader reinit succeeded", zap.Uint64("attempt", d.reinits))
	}

	if d.journal != nil {
		_ = d.journal.Log(ctx, d.cfg.JournalTimeout, types.LogReaderReinit, "", info)
	}
}

func (d *Driver) bringUp() error {
	if err := d.hw.Init(); err != nil {
		d.configOK = false
		return fmt.Errorf("init: %w", err)
	}
	if err := d.hw.Configure(); err != nil {
		d.configOK = false
		return fmt.Errorf("configure: %w", err)
	}
	d.configOK = true
	d.antennaOn = true
	return nil
}

func (d *Driver) resetTimers(now time.Time) {
	d.lastProbe = now
	d.lastAntenna = now
	d.lastRead = time.Time{}
	d.haveRead = false
}

func (d *Driver) cycleAntenna(now time.Time) {
	d.state = StateAntennaCycle
	d.lastAntenna = now

	err := d.hw.SetAntenna(false)
	if err == nil {
		err = d.hw.SetAntenna(true)
	}
	d.antennaOn = err == nil
	if err != nil {
		// Nothing reads with the field off; make the health check due now.
		d.commOK = false
		d.lastProbe = time.Time{}
		d.lastErr = err.Error()
		d.log.Warn("antenna cycle failed, reinit scheduled", zap.Error(err))
	}
}

func (d *Driver) poll(ctx context.Context, now time.Time) {
	d.state = StatePolling
	if !d.commOK {
		return
	}

	d.polls++
	serial, present, err := d.hw.ReadCard()
	if err != nil {
		d.lastErr = err.Error()
		d.log.Debug("card read failed", zap.Error(err))
		return
	}
	if !present {
		return
	}
	defer d.hw.Halt()

	if d.haveRead && now.Sub(d.lastRead) < d.cfg.ReadCooldown {
		return
	}
	d.lastRead = now
	d.haveRead = true

	uid, err := types.UIDFromSerial(serial)
	if err != nil {
		d.log.Info("unsupported card serial", zap.Int("len", len(serial)))
		d.bus.Publish(types.CredentialInvalid{})
		return
	}

	decision := d.eval.Evaluate(ctx, uid)
	d.log.Debug("card read",
		zap.String("uid", uid),
		zap.Stringer("decision", decision),
	)
	d.bus.Publish(decision.Event(uid))
}

func (d *Driver) publishHealth() {
	d.health.Store(&types.ReaderHealth{
		CommunicationOK: d.commOK,
		ConfiguredOK:    d.configOK,
		AntennaOn:       d.antennaOn,
		Firmware:        d.firmware,
		PollCount:       d.polls,
		ReinitCount:     d.reinits,
		LastProbeAt:     d.probedAt,
		LastError:       d.lastErr,
	})
}
