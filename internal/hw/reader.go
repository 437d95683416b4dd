// Package hw provides in-process stand-ins for the door hardware so the
// controller can run on a development machine.
package hw

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

var errJammed = errors.New("hw: reader not responding")

// simFirmware mimics an MFRC522 reporting version 2.0.
var simFirmware = types.Firmware{IC: 0x92, Major: 2, Minor: 0, Support: 0}

// Reader is a simulated RFID reader. Cards queued with Present are
// returned by ReadCard one at a time. Jam makes every call fail until
// Unjam, which exercises the driver's health supervision.
type Reader struct {
	mu      sync.Mutex
	queue   [][]byte
	jammed  bool
	antenna bool
	logger  *zap.Logger
}

func NewReader(logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{logger: logger.Named("sim_reader")}
}

// Present queues a card serial for the next read.
func (r *Reader) Present(serial []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queue = append(r.queue, append([]byte(nil), serial...))
}

func (r *Reader) Jam() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jammed = true
	r.logger.Info("jammed")
}

func (r *Reader) Unjam() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jammed = false
	r.logger.Info("unjammed")
}

func (r *Reader) Init() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jammed {
		return errJammed
	}
	r.antenna = true
	return nil
}

func (r *Reader) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jammed {
		return errJammed
	}
	r.antenna = false
	r.queue = nil
	return nil
}

func (r *Reader) Configure() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jammed {
		return errJammed
	}
	return nil
}

func (r *Reader) Probe() (types.Firmware, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jammed {
		return types.Firmware{}, errJammed
	}
	return simFirmware, nil
}

func (r *Reader) ReadCard() ([]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jammed {
		return nil, false, errJammed
	}
	if !r.antenna || len(r.queue) == 0 {
		return nil, false, nil
	}
	serial := r.queue[0]
	r.queue = r.queue[1:]
	return serial, true, nil
}

func (r *Reader) Halt() {}

func (r *Reader) SetAntenna(on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.jammed {
		return errJammed
	}
	r.antenna = on
	return nil
}
