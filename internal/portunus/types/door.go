package types

import "time"

type LockState uint8

const (
	Locked LockState = iota
	Unlocked
)

func (s LockState) String() string {
	if s == Unlocked {
		return "UNLOCKED"
	}
	return "LOCKED"
}

// DoorState is owned by the access controller. The zero value is LOCKED.
type DoorState struct {
	State           LockState
	UnlockStartedAt time.Time
	LastActionAt    time.Time
}

// Tone is the feedback signal played for an outcome.
type Tone uint8

const (
	ToneGrant Tone = iota + 1
	ToneDeny
	TonePending
	ToneInvalid
	ToneExit
	ToneRemote
)

func (t Tone) String() string {
	switch t {
	case ToneGrant:
		return "grant"
	case ToneDeny:
		return "deny"
	case TonePending:
		return "pending"
	case ToneInvalid:
		return "invalid"
	case ToneExit:
		return "exit"
	case ToneRemote:
		return "remote"
	default:
		return "unknown"
	}
}
