package types

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Accepted length window, in hex characters, for a normalized UID.
const (
	MinUIDLen = 8
	MaxUIDLen = 20
)

var (
	ErrInvalidUID    = errors.New("uid must be 8-20 hex characters")
	ErrInvalidSerial = errors.New("card serial must be 4 or 7 bytes")
)

// NormalizeUID strips every non-hex character from raw and uppercases what
// remains. It never fails: input without hex digits normalizes to "".
func NormalizeUID(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		switch {
		case c >= '0' && c <= '9', c >= 'A' && c <= 'F':
			b.WriteByte(c)
		case c >= 'a' && c <= 'f':
			b.WriteByte(c - 'a' + 'A')
		}
	}
	return b.String()
}

// ValidateUID checks an already-normalized UID against the accepted window.
func ValidateUID(uid string) error {
	if len(uid) < MinUIDLen || len(uid) > MaxUIDLen {
		return ErrInvalidUID
	}
	return nil
}

// ParseUID normalizes raw and validates the result.
func ParseUID(raw string) (string, error) {
	uid := NormalizeUID(raw)
	if err := ValidateUID(uid); err != nil {
		return "", err
	}
	return uid, nil
}

// UIDFromSerial converts a 4- or 7-byte card serial into its canonical key.
func UIDFromSerial(serial []byte) (string, error) {
	if len(serial) != 4 && len(serial) != 7 {
		return "", ErrInvalidSerial
	}
	return strings.ToUpper(hex.EncodeToString(serial)), nil
}
