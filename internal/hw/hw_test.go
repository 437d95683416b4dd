package hw_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BrandonDHaskell/Portunus/controller/internal/hw"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

// ── Reader ──────────────────────────────────────────────────────────────────

func TestReader_PresentedCardReadOnce(t *testing.T) {
	r := hw.NewReader(zaptest.NewLogger(t))
	require.NoError(t, r.Init())

	r.Present([]byte{0x04, 0xA1, 0xB2, 0xC3})

	serial, ok, err := r.ReadCard()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x04, 0xA1, 0xB2, 0xC3}, serial)

	_, ok, err = r.ReadCard()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReader_AntennaOffHidesCards(t *testing.T) {
	r := hw.NewReader(nil)
	require.NoError(t, r.Init())
	require.NoError(t, r.SetAntenna(false))
	r.Present([]byte{1, 2, 3, 4})

	_, ok, err := r.ReadCard()
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.SetAntenna(true))
	_, ok, _ = r.ReadCard()
	assert.True(t, ok)
}

func TestReader_JamFailsEveryCall(t *testing.T) {
	r := hw.NewReader(nil)
	require.NoError(t, r.Init())
	r.Jam()

	_, err := r.Probe()
	assert.Error(t, err)
	_, _, err = r.ReadCard()
	assert.Error(t, err)
	assert.Error(t, r.Reset())
	assert.Error(t, r.Init())

	r.Unjam()
	fw, err := r.Probe()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x92), fw.IC)
}

// ── Outputs ─────────────────────────────────────────────────────────────────

func TestRelay_TracksStateAndFaults(t *testing.T) {
	relay := hw.NewRelay(zaptest.NewLogger(t))
	require.NoError(t, relay.Unlock())
	assert.True(t, relay.Unlocked())

	relay.Fail(true)
	assert.ErrorIs(t, relay.Lock(), hw.ErrRelayFault)
	assert.True(t, relay.Unlocked())
}

func TestBuzzer_RecordsTones(t *testing.T) {
	b := hw.NewBuzzer(nil)
	b.Play(types.ToneGrant)
	b.Play(types.ToneDeny)
	assert.Equal(t, []types.Tone{types.ToneGrant, types.ToneDeny}, b.Played())
}

func TestInput_PressReleases(t *testing.T) {
	in := hw.NewInput()
	assert.False(t, in.Read())

	in.Press(10 * time.Millisecond)
	assert.True(t, in.Read())
	assert.Eventually(t, func() bool { return !in.Read() }, time.Second, 5*time.Millisecond)
}

// ── Script ──────────────────────────────────────────────────────────────────

func TestScript_RunsCommands(t *testing.T) {
	r := hw.NewReader(nil)
	require.NoError(t, r.Init())
	exit := hw.NewInput()
	s := &hw.Script{Reader: r, Exit: exit, Logger: zaptest.NewLogger(t)}

	input := "# comment\ncard 04a1b2c3\nbogus\nexit\n"
	require.NoError(t, s.Run(context.Background(), strings.NewReader(input)))

	serial, ok, err := r.ReadCard()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{0x04, 0xA1, 0xB2, 0xC3}, serial)
	assert.True(t, exit.Read())
}

func TestScript_ApplyErrors(t *testing.T) {
	s := &hw.Script{Reader: hw.NewReader(nil)}

	assert.Error(t, s.Apply("card"))
	assert.Error(t, s.Apply("card zz"))
	assert.Error(t, s.Apply("exit"))
	assert.Error(t, s.Apply("dance"))
	assert.NoError(t, s.Apply("jam"))
	_, err := s.Reader.Probe()
	assert.Error(t, err)
}
