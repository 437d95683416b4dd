package guard_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type fixture struct {
	g       *guard.Guard
	classes *memory.ClassificationStore
	logs    *memory.AccessLogStore
	cmds    *memory.CommandStateStore
}

func newFixture(t *testing.T, opts ...guard.Option) fixture {
	t.Helper()
	f := fixture{
		classes: memory.NewClassificationStore(10),
		logs:    memory.NewAccessLogStore(),
		cmds:    memory.NewCommandStateStore(),
	}
	f.g = guard.New(guard.Stores{Classes: f.classes, Logs: f.logs, Commands: f.cmds}, opts...)
	return f
}

// ── Acquisition ──

func TestDo_RunsCallbackAndReleases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := f.g.Do(ctx, 10*time.Millisecond, func(h *guard.Handle) error {
			_, err := h.AddToWhitelist("AABBCCDD", false)
			return err
		})
		require.NoError(t, err)
	}
	assert.Zero(t, f.g.Timeouts())
}

func TestDo_ReturnsCallbackError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("boom")

	err := f.g.Do(context.Background(), 0, func(*guard.Handle) error { return boom })
	assert.ErrorIs(t, err, boom)

	// Released on the error path.
	err = f.g.Do(context.Background(), 5*time.Millisecond, func(*guard.Handle) error { return nil })
	assert.NoError(t, err)
}

func TestDo_ReleasesOnPanic(t *testing.T) {
	f := newFixture(t)

	assert.Panics(t, func() {
		_ = f.g.Do(context.Background(), 0, func(*guard.Handle) error { panic("bad") })
	})

	err := f.g.Do(context.Background(), 5*time.Millisecond, func(*guard.Handle) error { return nil })
	assert.NoError(t, err)
}

func TestDo_TimesOutWhileHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.g.Do(ctx, 0, func(*guard.Handle) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	start := time.Now()
	err := f.g.Do(ctx, 20*time.Millisecond, func(*guard.Handle) error {
		t.Error("callback ran while guard was held")
		return nil
	})
	assert.ErrorIs(t, err, guard.ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, uint64(1), f.g.Timeouts())

	close(release)
	<-done
}

func TestDo_ContextCancelledWhileWaiting(t *testing.T) {
	f := newFixture(t)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.g.Do(context.Background(), 0, func(*guard.Handle) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.g.Do(ctx, time.Second, func(*guard.Handle) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
}

func TestDo_MutualExclusion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		inside int
		maxIn  int
		mu     sync.Mutex
		wg     sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = f.g.Do(ctx, time.Second, func(*guard.Handle) error {
				mu.Lock()
				inside++
				if inside > maxIn {
					maxIn = inside
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxIn)
}

// ── Handle scope ──

func TestHandle_UnusableAfterRelease(t *testing.T) {
	f := newFixture(t)

	var leaked *guard.Handle
	require.NoError(t, f.g.Do(context.Background(), 0, func(h *guard.Handle) error {
		leaked = h
		return nil
	}))

	_, err := leaked.Classify("AABBCCDD")
	assert.ErrorIs(t, err, guard.ErrReleased)
	_, err = leaked.AddToPending("AABBCCDD")
	assert.ErrorIs(t, err, guard.ErrReleased)
	assert.ErrorIs(t, leaked.Log(types.LogSystemBoot, "", ""), guard.ErrReleased)
	counts, err := f.classes.Counts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.PartitionCounts{}, counts)
}

func TestHandle_ForEachPendingInOneScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.g.Do(ctx, 0, func(h *guard.Handle) error {
		for _, uid := range []string{"0000000A", "0000000B"} {
			if _, err := h.AddToPending(uid); err != nil {
				return err
			}
		}
		return nil
	}))

	var got []string
	require.NoError(t, f.g.Do(ctx, 0, func(h *guard.Handle) error {
		return h.ForEachPending(func(uid string) error {
			got = append(got, uid)
			return nil
		})
	}))
	assert.ElementsMatch(t, []string{"0000000A", "0000000B"}, got)
}

// ── Logging ──

func TestHandle_LogStampsClockAndDefaultsUID(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	f := newFixture(t, guard.WithClock(func() time.Time { return at }))

	require.NoError(t, f.g.Do(context.Background(), 0, func(h *guard.Handle) error {
		return h.Log(types.LogExitUnlock, "", "button")
	}))

	entries := f.logs.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, at, entries[0].At)
	assert.Equal(t, "-", entries[0].UID)
	assert.Equal(t, types.LogExitUnlock, entries[0].Kind)
	assert.NotEmpty(t, entries[0].ID)
}

func TestGuardLog_SkipsOnTimeout(t *testing.T) {
	f := newFixture(t)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.g.Do(context.Background(), 0, func(*guard.Handle) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := f.g.Log(context.Background(), 5*time.Millisecond, types.LogRFIDDenied, "DEADBEEF", "")
	assert.ErrorIs(t, err, guard.ErrTimeout)

	close(release)
	<-done
	assert.Empty(t, f.logs.Entries())
}

func TestHandle_NilLogAndCommandStores(t *testing.T) {
	g := guard.New(guard.Stores{Classes: memory.NewClassificationStore(5)})

	err := g.Do(context.Background(), 0, func(h *guard.Handle) error {
		if err := h.Log(types.LogSystemBoot, "", ""); err != nil {
			return err
		}
		id, err := h.LastCommandID()
		if err != nil {
			return err
		}
		assert.Empty(t, id)
		return h.SetLastCommandID("x")
	})
	assert.NoError(t, err)
}

func TestHandle_CommandState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.g.Do(ctx, 0, func(h *guard.Handle) error {
		return h.SetLastCommandID("cmd-9")
	}))
	require.NoError(t, f.g.Do(ctx, 0, func(h *guard.Handle) error {
		id, err := h.LastCommandID()
		assert.Equal(t, "cmd-9", id)
		return err
	}))
}

// driftedStore reports a blacklist count that disagrees with its keys.
type driftedStore struct {
	store.ClassificationStore
}

func (driftedStore) VerifyCounts(context.Context) ([]store.CountMismatch, error) {
	return []store.CountMismatch{{Partition: types.Blacklist, Maintained: 3, Actual: 0}}, nil
}

func TestHandle_VerifyCountsReportsMismatch(t *testing.T) {
	g := guard.New(guard.Stores{Classes: driftedStore{memory.NewClassificationStore(10)}})

	require.NoError(t, g.Do(context.Background(), 0, func(h *guard.Handle) error {
		mm, err := h.VerifyCounts()
		assert.Len(t, mm, 1)
		return err
	}))
}

func TestHandle_ReplaceAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.g.Do(ctx, 0, func(h *guard.Handle) error {
		return h.ReplaceAll([]string{"AAAAAAAA"}, []string{"BBBBBBBB"})
	}))
	c, err := f.classes.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.PartitionCounts{Whitelist: 1, Blacklist: 1}, c)
}
