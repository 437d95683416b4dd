package eventbus_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/eventbus"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

func TestBus_FIFO(t *testing.T) {
	b := eventbus.New(4, zaptest.NewLogger(t))

	require.True(t, b.Publish(types.CredentialGranted{UID: "AABBCCDD"}))
	require.True(t, b.Publish(types.ExitTriggered{}))
	require.True(t, b.Publish(types.RemoteUnlock{Source: "http"}))

	want := []types.EventKind{types.KindCredentialGranted, types.KindExitTriggered, types.KindRemoteUnlock}
	for _, k := range want {
		e, ok := b.TryReceive()
		require.True(t, ok)
		assert.Equal(t, k, e.Kind())
	}
	_, ok := b.TryReceive()
	assert.False(t, ok)
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := eventbus.New(2, nil)

	assert.True(t, b.Publish(types.ExitTriggered{}))
	assert.True(t, b.Publish(types.ExitTriggered{}))
	assert.False(t, b.Publish(types.CredentialGranted{UID: "AABBCCDD"}))

	assert.Equal(t, 2, b.Len())
	assert.Equal(t, uint64(1), b.Dropped())

	e, ok := b.TryReceive()
	require.True(t, ok)
	assert.Equal(t, types.ExitTriggered{}, e)
}

func TestBus_DefaultCapacity(t *testing.T) {
	b := eventbus.New(0, nil)
	assert.Equal(t, eventbus.DefaultCapacity, b.Cap())
}

func TestBus_RejectsNil(t *testing.T) {
	b := eventbus.New(1, nil)
	assert.False(t, b.Publish(nil))
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Dropped())
}

func TestBus_ConcurrentProducers(t *testing.T) {
	b := eventbus.New(10, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Publish(types.ExitTriggered{})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, b.Len())
	assert.Equal(t, uint64(30), b.Dropped())
}
