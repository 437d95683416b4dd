package service_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
)

type staticHealth types.ReaderHealth

func (h staticHealth) Health() types.ReaderHealth { return types.ReaderHealth(h) }

type staticDoor types.DoorState

func (d staticDoor) Door() types.DoorState { return types.DoorState(d) }

type staticDrops uint64

func (d staticDrops) Dropped() uint64 { return uint64(d) }

func newStatusService(t *testing.T) (*service.StatusService, *guard.Guard, *memory.ClassificationStore) {
	t.Helper()
	classes := memory.NewClassificationStore(10)
	g := guard.New(guard.Stores{Classes: classes, Logs: memory.NewAccessLogStore()})
	svc := service.NewStatusService(g,
		staticHealth{CommunicationOK: true, ConfiguredOK: true, ReinitCount: 2},
		staticDoor{State: types.Locked},
		staticDrops(3),
		service.StatusConfig{ModuleID: "door-001", SnapshotTimeout: 5 * time.Millisecond},
		zaptest.NewLogger(t),
	)
	return svc, g, classes
}

// holdGuard keeps g busy until the returned func is called.
func holdGuard(t *testing.T, g *guard.Guard) func() {
	t.Helper()
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Do(context.Background(), 0, func(*guard.Handle) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	return func() {
		close(release)
		<-done
	}
}

// ── Status ──────────────────────────────────────────────────────────────────

func TestStatus_ReportsCachedState(t *testing.T) {
	svc, _, classes := newStatusService(t)
	_, _ = classes.AddToWhitelist(context.Background(), "AAAAAAAA", false)

	st := svc.Status(context.Background())
	assert.Equal(t, "door-001", st.ModuleID)
	assert.Equal(t, "LOCKED", st.Door)
	assert.Equal(t, uint64(2), st.Reader.ReinitCount)
	assert.Equal(t, uint64(3), st.BusDropped)
	assert.Equal(t, 1, st.Counts.Whitelist)
	assert.False(t, st.CountsStale)
}

func TestStatus_StaleCountsOnGuardTimeout(t *testing.T) {
	svc, g, classes := newStatusService(t)
	ctx := context.Background()
	_, _ = classes.AddToWhitelist(ctx, "AAAAAAAA", false)
	svc.Counts(ctx)
	_, _ = classes.AddToWhitelist(ctx, "BBBBBBBB", false)

	release := holdGuard(t, g)
	counts, stale := svc.Counts(ctx)
	release()

	assert.True(t, stale)
	assert.Equal(t, 1, counts.Whitelist)

	counts, stale = svc.Counts(ctx)
	assert.False(t, stale)
	assert.Equal(t, 2, counts.Whitelist)
}

// sequencedCounts reports one more whitelisted UID on every read.
type sequencedCounts struct {
	store.ClassificationStore
	reads atomic.Int64
}

func (s *sequencedCounts) Counts(context.Context) (types.PartitionCounts, error) {
	return types.PartitionCounts{Whitelist: int(s.reads.Add(1))}, nil
}

func TestStatus_ConcurrentCountsKeepNewestSnapshot(t *testing.T) {
	classes := &sequencedCounts{ClassificationStore: memory.NewClassificationStore(10)}
	g := guard.New(guard.Stores{Classes: classes})
	svc := service.NewStatusService(g, nil, nil, nil,
		service.StatusConfig{SnapshotTimeout: 5 * time.Second},
		zaptest.NewLogger(t),
	)
	ctx := context.Background()

	const callers = 32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, stale := svc.Counts(ctx)
			assert.False(t, stale)
		}()
	}
	wg.Wait()

	release := holdGuard(t, g)
	counts, stale := svc.Counts(ctx)
	release()

	assert.True(t, stale)
	assert.Equal(t, callers, counts.Whitelist)
}

func TestStatus_PendingAndLogs(t *testing.T) {
	svc, g, classes := newStatusService(t)
	ctx := context.Background()
	_, _ = classes.AddToPending(ctx, "0000000A")
	require.NoError(t, g.Log(ctx, 0, types.LogRFIDPending, "0000000A", "PENDING_NEW"))

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0000000A"}, pending)

	logs, err := svc.RecentLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, types.LogRFIDPending, logs[0].Kind)
	assert.Equal(t, "0000000A", logs[0].UID)
}

// ── Heartbeat ───────────────────────────────────────────────────────────────

func TestHeartbeat_PostsStatus(t *testing.T) {
	var (
		mu  sync.Mutex
		got []types.HeartbeatRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/heartbeat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req types.HeartbeatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, req)
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.HeartbeatResponse{OK: true, Known: true, ModuleID: req.ModuleID})
	}))
	t.Cleanup(srv.Close)

	status, _, _ := newStatusService(t)
	rep := service.NewHeartbeatReporter(status, service.ReporterConfig{
		ServerURL:       srv.URL,
		ModuleID:        "door-001",
		FirmwareVersion: "1.2.0",
	}, zaptest.NewLogger(t))

	resp, err := rep.SendOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.Known)

	_, err = rep.SendOnce(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, "door-001", got[0].ModuleID)
	assert.Equal(t, "1.2.0", got[0].FirmwareVersion)
	assert.Equal(t, uint64(1), got[0].Sequence)
	assert.Equal(t, uint64(2), got[1].Sequence)
	require.NotNil(t, got[0].Reader)
	assert.True(t, got[0].Reader.CommunicationOK)
	require.NotNil(t, got[0].Counts)
	assert.Equal(t, "LOCKED", got[0].Door)
}

func TestHeartbeat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	status, _, _ := newStatusService(t)
	rep := service.NewHeartbeatReporter(status, service.ReporterConfig{
		ServerURL: srv.URL,
		ModuleID:  "door-001",
	}, nil)

	_, err := rep.SendOnce(context.Background())
	assert.Error(t, err)
}

func TestHeartbeat_DisabledWithoutServer(t *testing.T) {
	status, _, _ := newStatusService(t)
	rep := service.NewHeartbeatReporter(status, service.ReporterConfig{ModuleID: "door-001"}, nil)

	rep.Start(context.Background())
	rep.Stop()
}
