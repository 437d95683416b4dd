package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Portunus/controller/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/eventbus"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/guard"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/store/memory"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/controller/internal/portunus/wire"
)

type fixedHealth struct{}

func (fixedHealth) Health() types.ReaderHealth {
	return types.ReaderHealth{CommunicationOK: true, ConfiguredOK: true}
}

type fixedDoor struct{}

func (fixedDoor) Door() types.DoorState { return types.DoorState{State: types.Locked} }

type testEnv struct {
	ts      *httptest.Server
	guard   *guard.Guard
	bus     *eventbus.Bus
	classes *memory.ClassificationStore
}

// newTestServer wires the full dependency graph over in-memory stores and
// returns an httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, rateLimit float64) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	env := &testEnv{
		bus:     eventbus.New(4, logger),
		classes: memory.NewClassificationStore(10),
	}
	env.guard = guard.New(guard.Stores{
		Classes:  env.classes,
		Logs:     memory.NewAccessLogStore(),
		Commands: memory.NewCommandStateStore(),
	})

	commands := service.NewCommandService(env.guard, env.bus, "door-001",
		service.CommandTimeouts{Default: 20 * time.Millisecond, Bulk: 20 * time.Millisecond}, logger)
	status := service.NewStatusService(env.guard, fixedHealth{}, fixedDoor{}, env.bus,
		service.StatusConfig{ModuleID: "door-001", SnapshotTimeout: 20 * time.Millisecond, BulkTimeout: 20 * time.Millisecond}, logger)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:    logger,
		Addr:      ":0",
		Commands:  commands,
		Status:    status,
		RateLimit: rateLimit,
		Burst:     1,
	})

	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) postJSON(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.ts.URL+"/v1/commands", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeCommand(t *testing.T, resp *http.Response) types.CommandResponse {
	t.Helper()
	var out types.CommandResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// ── Commands (JSON) ─────────────────────────────────────────────────────────

func TestCommand_WhitelistAdd_OK(t *testing.T) {
	env := newTestServer(t, 0)

	resp := env.postJSON(t, `{"id":"c1","type":"WHITELIST_ADD","uid":"04a1b2c3"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeCommand(t, resp)
	assert.True(t, out.OK)
	assert.Equal(t, "WHITELIST_ADD_OK", out.Result)
	assert.Equal(t, "c1", out.CommandID)

	c, err := env.classes.Classify(context.Background(), "04A1B2C3")
	require.NoError(t, err)
	assert.Equal(t, types.Whitelist, c)
}

func TestCommand_DuplicateID_Conflict(t *testing.T) {
	env := newTestServer(t, 0)

	first := env.postJSON(t, `{"id":"c1","type":"GET_DEBUG"}`)
	require.Equal(t, http.StatusOK, first.StatusCode)

	second := env.postJSON(t, `{"id":"c1","type":"GET_DEBUG"}`)
	assert.Equal(t, http.StatusConflict, second.StatusCode)
}

func TestCommand_InvalidUID_Unprocessable(t *testing.T) {
	env := newTestServer(t, 0)

	resp := env.postJSON(t, `{"id":"c1","type":"WHITELIST_ADD","uid":"xyz"}`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	out := decodeCommand(t, resp)
	assert.False(t, out.OK)
	assert.Equal(t, "INVALID_UID", out.Result)
}

func TestCommand_MissingType_BadRequest(t *testing.T) {
	env := newTestServer(t, 0)

	resp := env.postJSON(t, `{"id":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommand_MalformedJSON_BadRequest(t *testing.T) {
	env := newTestServer(t, 0)

	resp := env.postJSON(t, `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommand_UnknownField_BadRequest(t *testing.T) {
	env := newTestServer(t, 0)

	resp := env.postJSON(t, `{"id":"c1","type":"GET_DEBUG","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCommand_GuardBusy_ServiceUnavailable(t *testing.T) {
	env := newTestServer(t, 0)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = env.guard.Do(context.Background(), 0, func(*guard.Handle) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer func() { close(release); <-done }()

	resp := env.postJSON(t, `{"id":"c1","type":"GET_DEBUG"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCommand_RemoteUnlock_PublishesEvent(t *testing.T) {
	env := newTestServer(t, 0)

	resp := env.postJSON(t, `{"id":"c1","type":"REMOTE_UNLOCK"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev, ok := env.bus.TryReceive()
	require.True(t, ok)
	assert.Equal(t, types.RemoteUnlock{Source: "http"}, ev)
}

// ── Commands (protobuf) ─────────────────────────────────────────────────────

func TestCommand_Protobuf_RoundTrip(t *testing.T) {
	env := newTestServer(t, 0)

	msg, err := wire.CommandRequestToStruct(types.CommandRequest{ID: "p1", Type: types.CmdBlacklistAdd, UID: "DEADBEEF"})
	require.NoError(t, err)
	body, err := proto.Marshal(msg)
	require.NoError(t, err)

	resp, err := http.Post(env.ts.URL+"/v1/commands", "application/x-protobuf", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &out))

	got, err := wire.CommandResponseFromStruct(&out)
	require.NoError(t, err)
	assert.Equal(t, "BLACKLIST_ADD_OK", got.Result)
	assert.Equal(t, "p1", got.CommandID)
}

func TestCommand_Protobuf_Garbage_BadRequest(t *testing.T) {
	env := newTestServer(t, 0)

	resp, err := http.Post(env.ts.URL+"/v1/commands", "application/x-protobuf", bytes.NewReader([]byte{0xff, 0xff, 0xff}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ── Read endpoints ──────────────────────────────────────────────────────────

func TestHealth_ReportsStatus(t *testing.T) {
	env := newTestServer(t, 0)

	resp, err := http.Get(env.ts.URL + "/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st types.StatusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "door-001", st.ModuleID)
	assert.Equal(t, "LOCKED", st.Door)
	assert.True(t, st.Reader.CommunicationOK)
}

func TestPending_ListsPendingUIDs(t *testing.T) {
	env := newTestServer(t, 0)
	_, err := env.classes.AddToPending(context.Background(), "CAFEBABE")
	require.NoError(t, err)

	resp, err := http.Get(env.ts.URL + "/v1/uids/pending")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Pending []string `json:"pending"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"CAFEBABE"}, body.Pending)
}

func TestLogs_ReturnsCommandEntries(t *testing.T) {
	env := newTestServer(t, 0)
	resp := env.postJSON(t, `{"id":"c1","type":"WHITELIST_ADD","uid":"04A1B2C3"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	lr, err := http.Get(env.ts.URL + "/v1/logs?limit=5")
	require.NoError(t, err)
	defer lr.Body.Close()
	require.Equal(t, http.StatusOK, lr.StatusCode)

	var body struct {
		Logs []types.LogRecord `json:"logs"`
	}
	require.NoError(t, json.NewDecoder(lr.Body).Decode(&body))
	require.NotEmpty(t, body.Logs)
	assert.Equal(t, "04A1B2C3", body.Logs[0].UID)
}

func TestLogs_BadLimit(t *testing.T) {
	env := newTestServer(t, 0)

	for _, q := range []string{"0", "-1", "abc", "5000"} {
		resp, err := http.Get(env.ts.URL + "/v1/logs?limit=" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", q)
	}
}

// ── Middleware ──────────────────────────────────────────────────────────────

func TestRateLimit_SecondRequestRejected(t *testing.T) {
	env := newTestServer(t, 0.001)

	first, err := http.Get(env.ts.URL + "/v1/health")
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Get(env.ts.URL + "/v1/health")
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "1", second.Header.Get("Retry-After"))
}

func TestUnknownRoute_NotFound(t *testing.T) {
	env := newTestServer(t, 0)

	resp, err := http.Get(env.ts.URL + "/v1/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
