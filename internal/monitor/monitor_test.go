package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgeon/keybridge/internal/bridge"
)

// agentStub fakes the local hardware agent's status surface.
type agentStub struct {
	up          atomic.Bool
	connected   atomic.Bool
	reconnects  atomic.Int32
	statusCalls atomic.Int32
}

func (a *agentStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			a.statusCalls.Add(1)
			if !a.up.Load() {
				// Simulate a dead process, not an HTTP error body.
				panic(http.ErrAbortHandler)
			}
			json.NewEncoder(w).Encode(map[string]bool{"up": true})
		case "/reader/status":
			json.NewEncoder(w).Encode(map[string]bool{"connected": a.connected.Load()})
		case "/reader/reconnect":
			a.reconnects.Add(1)
			a.connected.Store(true)
			json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		default:
			http.NotFound(w, r)
		}
	}
}

func newMonitor(t *testing.T, stub *agentStub) *Monitor {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return New(bridge.NewClient(srv.URL), time.Hour)
}

func TestCheckNowHealthy(t *testing.T) {
	stub := &agentStub{}
	stub.up.Store(true)
	stub.connected.Store(true)

	m := newMonitor(t, stub)
	snap := m.CheckNow(context.Background())

	assert.True(t, snap.ServiceUp)
	assert.True(t, snap.ReaderConnected)
	assert.True(t, snap.Ready())
	assert.WithinDuration(t, time.Now(), snap.CheckedAt, time.Second)
}

func TestCheckNowServiceDown(t *testing.T) {
	stub := &agentStub{} // up == false: /status aborts the connection

	m := newMonitor(t, stub)
	snap := m.CheckNow(context.Background())

	assert.False(t, snap.ServiceUp)
	assert.False(t, snap.ReaderConnected)
	assert.False(t, snap.Ready())
}

func TestCheckNowReaderDisconnected(t *testing.T) {
	stub := &agentStub{}
	stub.up.Store(true) // service alive, reader unplugged

	m := newMonitor(t, stub)
	snap := m.CheckNow(context.Background())

	assert.True(t, snap.ServiceUp)
	assert.False(t, snap.ReaderConnected)
	assert.False(t, snap.Ready())
}

func TestStatusReturnsLastSnapshot(t *testing.T) {
	stub := &agentStub{}
	stub.up.Store(true)
	stub.connected.Store(true)

	m := newMonitor(t, stub)
	m.CheckNow(context.Background())
	calls := stub.statusCalls.Load()

	snap := m.Status()
	assert.True(t, snap.Ready())
	assert.Equal(t, calls, stub.statusCalls.Load(), "Status must not probe")
}

func TestReconnectRefreshesSnapshot(t *testing.T) {
	stub := &agentStub{}
	stub.up.Store(true) // reader starts disconnected

	m := newMonitor(t, stub)
	require.False(t, m.CheckNow(context.Background()).Ready())

	ok := m.Reconnect(context.Background())
	assert.True(t, ok)
	assert.EqualValues(t, 1, stub.reconnects.Load())
	assert.True(t, m.Status().Ready(), "snapshot refreshes after a reconnect")
}
