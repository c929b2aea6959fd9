package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lodgeon/keybridge/internal/bridge"
)

// DefaultInterval matches the UI polling cadence for hardware state.
const DefaultInterval = 30 * time.Second

// Snapshot is the last observed hardware state. ServiceUp means the local
// hardware agent process answered at all; ReaderConnected means a physical
// reader is attached and responsive.
type Snapshot struct {
	ServiceUp       bool      `json:"service_up"`
	ReaderConnected bool      `json:"reader_connected"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Ready reports whether a provisioning run may start.
func (s Snapshot) Ready() bool {
	return s.ServiceUp && s.ReaderConnected
}

// Monitor polls the local hardware agent and keeps the latest snapshot
// available to the orchestrator and to dashboard queries, even when no
// run is active.
type Monitor struct {
	client   *bridge.Client
	interval time.Duration

	mu       sync.RWMutex
	snapshot Snapshot
}

func New(client *bridge.Client, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		client:   client,
		interval: interval,
	}
}

// Run polls until the context is cancelled. An immediate probe happens on
// start so callers never see a zero snapshot for a full interval.
func (m *Monitor) Run(ctx context.Context) {
	m.CheckNow(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow probes service and reader status and updates the snapshot.
// Both probes fail closed, so an unreachable agent yields a down snapshot
// rather than an error.
func (m *Monitor) CheckNow(ctx context.Context) Snapshot {
	up := m.client.CheckServiceStatus(ctx)
	connected := false
	if up {
		connected = m.client.GetReaderStatus(ctx).Connected
	}

	snap := Snapshot{
		ServiceUp:       up,
		ReaderConnected: connected,
		CheckedAt:       time.Now(),
	}

	m.mu.Lock()
	prev := m.snapshot
	m.snapshot = snap
	m.mu.Unlock()

	if prev.ServiceUp != snap.ServiceUp || prev.ReaderConnected != snap.ReaderConnected {
		slog.Info("Hardware state changed",
			"service_up", snap.ServiceUp,
			"reader_connected", snap.ReaderConnected)
	}

	return snap
}

// Status returns the last observed snapshot without probing.
func (m *Monitor) Status() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Reconnect asks the hardware agent to reopen the reader device, then
// refreshes the snapshot. This is operator-triggered, never automatic:
// re-enumerating the device mid-insertion can corrupt a write.
func (m *Monitor) Reconnect(ctx context.Context) bool {
	ok := m.client.ReconnectReader(ctx)
	if ok {
		m.CheckNow(ctx)
	}
	return ok
}
