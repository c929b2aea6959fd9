package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgeon/keybridge/internal/api/http/dto"
	"github.com/lodgeon/keybridge/internal/bridge"
	"github.com/lodgeon/keybridge/internal/cloudapi"
	"github.com/lodgeon/keybridge/internal/monitor"
)

// cloudStub fakes the server's agent surface: one claimable issue, then an
// empty queue, capturing what the worker reports back.
type cloudStub struct {
	issue      *dto.IssueResponse
	claimed    atomic.Bool
	claimCalls atomic.Int32

	mu      sync.Mutex
	reports []dto.ReportIssueRequest
}

func newCloudStub(issue *dto.IssueResponse) *cloudStub {
	return &cloudStub{issue: issue}
}

func (s *cloudStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/agent/heartbeat":
			json.NewEncoder(w).Encode(dto.HeartbeatResponse{AcknowledgedAt: time.Now()})
		case r.URL.Path == "/api/v1/agent/issues/claim":
			s.claimCalls.Add(1)
			if s.issue == nil || s.claimed.Swap(true) {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			json.NewEncoder(w).Encode(s.issue)
		case strings.HasSuffix(r.URL.Path, "/report"):
			var report dto.ReportIssueRequest
			json.NewDecoder(r.Body).Decode(&report)
			s.mu.Lock()
			s.reports = append(s.reports, report)
			s.mu.Unlock()
			json.NewEncoder(w).Encode(s.issue)
		default:
			http.NotFound(w, r)
		}
	}
}

func healthyBridge(t *testing.T, writeResponse any) *bridge.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/status":
			json.NewEncoder(w).Encode(map[string]bool{"up": true})
		case "/reader/status":
			json.NewEncoder(w).Encode(map[string]bool{"connected": true})
		case "/cards/write":
			json.NewEncoder(w).Encode(writeResponse)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return bridge.NewClient(srv.URL)
}

func testIssue() *dto.IssueResponse {
	payload, _ := json.Marshal(map[string]any{
		"room_number": "312",
		"guest_id":    "guest-77",
		"facility_id": "hotel-1",
	})
	return &dto.IssueResponse{
		ID:        "11111111-2222-3333-4444-555555555555",
		HotelID:   "hotel-1",
		BookingID: "4821",
		CardType:  "elevator",
		Status:    "in_progress",
		Payload:   payload,
	}
}

func newWorker(t *testing.T, stub *cloudStub, bridgeClient *bridge.Client) *Worker {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	cloud := cloudapi.NewClient(srv.URL, "agent-1", "at_testtoken")
	mon := monitor.New(bridgeClient, time.Hour)
	return NewWorker(cloud, bridgeClient, mon, WorkerConfig{})
}

func TestPollOnceExecutesAndReportsDone(t *testing.T) {
	stub := newCloudStub(testIssue())
	bridgeClient := healthyBridge(t, bridge.WriteResult{
		CardUID:   "04:AE:12:F9",
		Timestamp: time.Now(),
	})
	w := newWorker(t, stub, bridgeClient)

	w.PollOnce(context.Background())

	require.Len(t, stub.reports, 1)
	assert.Equal(t, "done", stub.reports[0].Status)
	assert.Equal(t, "04:AE:12:F9", stub.reports[0].CardUID)
	assert.Empty(t, stub.reports[0].ErrorMessage)
}

func TestPollOnceReportsHardwareFailure(t *testing.T) {
	stub := newCloudStub(testIssue())
	bridgeClient := healthyBridge(t, map[string]string{"error": "card removed during write"})
	w := newWorker(t, stub, bridgeClient)

	w.PollOnce(context.Background())

	require.Len(t, stub.reports, 1)
	assert.Equal(t, "failed", stub.reports[0].Status)
	assert.Equal(t, "card removed during write", stub.reports[0].ErrorMessage)
}

func TestPollOnceReportsMalformedPayload(t *testing.T) {
	issue := testIssue()
	issue.Payload = json.RawMessage(`{"room_number": 312}`)
	stub := newCloudStub(issue)
	bridgeClient := healthyBridge(t, bridge.WriteResult{CardUID: "x", Timestamp: time.Now()})
	w := newWorker(t, stub, bridgeClient)

	w.PollOnce(context.Background())

	require.Len(t, stub.reports, 1)
	assert.Equal(t, "failed", stub.reports[0].Status)
	assert.Contains(t, stub.reports[0].ErrorMessage, "malformed issue payload")
}

func TestPollOnceSkipsWhenBridgeDown(t *testing.T) {
	stub := newCloudStub(testIssue())

	cloudSrv := httptest.NewServer(stub.handler())
	t.Cleanup(cloudSrv.Close)
	cloud := cloudapi.NewClient(cloudSrv.URL, "agent-1", "at_testtoken")

	// Bridge points at a closed port: hardware is unreachable.
	bridgeClient := bridge.NewClient("http://127.0.0.1:1")
	mon := monitor.New(bridgeClient, time.Hour)
	w := NewWorker(cloud, bridgeClient, mon, WorkerConfig{})

	w.PollOnce(context.Background())

	assert.EqualValues(t, 0, stub.claimCalls.Load(),
		"nothing may be claimed while the reader cannot serve it")
	assert.Empty(t, stub.reports)
}

func TestPollOnceEmptyQueue(t *testing.T) {
	stub := newCloudStub(nil)
	bridgeClient := healthyBridge(t, bridge.WriteResult{CardUID: "x", Timestamp: time.Now()})
	w := newWorker(t, stub, bridgeClient)

	w.PollOnce(context.Background())

	assert.EqualValues(t, 1, stub.claimCalls.Load())
	assert.Empty(t, stub.reports)
}
