package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgeon/keybridge/internal/cards"
)

func newAgentStub(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL)
}

func TestCheckServiceStatus(t *testing.T) {
	client := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"up": true})
	})

	assert.True(t, client.CheckServiceStatus(context.Background()))
}

func TestCheckServiceStatusFailsClosed(t *testing.T) {
	// Point at a closed port: absence of a response means "down", not an error.
	client := NewClient("http://127.0.0.1:1")
	assert.False(t, client.CheckServiceStatus(context.Background()))
}

func TestGetReaderStatus(t *testing.T) {
	client := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reader/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"connected": true})
	})

	assert.True(t, client.GetReaderStatus(context.Background()).Connected)
}

func TestGetReaderStatusFailsClosed(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	assert.False(t, client.GetReaderStatus(context.Background()).Connected)
}

func TestReconnectReader(t *testing.T) {
	client := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reader/reconnect", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})

	assert.True(t, client.ReconnectReader(context.Background()))
}

func TestCardPresent(t *testing.T) {
	client := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cards/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]bool{"present": true})
	})

	assert.True(t, client.CardPresent(context.Background()))
}

func TestWriteCardSuccess(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	client := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cards/write", r.URL.Path)

		var req WriteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, cards.CardTypeRoomAccess, req.CardType)
		assert.Equal(t, "4821", req.BookingID)
		assert.Equal(t, "312", req.RoomNumber)

		json.NewEncoder(w).Encode(WriteResult{CardUID: "04:AE:12:F9", Timestamp: now})
	})

	result, err := client.WriteCard(context.Background(), WriteRequest{
		CardType:   cards.CardTypeRoomAccess,
		BookingID:  "4821",
		RoomNumber: "312",
	})
	require.NoError(t, err)
	assert.Equal(t, "04:AE:12:F9", result.CardUID)
	assert.True(t, result.Timestamp.Equal(now))
}

func TestWriteCardHardwareFailure(t *testing.T) {
	client := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "verify mismatch"})
	})

	_, err := client.WriteCard(context.Background(), WriteRequest{
		CardType:  cards.CardTypeElevator,
		BookingID: "4821",
	})
	require.Error(t, err)

	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, "verify mismatch", writeErr.Message)
}

func TestWriteCardMissingUID(t *testing.T) {
	client := newAgentStub(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	})

	_, err := client.WriteCard(context.Background(), WriteRequest{
		CardType:  cards.CardTypeSafe,
		BookingID: "4821",
	})
	assert.Error(t, err)
}
