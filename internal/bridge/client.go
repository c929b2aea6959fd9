package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lodgeon/keybridge/internal/cards"
)

// DefaultTimeout bounds the status probes. They run on UI polling intervals
// and must fail closed instead of hanging the caller.
const DefaultTimeout = 3 * time.Second

// WriteTimeout bounds a card write round-trip. The hardware agent enforces
// its own firm timeout; this is the client-side ceiling above it.
const WriteTimeout = 45 * time.Second

// Client talks to the local hardware agent that owns the card reader.
// The reader is reachable only through that process; nothing else touches
// the device directly.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ReaderStatus struct {
	Connected bool `json:"connected"`
}

// WriteRequest is the payload for programming a single card.
type WriteRequest struct {
	CardType   cards.CardType `json:"cardType"`
	BookingID  string         `json:"bookingId"`
	RoomNumber string         `json:"roomNumber"`
	GuestID    string         `json:"guestId"`
	CheckIn    time.Time      `json:"checkIn"`
	CheckOut   time.Time      `json:"checkOut"`
	FacilityID string         `json:"facilityId"`
}

// WriteResult is returned once the agent has written and verified a card.
type WriteResult struct {
	CardUID   string    `json:"cardUID"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteError is a write/verify failure reported by the hardware agent
// (verify mismatch, timeout, card removed mid-write). It is expected
// operational data, not a transport failure.
type WriteError struct {
	Message string
}

func (e *WriteError) Error() string {
	return e.Message
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// CheckServiceStatus reports whether the hardware agent process is reachable
// at all. Unreachability is reported as false, never as an error.
func (c *Client) CheckServiceStatus(ctx context.Context) bool {
	var body struct {
		Up bool `json:"up"`
	}
	if err := c.getJSON(ctx, "/status", &body); err != nil {
		slog.Debug("Hardware agent unreachable", "error", err)
		return false
	}
	return body.Up
}

// GetReaderStatus reports whether a physical reader is attached and
// responsive. Unreachability is reported as disconnected.
func (c *Client) GetReaderStatus(ctx context.Context) ReaderStatus {
	var status ReaderStatus
	if err := c.getJSON(ctx, "/reader/status", &status); err != nil {
		slog.Debug("Reader status unavailable", "error", err)
		return ReaderStatus{Connected: false}
	}
	return status
}

// CardPresent reports whether a card is currently on the reader. Used to
// surface the moment the hardware picks up a card during a blocking write.
func (c *Client) CardPresent(ctx context.Context) bool {
	var body struct {
		Present bool `json:"present"`
	}
	if err := c.getJSON(ctx, "/cards/status", &body); err != nil {
		return false
	}
	return body.Present
}

// ReconnectReader asks the agent to re-enumerate and reopen the device.
// User-triggered only: reconnecting during a physical card insertion can
// interrupt an in-progress write.
func (c *Client) ReconnectReader(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reader/reconnect", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn("Reader reconnect request failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.OK
}

// WriteCard programs and verifies a single card. The call blocks until the
// guest has placed a card and the agent finishes the write, or the agent's
// write timeout fires. A *WriteError return means the hardware reported a
// failure for this card; any other error is a transport-level problem.
func (c *Client) WriteCard(ctx context.Context, req WriteRequest) (*WriteResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal write request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cards/write", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build write request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Card writes wait on the guest; use the long timeout, not the probe one.
	writeClient := &http.Client{Timeout: WriteTimeout}
	resp, err := writeClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("card write request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read write response: %w", err)
	}

	var failure struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &failure); err == nil && failure.Error != "" {
		return nil, &WriteError{Message: failure.Error}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("card write failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var result WriteResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("parse write response: %w", err)
	}
	if result.CardUID == "" {
		return nil, fmt.Errorf("hardware agent returned no card UID")
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
