package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lodgeon/keybridge/internal/api/http/dto"
	"github.com/lodgeon/keybridge/internal/cards"
	"github.com/lodgeon/keybridge/internal/issues"
)

const requestTimeout = 10 * time.Second

// Client is the desk agent's view of the cloud API: enrollment, heartbeats,
// claiming issues and reporting results.
type Client struct {
	baseURL    string
	agentID    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, agentID, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		agentID: agentID,
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
	}
}

// Enroll exchanges an enrollment key for an agent identity and token. It is
// a package function because it runs before credentials exist.
func Enroll(ctx context.Context, serverURL, key, name string) (*dto.EnrollResponse, error) {
	body, err := json.Marshal(dto.EnrollRequest{Key: key, Name: name})
	if err != nil {
		return nil, fmt.Errorf("marshal enroll request: %w", err)
	}

	url := strings.TrimRight(serverURL, "/") + "/api/v1/agent/enroll"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: requestTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("enrollment failed (HTTP %d): %s", resp.StatusCode, string(respBody))
	}

	var enrollResp dto.EnrollResponse
	if err := json.Unmarshal(respBody, &enrollResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &enrollResp, nil
}

// Heartbeat reports this desk as alive.
func (c *Client) Heartbeat(ctx context.Context) error {
	return c.post(ctx, "/api/v1/agent/heartbeat", nil, nil)
}

// ClaimIssue asks for the oldest available issue at this hotel. Returns
// (nil, nil) when the queue is empty.
func (c *Client) ClaimIssue(ctx context.Context) (*issues.CardIssue, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/v1/agent/issues/claim", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("claim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("claim failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var issueResp dto.IssueResponse
	if err := json.NewDecoder(resp.Body).Decode(&issueResp); err != nil {
		return nil, fmt.Errorf("parse claim response: %w", err)
	}
	return issueFromResponse(issueResp), nil
}

// ReportIssue records the outcome of a claimed issue.
func (c *Client) ReportIssue(ctx context.Context, issueID string, status issues.Status, cardUID, errorMessage string) error {
	body := dto.ReportIssueRequest{
		Status:       string(status),
		CardUID:      cardUID,
		ErrorMessage: errorMessage,
	}
	return c.post(ctx, "/api/v1/agent/issues/"+issueID+"/report", body, nil)
}

// RecordProgramLog appends an audit entry for an attended-path card write.
func (c *Client) RecordProgramLog(ctx context.Context, entry issues.ProgramLogEntry) error {
	body := dto.ProgramLogEntryResponse{
		BookingID:    entry.BookingID,
		CardType:     string(entry.CardType),
		Status:       string(entry.Status),
		CardUID:      entry.CardUID,
		ErrorMessage: entry.ErrorMessage,
	}
	return c.post(ctx, "/api/v1/agent/program-log", body, nil)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, reader)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request %s failed (HTTP %d): %s", path, resp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-ID", c.agentID)
	req.Header.Set("X-Agent-Token", c.token)
	return req, nil
}

func issueFromResponse(r dto.IssueResponse) *issues.CardIssue {
	return &issues.CardIssue{
		ID:           r.ID,
		HotelID:      r.HotelID,
		BookingID:    r.BookingID,
		CardType:     cards.CardType(r.CardType),
		Status:       issues.Status(r.Status),
		Payload:      r.Payload,
		ErrorMessage: r.ErrorMessage,
		AgentID:      r.AgentID,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}
