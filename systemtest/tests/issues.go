package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgeon/keybridge/internal/api/http/dto"
	"github.com/lodgeon/keybridge/internal/cards"
	"github.com/lodgeon/keybridge/internal/issues"
)

func TestIssueLifecycle(t *testing.T, env *Env) {
	const hotelID = "hotel-lifecycle"
	uiToken := env.UIToken(t, hotelID)
	agentID, agentToken := enrollAgent(t, env, hotelID, "lifecycle-desk")

	// The desk has to have heartbeat at least once to count as online.
	rr := doAgent(env.Router, "POST", "/api/v1/agent/heartbeat", nil, agentID, agentToken)
	require.Equal(t, http.StatusOK, rr.Code)

	payload := json.RawMessage(`{"room_number":"412","guest_id":"guest-9","facility_id":"` + hotelID + `"}`)

	var issueID string

	t.Run("create", func(t *testing.T) {
		body := dto.CreateIssueRequest{BookingID: "7001", CardType: "room_access", Payload: payload}
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/issues", body, uiToken)
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		var resp dto.CreateIssueResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "pending", resp.Issue.Status)
		assert.Equal(t, hotelID, resp.Issue.HotelID)
		assert.True(t, resp.AgentsOnline, "the enrolled desk just heartbeat")
		issueID = resp.Issue.ID
	})

	t.Run("create rejects unknown card type", func(t *testing.T) {
		body := dto.CreateIssueRequest{BookingID: "7001", CardType: "minibar"}
		rr := doJSONWithAuth(env.Router, "POST", "/api/v1/issues", body, uiToken)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("create requires token", func(t *testing.T) {
		body := dto.CreateIssueRequest{BookingID: "7001", CardType: "room_access"}
		rr := doJSON(env.Router, "POST", "/api/v1/issues", body)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("claim", func(t *testing.T) {
		rr := doAgent(env.Router, "POST", "/api/v1/agent/issues/claim", nil, agentID, agentToken)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp dto.IssueResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, issueID, resp.ID)
		assert.Equal(t, "in_progress", resp.Status)
		assert.Equal(t, agentID, resp.AgentID)
		assert.JSONEq(t, string(payload), string(resp.Payload))
	})

	t.Run("claim empty queue", func(t *testing.T) {
		rr := doAgent(env.Router, "POST", "/api/v1/agent/issues/claim", nil, agentID, agentToken)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	t.Run("report done", func(t *testing.T) {
		body := dto.ReportIssueRequest{Status: "done", CardUID: "04:9F:AA:21"}
		rr := doAgent(env.Router, "POST", "/api/v1/agent/issues/"+issueID+"/report", body, agentID, agentToken)
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

		var resp dto.IssueResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "done", resp.Status)
	})

	t.Run("other agent cannot report", func(t *testing.T) {
		otherID, otherToken := enrollAgent(t, env, hotelID, "other-desk")
		body := dto.ReportIssueRequest{Status: "failed", ErrorMessage: "not mine"}
		rr := doAgent(env.Router, "POST", "/api/v1/agent/issues/"+issueID+"/report", body, otherID, otherToken)
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("list by status", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/issues?status=done", nil, uiToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListIssuesResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, issueID, resp.Issues[0].ID)
	})

	t.Run("program log recorded", func(t *testing.T) {
		rr := doJSONWithAuth(env.Router, "GET", "/api/v1/program-log?booking_id=7001", nil, uiToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ProgramLogResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.GreaterOrEqual(t, resp.Count, 1)
		assert.Equal(t, "04:9F:AA:21", resp.Entries[0].CardUID)
	})
}

// TestClaimRace drives the store directly: two desks race for a single
// pending issue and exactly one may win.
func TestClaimRace(t *testing.T, env *Env) {
	const hotelID = "hotel-race"
	ctx := context.Background()

	agentA, _ := enrollAgent(t, env, hotelID, "race-desk-a")
	agentB, _ := enrollAgent(t, env, hotelID, "race-desk-b")

	_, err := env.Issues.Create(ctx, issues.CreateParams{
		HotelID:   hotelID,
		BookingID: "8001",
		CardType:  cards.CardTypeRoomAccess,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	claimed := make([]*issues.CardIssue, 2)
	for i, agentID := range []string{agentA, agentB} {
		wg.Add(1)
		go func(i int, agentID string) {
			defer wg.Done()
			claimed[i], results[i] = env.Issues.Claim(ctx, hotelID, agentID)
		}(i, agentID)
	}
	wg.Wait()

	winners := 0
	for i := range results {
		if results[i] == nil {
			winners++
			assert.Equal(t, issues.StatusInProgress, claimed[i].Status)
		} else {
			assert.ErrorIs(t, results[i], issues.ErrNoneAvailable)
		}
	}
	assert.Equal(t, 1, winners, "exactly one desk may claim the issue")
}

func TestRetryPreservesPayload(t *testing.T, env *Env) {
	const hotelID = "hotel-retry"
	ctx := context.Background()

	agentID, _ := enrollAgent(t, env, hotelID, "retry-desk")

	payload := json.RawMessage(`{"room_number":"101","guest_id":"guest-1","facility_id":"hotel-retry"}`)
	created, err := env.Issues.Create(ctx, issues.CreateParams{
		HotelID:   hotelID,
		BookingID: "8101",
		CardType:  cards.CardTypeSafe,
		Payload:   payload,
	})
	require.NoError(t, err)

	_, err = env.Issues.Claim(ctx, hotelID, agentID)
	require.NoError(t, err)
	_, err = env.Issues.UpdateStatus(ctx, created.ID, issues.StatusFailed, "card removed")
	require.NoError(t, err)

	retried, err := env.Issues.Retry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, issues.StatusPending, retried.Status)
	assert.Empty(t, retried.ErrorMessage)
	assert.Empty(t, retried.AgentID)
	assert.JSONEq(t, string(payload), string(retried.Payload),
		"retry must reissue the original card binding untouched")

	_, err = env.Issues.Retry(ctx, created.ID)
	assert.ErrorIs(t, err, issues.ErrNotRetryable)
}

func TestStatusIsForwardOnly(t *testing.T, env *Env) {
	const hotelID = "hotel-forward"
	ctx := context.Background()

	agentID, _ := enrollAgent(t, env, hotelID, "forward-desk")

	created, err := env.Issues.Create(ctx, issues.CreateParams{
		HotelID:   hotelID,
		BookingID: "8201",
		CardType:  cards.CardTypeElevator,
	})
	require.NoError(t, err)

	_, err = env.Issues.Claim(ctx, hotelID, agentID)
	require.NoError(t, err)
	_, err = env.Issues.UpdateStatus(ctx, created.ID, issues.StatusDone, "")
	require.NoError(t, err)

	_, err = env.Issues.UpdateStatus(ctx, created.ID, issues.StatusInProgress, "")
	assert.ErrorIs(t, err, issues.ErrBadTransition)

	got, err := env.Issues.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, issues.StatusDone, got.Status, "a terminal issue never regresses")
}
