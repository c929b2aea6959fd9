package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgeon/keybridge/internal/api/http/dto"
	"github.com/lodgeon/keybridge/internal/registry"
)

func TestHealthCheck(t *testing.T, env *Env) {
	rr := doJSON(env.Router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestEnrollment(t *testing.T, env *Env) {
	const hotelID = "hotel-enroll"

	t.Run("enroll and heartbeat", func(t *testing.T) {
		agentID, token := enrollAgent(t, env, hotelID, "front-desk-1")

		rr := doAgent(env.Router, "POST", "/api/v1/agent/heartbeat", nil, agentID, token)
		assert.Equal(t, http.StatusOK, rr.Code)

		uiToken := env.UIToken(t, hotelID)
		rr = doJSONWithAuth(env.Router, "GET", "/api/v1/agents", nil, uiToken)
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ListAgentsResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Equal(t, 1, resp.Count)
		assert.Equal(t, agentID, resp.Agents[0].ID)
		assert.Equal(t, "front-desk-1", resp.Agents[0].Name)
		assert.Equal(t, "online", resp.Agents[0].Status)
	})

	t.Run("exhausted key rejected", func(t *testing.T) {
		keyReq := dto.CreateEnrollmentKeyRequest{HotelID: hotelID, MaxUses: 1, ExpiresInHours: 1}
		rr := doAdmin(env.Router, "POST", "/api/v1/admin/enrollment-keys", keyReq, env.AdminAPIKey)
		require.Equal(t, http.StatusCreated, rr.Code)

		var keyResp dto.EnrollmentKeyResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &keyResp))

		rr = doJSON(env.Router, "POST", "/api/v1/agent/enroll", dto.EnrollRequest{Key: keyResp.Key, Name: "desk-a"})
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSON(env.Router, "POST", "/api/v1/agent/enroll", dto.EnrollRequest{Key: keyResp.Key, Name: "desk-b"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("revoked key rejected", func(t *testing.T) {
		keyReq := dto.CreateEnrollmentKeyRequest{HotelID: hotelID, MaxUses: 5, ExpiresInHours: 1}
		rr := doAdmin(env.Router, "POST", "/api/v1/admin/enrollment-keys", keyReq, env.AdminAPIKey)
		require.Equal(t, http.StatusCreated, rr.Code)

		var keyResp dto.EnrollmentKeyResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &keyResp))

		rr = doAdmin(env.Router, "DELETE", "/api/v1/admin/enrollment-keys/"+keyResp.ID, nil, env.AdminAPIKey)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSON(env.Router, "POST", "/api/v1/agent/enroll", dto.EnrollRequest{Key: keyResp.Key, Name: "desk-c"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("garbage key rejected", func(t *testing.T) {
		rr := doJSON(env.Router, "POST", "/api/v1/agent/enroll", dto.EnrollRequest{Key: "ek_not-a-real-key", Name: "desk-d"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong agent token rejected", func(t *testing.T) {
		agentID, _ := enrollAgent(t, env, hotelID, "front-desk-2")
		rr := doAgent(env.Router, "POST", "/api/v1/agent/heartbeat", nil, agentID, "at_wrong")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("admin surface needs key", func(t *testing.T) {
		rr := doAdmin(env.Router, "GET", "/api/v1/admin/enrollment-keys?hotel_id="+hotelID, nil, "wrong-key")
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

// TestAgentLiveness exercises the read-time staleness rule: there is no
// stored offline flag, only last_seen_at measured against the window.
func TestAgentLiveness(t *testing.T, env *Env, short *registry.Service) {
	ctx := context.Background()
	agentID, _ := enrollAgent(t, env, "hotel-liveness", "flaky-desk")

	require.NoError(t, short.Heartbeat(ctx, agentID, time.Now()))

	agent, err := short.GetByID(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, registry.AgentOnline, agent.Status)

	time.Sleep(400 * time.Millisecond)

	agent, err = short.GetByID(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, registry.AgentOffline, agent.Status,
		"silence past the window must read as offline")

	online, err := short.AnyOnline(ctx, "hotel-liveness")
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, short.Heartbeat(ctx, agentID, time.Now()))

	agent, err = short.GetByID(ctx, agentID)
	require.NoError(t, err)
	assert.Equal(t, registry.AgentOnline, agent.Status, "a heartbeat revives the agent")
}
