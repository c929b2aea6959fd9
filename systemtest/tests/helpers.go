package tests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/lodgeon/keybridge/internal/auth"
	"github.com/lodgeon/keybridge/internal/issues"
	"github.com/lodgeon/keybridge/internal/registry"
)

// Env bundles the wired application under test. The router serves the real
// HTTP surface; the store and registry give tests direct access for
// concurrency scenarios the HTTP layer serializes away.
type Env struct {
	Router      *gin.Engine
	Pool        *pgxpool.Pool
	Issues      *issues.Store
	Registry    *registry.Service
	JWTSecret   string
	AdminAPIKey string
}

// UIToken mints a reception-UI token scoped to a hotel.
func (e *Env) UIToken(t *testing.T, hotelID string) string {
	t.Helper()
	token, err := auth.GenerateToken(
		auth.Config{Secret: e.JWTSecret, ExpiryHours: 1},
		"user-"+hotelID, hotelID, "reception")
	require.NoError(t, err)
	return token
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doJSONWithAuth(router *gin.Engine, method, path string, body any, token string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doAdmin(router *gin.Engine, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func doAgent(router *gin.Engine, method, path string, body any, agentID, token string) *httptest.ResponseRecorder {
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Agent-ID", agentID)
	req.Header.Set("X-Agent-Token", token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// enrollAgent provisions an enrollment key through the admin surface and
// enrolls an agent with it, returning live credentials.
func enrollAgent(t *testing.T, env *Env, hotelID, name string) (agentID, token string) {
	t.Helper()

	keyReq := map[string]any{
		"hotel_id":         hotelID,
		"max_uses":         1,
		"expires_in_hours": 1,
	}
	rr := doAdmin(env.Router, "POST", "/api/v1/admin/enrollment-keys", keyReq, env.AdminAPIKey)
	require.Equal(t, 201, rr.Code, rr.Body.String())

	var keyResp struct {
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &keyResp))
	require.NotEmpty(t, keyResp.Key)

	rr = doJSON(env.Router, "POST", "/api/v1/agent/enroll", map[string]string{
		"key":  keyResp.Key,
		"name": name,
	})
	require.Equal(t, 200, rr.Code, rr.Body.String())

	var enrollResp struct {
		AgentID string `json:"agent_id"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &enrollResp))
	return enrollResp.AgentID, enrollResp.Token
}
