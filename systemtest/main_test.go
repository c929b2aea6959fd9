package systemtest

import (
	"context"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	api "github.com/lodgeon/keybridge/internal/api/http"
	"github.com/lodgeon/keybridge/internal/auth"
	"github.com/lodgeon/keybridge/internal/db"
	"github.com/lodgeon/keybridge/internal/issues"
	"github.com/lodgeon/keybridge/internal/registry"
	"github.com/lodgeon/keybridge/systemtest/postgres"
	"github.com/lodgeon/keybridge/systemtest/tests"
)

const (
	testJWTSecret   = "systemtest-secret"
	testAdminAPIKey = "systemtest-admin-key"
	testSchema      = "keybridge"
)

func TestSystemIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed system test in short mode")
	}

	ctx := context.Background()

	container, err := postgres.StartPostgres(ctx, "keybridge", "keybridge", "keybridge_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, postgres.TerminatePostgres(context.Background(), container))
	})

	dbURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, db.RunMigrations(dbURL, testSchema))

	pool, err := db.InitDB(ctx, dbURL, testSchema)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	issueStore := issues.NewStore(pool)
	agentRegistry := registry.NewService(pool, registry.DefaultLivenessWindow)

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	api.SetupRoute(engine, api.Config{
		AdminAPIKey: testAdminAPIKey,
		Auth:        auth.Config{Secret: testJWTSecret, ExpiryHours: 1},
	}, &api.Services{
		DB:       pool,
		Issues:   issueStore,
		Registry: agentRegistry,
	})

	env := &tests.Env{
		Router:      engine,
		Pool:        pool,
		Issues:      issueStore,
		Registry:    agentRegistry,
		JWTSecret:   testJWTSecret,
		AdminAPIKey: testAdminAPIKey,
	}

	t.Run("HealthCheck", func(t *testing.T) { tests.TestHealthCheck(t, env) })
	t.Run("Enrollment", func(t *testing.T) { tests.TestEnrollment(t, env) })
	t.Run("IssueLifecycle", func(t *testing.T) { tests.TestIssueLifecycle(t, env) })
	t.Run("ClaimRace", func(t *testing.T) { tests.TestClaimRace(t, env) })
	t.Run("RetryPreservesPayload", func(t *testing.T) { tests.TestRetryPreservesPayload(t, env) })
	t.Run("StatusIsForwardOnly", func(t *testing.T) { tests.TestStatusIsForwardOnly(t, env) })
	t.Run("AgentLiveness", func(t *testing.T) {
		// A dedicated registry with a tight window so staleness is observable.
		short := registry.NewService(pool, 300*time.Millisecond)
		tests.TestAgentLiveness(t, env, short)
	})
}
