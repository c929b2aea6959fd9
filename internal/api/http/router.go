package http

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lodgeon/keybridge/internal/api/http/handler"
	"github.com/lodgeon/keybridge/internal/api/http/middleware"
	"github.com/lodgeon/keybridge/internal/issues"
	"github.com/lodgeon/keybridge/internal/registry"
)

type Services struct {
	DB       *pgxpool.Pool
	Issues   *issues.Store
	Registry *registry.Service
}

func SetupRoute(engine *gin.Engine, config Config, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(srvs.DB)
	engine.GET("/health", healthHandler.Check)

	issuesHandler := handler.NewIssuesHandler(srvs.Issues, srvs.Registry)
	agentsHandler := handler.NewAgentsHandler(srvs.Registry)
	agentAPIHandler := handler.NewAgentAPIHandler(srvs.Registry, srvs.Issues)
	adminHandler := handler.NewAdminHandler(srvs.Registry)

	// Reception-UI surface. Tokens come from the platform's identity
	// service; we only validate and scope by hotel.
	ui := engine.Group("/api/v1")
	ui.Use(middleware.JWTAuth(config.Auth.Secret))
	{
		ui.POST("/issues", issuesHandler.CreateIssue)
		ui.GET("/issues", issuesHandler.ListIssues)
		ui.POST("/issues/:id/retry", issuesHandler.RetryIssue)
		ui.PATCH("/issues/:id/status", issuesHandler.UpdateIssueStatus)
		ui.GET("/agents", agentsHandler.ListAgents)
		ui.GET("/program-log", issuesHandler.ListProgramLog)
	}

	// Desk-agent surface. Enrollment is open (the key is the credential);
	// everything else requires the agent token.
	engine.POST("/api/v1/agent/enroll", agentAPIHandler.Enroll)

	agent := engine.Group("/api/v1/agent")
	agent.Use(middleware.AgentAuth(srvs.Registry))
	{
		agent.POST("/heartbeat", agentAPIHandler.Heartbeat)
		agent.POST("/issues/claim", agentAPIHandler.ClaimIssue)
		agent.POST("/issues/:id/report", agentAPIHandler.ReportIssue)
		agent.POST("/program-log", agentAPIHandler.RecordProgramLog)
	}

	admin := engine.Group("/api/v1/admin")
	admin.Use(middleware.APIKeyAuth(config.AdminAPIKey))
	{
		admin.POST("/enrollment-keys", adminHandler.CreateEnrollmentKey)
		admin.GET("/enrollment-keys", adminHandler.ListEnrollmentKeys)
		admin.DELETE("/enrollment-keys/:id", adminHandler.RevokeEnrollmentKey)
	}
}
