package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lodgeon/keybridge/internal/api/http/dto"
	"github.com/lodgeon/keybridge/internal/cards"
	"github.com/lodgeon/keybridge/internal/issues"
	"github.com/lodgeon/keybridge/internal/registry"
)

// AgentAPIHandler serves the desk-agent side of the queue: enrollment,
// heartbeats, claiming work and reporting results.
type AgentAPIHandler struct {
	agents *registry.Service
	store  *issues.Store
}

func NewAgentAPIHandler(agents *registry.Service, store *issues.Store) *AgentAPIHandler {
	return &AgentAPIHandler{
		agents: agents,
		store:  store,
	}
}

// Enroll exchanges an enrollment key for an agent identity and token.
// POST /api/v1/agent/enroll (unauthenticated; the key is the credential)
func (h *AgentAPIHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.agents.Enroll(c.Request.Context(), req.Key, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrKeyNotFound),
			errors.Is(err, registry.ErrKeyExpired),
			errors.Is(err, registry.ErrKeyExhausted):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			slog.Error("Enrollment failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enrollment failed"})
		}
		return
	}

	c.JSON(http.StatusOK, dto.EnrollResponse{
		AgentID: result.AgentID,
		HotelID: result.HotelID,
		Token:   result.Token,
	})
}

// Heartbeat records agent liveness.
// POST /api/v1/agent/heartbeat
func (h *AgentAPIHandler) Heartbeat(c *gin.Context) {
	agentID := c.GetString("agent_id")
	now := time.Now()

	if err := h.agents.Heartbeat(c.Request.Context(), agentID, now); err != nil {
		slog.Error("Heartbeat failed", "error", err, "agent_id", agentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "heartbeat failed"})
		return
	}
	c.JSON(http.StatusOK, dto.HeartbeatResponse{AcknowledgedAt: now})
}

// ClaimIssue atomically hands the oldest available issue for the agent's
// hotel to this agent. 204 means nothing to do.
// POST /api/v1/agent/issues/claim
func (h *AgentAPIHandler) ClaimIssue(c *gin.Context) {
	agentID := c.GetString("agent_id")
	hotelID := c.GetString("hotel_id")

	issue, err := h.store.Claim(c.Request.Context(), hotelID, agentID)
	if err != nil {
		if errors.Is(err, issues.ErrNoneAvailable) {
			c.Status(http.StatusNoContent)
			return
		}
		slog.Error("Claim failed", "error", err, "agent_id", agentID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "claim failed"})
		return
	}
	c.JSON(http.StatusOK, toIssueResponse(*issue))
}

// ReportIssue records the outcome of a claimed issue and appends the audit
// log entry for the write.
// POST /api/v1/agent/issues/:id/report
func (h *AgentAPIHandler) ReportIssue(c *gin.Context) {
	agentID := c.GetString("agent_id")
	issueID := c.Param("id")

	var req dto.ReportIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := issues.Status(req.Status)
	if status != issues.StatusDone && status != issues.StatusFailed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "report status must be done or failed"})
		return
	}

	existing, err := h.store.GetByID(c.Request.Context(), issueID)
	if err != nil {
		respondIssueError(c, err)
		return
	}
	if existing.AgentID != agentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "issue is claimed by another agent"})
		return
	}

	issue, err := h.store.UpdateStatus(c.Request.Context(), issueID, status, req.ErrorMessage)
	if err != nil {
		respondIssueError(c, err)
		return
	}

	cardStatus := cards.StatusSuccess
	if status == issues.StatusFailed {
		cardStatus = cards.StatusError
	}
	logEntry := issues.ProgramLogEntry{
		HotelID:      issue.HotelID,
		BookingID:    issue.BookingID,
		CardType:     issue.CardType,
		Status:       cardStatus,
		CardUID:      req.CardUID,
		ErrorMessage: req.ErrorMessage,
	}
	if err := h.store.RecordProgramLog(c.Request.Context(), logEntry); err != nil {
		// The status update landed; a missing audit row is not worth failing
		// the report over.
		slog.Error("Failed to record program log", "error", err, "issue_id", issueID)
	}

	c.JSON(http.StatusOK, toIssueResponse(*issue))
}

// RecordProgramLog lets a desk agent append audit rows from the attended
// path, where no CardIssue exists.
// POST /api/v1/agent/program-log
func (h *AgentAPIHandler) RecordProgramLog(c *gin.Context) {
	hotelID := c.GetString("hotel_id")

	var req dto.ProgramLogEntryResponse
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cardType, err := cards.ParseCardType(req.CardType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry := issues.ProgramLogEntry{
		HotelID:      hotelID,
		BookingID:    req.BookingID,
		CardType:     cardType,
		Status:       cards.Status(req.Status),
		CardUID:      req.CardUID,
		ErrorMessage: req.ErrorMessage,
	}
	if err := h.store.RecordProgramLog(c.Request.Context(), entry); err != nil {
		slog.Error("Failed to record program log", "error", err, "hotel_id", hotelID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record program log"})
		return
	}
	c.Status(http.StatusCreated)
}
