package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lodgeon/keybridge/internal/api/http/dto"
	"github.com/lodgeon/keybridge/internal/cards"
	"github.com/lodgeon/keybridge/internal/issues"
	"github.com/lodgeon/keybridge/internal/registry"
)

type IssuesHandler struct {
	store  *issues.Store
	agents *registry.Service
}

func NewIssuesHandler(store *issues.Store, agents *registry.Service) *IssuesHandler {
	return &IssuesHandler{
		store:  store,
		agents: agents,
	}
}

// CreateIssue enqueues a card-programming request for later execution by a
// desk agent.
// POST /api/v1/issues
func (h *IssuesHandler) CreateIssue(c *gin.Context) {
	hotelID := c.GetString("hotel_id")
	if hotelID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "hotel_id not found in context"})
		return
	}

	var req dto.CreateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cardType, err := cards.ParseCardType(req.CardType)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	issue, err := h.store.Create(c.Request.Context(), issues.CreateParams{
		HotelID:   hotelID,
		BookingID: req.BookingID,
		CardType:  cardType,
		Payload:   req.Payload,
	})
	if err != nil {
		slog.Error("Failed to create card issue", "error", err, "hotel_id", hotelID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create card issue"})
		return
	}

	online, err := h.agents.AnyOnline(c.Request.Context(), hotelID)
	if err != nil {
		slog.Warn("Failed to check agent liveness", "error", err, "hotel_id", hotelID)
	}

	c.JSON(http.StatusCreated, dto.CreateIssueResponse{
		Issue:        toIssueResponse(*issue),
		AgentsOnline: online,
	})
}

// ListIssues returns the hotel's queue, optionally filtered by status or
// booking.
// GET /api/v1/issues?status=&booking_id=&limit=
func (h *IssuesHandler) ListIssues(c *gin.Context) {
	hotelID := c.GetString("hotel_id")
	if hotelID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "hotel_id not found in context"})
		return
	}

	filter := issues.Filter{BookingID: c.Query("booking_id")}
	if status := c.Query("status"); status != "" {
		st := issues.Status(status)
		if !issues.ValidStatus(st) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		filter.Statuses = []issues.Status{st}
	}
	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}

	list, err := h.store.List(c.Request.Context(), hotelID, filter)
	if err != nil {
		slog.Error("Failed to list card issues", "error", err, "hotel_id", hotelID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list card issues"})
		return
	}

	responses := make([]dto.IssueResponse, len(list))
	for i, issue := range list {
		responses[i] = toIssueResponse(issue)
	}
	c.JSON(http.StatusOK, dto.ListIssuesResponse{Issues: responses, Count: len(responses)})
}

// RetryIssue resets a failed issue to pending, preserving its payload.
// POST /api/v1/issues/:id/retry
func (h *IssuesHandler) RetryIssue(c *gin.Context) {
	issueID := c.Param("id")

	existing, err := h.store.GetByID(c.Request.Context(), issueID)
	if err != nil {
		respondIssueError(c, err)
		return
	}
	if existing.HotelID != c.GetString("hotel_id") {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	issue, err := h.store.Retry(c.Request.Context(), issueID)
	if err != nil {
		respondIssueError(c, err)
		return
	}
	c.JSON(http.StatusOK, toIssueResponse(*issue))
}

// UpdateIssueStatus moves an issue forward in its lifecycle.
// PATCH /api/v1/issues/:id/status
func (h *IssuesHandler) UpdateIssueStatus(c *gin.Context) {
	issueID := c.Param("id")

	var req dto.UpdateIssueStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	existing, err := h.store.GetByID(c.Request.Context(), issueID)
	if err != nil {
		respondIssueError(c, err)
		return
	}
	if existing.HotelID != c.GetString("hotel_id") {
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
		return
	}

	issue, err := h.store.UpdateStatus(c.Request.Context(), issueID, issues.Status(req.Status), req.ErrorMessage)
	if err != nil {
		respondIssueError(c, err)
		return
	}
	c.JSON(http.StatusOK, toIssueResponse(*issue))
}

// ListProgramLog returns the audit trail of card writes for the hotel.
// GET /api/v1/program-log?booking_id=&limit=
func (h *IssuesHandler) ListProgramLog(c *gin.Context) {
	hotelID := c.GetString("hotel_id")
	if hotelID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "hotel_id not found in context"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	entries, err := h.store.ListProgramLog(c.Request.Context(), hotelID, c.Query("booking_id"), limit)
	if err != nil {
		slog.Error("Failed to list program log", "error", err, "hotel_id", hotelID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list program log"})
		return
	}

	responses := make([]dto.ProgramLogEntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = dto.ProgramLogEntryResponse{
			ID:           e.ID,
			BookingID:    e.BookingID,
			CardType:     string(e.CardType),
			Status:       string(e.Status),
			CardUID:      e.CardUID,
			ErrorMessage: e.ErrorMessage,
			RecordedAt:   e.RecordedAt,
		}
	}
	c.JSON(http.StatusOK, dto.ProgramLogResponse{Entries: responses, Count: len(responses)})
}

func respondIssueError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, issues.ErrIssueNotFound), errors.Is(err, issues.ErrInvalidIssueID):
		c.JSON(http.StatusNotFound, gin.H{"error": "card issue not found"})
	case errors.Is(err, issues.ErrNotRetryable):
		c.JSON(http.StatusConflict, gin.H{"error": "only failed card issues can be retried"})
	case errors.Is(err, issues.ErrBadTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "card issue status cannot move backward"})
	default:
		slog.Error("Card issue operation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "card issue operation failed"})
	}
}

func toIssueResponse(issue issues.CardIssue) dto.IssueResponse {
	return dto.IssueResponse{
		ID:           issue.ID,
		HotelID:      issue.HotelID,
		BookingID:    issue.BookingID,
		CardType:     string(issue.CardType),
		Status:       string(issue.Status),
		Payload:      issue.Payload,
		ErrorMessage: issue.ErrorMessage,
		AgentID:      issue.AgentID,
		CreatedAt:    issue.CreatedAt,
		UpdatedAt:    issue.UpdatedAt,
	}
}
