package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lodgeon/keybridge/internal/api/http/dto"
	"github.com/lodgeon/keybridge/internal/registry"
)

type AgentsHandler struct {
	agents *registry.Service
}

func NewAgentsHandler(agents *registry.Service) *AgentsHandler {
	return &AgentsHandler{agents: agents}
}

// ListAgents returns all desk agents for the caller's hotel with their
// computed online/offline status.
// GET /api/v1/agents
func (h *AgentsHandler) ListAgents(c *gin.Context) {
	hotelID := c.GetString("hotel_id")
	if hotelID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "hotel_id not found in context"})
		return
	}

	agentList, err := h.agents.ListByHotel(c.Request.Context(), hotelID)
	if err != nil {
		slog.Error("Failed to list agents", "error", err, "hotel_id", hotelID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list agents"})
		return
	}

	responses := make([]dto.AgentResponse, len(agentList))
	for i, a := range agentList {
		responses[i] = toAgentResponse(a)
	}
	c.JSON(http.StatusOK, dto.ListAgentsResponse{Agents: responses, Count: len(responses)})
}

func toAgentResponse(a registry.Agent) dto.AgentResponse {
	return dto.AgentResponse{
		ID:         a.ID,
		HotelID:    a.HotelID,
		Name:       a.Name,
		Status:     string(a.Status),
		EnrolledAt: a.EnrolledAt,
		LastSeenAt: a.LastSeenAt,
	}
}
