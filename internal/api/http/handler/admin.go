package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lodgeon/keybridge/internal/api/http/dto"
	"github.com/lodgeon/keybridge/internal/registry"
)

// AdminHandler manages enrollment keys. Protected by the admin API key.
type AdminHandler struct {
	agents *registry.Service
}

func NewAdminHandler(agents *registry.Service) *AdminHandler {
	return &AdminHandler{agents: agents}
}

// CreateEnrollmentKey mints a key for onboarding new desks at a hotel.
// POST /api/v1/admin/enrollment-keys
func (h *AdminHandler) CreateEnrollmentKey(c *gin.Context) {
	var req dto.CreateEnrollmentKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ek, key, err := h.agents.CreateEnrollmentKey(c.Request.Context(),
		req.HotelID, req.MaxUses, req.ExpiresInHours, req.Notes)
	if err != nil {
		slog.Error("Failed to create enrollment key", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create enrollment key"})
		return
	}

	resp := toEnrollmentKeyResponse(*ek)
	resp.Key = key // plaintext, shown once
	c.JSON(http.StatusCreated, resp)
}

// ListEnrollmentKeys lists keys for a hotel.
// GET /api/v1/admin/enrollment-keys?hotel_id=
func (h *AdminHandler) ListEnrollmentKeys(c *gin.Context) {
	hotelID := c.Query("hotel_id")
	if hotelID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hotel_id is required"})
		return
	}

	keys, err := h.agents.ListEnrollmentKeys(c.Request.Context(), hotelID)
	if err != nil {
		slog.Error("Failed to list enrollment keys", "error", err, "hotel_id", hotelID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list enrollment keys"})
		return
	}

	responses := make([]dto.EnrollmentKeyResponse, len(keys))
	for i, ek := range keys {
		responses[i] = toEnrollmentKeyResponse(ek)
	}
	c.JSON(http.StatusOK, dto.ListEnrollmentKeysResponse{Keys: responses, Count: len(responses)})
}

// RevokeEnrollmentKey invalidates a key.
// DELETE /api/v1/admin/enrollment-keys/:id
func (h *AdminHandler) RevokeEnrollmentKey(c *gin.Context) {
	keyID := c.Param("id")

	if err := h.agents.RevokeEnrollmentKey(c.Request.Context(), keyID); err != nil {
		if errors.Is(err, registry.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "enrollment key not found"})
			return
		}
		slog.Error("Failed to revoke enrollment key", "error", err, "key_id", keyID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke enrollment key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "enrollment key revoked"})
}

func toEnrollmentKeyResponse(ek registry.EnrollmentKey) dto.EnrollmentKeyResponse {
	return dto.EnrollmentKeyResponse{
		ID:        ek.ID,
		HotelID:   ek.HotelID,
		MaxUses:   ek.MaxUses,
		UsedCount: ek.UsedCount,
		ExpiresAt: ek.ExpiresAt,
		CreatedAt: ek.CreatedAt,
		RevokedAt: ek.RevokedAt,
		Notes:     ek.Notes,
	}
}
