package dto

import "time"

type AgentResponse struct {
	ID         string    `json:"id"`
	HotelID    string    `json:"hotel_id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	EnrolledAt time.Time `json:"enrolled_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

type ListAgentsResponse struct {
	Agents []AgentResponse `json:"agents"`
	Count  int             `json:"count"`
}

type EnrollRequest struct {
	Key  string `json:"key" binding:"required"`
	Name string `json:"name"`
}

type EnrollResponse struct {
	AgentID string `json:"agent_id"`
	HotelID string `json:"hotel_id"`
	Token   string `json:"token"` // Only returned on enrollment
}

type HeartbeatResponse struct {
	AcknowledgedAt time.Time `json:"acknowledged_at"`
}

type ReportIssueRequest struct {
	Status       string `json:"status" binding:"required"`
	CardUID      string `json:"card_uid"`
	ErrorMessage string `json:"error_message"`
}

type CreateEnrollmentKeyRequest struct {
	HotelID        string `json:"hotel_id" binding:"required"`
	MaxUses        int    `json:"max_uses" binding:"required,min=1"`
	ExpiresInHours int    `json:"expires_in_hours" binding:"required,min=1"`
	Notes          string `json:"notes"`
}

type EnrollmentKeyResponse struct {
	ID        string     `json:"id"`
	Key       string     `json:"key,omitempty"` // Only returned on creation
	HotelID   string     `json:"hotel_id"`
	MaxUses   int        `json:"max_uses"`
	UsedCount int        `json:"used_count"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

type ListEnrollmentKeysResponse struct {
	Keys  []EnrollmentKeyResponse `json:"keys"`
	Count int                     `json:"count"`
}
