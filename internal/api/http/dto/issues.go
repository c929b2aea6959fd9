package dto

import (
	"encoding/json"
	"time"
)

type CreateIssueRequest struct {
	BookingID string          `json:"booking_id" binding:"required"`
	CardType  string          `json:"card_type" binding:"required"`
	Payload   json.RawMessage `json:"payload"`
}

type IssueResponse struct {
	ID           string          `json:"id"`
	HotelID      string          `json:"hotel_id"`
	BookingID    string          `json:"booking_id"`
	CardType     string          `json:"card_type"`
	Status       string          `json:"status"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type CreateIssueResponse struct {
	Issue IssueResponse `json:"issue"`
	// AgentsOnline warns the desk when nothing can pick the issue up, so
	// staff know to use the attended path instead of waiting.
	AgentsOnline bool `json:"agents_online"`
}

type ListIssuesResponse struct {
	Issues []IssueResponse `json:"issues"`
	Count  int             `json:"count"`
}

type UpdateIssueStatusRequest struct {
	Status       string `json:"status" binding:"required"`
	ErrorMessage string `json:"error_message"`
}

type ProgramLogEntryResponse struct {
	ID           string    `json:"id"`
	BookingID    string    `json:"booking_id"`
	CardType     string    `json:"card_type"`
	Status       string    `json:"status"`
	CardUID      string    `json:"card_uid,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	RecordedAt   time.Time `json:"recorded_at"`
}

type ProgramLogResponse struct {
	Entries []ProgramLogEntryResponse `json:"entries"`
	Count   int                       `json:"count"`
}
