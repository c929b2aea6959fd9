package registry

import (
	"time"
)

// AgentStatus is computed at read time from last_seen_at. A desk agent can
// die without signaling (workstation crash, USB unplug), so "offline" is a
// staleness judgment, not a stored flag.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentOffline AgentStatus = "offline"
)

// Agent is one reception-desk worker registered for a hotel. It is the
// routing target for that hotel's card issues.
type Agent struct {
	ID         string      `json:"id"`
	HotelID    string      `json:"hotel_id"`
	Name       string      `json:"name"`
	Status     AgentStatus `json:"status"`
	EnrolledAt time.Time   `json:"enrolled_at"`
	LastSeenAt time.Time   `json:"last_seen_at"`
}

// EnrollmentKey lets a new desk join a hotel. The plaintext is shown once
// at creation; only the hash is stored.
type EnrollmentKey struct {
	ID        string     `json:"id"`
	HotelID   string     `json:"hotel_id"`
	MaxUses   int        `json:"max_uses"`
	UsedCount int        `json:"used_count"`
	ExpiresAt time.Time  `json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	Notes     string     `json:"notes,omitempty"`
}

// EnrollResult carries the new identity back to the desk. Token is the
// bearer credential for the agent API, shown only once.
type EnrollResult struct {
	AgentID string `json:"agent_id"`
	HotelID string `json:"hotel_id"`
	Token   string `json:"token"`
}
