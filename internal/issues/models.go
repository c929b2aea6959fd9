package issues

import (
	"encoding/json"
	"time"

	"github.com/lodgeon/keybridge/internal/cards"
)

// Status is the lifecycle of a durable card-programming request.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// transitions lists the allowed forward moves. The only backward move is
// failed -> pending, the operator-initiated retry, handled separately in
// Retry so it can also clear the error message.
var transitions = map[Status][]Status{
	StatusPending:    {StatusQueued, StatusInProgress, StatusFailed},
	StatusQueued:     {StatusInProgress, StatusFailed},
	StatusInProgress: {StatusDone, StatusFailed},
}

// allowedFrom inverts the transition table: which statuses may move to the
// given target.
func allowedFrom(to Status) []string {
	var from []string
	for src, dsts := range transitions {
		for _, dst := range dsts {
			if dst == to {
				from = append(from, string(src))
			}
		}
	}
	return from
}

func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusQueued, StatusInProgress, StatusDone, StatusFailed:
		return true
	}
	return false
}

// CardIssue is the durable unit of provisioning work. Unlike the in-memory
// run state it survives restarts; an agent claims it, executes the write
// against its local reader, and reports back.
type CardIssue struct {
	ID           string          `json:"id"`
	HotelID      string          `json:"hotel_id"`
	BookingID    string          `json:"booking_id"`
	CardType     cards.CardType  `json:"card_type"`
	Status       Status          `json:"status"`
	Payload      json.RawMessage `json:"payload"`
	ErrorMessage string          `json:"error_message,omitempty"`
	AgentID      string          `json:"agent_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// ProgramLogEntry is one append-only audit row recorded after a card write,
// whether it came from the attended path or a claimed issue.
type ProgramLogEntry struct {
	ID           string         `json:"id"`
	HotelID      string         `json:"hotel_id"`
	BookingID    string         `json:"booking_id"`
	CardType     cards.CardType `json:"card_type"`
	Status       cards.Status   `json:"status"`
	CardUID      string         `json:"card_uid,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	RecordedAt   time.Time      `json:"recorded_at"`
}
