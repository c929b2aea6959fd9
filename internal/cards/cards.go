package cards

import (
	"fmt"
	"time"
)

// CardType identifies the role of a key card within one provisioning sequence.
type CardType string

const (
	CardTypeRoomAccess    CardType = "room_access"
	CardTypeCommonArea    CardType = "common_area"
	CardTypeElevator      CardType = "elevator"
	CardTypeSafe          CardType = "safe"
	CardTypeStaffOverride CardType = "staff_override"
)

// sequence is the fixed programming order. Later cards depend on earlier ones
// having gone through the programmer, so the order is never changed at runtime.
var sequence = [...]CardType{
	CardTypeRoomAccess,
	CardTypeCommonArea,
	CardTypeElevator,
	CardTypeSafe,
	CardTypeStaffOverride,
}

// Sequence returns a copy of the programming order.
func Sequence() []CardType {
	out := make([]CardType, len(sequence))
	copy(out, sequence[:])
	return out
}

// SequenceLength is the number of cards in one full provisioning run.
const SequenceLength = len(sequence)

func ValidCardType(t CardType) bool {
	for _, c := range sequence {
		if c == t {
			return true
		}
	}
	return false
}

// Status is the per-card state within a run.
type Status string

const (
	StatusPending     Status = "pending"
	StatusWaiting     Status = "waiting"
	StatusProgramming Status = "programming"
	StatusSuccess     Status = "success"
	StatusError       Status = "error"
)

// Terminal reports whether a card in this status is finished for the run.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// order encodes the forward-only progression of a card through a run.
var order = map[Status]int{
	StatusPending:     0,
	StatusWaiting:     1,
	StatusProgramming: 2,
	StatusSuccess:     3,
	StatusError:       3,
}

// CanTransition reports whether a card may move from one status to another.
// Terminal statuses never regress.
func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	return order[to] > order[from]
}

// BookingData is the immutable input to a provisioning run. The orchestrator
// only reads it.
type BookingData struct {
	BookingID  string    `json:"booking_id"`
	RoomNumber string    `json:"room_number"`
	GuestID    string    `json:"guest_id"`
	CheckIn    time.Time `json:"check_in"`
	CheckOut   time.Time `json:"check_out"`
	FacilityID string    `json:"facility_id"`
}

// CardState is the per-card record produced during a run. A fresh set is
// created at run start and discarded at run end.
type CardState struct {
	CardType  CardType   `json:"card_type"`
	Status    Status     `json:"status"`
	Error     string     `json:"error,omitempty"`
	CardUID   string     `json:"card_uid,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// SequenceResult summarizes one orchestration run.
type SequenceResult struct {
	Success        bool        `json:"success"`
	CompletedCards int         `json:"completed_cards"`
	Results        []CardState `json:"results"`
}

// Outcome classifies a run for the caller.
type Outcome string

const (
	OutcomeTotalSuccess   Outcome = "total_success"
	OutcomePartialSuccess Outcome = "partial_success"
	OutcomeTotalFailure   Outcome = "total_failure"
)

// Outcome distinguishes "all cards usable" from "retry these" from
// "no cards usable".
func (r SequenceResult) Outcome() Outcome {
	if r.Success {
		return OutcomeTotalSuccess
	}
	for _, cs := range r.Results {
		if cs.Status == StatusSuccess {
			return OutcomePartialSuccess
		}
	}
	return OutcomeTotalFailure
}

// Summarize builds a SequenceResult from a run's card states.
// Success requires every card to have programmed; CompletedCards counts
// cards that reached a terminal status, so an abandoned run still reports
// how many cards the guest left with.
func Summarize(results []CardState) SequenceResult {
	success := len(results) == SequenceLength
	completed := 0
	for _, cs := range results {
		if cs.Status.Terminal() {
			completed++
		}
		if cs.Status != StatusSuccess {
			success = false
		}
	}
	return SequenceResult{
		Success:        success,
		CompletedCards: completed,
		Results:        results,
	}
}

// Percent computes overall run progress for a progress bar. A card mid-write
// counts for half so the bar advances smoothly instead of in whole-card jumps.
func Percent(index int, terminal bool) float64 {
	credit := 0.5
	if terminal {
		credit = 1
	}
	return (float64(index) + credit) / float64(SequenceLength) * 100
}

// ParseCardType validates a wire-format card type.
func ParseCardType(s string) (CardType, error) {
	t := CardType(s)
	if !ValidCardType(t) {
		return "", fmt.Errorf("unknown card type: %q", s)
	}
	return t, nil
}
