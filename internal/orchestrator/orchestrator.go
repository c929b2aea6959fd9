package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lodgeon/keybridge/internal/bridge"
	"github.com/lodgeon/keybridge/internal/cards"
)

var (
	// ErrBridgeUnavailable means the hardware precondition failed: the local
	// agent is down or no reader is connected. The run never starts and no
	// card state is created.
	ErrBridgeUnavailable = errors.New("hardware agent unavailable or reader disconnected")

	// ErrRunInProgress means a sequence is already running on this desk.
	// The reader has one card slot; runs never overlap.
	ErrRunInProgress = errors.New("a card sequence is already in progress")
)

// CardWriter programs a single card. The call blocks from "insert a card"
// through write and verify. A *bridge.WriteError return is a per-card
// failure; any other error is a transport problem and fails the card too.
type CardWriter interface {
	WriteCard(ctx context.Context, req bridge.WriteRequest) (*bridge.WriteResult, error)
}

// CardDetector optionally reports whether a card is on the reader. When the
// writer implements it, the orchestrator uses it to surface the moment a
// blocking write switches from waiting for the guest to actually programming.
type CardDetector interface {
	CardPresent(ctx context.Context) bool
}

// ReadyFunc is the hardware precondition evaluated before a run starts.
type ReadyFunc func(ctx context.Context) bool

// Event is one entry in the append-only progress stream for a run.
type Event struct {
	CardType cards.CardType   `json:"card_type"`
	Status   cards.Status     `json:"status"`
	Index    int              `json:"index"`
	Total    int              `json:"total"`
	Percent  float64          `json:"percent"`
	State    *cards.CardState `json:"state,omitempty"`
}

const detectPollInterval = 500 * time.Millisecond

// eventBuffer holds every event a full run can emit, so a subscriber that
// falls behind (or never reads) cannot stall the hardware path.
const eventBuffer = 4 * cards.SequenceLength

// Orchestrator drives one provisioning sequence against a single desk's
// reader, strictly in sequence order, one card fully resolved before the
// next begins. One Orchestrator serves one run.
type Orchestrator struct {
	writer CardWriter
	ready  ReadyFunc
	events chan Event
	ran    bool

	// mu serializes state transitions: the detect poller and the write path
	// race on the same card when a write resolves just as a card is seen.
	mu sync.Mutex
}

func New(writer CardWriter, ready ReadyFunc) *Orchestrator {
	return &Orchestrator{
		writer: writer,
		ready:  ready,
		events: make(chan Event, eventBuffer),
	}
}

// Events returns the progress stream for this run. The channel is closed
// when the run finishes; it is buffered for a full run, so subscribing is
// optional.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Run executes the full card sequence for a booking and returns the terminal
// summary. A single card failure never aborts the run: the point is to
// maximize how many access cards the guest leaves with.
//
// Cancelling the context stops the run between cards; an in-flight write is
// allowed to complete or fail on its own, because aborting a physical write
// mid-stream can leave a card in an undefined state. Cards never reached
// stay pending and count as not completed.
func (o *Orchestrator) Run(ctx context.Context, booking cards.BookingData) (cards.SequenceResult, error) {
	if o.ran {
		return cards.SequenceResult{}, ErrRunInProgress
	}
	o.ran = true
	defer close(o.events)

	if o.ready != nil && !o.ready(ctx) {
		return cards.SequenceResult{}, ErrBridgeUnavailable
	}

	sequence := cards.Sequence()
	states := make([]cards.CardState, len(sequence))
	for i, ct := range sequence {
		states[i] = cards.CardState{CardType: ct, Status: cards.StatusPending}
	}

	slog.Info("Card sequence started",
		"booking_id", booking.BookingID,
		"room", booking.RoomNumber,
		"cards", len(sequence))

	for i := range states {
		if ctx.Err() != nil {
			slog.Warn("Card sequence abandoned",
				"booking_id", booking.BookingID,
				"completed", i)
			break
		}
		o.programCard(ctx, booking, i, &states[i])
	}

	result := cards.Summarize(states)
	slog.Info("Card sequence finished",
		"booking_id", booking.BookingID,
		"outcome", result.Outcome(),
		"completed", result.CompletedCards)
	return result, nil
}

func (o *Orchestrator) programCard(ctx context.Context, booking cards.BookingData, index int, state *cards.CardState) {
	o.transition(state, index, cards.StatusWaiting, nil)

	// The write itself is never cancelled; only the run is.
	writeCtx, stopDetect := context.WithCancel(context.WithoutCancel(ctx))
	defer stopDetect()

	detectDone := make(chan struct{})
	if detector, ok := o.writer.(CardDetector); ok {
		go func() {
			defer close(detectDone)
			o.watchForCard(writeCtx, detector, index, state)
		}()
	} else {
		close(detectDone)
	}

	result, err := o.writer.WriteCard(writeCtx, bridge.WriteRequest{
		CardType:   state.CardType,
		BookingID:  booking.BookingID,
		RoomNumber: booking.RoomNumber,
		GuestID:    booking.GuestID,
		CheckIn:    booking.CheckIn,
		CheckOut:   booking.CheckOut,
		FacilityID: booking.FacilityID,
	})
	stopDetect()
	<-detectDone

	if err != nil {
		o.transition(state, index, cards.StatusError, func(st *cards.CardState) {
			st.Error = err.Error()
		})
		slog.Warn("Card write failed",
			"booking_id", booking.BookingID,
			"card_type", state.CardType,
			"error", err)
		return
	}

	o.transition(state, index, cards.StatusSuccess, func(st *cards.CardState) {
		st.CardUID = result.CardUID
		ts := result.Timestamp
		st.Timestamp = &ts
	})
}

// watchForCard polls the reader while a write is blocked so the stream shows
// the waiting -> programming transition the moment hardware picks up a card.
func (o *Orchestrator) watchForCard(ctx context.Context, detector CardDetector, index int, state *cards.CardState) {
	ticker := time.NewTicker(detectPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if detector.CardPresent(ctx) {
				o.transition(state, index, cards.StatusProgramming, nil)
				return
			}
		}
	}
}

// transition advances a card's status and publishes the event. Terminal
// statuses never regress; a late detect poll racing a finished write is
// dropped here.
func (o *Orchestrator) transition(state *cards.CardState, index int, to cards.Status, mutate func(*cards.CardState)) {
	o.mu.Lock()
	if !cards.CanTransition(state.Status, to) {
		o.mu.Unlock()
		return
	}
	if mutate != nil {
		mutate(state)
	}
	state.Status = to
	snapshot := *state
	o.mu.Unlock()
	ev := Event{
		CardType: state.CardType,
		Status:   to,
		Index:    index,
		Total:    cards.SequenceLength,
		Percent:  cards.Percent(index, to.Terminal()),
		State:    &snapshot,
	}
	select {
	case o.events <- ev:
	default:
		// Buffer sized for a full run; only a misbehaving reuse can hit this.
		slog.Warn("Dropping progress event", "card_type", ev.CardType, "status", ev.Status)
	}
}
