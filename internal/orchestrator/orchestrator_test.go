package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodgeon/keybridge/internal/bridge"
	"github.com/lodgeon/keybridge/internal/cards"
)

type fakeWriter struct {
	// failures maps card types to error messages returned as write failures.
	failures map[cards.CardType]string
	// delay simulates the guest placing a card plus the write itself.
	delay time.Duration
	calls []cards.CardType
}

func (f *fakeWriter) WriteCard(ctx context.Context, req bridge.WriteRequest) (*bridge.WriteResult, error) {
	f.calls = append(f.calls, req.CardType)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if msg, ok := f.failures[req.CardType]; ok {
		return nil, &bridge.WriteError{Message: msg}
	}
	return &bridge.WriteResult{
		CardUID:   "uid-" + string(req.CardType),
		Timestamp: time.Now(),
	}, nil
}

func booking() cards.BookingData {
	return cards.BookingData{
		BookingID:  "4821",
		RoomNumber: "312",
		GuestID:    "guest-77",
		CheckIn:    time.Now(),
		CheckOut:   time.Now().Add(48 * time.Hour),
		FacilityID: "hotel-1",
	}
}

func alwaysReady(context.Context) bool { return true }
func neverReady(context.Context) bool  { return false }

func TestRunAllSuccess(t *testing.T) {
	writer := &fakeWriter{}
	o := New(writer, alwaysReady)

	result, err := o.Run(context.Background(), booking())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, cards.SequenceLength, result.CompletedCards)
	require.Len(t, result.Results, cards.SequenceLength)
	for i, ct := range cards.Sequence() {
		assert.Equal(t, ct, result.Results[i].CardType, "order must match the sequence")
		assert.Equal(t, cards.StatusSuccess, result.Results[i].Status)
		assert.Equal(t, "uid-"+string(ct), result.Results[i].CardUID)
		require.NotNil(t, result.Results[i].Timestamp)
	}
	assert.Equal(t, cards.Sequence(), writer.calls, "writes must happen in sequence order")
}

func TestRunSingleFailureDoesNotAbort(t *testing.T) {
	writer := &fakeWriter{
		failures: map[cards.CardType]string{
			cards.CardTypeElevator: "write timeout",
		},
	}
	o := New(writer, alwaysReady)

	result, err := o.Run(context.Background(), booking())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, cards.SequenceLength, result.CompletedCards,
		"every card must still reach a terminal state")
	assert.Equal(t, cards.OutcomePartialSuccess, result.Outcome())

	for _, cs := range result.Results {
		if cs.CardType == cards.CardTypeElevator {
			assert.Equal(t, cards.StatusError, cs.Status)
			assert.Equal(t, "write timeout", cs.Error)
		} else {
			assert.Equal(t, cards.StatusSuccess, cs.Status)
		}
	}
}

func TestRunTotalFailure(t *testing.T) {
	failures := make(map[cards.CardType]string)
	for _, ct := range cards.Sequence() {
		failures[ct] = "reader fault"
	}
	o := New(&fakeWriter{failures: failures}, alwaysReady)

	result, err := o.Run(context.Background(), booking())
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, cards.SequenceLength, result.CompletedCards)
	assert.Equal(t, cards.OutcomeTotalFailure, result.Outcome())
}

func TestRunRefusesWhenBridgeDown(t *testing.T) {
	writer := &fakeWriter{}
	o := New(writer, neverReady)

	_, err := o.Run(context.Background(), booking())
	assert.ErrorIs(t, err, ErrBridgeUnavailable)
	assert.Empty(t, writer.calls, "no write may be attempted when hardware is down")

	// The stream closes without any card ever reaching programming.
	for ev := range o.Events() {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestRunOnlyOnce(t *testing.T) {
	o := New(&fakeWriter{}, alwaysReady)

	_, err := o.Run(context.Background(), booking())
	require.NoError(t, err)

	_, err = o.Run(context.Background(), booking())
	assert.ErrorIs(t, err, ErrRunInProgress)
}

func TestRunCancellationLeavesRemainingPending(t *testing.T) {
	writer := &fakeWriter{delay: 50 * time.Millisecond}
	o := New(writer, alwaysReady)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// Cancel while the first card is mid-write.
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := o.Run(ctx, booking())
	require.NoError(t, err)

	// The in-flight write finishes on its own; nothing after it starts.
	assert.Equal(t, cards.StatusSuccess, result.Results[0].Status)
	for _, cs := range result.Results[1:] {
		assert.Equal(t, cards.StatusPending, cs.Status)
	}
	assert.Equal(t, 1, result.CompletedCards)
	assert.False(t, result.Success)
	assert.Len(t, writer.calls, 1)
}

func TestEventStream(t *testing.T) {
	writer := &fakeWriter{
		failures: map[cards.CardType]string{
			cards.CardTypeSafe: "card removed",
		},
	}
	o := New(writer, alwaysReady)

	result, err := o.Run(context.Background(), booking())
	require.NoError(t, err)
	assert.False(t, result.Success)

	var events []Event
	for ev := range o.Events() {
		events = append(events, ev)
	}

	// Two events per card here: waiting then terminal (the fake writer
	// returns too fast for a detect poll).
	require.Len(t, events, 2*cards.SequenceLength)

	seq := cards.Sequence()
	lastPercent := 0.0
	for i, ev := range events {
		cardIdx := i / 2
		assert.Equal(t, seq[cardIdx], ev.CardType)
		assert.Equal(t, cardIdx, ev.Index)
		assert.Equal(t, cards.SequenceLength, ev.Total)
		if i%2 == 0 {
			assert.Equal(t, cards.StatusWaiting, ev.Status)
		} else {
			assert.True(t, ev.Status.Terminal())
		}
		assert.GreaterOrEqual(t, ev.Percent, lastPercent, "progress never goes backward")
		lastPercent = ev.Percent
		require.NotNil(t, ev.State)
	}

	assert.InDelta(t, 100.0, events[len(events)-1].Percent, 0.001)
}
