package cards

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceOrder(t *testing.T) {
	seq := Sequence()
	require.Len(t, seq, SequenceLength)
	assert.Equal(t, []CardType{
		CardTypeRoomAccess,
		CardTypeCommonArea,
		CardTypeElevator,
		CardTypeSafe,
		CardTypeStaffOverride,
	}, seq)

	// Mutating the copy must not affect the canonical order.
	seq[0] = CardTypeSafe
	assert.Equal(t, CardTypeRoomAccess, Sequence()[0])
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusWaiting))
	assert.True(t, CanTransition(StatusWaiting, StatusProgramming))
	assert.True(t, CanTransition(StatusProgramming, StatusSuccess))
	assert.True(t, CanTransition(StatusProgramming, StatusError))
	assert.True(t, CanTransition(StatusPending, StatusError))
}

func TestTerminalStatusNeverRegresses(t *testing.T) {
	for _, terminal := range []Status{StatusSuccess, StatusError} {
		for _, to := range []Status{StatusPending, StatusWaiting, StatusProgramming, StatusSuccess, StatusError} {
			assert.False(t, CanTransition(terminal, to),
				"%s -> %s should be rejected", terminal, to)
		}
	}
}

func TestNoBackwardTransitions(t *testing.T) {
	assert.False(t, CanTransition(StatusProgramming, StatusWaiting))
	assert.False(t, CanTransition(StatusWaiting, StatusPending))
	assert.False(t, CanTransition(StatusWaiting, StatusWaiting))
}

func TestSummarizeAllSuccess(t *testing.T) {
	var states []CardState
	for _, ct := range Sequence() {
		states = append(states, CardState{CardType: ct, Status: StatusSuccess})
	}

	result := Summarize(states)
	assert.True(t, result.Success)
	assert.Equal(t, SequenceLength, result.CompletedCards)
	assert.Equal(t, OutcomeTotalSuccess, result.Outcome())
}

func TestSummarizePartialSuccess(t *testing.T) {
	states := []CardState{
		{CardType: CardTypeRoomAccess, Status: StatusSuccess},
		{CardType: CardTypeCommonArea, Status: StatusSuccess},
		{CardType: CardTypeElevator, Status: StatusError, Error: "write timeout"},
		{CardType: CardTypeSafe, Status: StatusSuccess},
		{CardType: CardTypeStaffOverride, Status: StatusSuccess},
	}

	result := Summarize(states)
	assert.False(t, result.Success)
	assert.Equal(t, 5, result.CompletedCards)
	assert.Equal(t, OutcomePartialSuccess, result.Outcome())
}

func TestSummarizeAbandonedRun(t *testing.T) {
	// Two successes, one error, two never reached.
	states := []CardState{
		{CardType: CardTypeRoomAccess, Status: StatusSuccess},
		{CardType: CardTypeCommonArea, Status: StatusSuccess},
		{CardType: CardTypeElevator, Status: StatusError},
		{CardType: CardTypeSafe, Status: StatusPending},
		{CardType: CardTypeStaffOverride, Status: StatusPending},
	}

	result := Summarize(states)
	assert.False(t, result.Success)
	assert.Equal(t, 3, result.CompletedCards)
	assert.Equal(t, OutcomePartialSuccess, result.Outcome())
}

func TestSummarizeTotalFailure(t *testing.T) {
	var states []CardState
	for _, ct := range Sequence() {
		states = append(states, CardState{CardType: ct, Status: StatusError, Error: "reader fault"})
	}

	result := Summarize(states)
	assert.False(t, result.Success)
	assert.Equal(t, SequenceLength, result.CompletedCards)
	assert.Equal(t, OutcomeTotalFailure, result.Outcome())
}

func TestPercent(t *testing.T) {
	assert.InDelta(t, 10.0, Percent(0, false), 0.001)
	assert.InDelta(t, 20.0, Percent(0, true), 0.001)
	assert.InDelta(t, 90.0, Percent(4, false), 0.001)
	assert.InDelta(t, 100.0, Percent(4, true), 0.001)
}

func TestParseCardType(t *testing.T) {
	ct, err := ParseCardType("elevator")
	require.NoError(t, err)
	assert.Equal(t, CardTypeElevator, ct)

	_, err = ParseCardType("pool")
	assert.Error(t, err)
}
