package issues

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidStatus(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusQueued, StatusInProgress, StatusDone, StatusFailed} {
		assert.True(t, ValidStatus(s))
	}
	assert.False(t, ValidStatus("cancelled"))
}

func TestAllowedFrom(t *testing.T) {
	assert.ElementsMatch(t, []string{"in_progress"}, allowedFrom(StatusDone))
	assert.ElementsMatch(t, []string{"pending", "queued", "in_progress"}, allowedFrom(StatusFailed))
	assert.ElementsMatch(t, []string{"pending", "queued"}, allowedFrom(StatusInProgress))
	assert.ElementsMatch(t, []string{"pending"}, allowedFrom(StatusQueued))

	// Nothing moves back to pending through the normal update path; that is
	// reserved for the retry operation.
	assert.Empty(t, allowedFrom(StatusPending))
}

func TestTerminalStatesHaveNoForwardMoves(t *testing.T) {
	_, hasDone := transitions[StatusDone]
	assert.False(t, hasDone)
	_, hasFailed := transitions[StatusFailed]
	assert.False(t, hasFailed)
}
