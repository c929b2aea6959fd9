package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateEnrollmentKey(t *testing.T) {
	key, err := GenerateEnrollmentKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "ek_"))

	other, err := GenerateEnrollmentKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestGenerateAgentToken(t *testing.T) {
	token, err := GenerateAgentToken()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "at_"))
}

func TestHashEnrollmentKeyDeterministic(t *testing.T) {
	assert.Equal(t, HashEnrollmentKey("ek_abc"), HashEnrollmentKey("ek_abc"))
	assert.NotEqual(t, HashEnrollmentKey("ek_abc"), HashEnrollmentKey("ek_abd"))
	assert.Len(t, HashEnrollmentKey("ek_abc"), 64) // sha256 hex
}

func TestAgentTokenHashRoundTrip(t *testing.T) {
	token, err := GenerateAgentToken()
	require.NoError(t, err)

	hash, err := HashAgentToken(token)
	require.NoError(t, err)
	assert.NotContains(t, hash, token)

	assert.True(t, CheckAgentToken(token, hash))
	assert.False(t, CheckAgentToken("at_wrong", hash))
}
