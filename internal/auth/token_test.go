package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	config := Config{Secret: "test-secret", ExpiryHours: 1}

	token, err := GenerateToken(config, "user-1", "hotel-9", "reception")
	require.NoError(t, err)

	claims, err := ValidateToken("test-secret", token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "hotel-9", claims.HotelID)
	assert.Equal(t, "reception", claims.Role)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	config := Config{Secret: "test-secret", ExpiryHours: 1}

	token, err := GenerateToken(config, "user-1", "hotel-9", "reception")
	require.NoError(t, err)

	_, err = ValidateToken("other-secret", token)
	assert.Error(t, err)
}

func TestValidateTokenGarbage(t *testing.T) {
	_, err := ValidateToken("test-secret", "not-a-token")
	assert.Error(t, err)
}
