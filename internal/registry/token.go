package registry

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	enrollmentKeyPrefix = "ek_"
	agentTokenPrefix    = "at_"
	secretLength        = 32 // 256 bits
)

// GenerateEnrollmentKey creates a new random enrollment key.
func GenerateEnrollmentKey() (string, error) {
	return generateSecret(enrollmentKeyPrefix)
}

// GenerateAgentToken creates a new random agent bearer token.
func GenerateAgentToken() (string, error) {
	return generateSecret(agentTokenPrefix)
}

func generateSecret(prefix string) (string, error) {
	bytes := make([]byte, secretLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashEnrollmentKey computes the SHA-256 digest used for key lookup.
func HashEnrollmentKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", hash)
}

// HashAgentToken generates a bcrypt hash for storing an agent token.
// Tokens are looked up by agent ID, so a slow hash is fine here.
func HashAgentToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}

// CheckAgentToken compares a presented token with a stored hash.
func CheckAgentToken(token, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
