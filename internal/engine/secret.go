package engine

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const secretBytes = 32

// NewServerSecret returns a fresh high-entropy server secret as a 64-char
// hex string. The secret stays server-side until the round is resolved.
func NewServerSecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("engine: generate server secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Commitment returns the SHA-256 hex digest of the server secret. It is
// disclosed to the player at round creation so the secret can be verified
// after revelation.
func Commitment(serverSecret string) string {
	sum := sha256.Sum256([]byte(serverSecret))
	return hex.EncodeToString(sum[:])
}
