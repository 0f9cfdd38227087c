package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// NewSessionID returns an opaque session identifier with 256 bits of
// entropy, base64url-encoded without padding.
func NewSessionID() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewEventID returns an identifier for an audit event.
func NewEventID() string {
	return uuid.New().String()
}
