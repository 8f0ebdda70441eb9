package contentguard

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewNonce returns a 128-bit hex nonce for Content-Security-Policy headers.
func NewNonce() (string, error) {
	return randomHex(16)
}

// NewSessionToken returns a 256-bit hex session token.
func NewSessionToken() (string, error) {
	return randomHex(32)
}

// NewCSRFToken returns a 128-bit hex anti-forgery token.
func NewCSRFToken() (string, error) {
	return randomHex(16)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("randomHex: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
