package sessions

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// MintToken returns a new opaque session token: 32 random bytes hex-encoded,
// so it fits the 64-character session_id column.
func MintToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("minting session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
