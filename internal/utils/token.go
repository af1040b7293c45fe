package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// RandHex returns n random bytes hex encoded.
func RandHex(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid length: %d", n)
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
