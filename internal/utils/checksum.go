package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

func SHA256Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// ShortHash returns the first n hex characters of the SHA-256 of value.
// Used to derive stable identifiers for prompt-only runs.
func ShortHash(value string, n int) string {
	full := SHA256Bytes([]byte(value))
	if n <= 0 || n >= len(full) {
		return full
	}
	return full[:n]
}
