package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortDigest returns the first n hex characters of the SHA-256 of data.
// n is clamped to the full digest length.
func ShortDigest(data []byte, n int) string {
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(digest) {
		return digest
	}
	return digest[:n]
}
