package chunk

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the hex-encoded SHA-256 digest of s.
func Hash(s string) string {
	return hashBytes([]byte(s))
}

// FileHash identifies a file by its path, independent of content.
func FileHash(path string) string { return Hash(path) }

// ContentHash identifies one version of a file's content.
func ContentHash(content string) string { return Hash(content) }

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
