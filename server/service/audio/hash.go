package audio

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ComputeContentHash returns the lowercase hex SHA-256 of the trimmed,
// lowercased text. Texts differing only in case or surrounding whitespace
// share a hash.
func ComputeContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}
