package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint returns the first n hex characters of the SHA-256 of the
// normalized input. Trailing slashes and letter case are ignored so that
// equivalent base URLs share a fingerprint. n <= 0 returns the full digest.
func Fingerprint(input string, n int) string {
	normalized := strings.ToLower(strings.TrimRight(strings.TrimSpace(input), "/"))
	sum := sha256.Sum256([]byte(normalized))
	out := hex.EncodeToString(sum[:])
	if n <= 0 || n >= len(out) {
		return out
	}
	return out[:n]
}
