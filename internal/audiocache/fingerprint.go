package audiocache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/kuitang/studynotes/internal/highlight"
)

// Fingerprint returns the SHA-256 hex digest of content's normalized text:
// markup removed, whitespace runs collapsed, trimmed, and lowercased. Every
// cache read and write site uses this one function.
func Fingerprint(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(highlight.PlainText(content)))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
