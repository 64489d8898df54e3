// Package logutil redacts credentials from headers and bodies before they
// are logged.
package logutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

// sensitiveFragments match normalized keys (lowercase, no '-' or '_').
// "apikey" covers the ElevenLabs xi-api-key header.
var sensitiveFragments = []string{"authorization", "token", "secret", "password", "apikey", "cookie", "session"}

// IsSensitiveField reports whether a header or JSON key likely carries a credential.
func IsSensitiveField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.NewReplacer("-", "", "_", "").Replace(normalized)
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// FormatHeaders returns headers sorted by name, lowercased, with sensitive
// values redacted.
func FormatHeaders(headers http.Header) string {
	if len(headers) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := strings.Join(headers.Values(k), ", ")
		if IsSensitiveField(k) {
			value = redacted
		}
		parts = append(parts, fmt.Sprintf("%s=%q", strings.ToLower(k), value))
	}
	return strings.Join(parts, "; ")
}

// RedactJSON replaces the values of sensitive keys at any depth. Bodies
// that are not JSON are returned unchanged.
func RedactJSON(body []byte) string {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return string(body)
	}
	redactValue(payload)
	safe, err := json.Marshal(payload)
	if err != nil {
		return string(body)
	}
	return string(safe)
}

func redactValue(v any) {
	switch typed := v.(type) {
	case map[string]any:
		for k, child := range typed {
			if IsSensitiveField(k) {
				typed[k] = redacted
				continue
			}
			redactValue(child)
		}
	case []any:
		for _, child := range typed {
			redactValue(child)
		}
	}
}

// FormatBody bounds body to maxBytes and redacts it when contentType is JSON.
// truncated marks a body already cut short by the caller.
func FormatBody(contentType string, body []byte, maxBytes int, truncated bool) string {
	if len(body) == 0 {
		return ""
	}
	if maxBytes > 0 && len(body) > maxBytes {
		body = body[:maxBytes]
		truncated = true
	}
	text := string(body)
	if strings.Contains(strings.ToLower(contentType), "json") {
		text = RedactJSON(body)
	}
	if truncated {
		return text + " [truncated]"
	}
	return text
}
