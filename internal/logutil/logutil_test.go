package logutil

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testFormatHeaders_RedactsSensitiveHeaders(t *rapid.T) {
	token := rapid.StringMatching(`[A-Za-z0-9._=-]{10,40}`).Draw(t, "token")

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("Cookie", "session="+token)
	headers.Set("Xi-Api-Key", token)
	headers.Set("X-OpenAI-Session", token)
	headers.Set("Content-Type", "application/json")

	formatted := FormatHeaders(headers)
	if strings.Contains(formatted, token) {
		t.Fatalf("sensitive token leaked in header log: %q", formatted)
	}
	for _, key := range []string{"authorization", "cookie", "xi-api-key", "x-openai-session", "content-type"} {
		if !strings.Contains(formatted, key) {
			t.Fatalf("expected key %q in formatted headers: %q", key, formatted)
		}
	}
	if !strings.Contains(formatted, `content-type="application/json"`) {
		t.Fatalf("non-sensitive header should be kept: %q", formatted)
	}
}

func TestFormatHeaders_RedactsSensitiveHeaders(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testFormatHeaders_RedactsSensitiveHeaders)
}

func FuzzFormatHeaders_RedactsSensitiveHeaders(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testFormatHeaders_RedactsSensitiveHeaders))
}

func TestFormatHeaders_Empty(t *testing.T) {
	t.Parallel()
	require.Equal(t, "{}", FormatHeaders(nil))
}

func TestIsSensitiveField(t *testing.T) {
	t.Parallel()
	for _, key := range []string{"Authorization", "xi-api-key", "OPENAI_API_KEY", "access_token", "client-secret", "Set-Cookie", "Mcp-Session-Id"} {
		require.True(t, IsSensitiveField(key), key)
	}
	for _, key := range []string{"content-type", "word", "index", "title"} {
		require.False(t, IsSensitiveField(key), key)
	}
}

func TestRedactJSON(t *testing.T) {
	t.Parallel()
	got := RedactJSON([]byte(`{"name":"note_view","arguments":{"id":"n1","api_key":"sk-123"},"items":[{"token":"t"}]}`))
	require.NotContains(t, got, "sk-123")
	require.NotContains(t, got, `"t"`)
	require.Contains(t, got, `"id":"n1"`)

	require.Equal(t, "not json", RedactJSON([]byte("not json")))
}

func TestFormatBody(t *testing.T) {
	t.Parallel()
	require.Equal(t, "", FormatBody("application/json", nil, 10, false))
	require.Equal(t, "abcde [truncated]", FormatBody("text/plain", []byte("abcdefgh"), 5, false))
	require.Equal(t, "abc [truncated]", FormatBody("text/plain", []byte("abc"), 5, true))
	require.Equal(t, `{"password":"[REDACTED]"}`, FormatBody("application/json", []byte(`{"password":"hunter2"}`), 0, false))
}
