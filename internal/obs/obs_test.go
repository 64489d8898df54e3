package obs

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRequestContext_PropagatesTraceID(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	var seen Correlation
	h := RequestContext(AccessLog("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationFromContext(r.Context())
		From(WithOwner(r.Context(), "note-1")).Info("handled")
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/notes", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", seen.TraceID)
	require.Equal(t, seen.TraceID, rec.Header().Get("X-Request-Id"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var handled map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &handled))
	require.Equal(t, "note-1", handled["owner_id"])

	var access map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &access))
	require.Equal(t, "http.access", access["msg"])
	require.Equal(t, "test", access["component"])
	require.EqualValues(t, http.StatusTeapot, access["status"])
}

func TestRequestContext_GeneratesRequestID(t *testing.T) {
	h := RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.True(t, strings.HasPrefix(rec.Header().Get("X-Request-Id"), "req-"))
}

func TestFrom_NilContext(t *testing.T) {
	require.NotNil(t, From(context.TODO()))
	var ctx context.Context
	require.Equal(t, Correlation{}, CorrelationFromContext(ctx))
}

func testTruncate_BoundedAndSingleLine(t *rapid.T) {
	value := rapid.StringMatching(`[a-z \n]{0,200}`).Draw(t, "value")
	limit := rapid.IntRange(1, 100).Draw(t, "limit")

	got := Truncate(value, limit)
	if strings.Contains(got, "\n") {
		t.Fatalf("Truncate kept a newline: %q", got)
	}
	if len(got) > limit+len("... [truncated]")+strings.Count(value, "\n") {
		t.Fatalf("Truncate(%q, %d) too long: %q", value, limit, got)
	}
}

func TestTruncate_BoundedAndSingleLine(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testTruncate_BoundedAndSingleLine)
}

func TestAccessLog_ServerErrorsWarnAndFlushPassesThrough(t *testing.T) {
	var buf bytes.Buffer
	restore := SetOutputForTests(&buf)
	defer restore()

	h := AccessLog("mcp")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("partial"))
		w.(http.Flusher).Flush()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader("{}")))
	require.True(t, rec.Flushed)

	var access map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &access))
	require.Equal(t, "DEBUG", access["level"], "status was already 200 when the body started")
	require.EqualValues(t, http.StatusOK, access["status"])
	require.EqualValues(t, len("partial"), access["resp_bytes"])
	require.EqualValues(t, 2, access["req_bytes"])

	buf.Reset()
	h = AccessLog("mcp")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/notes", nil))
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &access))
	require.Equal(t, "WARN", access["level"])
	require.EqualValues(t, http.StatusBadGateway, access["status"])
}

func TestTraceIDOf(t *testing.T) {
	tests := map[string]string{
		"00-4BF92F3577B34DA6A3CE929D0E0E4736-00f067aa0ba902b7-01": "4bf92f3577b34da6a3ce929d0e0e4736",
		"00-00000000000000000000000000000000-00f067aa0ba902b7-01": "",
		"00-4bf92f3577b34da6a3ce929d0e0e47zz-00f067aa0ba902b7-01": "",
		"00-4bf92f3577b34da6-00f067aa0ba902b7-01":                 "",

		"garbage": "",
		"":        "",
	}
	for in, want := range tests {
		require.Equal(t, want, traceIDOf(in), in)
	}
}
