package obs

import (
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// statusWriter remembers the status and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status int
	n      int64
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.n += int64(n)
	return n, err
}

// Flush forwards to the underlying writer when it can flush. MCP streams
// depend on it.
func (w *statusWriter) Flush() {
	_ = http.NewResponseController(w.ResponseWriter).Flush()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// RequestContext tags each request with an id, taken from X-Request-Id,
// then the traceparent trace id, then generated. The id is echoed in the
// X-Request-Id response header.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
		corr := Correlation{
			RequestID:   strings.TrimSpace(r.Header.Get("X-Request-Id")),
			TraceID:     traceIDOf(traceparent),
			Traceparent: traceparent,
		}
		switch {
		case corr.RequestID != "":
		case corr.TraceID != "":
			corr.RequestID = corr.TraceID
		default:
			corr.RequestID = newRequestID()
		}
		w.Header().Set("X-Request-Id", corr.RequestID)
		next.ServeHTTP(w, r.WithContext(WithCorrelation(r.Context(), corr)))
	})
}

// AccessLog logs one http.access event per request under component.
// Server errors are logged at warn, everything else at debug.
func AccessLog(component string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}
			next.ServeHTTP(sw, r)
			if sw.status == 0 {
				sw.status = http.StatusOK
			}

			level := slog.LevelDebug
			if sw.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			From(r.Context()).Log(r.Context(), level, "http.access",
				"component", component,
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"dur_ms", float64(time.Since(start).Microseconds())/1000,
				"req_bytes", max(r.ContentLength, 0),
				"resp_bytes", sw.n,
			)
		})
	}
}

// traceIDOf returns the lowercase trace id of a W3C traceparent header, or
// "" when the header is malformed or the id is all zeros.
func traceIDOf(traceparent string) string {
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	id := strings.ToLower(strings.TrimSpace(parts[1]))
	if len(id) != 32 || strings.Trim(id, "0") == "" {
		return ""
	}
	if _, err := hex.DecodeString(id); err != nil {
		return ""
	}
	return id
}
