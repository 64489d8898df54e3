package mcp

import (
	"bytes"
	"errors"
	"io"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kuitang/studynotes/internal/logutil"
	"github.com/kuitang/studynotes/internal/notes"
	"github.com/kuitang/studynotes/internal/obs"
	"github.com/kuitang/studynotes/internal/quiz"
)

const (
	maxMCPBodyBytes = 1 << 20
	mcpBodyLogLimit = 2 * 1024
)

// Server wraps the MCP server with notes handling
type Server struct {
	mcpServer   *mcp.Server
	handler     *Handler
	httpHandler http.Handler
}

type mcpResponseLogger struct {
	http.ResponseWriter
	statusCode int
	wrote      bool
	body       []byte
	truncated  bool
}

func newMCPResponseLogger(w http.ResponseWriter) *mcpResponseLogger {
	return &mcpResponseLogger{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *mcpResponseLogger) WriteHeader(code int) {
	if w.wrote {
		return
	}
	w.statusCode = code
	w.wrote = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *mcpResponseLogger) Write(p []byte) (int, error) {
	w.wrote = true
	if remaining := mcpBodyLogLimit - len(w.body); remaining > 0 {
		w.body = append(w.body, p[:min(len(p), remaining)]...)
		w.truncated = w.truncated || len(p) > remaining
	} else {
		w.truncated = true
	}
	return w.ResponseWriter.Write(p)
}

func (w *mcpResponseLogger) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// NewServer creates an MCP server exposing notesSvc and quizSvc as tools.
func NewServer(notesSvc *notes.Service, quizSvc *quiz.Service) *Server {
	handler := NewHandler(notesSvc, quizSvc)

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "studynotes",
			Version: "1.0.0",
		},
		nil,
	)

	for _, tool := range ToolDefinitions() {
		mcp.AddTool(mcpServer, tool, handler.createToolHandler(tool.Name))
	}

	// Each request stands alone, so there is no session to resume and no
	// initialize handshake.
	httpHandler := mcp.NewStreamableHTTPHandler(
		func(*http.Request) *mcp.Server { return mcpServer },
		&mcp.StreamableHTTPOptions{
			JSONResponse: true,
			Stateless:    true,
		},
	)

	return &Server{
		mcpServer:   mcpServer,
		handler:     handler,
		httpHandler: httpHandler,
	}
}

// ServeHTTP implements the Streamable HTTP transport: POST carries JSON-RPC
// messages, DELETE ends a session. Server-initiated streams (GET) are not
// offered.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Mcp-Session-Id, Last-Event-ID")
	w.Header().Set("Access-Control-Allow-Methods", "POST, DELETE, OPTIONS")

	log := obs.From(r.Context()).With("pkg", "mcp")

	switch r.Method {
	case http.MethodOptions:
		w.Header().Set("Access-Control-Max-Age", "86400")
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost, http.MethodDelete:
	default:
		w.Header().Set("Allow", "POST, DELETE, OPTIONS")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxMCPBodyBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
				return
			}
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	log.Debug("mcp.request",
		"method", r.Method,
		"remote", r.RemoteAddr,
		"headers", logutil.FormatHeaders(r.Header),
		"body", logutil.FormatBody(r.Header.Get("Content-Type"), body, mcpBodyLogLimit, false))

	resp := newMCPResponseLogger(w)
	defer func() {
		if p := recover(); p != nil {
			log.Error("mcp.panic", "panic", p)
			if !resp.wrote {
				http.Error(resp, "Internal server error", http.StatusInternalServerError)
			}
		}
	}()

	s.httpHandler.ServeHTTP(resp, r)

	if !resp.wrote {
		log.Error("mcp.no_response", "method", r.Method)
		http.Error(resp, "MCP handler returned without writing response", http.StatusInternalServerError)
		return
	}
	if resp.statusCode >= http.StatusBadRequest {
		log.Warn("mcp.request_failed",
			"method", r.Method,
			"status", resp.statusCode,
			"response", logutil.FormatBody(resp.Header().Get("Content-Type"), resp.body, 0, resp.truncated))
	}
}
