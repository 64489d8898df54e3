// Package api serves the JSON HTTP interface over notes, highlights, quizzes,
// AI assistance and speech.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kuitang/studynotes/internal/ai"
	"github.com/kuitang/studynotes/internal/audiocache"
	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/notes"
	"github.com/kuitang/studynotes/internal/obs"
	"github.com/kuitang/studynotes/internal/quiz"
	"github.com/kuitang/studynotes/internal/speech"
)

// maxBodyBytes bounds request bodies: one content body plus JSON overhead.
const maxBodyBytes = notes.MaxContentBytes + 64*1024

// Config holds the services behind the API.
type Config struct {
	Notes       *notes.Service
	Quiz        *quiz.Service
	AI          ai.TextService
	Speech      *speech.Service
	Cache       *audiocache.Cache
	CacheMaxAge time.Duration
	// Limit wraps the AI and speech routes. Nil means no limit.
	Limit func(http.Handler) http.Handler
}

// Handler provides HTTP handlers for every API route.
type Handler struct {
	notes       *notes.Service
	quiz        *quiz.Service
	ai          ai.TextService
	speech      *speech.Service
	cache       *audiocache.Cache
	cacheMaxAge time.Duration
	limit       func(http.Handler) http.Handler
}

// NewHandler creates a new API handler.
func NewHandler(cfg Config) *Handler {
	limit := cfg.Limit
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}
	maxAge := cfg.CacheMaxAge
	if maxAge <= 0 {
		maxAge = audiocache.DefaultMaxAge
	}
	return &Handler{
		notes:       cfg.Notes,
		quiz:        cfg.Quiz,
		ai:          cfg.AI,
		speech:      cfg.Speech,
		cache:       cfg.Cache,
		cacheMaxAge: maxAge,
		limit:       limit,
	}
}

// RegisterRoutes registers all API routes on the given mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /usage", h.Usage)

	mux.HandleFunc("GET /notes", h.ListNotes)
	mux.HandleFunc("POST /notes", h.CreateNote)
	mux.HandleFunc("GET /notes/{id}", h.GetNote)
	mux.HandleFunc("PATCH /notes/{id}", h.UpdateNote)
	mux.HandleFunc("DELETE /notes/{id}", h.DeleteNote)

	mux.HandleFunc("GET /notes/{id}/tiles", h.ListTiles)
	mux.HandleFunc("POST /notes/{id}/tiles", h.CreateTile)
	mux.HandleFunc("GET /tiles/{id}", h.GetTile)
	mux.HandleFunc("PATCH /tiles/{id}", h.UpdateTile)
	mux.HandleFunc("DELETE /tiles/{id}", h.DeleteTile)

	mux.HandleFunc("GET /owners/{id}/highlights", h.GetHighlights)
	mux.HandleFunc("POST /owners/{id}/highlights/toggle", h.ToggleHighlight)
	mux.HandleFunc("POST /highlights/reconcile", h.ReconcileHighlights)

	mux.HandleFunc("GET /owners/{id}/quiz", h.QuizState)
	mux.HandleFunc("POST /owners/{id}/quiz/enable", h.QuizEnable)
	mux.HandleFunc("POST /owners/{id}/quiz/select", h.QuizSelect)
	mux.HandleFunc("POST /owners/{id}/quiz/choose", h.QuizChoose)
	mux.HandleFunc("POST /owners/{id}/quiz/reset", h.QuizReset)
	mux.HandleFunc("POST /owners/{id}/quiz/disable", h.QuizDisable)

	mux.Handle("POST /ai/terms", h.limit(http.HandlerFunc(h.ExtractTerms)))
	mux.Handle("POST /ai/format", h.limit(http.HandlerFunc(h.FormatText)))
	mux.Handle("POST /owners/{id}/terms", h.limit(http.HandlerFunc(h.ApplyTerms)))
	mux.Handle("POST /owners/{id}/speech", h.limit(http.HandlerFunc(h.Speak)))

	mux.HandleFunc("GET /audio/cache", h.AudioCacheSize)
	mux.HandleFunc("POST /audio/cache/sweep", h.AudioCacheSweep)
	mux.HandleFunc("DELETE /audio/cache", h.AudioCacheClear)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Usage handles GET /usage - returns storage usage
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	usage, err := h.notes.Usage(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usage)
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  errs.Code `json:"code"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps a coded error to its HTTP status. Untyped errors are
// logged and reported as internal.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.CodeOf(err)
	if code == errs.Internal {
		obs.From(r.Context()).Error("api.internal_error", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, errs.HTTPStatus(code), ErrorResponse{Error: errs.MessageOf(err), Code: code})
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errs.Wrap(errs.InvalidArgument, "request body too large", err)
		}
		if errors.Is(err, io.EOF) {
			return errs.New(errs.InvalidArgument, "request body is required")
		}
		return errs.Wrap(errs.InvalidArgument, fmt.Sprintf("invalid JSON: %v", err), err)
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(w, r, dst)
	if err != nil && errs.MessageOf(err) == "request body is required" {
		return nil
	}
	return err
}
