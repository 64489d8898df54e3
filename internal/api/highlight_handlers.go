package api

import (
	"net/http"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/obs"
)

// ToggleRequest addresses one token of an owner's content.
type ToggleRequest struct {
	Word  string `json:"word"`
	Index *int   `json:"index"`
}

// ReconcileRequest carries content and the highlights to move onto it.
type ReconcileRequest struct {
	Content    string                `json:"content"`
	Highlights []highlight.Highlight `json:"highlights"`
}

// HighlightsResponse wraps an owner's highlights.
type HighlightsResponse struct {
	Highlights []highlight.Highlight `json:"highlights"`
}

// GetHighlights handles GET /owners/{id}/highlights
func (h *Handler) GetHighlights(w http.ResponseWriter, r *http.Request) {
	hs, err := h.notes.Highlights(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HighlightsResponse{Highlights: hs})
}

// ToggleHighlight handles POST /owners/{id}/highlights/toggle
func (h *Handler) ToggleHighlight(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Index == nil {
		writeError(w, r, errs.New(errs.InvalidArgument, "index is required"))
		return
	}
	ctx := obs.WithOwner(r.Context(), r.PathValue("id"))
	hs, err := h.notes.ToggleHighlight(ctx, r.PathValue("id"), req.Word, *req.Index)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HighlightsResponse{Highlights: hs})
}

// ReconcileHighlights handles POST /highlights/reconcile - moves highlights
// onto new content without storing anything
func (h *Handler) ReconcileHighlights(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HighlightsResponse{Highlights: highlight.Reconcile(req.Content, req.Highlights)})
}
