package api

import (
	"net/http"

	"github.com/kuitang/studynotes/internal/highlight"
	"github.com/kuitang/studynotes/internal/obs"
)

// TextRequest carries text for the AI endpoints.
type TextRequest struct {
	Text string `json:"text"`
}

// TermsResponse lists extracted key terms.
type TermsResponse struct {
	Terms []string `json:"terms"`
}

// FormatResponse carries formatted HTML notes.
type FormatResponse struct {
	HTML string `json:"html"`
}

// ApplyTermsResponse lists the extracted terms and the resulting highlights.
type ApplyTermsResponse struct {
	Terms      []string              `json:"terms"`
	Highlights []highlight.Highlight `json:"highlights"`
}

// ExtractTerms handles POST /ai/terms
func (h *Handler) ExtractTerms(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	terms, err := h.ai.ExtractTerms(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TermsResponse{Terms: terms})
}

// FormatText handles POST /ai/format
func (h *Handler) FormatText(w http.ResponseWriter, r *http.Request) {
	var req TextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.ai.Format(r.Context(), req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FormatResponse{HTML: out})
}

// ApplyTerms handles POST /owners/{id}/terms - extracts key terms from the
// owner's content and highlights them. Nothing is stored when extraction
// fails.
func (h *Handler) ApplyTerms(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("id")
	ctx := obs.WithOwner(r.Context(), ownerID)

	content, _, err := h.notes.Body(ctx, ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	terms, err := h.ai.ExtractTerms(ctx, content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hs, err := h.notes.ApplyTerms(ctx, ownerID, terms)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ApplyTermsResponse{Terms: terms, Highlights: hs})
}
