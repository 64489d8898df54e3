package api

import (
	"net/http"

	"github.com/kuitang/studynotes/internal/notes"
)

// ListNotes handles GET /notes - returns every note with its tiles
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	list, err := h.notes.ListNotes(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notes": list})
}

// GetNote handles GET /notes/{id}
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.GetNote(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /notes
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.CreateNoteParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := h.notes.CreateNote(r.Context(), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PATCH /notes/{id}
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var params notes.UpdateNoteParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	note, err := h.notes.UpdateNote(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /notes/{id}
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.DeleteNote(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListTiles handles GET /notes/{id}/tiles
func (h *Handler) ListTiles(w http.ResponseWriter, r *http.Request) {
	tiles, err := h.notes.ListTiles(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tiles": tiles})
}

// CreateTile handles POST /notes/{id}/tiles
func (h *Handler) CreateTile(w http.ResponseWriter, r *http.Request) {
	var params notes.CreateTileParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	tile, err := h.notes.CreateTile(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tile)
}

// GetTile handles GET /tiles/{id}
func (h *Handler) GetTile(w http.ResponseWriter, r *http.Request) {
	tile, err := h.notes.GetTile(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

// UpdateTile handles PATCH /tiles/{id}
func (h *Handler) UpdateTile(w http.ResponseWriter, r *http.Request) {
	var params notes.UpdateTileParams
	if err := decodeJSON(w, r, &params); err != nil {
		writeError(w, r, err)
		return
	}
	tile, err := h.notes.UpdateTile(r.Context(), r.PathValue("id"), params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tile)
}

// DeleteTile handles DELETE /tiles/{id}
func (h *Handler) DeleteTile(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.DeleteTile(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
