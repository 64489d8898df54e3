package api

import (
	"net/http"
	"strconv"

	"github.com/kuitang/studynotes/internal/errs"
	"github.com/kuitang/studynotes/internal/obs"
)

// SweepResponse reports how many cache entries a sweep removed.
type SweepResponse struct {
	Removed int `json:"removed"`
}

// Speak handles POST /owners/{id}/speech - returns audio/mpeg for the owner's
// current content. A client that sends X-Content-Hash gets 409 when the
// content it shows is no longer current; audio for content edited during
// synthesis is also refused with 409.
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	ownerID := r.PathValue("id")
	ctx := obs.WithOwner(r.Context(), ownerID)

	owner, err := h.notes.Owner(ctx, ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if want := r.Header.Get("X-Content-Hash"); want != "" && !h.speech.IsCurrent(want, owner.Content) {
		writeError(w, r, errs.New(errs.FailedPrecondition, "content has changed; reload before listening"))
		return
	}
	res, err := h.speech.Speak(ctx, ownerID, owner.Title, owner.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}

	latest, err := h.notes.Owner(ctx, ownerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !h.speech.IsCurrent(res.Fingerprint, latest.Content) {
		obs.From(ctx).Info("speech.stale_audio", "fingerprint", res.Fingerprint)
		writeError(w, r, errs.New(errs.FailedPrecondition, "content changed during synthesis; try again"))
		return
	}

	cache := "miss"
	if res.Cached {
		cache = "hit"
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Disposition", `attachment; filename="speech.mp3"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Audio)))
	w.Header().Set("X-Content-Hash", res.Fingerprint)
	w.Header().Set("X-Audio-Cache", cache)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Audio)
}

// AudioCacheSize handles GET /audio/cache
func (h *Handler) AudioCacheSize(w http.ResponseWriter, r *http.Request) {
	info, err := h.cache.Size(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// AudioCacheSweep handles POST /audio/cache/sweep
func (h *Handler) AudioCacheSweep(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.Sweep(r.Context(), h.cacheMaxAge)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SweepResponse{Removed: removed})
}

// AudioCacheClear handles DELETE /audio/cache
func (h *Handler) AudioCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Clear(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
