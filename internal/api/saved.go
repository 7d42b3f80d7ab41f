package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reelsmith/storyboard/internal/models"
)

// SaveScene handles POST /v1/generations/{id}/scenes/{sceneId}/save.
// Exports exactly one scene with its video workflow and settings snapshot
// into the time-boxed saved library.
func (h *Handler) SaveScene(w http.ResponseWriter, r *http.Request) {
	g, scene, idx, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	key := models.SavedItemKey(g.ID, idx)
	item, err := h.library.SaveScene(r.Context(), key, *scene, g.VideoStates[idx], g.Settings)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to save scene")
		return
	}

	respondJSON(w, http.StatusCreated, item)
}

// ListSavedItems handles GET /v1/saved. Expired items are purged before the
// list is returned.
func (h *Handler) ListSavedItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.library.Load(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load saved items")
		return
	}

	if items == nil {
		items = []models.SavedItem{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// DeleteSavedItem handles DELETE /v1/saved/{key}.
func (h *Handler) DeleteSavedItem(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if key == "" {
		respondError(w, http.StatusBadRequest, "Key is required")
		return
	}

	if err := h.library.Delete(r.Context(), key); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete saved item")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
