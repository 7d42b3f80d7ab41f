package api

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/errmsg"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/pipeline"
)

// maxUploadBytes bounds reference-image and voiceover uploads.
const maxUploadBytes = 25 << 20

type characterRequest struct {
	Name        string `json:"name"`
	RefImage    string `json:"ref_image,omitempty"` // base64
	RefMimeType string `json:"ref_mime_type,omitempty"`
	Filename    string `json:"filename,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateCharacter handles POST /v1/characters. A missing name falls back to
// one derived from the uploaded file's name.
func (h *Handler) CreateCharacter(w http.ResponseWriter, r *http.Request) {
	var req characterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	name := req.Name
	if name == "" && req.Filename != "" {
		name = pipeline.NameFromFilename(req.Filename)
	}
	if name == "" {
		respondError(w, http.StatusBadRequest, "Name is required")
		return
	}

	c := &models.Character{
		ID:          uuid.New(),
		Name:        name,
		Description: req.Description,
	}

	if req.RefImage != "" {
		img, err := base64.StdEncoding.DecodeString(req.RefImage)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid reference image encoding")
			return
		}
		if len(img) > maxUploadBytes {
			respondError(w, http.StatusRequestEntityTooLarge, "Reference image too large")
			return
		}
		c.RefImage = img
		c.RefMimeType = req.RefMimeType
		if c.RefMimeType == "" {
			c.RefMimeType = "image/png"
		}
	}

	if err := h.db.CreateCharacter(r.Context(), c); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create character")
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	characters, err := h.db.ListCharacters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list characters")
		return
	}
	if characters == nil {
		characters = []models.Character{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"characters": characters})
}

func (h *Handler) GetCharacter(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCharacter(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) UpdateCharacter(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCharacter(w, r)
	if !ok {
		return
	}

	var req characterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != "" {
		c.Name = req.Name
	}
	if req.Description != "" {
		c.Description = req.Description
	}
	if req.RefImage != "" {
		img, err := base64.StdEncoding.DecodeString(req.RefImage)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid reference image encoding")
			return
		}
		c.RefImage = img
		if req.RefMimeType != "" {
			c.RefMimeType = req.RefMimeType
		}
		// A new reference image invalidates the previous description.
		c.Description = ""
		c.StyleLabel = ""
	}

	if err := h.db.UpdateCharacter(r.Context(), c); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update character")
		return
	}

	respondJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCharacter(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid character ID")
		return
	}

	if err := h.db.DeleteCharacter(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete character")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DescribeCharacter handles POST /v1/characters/{id}/describe. Synchronous:
// generates the character token and style label from the reference image.
// The busy flag guards concurrent describes of the same character.
func (h *Handler) DescribeCharacter(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCharacter(w, r)
	if !ok {
		return
	}

	if c.Busy {
		respondError(w, http.StatusConflict, "Character description already in progress")
		return
	}
	if !c.HasReferenceImage() {
		respondError(w, http.StatusBadRequest, "Character has no reference image")
		return
	}

	c.Busy = true
	if err := h.db.UpdateCharacter(r.Context(), c); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update character")
		return
	}

	description, style, err := h.pipelines.DescribeCharacter(r.Context(), *c)
	c.Busy = false
	if err != nil {
		h.db.UpdateCharacter(r.Context(), c)
		respondError(w, http.StatusBadGateway, errmsg.Normalize(err))
		return
	}

	c.Description = description
	c.StyleLabel = style
	if err := h.db.UpdateCharacter(r.Context(), c); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update character")
		return
	}

	respondJSON(w, http.StatusOK, c)
}

// DetectCharacters handles POST /v1/characters/detect. Transcribes an
// uploaded voiceover and creates empty roster entries for speaker names not
// already present.
func (h *Handler) DetectCharacters(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		respondError(w, http.StatusServiceUnavailable, "Voiceover transcription is not configured")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Failed to read audio")
		return
	}

	roster, err := h.db.ListCharacters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load characters")
		return
	}

	names, err := pipeline.DetectCharacterNames(r.Context(), h.transcriber, audio, header.Filename, roster)
	if err != nil {
		respondError(w, http.StatusBadGateway, errmsg.Normalize(err))
		return
	}

	created := make([]models.Character, 0, len(names))
	for _, name := range names {
		c := &models.Character{
			ID:        uuid.New(),
			Name:      name,
			CreatedAt: time.Now(),
		}
		if err := h.db.CreateCharacter(r.Context(), c); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to create character")
			return
		}
		created = append(created, *c)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"detected": names,
		"created":  created,
	})
}

func (h *Handler) loadCharacter(w http.ResponseWriter, r *http.Request) (*models.Character, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid character ID")
		return nil, false
	}

	c, err := h.db.GetCharacter(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Character not found")
		return nil, false
	}
	return c, true
}
