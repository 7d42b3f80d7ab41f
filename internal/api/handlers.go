package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/db"
	"github.com/reelsmith/storyboard/internal/errmsg"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/pipeline"
	"github.com/reelsmith/storyboard/internal/queue"
	"github.com/reelsmith/storyboard/internal/scenetree"
	"github.com/reelsmith/storyboard/internal/store"
)

type Handler struct {
	db          *db.DB
	queue       *queue.Queue
	pipelines   *pipeline.Service
	library     *store.Library
	transcriber pipeline.Transcriber
}

func NewHandler(
	database *db.DB,
	q *queue.Queue,
	pipelines *pipeline.Service,
	library *store.Library,
	transcriber pipeline.Transcriber,
) *Handler {
	return &Handler{
		db:          database,
		queue:       q,
		pipelines:   pipelines,
		library:     library,
		transcriber: transcriber,
	}
}

// CreateGeneration handles POST /v1/generations. The storyboard pipeline
// itself runs on the worker; this only records the session and enqueues it.
func (h *Handler) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var req models.CreateGenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Idea == "" {
		respondError(w, http.StatusBadRequest, "Idea is required")
		return
	}
	if req.SceneCount < pipeline.MinSceneCount || req.SceneCount > pipeline.MaxSceneCount {
		respondError(w, http.StatusBadRequest, "Scene count must be between 1 and 10")
		return
	}

	settings := models.Settings{
		AspectRatio: "16:9",
		ImageStyle:  "Vector Toon",
	}
	if req.AspectRatio != nil {
		settings.AspectRatio = *req.AspectRatio
	}
	if req.ImageStyle != nil {
		settings.ImageStyle = *req.ImageStyle
	}
	if req.Genre != nil {
		settings.Genre = *req.Genre
	}
	if req.ImageModel != nil {
		settings.ImageModel = *req.ImageModel
	}

	// Freeze the roster into the generation so later character edits cannot
	// change prompts mid-session.
	roster, err := h.db.ListCharacters(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load characters")
		return
	}
	settings.Characters = roster
	settings = settings.Clone()

	g := &models.Generation{
		ID:       uuid.New(),
		Idea:     req.Idea,
		Status:   models.GenerationStatusQueued,
		Settings: settings,
	}

	if err := h.db.CreateGeneration(r.Context(), g); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create generation")
		return
	}

	payload, _ := json.Marshal(models.GenerateScenesPayload{SceneCount: req.SceneCount})
	jobID := uuid.New()
	job := &models.Job{
		ID:           jobID,
		GenerationID: g.ID,
		Type:         models.JobTypeGenerateScenes,
		Status:       models.JobStatusQueued,
		Payload:      payload,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueGenerateScenes(r.Context(), g.ID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateGenerationResponse{
		GenerationID: g.ID,
		Status:       g.Status,
	})
}

// ListGenerations handles GET /v1/generations
// Query params:
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListGenerations(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	generations, err := h.db.ListGenerations(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list generations")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"generations": generations,
		"limit":       limit,
		"offset":      offset,
	})
}

func (h *Handler) GetGeneration(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGeneration(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, g)
}

// UpdateGenerationSettings handles PATCH /v1/generations/{id}/settings.
// Only presentation settings can change mid-session; the character roster
// stays frozen at creation.
func (h *Handler) UpdateGenerationSettings(w http.ResponseWriter, r *http.Request) {
	g, ok := h.loadGeneration(w, r)
	if !ok {
		return
	}

	var req struct {
		AspectRatio *string `json:"aspect_ratio,omitempty"`
		ImageStyle  *string `json:"image_style,omitempty"`
		Genre       *string `json:"genre,omitempty"`
		ImageModel  *string `json:"image_model,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.AspectRatio != nil {
		g.Settings.AspectRatio = *req.AspectRatio
	}
	if req.ImageStyle != nil {
		g.Settings.ImageStyle = *req.ImageStyle
	}
	if req.Genre != nil {
		g.Settings.Genre = *req.Genre
	}
	if req.ImageModel != nil {
		g.Settings.ImageModel = *req.ImageModel
	}

	if err := h.db.UpdateGenerationSettings(r.Context(), g.ID, g.Settings); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}

	respondJSON(w, http.StatusOK, g.Settings)
}

func (h *Handler) DeleteGeneration(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid generation ID")
		return
	}

	if err := h.db.DeleteGeneration(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to delete generation")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) GetGenerationJobs(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid generation ID")
		return
	}

	jobs, err := h.db.GetGenerationJobs(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// DeleteScene handles DELETE /v1/generations/{id}/scenes/{sceneId}.
// Deleting a root removes its whole angle block; deleting the last remaining
// angle child removes its root too.
func (h *Handler) DeleteScene(w http.ResponseWriter, r *http.Request) {
	g, scene, _, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	removed, err := scenetree.Delete(g, scene.ID)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.db.ReplaceScenes(r.Context(), g); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to persist scenes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"removed":    removed,
		"generation": g,
	})
}

// GenerateAngles handles POST /v1/generations/{id}/scenes/{sceneId}/angles.
// Runs on the worker; angle children are spliced in when the job completes.
func (h *Handler) GenerateAngles(w http.ResponseWriter, r *http.Request) {
	g, scene, _, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	if !scene.IsRoot() {
		respondError(w, http.StatusBadRequest, "Camera angles can only be derived from a primary scene")
		return
	}

	var req models.AngleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Angles) == 0 {
		respondError(w, http.StatusBadRequest, "At least one angle is required")
		return
	}
	for _, a := range req.Angles {
		if !pipeline.ValidAngle(a) {
			respondError(w, http.StatusBadRequest, "Invalid angle: "+a)
			return
		}
	}

	payload, _ := json.Marshal(models.CameraAnglesPayload{Angles: req.Angles})
	jobID := uuid.New()
	job := &models.Job{
		ID:           jobID,
		GenerationID: g.ID,
		SceneID:      &scene.ID,
		Type:         models.JobTypeCameraAngles,
		Status:       models.JobStatusQueued,
		Payload:      payload,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueCameraAngles(r.Context(), g.ID, scene.ID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": jobID})
}

// EditScene handles POST /v1/generations/{id}/scenes/{sceneId}/edit.
// Synchronous: the edited image replaces the scene image in place, keeping
// one level of undo.
func (h *Handler) EditScene(w http.ResponseWriter, r *http.Request) {
	g, scene, _, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	var req models.EditSceneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Instruction == "" {
		respondError(w, http.StatusBadRequest, "Instruction is required")
		return
	}

	edited, err := h.pipelines.EditScene(r.Context(), *scene, g.Settings, req.Instruction)
	if err != nil {
		respondError(w, http.StatusBadGateway, errmsg.Normalize(err))
		return
	}

	if err := scenetree.ApplyEdit(g, scene.ID, edited.Data, edited.MimeType); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if err := h.db.UpdateScene(r.Context(), scene); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to persist scene")
		return
	}

	respondJSON(w, http.StatusOK, scene)
}

// UndoEdit handles POST /v1/generations/{id}/scenes/{sceneId}/undo.
func (h *Handler) UndoEdit(w http.ResponseWriter, r *http.Request) {
	g, scene, _, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	if err := scenetree.UndoEdit(g, scene.ID); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.db.UpdateScene(r.Context(), scene); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to persist scene")
		return
	}

	respondJSON(w, http.StatusOK, scene)
}

// GenerateVideo handles POST /v1/generations/{id}/scenes/{sceneId}/video.
// The workflow runs on the worker; the scene's video state tracks progress.
func (h *Handler) GenerateVideo(w http.ResponseWriter, r *http.Request) {
	g, scene, idx, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	var payload models.GenerateVideoPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if g.VideoStates[idx].Status == models.VideoStatusLoading {
		respondError(w, http.StatusConflict, "A video is already being generated for this scene")
		return
	}
	if payload.Extend && len(g.VideoStates[idx].Clips) == 0 {
		respondError(w, http.StatusBadRequest, "No clip to extend from")
		return
	}

	body, _ := json.Marshal(payload)
	jobID := uuid.New()
	job := &models.Job{
		ID:           jobID,
		GenerationID: g.ID,
		SceneID:      &scene.ID,
		Type:         models.JobTypeGenerateVideo,
		Status:       models.JobStatusQueued,
		Payload:      body,
	}

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueGenerateVideo(r.Context(), g.ID, scene.ID, jobID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{"job_id": jobID})
}

// ResetVideo handles POST /v1/generations/{id}/scenes/{sceneId}/video/reset.
// Discards all clips and returns the workflow to idle.
func (h *Handler) ResetVideo(w http.ResponseWriter, r *http.Request) {
	g, scene, idx, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	g.VideoStates[idx].Reset()
	if err := h.db.UpdateVideoState(r.Context(), scene.ID, g.VideoStates[idx]); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to persist video state")
		return
	}

	respondJSON(w, http.StatusOK, g.VideoStates[idx])
}

// GetClip handles GET /v1/generations/{id}/scenes/{sceneId}/clip and serves
// the scene's current clip file.
func (h *Handler) GetClip(w http.ResponseWriter, r *http.Request) {
	g, _, idx, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	state := g.VideoStates[idx]
	if len(state.Clips) == 0 {
		respondError(w, http.StatusNotFound, "No clip for this scene")
		return
	}

	clip := state.Clips[state.CurrentClip]
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, clip.VideoPath)
}

// GenerateSpeech handles POST /v1/generations/{id}/scenes/{sceneId}/speech.
// Synchronous speech synthesis for previewing a script before video
// generation.
func (h *Handler) GenerateSpeech(w http.ResponseWriter, r *http.Request) {
	var req models.SpeechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.Script = strings.TrimSpace(req.Script)
	if req.Script == "" {
		respondError(w, http.StatusBadRequest, "Script is required")
		return
	}

	g, _, _, ok := h.loadScene(w, r)
	if !ok {
		return
	}

	audio, err := h.pipelines.GenerateSpeech(r.Context(), req.Script, g.Settings)
	if err != nil {
		respondError(w, http.StatusBadGateway, errmsg.Normalize(err))
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.WriteHeader(http.StatusOK)
	w.Write(audio)
}

// loadGeneration parses {id} and loads the aggregate, writing the error
// response itself on failure.
func (h *Handler) loadGeneration(w http.ResponseWriter, r *http.Request) (*models.Generation, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid generation ID")
		return nil, false
	}

	g, err := h.db.GetGeneration(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusNotFound, "Generation not found")
		return nil, false
	}
	return g, true
}

// loadScene resolves {id} and {sceneId} to the aggregate, the scene (a
// pointer into the aggregate) and its index.
func (h *Handler) loadScene(w http.ResponseWriter, r *http.Request) (*models.Generation, *models.Scene, int, bool) {
	g, ok := h.loadGeneration(w, r)
	if !ok {
		return nil, nil, 0, false
	}

	sceneID, err := uuid.Parse(chi.URLParam(r, "sceneId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid scene ID")
		return nil, nil, 0, false
	}

	idx := scenetree.IndexOf(g, sceneID)
	if idx < 0 {
		respondError(w, http.StatusNotFound, "Scene not found")
		return nil, nil, 0, false
	}

	return g, &g.Scenes[idx], idx, true
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
