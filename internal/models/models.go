package models

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Enums

// GenerationStatus tracks the lifecycle of a storyboard generation session.
type GenerationStatus string

const (
	GenerationStatusQueued     GenerationStatus = "queued"
	GenerationStatusBreakdown  GenerationStatus = "breakdown"
	GenerationStatusGenerating GenerationStatus = "generating"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// VideoStatus is the per-scene video workflow state machine:
// idle → loading → {success | error}. Both terminal states permit an
// explicit reset back to idle.
type VideoStatus string

const (
	VideoStatusIdle    VideoStatus = "idle"
	VideoStatusLoading VideoStatus = "loading"
	VideoStatusSuccess VideoStatus = "success"
	VideoStatusError   VideoStatus = "error"
)

// VoiceoverSource selects where a video's audio track comes from.
type VoiceoverSource string

const (
	VoiceoverSourceNone   VoiceoverSource = "none"
	VoiceoverSourceScript VoiceoverSource = "script"
	VoiceoverSourceUpload VoiceoverSource = "upload"
)

// AudioAssignment says how a prepared audio track is applied to the video:
// "none", "ambient", or the name of the character to lip-sync.
type AudioAssignment string

const (
	AudioAssignmentNone    AudioAssignment = "none"
	AudioAssignmentAmbient AudioAssignment = "ambient"
)

// Models

// Character is an identity token for a recurring actor. The reference image,
// when present, is the ground truth for the character's visual identity; the
// description ("character token") is the fallback or supplementary grounding.
type Character struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	RefImage    []byte    `json:"ref_image,omitempty"`
	RefMimeType string    `json:"ref_mime_type,omitempty"`
	Description string    `json:"description,omitempty"`
	StyleLabel  string    `json:"style_label,omitempty"`
	Busy        bool      `json:"busy"` // description generation in flight
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasReferenceImage reports whether the character carries a bound reference
// image usable for high-fidelity visual grounding.
func (c *Character) HasReferenceImage() bool {
	return len(c.RefImage) > 0 && c.RefMimeType != ""
}

// Described reports whether the character can appear in a character-fidelity
// prompt block (needs both a name and a description).
func (c *Character) Described() bool {
	return c.Name != "" && c.Description != ""
}

// Scene is one storyboard node. A nil Image with a non-nil Error is a valid
// state: generation failed (or was content-filtered) for this node only.
//
// ParentID references the root scene this node is a camera-angle derivative
// of. Parents are stable uuids, not positional indices, so structural edits
// never require re-indexing; the ordering contract (a root immediately
// followed by its contiguous angle-children) is maintained by scenetree.
type Scene struct {
	ID           uuid.UUID  `json:"id"`
	GenerationID uuid.UUID  `json:"generation_id"`
	Image        []byte     `json:"image,omitempty"`
	MimeType     string     `json:"mime_type,omitempty"`
	Prompt       string     `json:"prompt"`
	Error        *string    `json:"error,omitempty"`
	ParentID     *uuid.UUID `json:"parent_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`

	// One level of undo for in-place edits.
	PrevImage    []byte `json:"-"`
	PrevMimeType string `json:"-"`
}

// IsRoot reports whether the scene is a primary scene (not an angle child).
func (s *Scene) IsRoot() bool {
	return s.ParentID == nil
}

// Clip is one generated video attached to a scene's video workflow.
// ProviderJobRef is the backend's opaque job handle, stored and replayed
// verbatim for lazy re-hydration; its internal shape is never inspected.
type Clip struct {
	ID             uuid.UUID `json:"id"`
	VideoPath      string    `json:"video_path"`
	AudioPath      string    `json:"audio_path,omitempty"`
	ProviderJobRef string    `json:"provider_job_ref,omitempty"`
	RawAudio       []byte    `json:"raw_audio,omitempty"`
	DurationMS     int       `json:"duration_ms,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// VideoState is the per-scene video workflow status, index-aligned 1:1 with
// the owning generation's scene sequence.
type VideoState struct {
	Status      VideoStatus `json:"status"`
	Clips       []Clip      `json:"clips"`
	CurrentClip int         `json:"current_clip"`
	Error       string      `json:"error,omitempty"`

	// Transient UI flags carried through the API for the studio front end.
	ScriptInputVisible bool            `json:"script_input_visible"`
	VoiceoverSource    VoiceoverSource `json:"voiceover_source"`
	PendingScript      string          `json:"pending_script,omitempty"`
	PendingAudio       []byte          `json:"pending_audio,omitempty"`
	CameraMovement     string          `json:"camera_movement,omitempty"`
}

// NewVideoState returns the initial (idle, no clips) workflow state.
func NewVideoState() VideoState {
	return VideoState{
		Status:          VideoStatusIdle,
		Clips:           []Clip{},
		VoiceoverSource: VoiceoverSourceNone,
	}
}

// Reset discards all clips and returns the workflow to idle.
func (v *VideoState) Reset() {
	*v = NewVideoState()
}

// AppendClip grows the clip sequence and advances the current-clip pointer.
// The top-level status is unchanged (used by "extend from last frame").
func (v *VideoState) AppendClip(c Clip) {
	v.Clips = append(v.Clips, c)
	v.CurrentClip = len(v.Clips) - 1
}

// Settings is the creative configuration frozen at generation time,
// including a deep-copied snapshot of the character roster.
type Settings struct {
	AspectRatio string      `json:"aspect_ratio"`
	ImageStyle  string      `json:"image_style"`
	Genre       string      `json:"genre"`
	ImageModel  string      `json:"image_model"`
	Characters  []Character `json:"characters"`
}

// Clone deep-copies the settings, including character reference image bytes,
// so later roster edits cannot mutate a frozen generation.
func (s Settings) Clone() Settings {
	out := s
	out.Characters = make([]Character, len(s.Characters))
	for i, c := range s.Characters {
		cc := c
		if c.RefImage != nil {
			cc.RefImage = append([]byte(nil), c.RefImage...)
		}
		out.Characters[i] = cc
	}
	return out
}

// Generation is one user-initiated creative session: the idea text, the
// ordered scene sequence (roots interleaved with contiguous angle-child
// blocks) and the parallel, index-aligned video state sequence.
//
// Invariant: len(VideoStates) == len(Scenes) at all times. Every structural
// mutation goes through scenetree, which splices both in one operation.
type Generation struct {
	ID          uuid.UUID        `json:"id"`
	Idea        string           `json:"idea"`
	Status      GenerationStatus `json:"status"`
	Scenes      []Scene          `json:"scenes"`
	VideoStates []VideoState     `json:"video_states"`
	Settings    Settings         `json:"settings"`
	Error       *string          `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// SavedItemTTL is how long an exported scene survives before being purged.
const SavedItemTTL = 5 * 24 * time.Hour

// SavedItem is a persisted, time-boxed export of exactly one scene plus its
// video workflow and the settings snapshot needed to recreate its prompt
// context. Keyed by "{generationID}-{sceneIndex}".
type SavedItem struct {
	Key        string     `json:"key"`
	Scene      Scene      `json:"scene"`
	VideoState VideoState `json:"video_state"`
	Settings   Settings   `json:"settings"`
	SavedAt    time.Time  `json:"saved_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
}

// Expired reports whether the item is past its expiry at the given time.
func (s *SavedItem) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SavedItemKey builds the canonical "{generationID}-{sceneIndex}" key.
func SavedItemKey(generationID uuid.UUID, sceneIndex int) string {
	return generationID.String() + "-" + strconv.Itoa(sceneIndex)
}

// JobType names the asynchronous pipelines the worker can run.
type JobType string

const (
	JobTypeGenerateScenes JobType = "generate_scenes"
	JobTypeCameraAngles   JobType = "camera_angles"
	JobTypeGenerateVideo  JobType = "generate_video"
)

// JobStatus tracks a queued pipeline run.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Job is the durable record of one queued pipeline run. The payload carries
// the request parameters the worker needs to execute it.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	GenerationID uuid.UUID       `json:"generation_id"`
	SceneID      *uuid.UUID      `json:"scene_id,omitempty"`
	Type         JobType         `json:"type"`
	Status       JobStatus       `json:"status"`
	Attempts     int             `json:"attempts"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Job payloads, stored on the job row and decoded by the worker.

type GenerateScenesPayload struct {
	SceneCount int `json:"scene_count"`
}

type CameraAnglesPayload struct {
	Angles []string `json:"angles"`
}

type GenerateVideoPayload struct {
	VideoRequest
	// Extend continues from the last frame of the scene's current clip
	// instead of the scene image.
	Extend bool `json:"extend,omitempty"`
}

// DTOs for API requests/responses

type CreateGenerationRequest struct {
	Idea        string  `json:"idea"`
	SceneCount  int     `json:"scene_count"`
	AspectRatio *string `json:"aspect_ratio,omitempty"` // Default: "16:9"
	ImageStyle  *string `json:"image_style,omitempty"`
	Genre       *string `json:"genre,omitempty"`
	ImageModel  *string `json:"image_model,omitempty"`
}

type CreateGenerationResponse struct {
	GenerationID uuid.UUID        `json:"generation_id"`
	Status       GenerationStatus `json:"status"`
}

type AngleRequest struct {
	Angles []string `json:"angles"` // subset of front/back/side
}

type EditSceneRequest struct {
	Instruction string `json:"instruction"`
}

type SpeechRequest struct {
	Script string `json:"script"`
}

type VideoRequest struct {
	Script          string          `json:"script,omitempty"`
	CameraMovement  string          `json:"camera_movement,omitempty"`
	VoiceoverSource VoiceoverSource `json:"voiceover_source,omitempty"`
	UploadedAudio   []byte          `json:"uploaded_audio,omitempty"`
	AudioAssignment AudioAssignment `json:"audio_assignment,omitempty"`
	Resolution      string          `json:"resolution,omitempty"`
	VideoModel      string          `json:"video_model,omitempty"`
}
