package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/db"
	"github.com/reelsmith/storyboard/internal/errmsg"
	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/media"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/pipeline"
	"github.com/reelsmith/storyboard/internal/progress"
	"github.com/reelsmith/storyboard/internal/queue"
	"github.com/reelsmith/storyboard/internal/scenetree"
)

type Worker struct {
	db      *db.DB
	queue   *queue.Queue
	backend genai.Client
	notify  *progress.Notifier
	ffmpeg  *media.FFmpegService
}

func New(
	database *db.DB,
	q *queue.Queue,
	backend genai.Client,
	notify *progress.Notifier,
	ffmpegSvc *media.FFmpegService,
) *Worker {
	return &Worker{
		db:      database,
		queue:   q,
		backend: backend,
		notify:  notify,
		ffmpeg:  ffmpegSvc,
	}
}

// pipelines builds a per-job pipeline service so the stage callback can bind
// to that job's generation without racing other jobs.
func (w *Worker) pipelines(onStage func(stage string)) *pipeline.Service {
	return pipeline.New(w.backend, w.notify).WithStageFunc(onStage)
}

// Start begins processing jobs from all queues
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Printf("Worker started with concurrency: %d", concurrency)

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueueGenerateScenes, w.handleGenerateScenes)
		go w.processQueue(ctx, queue.QueueCameraAngles, w.handleCameraAngles)
		go w.processQueue(ctx, queue.QueueGenerateVideo, w.handleGenerateVideo)
	}

	<-ctx.Done()
	log.Println("Worker shutting down...")
}

func (w *Worker) processQueue(ctx context.Context, queueName string, handler func(context.Context, *queue.Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			job, err := w.queue.Dequeue(ctx, queueName, 5*time.Second)
			if err != nil {
				log.Printf("Error dequeuing from %s: %v", queueName, err)
				continue
			}

			if job == nil {
				continue // No job available, retry
			}

			log.Printf("Processing job %s (type: %s, generation: %s)", job.ID, job.Type, job.GenerationID)

			if err := w.db.StartJob(ctx, job.ID); err != nil {
				log.Printf("Failed to mark job running: %v", err)
			}

			if err := handler(ctx, job); err != nil {
				log.Printf("Job %s failed: %v", job.ID, err)
				w.db.FailJob(ctx, job.ID, errmsg.Normalize(err))
			} else {
				log.Printf("Job %s completed successfully", job.ID)
				w.db.CompleteJob(ctx, job.ID)
			}
		}
	}
}

// handleGenerateScenes runs the storyboard pipeline: idea breakdown, then one
// image per scene in strict order, then appends the new roots (with their
// idle video states) to the generation.
func (w *Worker) handleGenerateScenes(ctx context.Context, job *queue.Job) error {
	record, err := w.db.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load job record: %w", err)
	}

	var payload models.GenerateScenesPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	g, err := w.db.GetGeneration(ctx, job.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to get generation: %w", err)
	}

	if err := w.db.UpdateGenerationStatus(ctx, g.ID, models.GenerationStatusBreakdown); err != nil {
		return fmt.Errorf("failed to update generation status: %w", err)
	}

	pipe := w.pipelines(func(stage string) {
		if stage == "generating" {
			if err := w.db.UpdateGenerationStatus(ctx, g.ID, models.GenerationStatusGenerating); err != nil {
				log.Printf("Failed to update generation status: %v", err)
			}
		}
	})

	scenes, err := pipe.GenerateScenes(ctx, g.ID, g.Idea, payload.SceneCount, g.Settings)
	if err != nil {
		w.db.UpdateGenerationError(ctx, g.ID, errmsg.Normalize(err))
		return fmt.Errorf("scene generation failed: %w", err)
	}

	scenetree.AppendRoots(g, scenes)

	if err := w.db.ReplaceScenes(ctx, g); err != nil {
		return fmt.Errorf("failed to persist scenes: %w", err)
	}

	return w.db.UpdateGenerationStatus(ctx, g.ID, models.GenerationStatusCompleted)
}

// handleCameraAngles derives angle variants for one root scene and splices
// them in directly after the root's existing child block.
func (w *Worker) handleCameraAngles(ctx context.Context, job *queue.Job) error {
	if job.SceneID == nil {
		return fmt.Errorf("scene ID missing")
	}

	record, err := w.db.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load job record: %w", err)
	}

	var payload models.CameraAnglesPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	g, err := w.db.GetGeneration(ctx, job.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to get generation: %w", err)
	}

	idx := scenetree.IndexOf(g, *job.SceneID)
	if idx < 0 {
		return fmt.Errorf("scene not found in generation")
	}
	root := g.Scenes[idx]

	children, err := w.pipelines(nil).GenerateAngles(ctx, root, g.Settings, payload.Angles)
	if err != nil {
		return fmt.Errorf("angle generation failed: %w", err)
	}

	if _, err := scenetree.InsertAngleChildren(g, root.ID, children); err != nil {
		return fmt.Errorf("failed to splice angle children: %w", err)
	}

	return w.db.ReplaceScenes(ctx, g)
}

// handleGenerateVideo runs the video workflow for one scene: audio prep and
// provider job polling in parallel, then clip persistence. The scene's video
// state carries the outcome; a failed run lands there as a normalized
// message, never as a generation-level failure.
func (w *Worker) handleGenerateVideo(ctx context.Context, job *queue.Job) error {
	if job.SceneID == nil {
		return fmt.Errorf("scene ID missing")
	}

	record, err := w.db.GetJob(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to load job record: %w", err)
	}

	var payload models.GenerateVideoPayload
	if err := json.Unmarshal(record.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	g, err := w.db.GetGeneration(ctx, job.GenerationID)
	if err != nil {
		return fmt.Errorf("failed to get generation: %w", err)
	}

	idx := scenetree.IndexOf(g, *job.SceneID)
	if idx < 0 {
		return fmt.Errorf("scene not found in generation")
	}
	scene := g.Scenes[idx]
	state := g.VideoStates[idx]

	// "Extend" grows the tree: a new child scene seeded with the final
	// frame of the current clip, running a fresh video workflow of its own.
	if payload.Extend {
		frame, mime, err := w.lastClipFrame(ctx, state)
		if err != nil {
			return w.failVideo(ctx, scene.ID, state, err)
		}
		child, err := extendScene(g, scene.ID, frame, mime)
		if err != nil {
			return w.failVideo(ctx, scene.ID, state, err)
		}
		if err := w.db.ReplaceScenes(ctx, g); err != nil {
			return fmt.Errorf("failed to persist continuation scene: %w", err)
		}
		scene = *child
		state = models.NewVideoState()
	}

	state.Status = models.VideoStatusLoading
	state.Error = ""
	if err := w.db.UpdateVideoState(ctx, scene.ID, state); err != nil {
		return fmt.Errorf("failed to update video state: %w", err)
	}

	result, err := w.pipelines(nil).GenerateVideo(ctx, scene, g.Settings, payload.VideoRequest)
	if err != nil {
		return w.failVideo(ctx, scene.ID, state, err)
	}

	clipID := uuid.New()
	videoPath, err := w.ffmpeg.WriteTemp(fmt.Sprintf("clip_%s.mp4", clipID), result.VideoBytes)
	if err != nil {
		return w.failVideo(ctx, scene.ID, state, err)
	}

	audioPath := ""
	if len(result.AudioBytes) > 0 {
		audioPath, err = w.ffmpeg.WriteTemp(fmt.Sprintf("audio_%s.wav", clipID), result.AudioBytes)
		if err != nil {
			return w.failVideo(ctx, scene.ID, state, err)
		}
	}

	durationMS, err := w.ffmpeg.GetVideoDuration(ctx, videoPath)
	if err != nil {
		log.Printf("Failed to probe clip duration: %v", err)
	}

	clip := models.Clip{
		ID:             clipID,
		VideoPath:      videoPath,
		AudioPath:      audioPath,
		ProviderJobRef: result.JobRef,
		DurationMS:     durationMS,
		CreatedAt:      time.Now(),
	}

	state.AppendClip(clip)
	state.Status = models.VideoStatusSuccess
	state.Error = ""

	return w.db.UpdateVideoState(ctx, scene.ID, state)
}

// failVideo parks a normalized error on the scene's video state. The job
// itself still fails so the attempt is visible in the job history.
func (w *Worker) failVideo(ctx context.Context, sceneID uuid.UUID, state models.VideoState, cause error) error {
	state.Status = models.VideoStatusError
	state.Error = errmsg.Normalize(cause)

	if err := w.db.UpdateVideoState(ctx, sceneID, state); err != nil {
		log.Printf("Failed to record video error: %v", err)
	}
	return fmt.Errorf("video generation failed: %w", cause)
}

// extendScene splices a continuation node into the generation: a fresh child
// of the source's root, seeded with the extracted frame and carrying the
// source's prompt, with its own idle video state. Returns the inserted node.
func extendScene(g *models.Generation, sourceID uuid.UUID, frame []byte, mimeType string) (*models.Scene, error) {
	idx := scenetree.IndexOf(g, sourceID)
	if idx < 0 {
		return nil, fmt.Errorf("scene not found in generation")
	}
	source := g.Scenes[idx]

	rootID := source.ID
	if source.ParentID != nil {
		rootID = *source.ParentID
	}

	child := models.Scene{
		ID:           uuid.New(),
		GenerationID: source.GenerationID,
		Image:        frame,
		MimeType:     mimeType,
		Prompt:       source.Prompt,
		CreatedAt:    time.Now(),
	}

	at, err := scenetree.InsertAngleChildren(g, rootID, []models.Scene{child})
	if err != nil {
		return nil, err
	}
	return &g.Scenes[at], nil
}

// lastClipFrame extracts the final frame of the state's current clip.
func (w *Worker) lastClipFrame(ctx context.Context, state models.VideoState) ([]byte, string, error) {
	if len(state.Clips) == 0 {
		return nil, "", fmt.Errorf("no clip to extend from")
	}

	clip := state.Clips[state.CurrentClip]
	if _, err := os.Stat(clip.VideoPath); err != nil {
		return nil, "", fmt.Errorf("clip video unavailable: %w", err)
	}

	frame, err := w.ffmpeg.ExtractLastFrame(ctx, clip.VideoPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to extract last frame: %w", err)
	}

	return frame, "image/png", nil
}
