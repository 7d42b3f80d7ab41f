package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/prompt"
)

// Supported video aspect ratios; anything else is coerced to the default.
const (
	videoAspectLandscape = "16:9"
	videoAspectPortrait  = "9:16"
)

// VideoResult is the assembled outcome of one video workflow: the downloaded
// asset, the (possibly nil) prepared audio track, and the provider's opaque
// job handle kept for lazy re-hydration.
type VideoResult struct {
	VideoBytes []byte
	AudioBytes []byte
	JobRef     string
}

// coerceVideoAspect clamps a ratio to the two the video model supports.
func coerceVideoAspect(ratio string) string {
	if ratio == videoAspectPortrait {
		return videoAspectPortrait
	}
	return videoAspectLandscape
}

// GenerateVideo runs the full video assembly for one scene: audio
// preparation (synthesis or uploaded passthrough) concurrently with job
// submission and polling, joined only when both sides finish.
//
// The poll loop sleeps a fixed interval between status fetches and runs
// until the backend reports a terminal state — it has no caller-supplied
// timeout; abandonment is the caller's cancellation of ctx.
func (s *Service) GenerateVideo(ctx context.Context, scene models.Scene, settings models.Settings, req models.VideoRequest) (*VideoResult, error) {
	if len(scene.Image) == 0 {
		return nil, fmt.Errorf("scene has no image to animate")
	}

	lipSync := ""
	if req.AudioAssignment != models.AudioAssignmentNone &&
		req.AudioAssignment != models.AudioAssignmentAmbient &&
		req.AudioAssignment != "" {
		lipSync = string(req.AudioAssignment)
	}

	instruction := prompt.ComposeVideoPrompt(prompt.VideoOptions{
		SceneDescription: scene.Prompt,
		Style:            settings.ImageStyle,
		Action:           req.Script,
		Characters:       settings.Characters,
		CameraMovement:   req.CameraMovement,
		AudioAssignment:  req.AudioAssignment,
		LipSyncCharacter: lipSync,
	})

	result := &VideoResult{}
	g, gctx := errgroup.WithContext(ctx)

	// Audio preparation runs alongside submission and polling; the video
	// side never waits on it until final assembly.
	g.Go(func() error {
		switch req.VoiceoverSource {
		case models.VoiceoverSourceScript:
			audio, err := s.GenerateSpeech(gctx, req.Script, settings)
			if err != nil {
				return err
			}
			result.AudioBytes = audio
		case models.VoiceoverSourceUpload:
			result.AudioBytes = req.UploadedAudio
		}
		return nil
	})

	g.Go(func() error {
		s.publish("Submitting the video job...")
		jobRef, err := s.backend.StartVideoJob(gctx, genai.VideoJobRequest{
			Model:       req.VideoModel,
			Instruction: instruction,
			Image:       genai.InlineImage{Data: scene.Image, MimeType: scene.MimeType},
			AspectRatio: coerceVideoAspect(settings.AspectRatio),
			Resolution:  req.Resolution,
		})
		if err != nil {
			return err
		}
		result.JobRef = jobRef

		video, err := s.awaitVideo(gctx, jobRef)
		if err != nil {
			return err
		}
		result.VideoBytes = video
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// awaitVideo polls the job at the fixed interval until it reports a terminal
// state, then resolves the asset bytes — inline if the backend sent them,
// otherwise via the signed download location.
func (s *Service) awaitVideo(ctx context.Context, jobRef string) ([]byte, error) {
	polls := 0
	for {
		status, err := s.backend.PollVideoJob(ctx, jobRef)
		if err != nil {
			return nil, err
		}

		if status.Done {
			if status.Error != "" {
				return nil, fmt.Errorf("video generation failed: %s", status.Error)
			}
			if len(status.VideoBytes) > 0 {
				return status.VideoBytes, nil
			}
			if status.URI == "" {
				// Completed with nothing retrievable: content filter, not
				// a silent success.
				return nil, fmt.Errorf("video generation finished with no retrievable output, possibly blocked by the content filter")
			}
			s.publish("Video ready, downloading...")
			return s.backend.DownloadVideo(ctx, status.URI)
		}

		polls++
		s.publish("Video still rendering (poll %d)...", polls)
		if err := s.sleep(ctx, videoPollInterval); err != nil {
			return nil, err
		}
	}
}
