package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/prompt"
)

// Scene count bounds for one generation.
const (
	MinSceneCount = 1
	MaxSceneCount = 10
)

// breakdownResponse is the structured shape the breakdown call must return.
type breakdownResponse struct {
	Scenes []string `json:"scenes"`
}

// GenerateScenes turns one idea into count scene prompts, then into count
// images, in strict prompt order with the fixed pacing delay between
// consecutive image calls.
//
// Failure modes: a failed or malformed breakdown is fatal; a failed image is
// not — that scene carries a nil image and an error while its siblings
// complete. The returned slice always has exactly count scenes on success.
func (s *Service) GenerateScenes(ctx context.Context, generationID uuid.UUID, idea string, count int, settings models.Settings) ([]models.Scene, error) {
	if count < MinSceneCount || count > MaxSceneCount {
		return nil, fmt.Errorf("scene count %d out of range [%d,%d]", count, MinSceneCount, MaxSceneCount)
	}

	s.publish("Breaking your idea into %d scenes...", count)

	var breakdown breakdownResponse
	instruction := prompt.SceneBreakdown(idea, count, settings.Genre, settings.Characters)
	if err := s.backend.GenerateStructured(ctx, instruction, nil, &breakdown); err != nil {
		return nil, fmt.Errorf("scene breakdown failed: %w", err)
	}
	if len(breakdown.Scenes) == 0 {
		return nil, fmt.Errorf("scene breakdown returned no scenes")
	}
	if len(breakdown.Scenes) != count {
		return nil, fmt.Errorf("scene breakdown returned %d scenes, wanted %d", len(breakdown.Scenes), count)
	}

	s.stage("generating")
	refChar := referenceCharacter(settings)

	scenes := make([]models.Scene, 0, count)
	for i, sceneText := range breakdown.Scenes {
		if i > 0 {
			s.publish("Pausing %ds before the next image (backend rate limits)...", int(imagePace.Seconds()))
			if err := s.sleep(ctx, imagePace); err != nil {
				return nil, err
			}
		}

		s.publish("Generating image %d of %d...", i+1, count)
		scene := s.generateSceneImage(ctx, generationID, sceneText, settings, refChar)
		scenes = append(scenes, scene)
	}

	return scenes, nil
}

// generateSceneImage produces one scene node. Never returns an error: any
// failure lands on the node itself so the calling pipeline keeps going.
func (s *Service) generateSceneImage(ctx context.Context, generationID uuid.UUID, sceneText string, settings models.Settings, refChar *models.Character) models.Scene {
	scene := models.Scene{
		ID:           uuid.New(),
		GenerationID: generationID,
		CreatedAt:    time.Now(),
	}

	req := genai.ImageRequest{
		Model:       settings.ImageModel,
		AspectRatio: settings.AspectRatio,
	}

	opts := prompt.ImageOptions{Settings: settings}
	if refChar != nil {
		// The bound reference image forces the image-conditioned path,
		// overriding the user's model selection, so identity is preserved.
		opts.ReferenceCharacter = refChar
		req.Model = genai.ImageEditModel
		req.Images = []genai.InlineImage{{Data: refChar.RefImage, MimeType: refChar.RefMimeType}}
		opts.EmbedAspectRatio = true
	} else if settings.ImageModel != genai.TextToImageModel {
		// Image-conditioned model without inputs still takes the ratio in
		// text; only the text-to-image path accepts it structurally.
		opts.EmbedAspectRatio = true
	}

	scene.Prompt = prompt.ComposeImagePrompt(sceneText, opts)
	req.Instruction = scene.Prompt

	result, err := s.backend.GenerateImage(ctx, req)
	if err != nil {
		log.Printf("[Scenes] image generation failed: %v", err)
		scene.Error = strPtr(err.Error())
		return scene
	}
	if result.Image == nil {
		log.Printf("[Scenes] image filtered: %s", result.FilterReason)
		scene.Error = strPtr(result.FilterReason)
		return scene
	}

	scene.Image = result.Image.Data
	scene.MimeType = result.Image.MimeType
	return scene
}
