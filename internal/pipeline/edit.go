package pipeline

import (
	"context"
	"fmt"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/prompt"
)

// EditScene applies a free-text edit instruction to a scene's image. When a
// roster character carries a reference image it rides along as a second
// input and the composed instruction enforces that character's identity
// exactly; otherwise a simpler identity/style/ratio-preserving instruction
// is used. Never silently returns the unedited original: the result is a new
// image or an explicit rejection error.
func (s *Service) EditScene(ctx context.Context, scene models.Scene, settings models.Settings, instruction string) (*genai.InlineImage, error) {
	if len(scene.Image) == 0 {
		return nil, fmt.Errorf("scene has no image to edit")
	}
	if instruction == "" {
		return nil, fmt.Errorf("edit instruction is empty")
	}

	opts := prompt.ImageOptions{
		Settings:           settings,
		ReferenceCharacter: referenceCharacter(settings),
	}
	composed := prompt.ComposeEditPrompt(instruction, opts)

	images := []genai.InlineImage{{Data: scene.Image, MimeType: scene.MimeType}}
	if opts.ReferenceCharacter != nil {
		images = append(images, genai.InlineImage{
			Data:     opts.ReferenceCharacter.RefImage,
			MimeType: opts.ReferenceCharacter.RefMimeType,
		})
	}

	s.publish("Applying your edit...")
	result, err := s.backend.GenerateImage(ctx, genai.ImageRequest{
		Model:       genai.ImageEditModel,
		Instruction: composed,
		Images:      images,
		AspectRatio: settings.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	if result.Image == nil {
		return nil, fmt.Errorf("the edit was rejected, possibly by the content filter: %s", result.FilterReason)
	}
	return result.Image, nil
}

// editImage is the shared single-image edit call used by the camera-angle
// pipeline. Filter rejections surface as errors here because the callers
// decide per step whether a failure is fatal or scene-local.
func (s *Service) editImage(ctx context.Context, base genai.InlineImage, instruction string, settings models.Settings) (*genai.InlineImage, error) {
	result, err := s.backend.GenerateImage(ctx, genai.ImageRequest{
		Model:       genai.ImageEditModel,
		Instruction: instruction,
		Images:      []genai.InlineImage{base},
		AspectRatio: settings.AspectRatio,
	})
	if err != nil {
		return nil, err
	}
	if result.Image == nil {
		return nil, fmt.Errorf("the model returned no image: %s", result.FilterReason)
	}
	return result.Image, nil
}

// continuityTagsResponse is the structured shape of a scene tagging call.
type continuityTagsResponse struct {
	Tags string `json:"tags"`
}

// ContinuityTags produces the compact tag-list description of a scene image
// that the prompt builder's continuity block embeds.
func (s *Service) ContinuityTags(ctx context.Context, scene models.Scene) (string, error) {
	if len(scene.Image) == 0 {
		return "", fmt.Errorf("scene has no image to describe")
	}
	var resp continuityTagsResponse
	images := []genai.InlineImage{{Data: scene.Image, MimeType: scene.MimeType}}
	if err := s.backend.GenerateStructured(ctx, prompt.ContinuityTagging(), images, &resp); err != nil {
		return "", fmt.Errorf("scene tagging failed: %w", err)
	}
	if resp.Tags == "" {
		return "", fmt.Errorf("scene tagging returned no tags")
	}
	return resp.Tags, nil
}
