package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/prompt"
)

// ValidAngles are the camera angles a scene can be expanded into.
var ValidAngles = []string{"front", "back", "side"}

// ValidAngle reports whether name is a supported camera angle.
func ValidAngle(name string) bool {
	for _, a := range ValidAngles {
		if a == name {
			return true
		}
	}
	return false
}

// GenerateAngles derives one image per requested angle from an existing scene:
//
//  1. Outpaint the source into a wider context — fatal on failure, nothing
//     downstream can work without it.
//  2. Tag the source scene so every angle render can be pinned to its
//     content — a tagging failure drops the pin, it never blocks the angles.
//  3. Ask the model to reason about physical camera placement for every
//     non-front angle — parse failure is fatal. "front" uses a canned
//     instruction and skips reasoning entirely.
//  4. One image-edit call per angle, in the caller's order, 15s apart, each
//     carrying the continuity pin so only the camera moves. A missing
//     instruction or failed edit yields a scene node carrying the error
//     instead of aborting.
//
// Returned scenes are angle-children of root; the caller splices them in
// immediately after the root's existing child block.
func (s *Service) GenerateAngles(ctx context.Context, root models.Scene, settings models.Settings, angles []string) ([]models.Scene, error) {
	if len(root.Image) == 0 {
		return nil, fmt.Errorf("scene has no image to derive angles from")
	}
	if len(angles) == 0 {
		return nil, fmt.Errorf("no angles requested")
	}
	for _, a := range angles {
		if !ValidAngle(a) {
			return nil, fmt.Errorf("unknown camera angle %q", a)
		}
	}

	// Step 1: outpaint.
	s.publish("Widening the scene for camera placement...")
	outpainted, err := s.editImage(ctx, genai.InlineImage{Data: root.Image, MimeType: root.MimeType}, prompt.Outpaint(), settings)
	if err != nil {
		return nil, fmt.Errorf("outpaint failed: %w", err)
	}

	// Step 2: tag the source so each render stays consistent with it.
	tags, err := s.ContinuityTags(ctx, root)
	if err != nil {
		s.publish("Scene tagging failed, angles render without a continuity pin")
		tags = ""
	}

	// Step 3: placement reasoning for everything but "front".
	var nonFront []string
	for _, a := range angles {
		if a != "front" {
			nonFront = append(nonFront, a)
		}
	}

	instructions := map[string]string{"front": prompt.FrontAngleInstruction}
	if len(nonFront) > 0 {
		s.publish("Working out where each camera stands...")
		var placement map[string]json.RawMessage
		if err := s.backend.GenerateStructured(ctx, prompt.AnglePlacement(nonFront), []genai.InlineImage{*outpainted}, &placement); err != nil {
			return nil, fmt.Errorf("camera placement reasoning failed: %w", err)
		}
		for _, a := range nonFront {
			var instruction string
			if raw, ok := placement[a+"_view_prompt"]; ok {
				_ = json.Unmarshal(raw, &instruction)
			}
			instructions[a] = instruction
		}
	}

	// Step 4: per-angle generation from the outpainted base, paced.
	scenes := make([]models.Scene, 0, len(angles))
	for i, angle := range angles {
		if i > 0 {
			s.publish("Pausing %ds before the next angle (backend rate limits)...", int(imagePace.Seconds()))
			if err := s.sleep(ctx, imagePace); err != nil {
				return nil, err
			}
		}

		scene := models.Scene{
			ID:           uuid.New(),
			GenerationID: root.GenerationID,
			CreatedAt:    time.Now(),
		}

		instruction := instructions[angle]
		if instruction == "" {
			scene.Error = strPtr(fmt.Sprintf("the model returned no camera instruction for the %s angle", angle))
			scenes = append(scenes, scene)
			continue
		}

		s.publish("Rendering the %s angle...", angle)
		scene.Prompt = instruction
		edit := instruction
		if block := prompt.ContinuityBlock(tags); block != "" {
			edit += "\n\n" + block
		}
		img, err := s.editImage(ctx, *outpainted, edit, settings)
		if err != nil {
			scene.Error = strPtr(err.Error())
		} else {
			scene.Image = img.Data
			scene.MimeType = img.MimeType
		}
		scenes = append(scenes, scene)
	}

	return scenes, nil
}
