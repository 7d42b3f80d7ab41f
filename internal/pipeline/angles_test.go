package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/prompt"
)

func rootScene() models.Scene {
	return models.Scene{
		ID:           uuid.New(),
		GenerationID: uuid.New(),
		Image:        []byte("root"),
		MimeType:     "image/png",
		Prompt:       "a market at dawn",
	}
}

func TestGenerateAnglesFrontAndBack(t *testing.T) {
	fake := &fakeClient{
		structuredFn: structuredRouted(map[string]string{
			"tag list":          `{"tags":"market stall, dawn light"}`,
			"Requested angles:": `{"back_view_prompt":"render the scene from directly behind the subject"}`,
		}),
		imageFn: okImage,
	}
	svc, delays := newTestService(fake)

	root := rootScene()
	children, err := svc.GenerateAngles(context.Background(), root, models.Settings{AspectRatio: "16:9"}, []string{"front", "back"})
	require.NoError(t, err)
	require.Len(t, children, 2)

	// Outpaint + one edit per angle.
	assert.Len(t, fake.imageCalls, 3)
	// Scene tagging, then placement reasoning for the non-front angles only.
	require.Len(t, fake.structuredCalls, 2)
	assert.NotContains(t, fake.structuredCalls[1], "front_view_prompt")

	// Every angle edit is pinned to the tagged source scene.
	for _, call := range fake.imageCalls[1:] {
		assert.Contains(t, call.Instruction, "CONTINUITY:")
		assert.Contains(t, call.Instruction, "market stall, dawn light")
	}

	// "front" skips reasoning and uses the canned instruction.
	assert.Equal(t, prompt.FrontAngleInstruction, children[0].Prompt)
	assert.Equal(t, "render the scene from directly behind the subject", children[1].Prompt)
	for _, c := range children {
		assert.Equal(t, root.GenerationID, c.GenerationID)
		assert.NotNil(t, c.Image)
	}

	// One pacing pause between the two angle renders.
	assert.Len(t, *delays, 1)
}

func TestGenerateAnglesFrontOnlySkipsReasoning(t *testing.T) {
	fake := &fakeClient{
		structuredFn: structuredRouted(map[string]string{"tag list": `{"tags":"a market"}`}),
		imageFn:      okImage,
	}
	svc, _ := newTestService(fake)

	children, err := svc.GenerateAngles(context.Background(), rootScene(), models.Settings{}, []string{"front"})
	require.NoError(t, err)
	require.Len(t, children, 1)

	// Only the tagging call — no placement reasoning for "front".
	require.Len(t, fake.structuredCalls, 1)
	assert.NotContains(t, fake.structuredCalls[0], "_view_prompt")
}

func TestGenerateAnglesTaggingFailureDropsPin(t *testing.T) {
	// Tagging returns no tags: the angles still render, just without the
	// continuity block in their edit instructions.
	fake := &fakeClient{
		structuredFn: structuredRouted(map[string]string{
			"tag list":          `{}`,
			"Requested angles:": `{"back_view_prompt":"from behind"}`,
		}),
		imageFn: okImage,
	}
	svc, _ := newTestService(fake)

	children, err := svc.GenerateAngles(context.Background(), rootScene(), models.Settings{}, []string{"back"})
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.NotNil(t, children[0].Image)
	assert.NotContains(t, fake.imageCalls[1].Instruction, "CONTINUITY:")
}

func TestGenerateAnglesOutpaintFailureIsFatal(t *testing.T) {
	fake := &fakeClient{
		imageFn: func(req genai.ImageRequest) (*genai.ImageResult, error) {
			return &genai.ImageResult{FilterReason: "blocked"}, nil
		},
	}
	svc, _ := newTestService(fake)

	_, err := svc.GenerateAngles(context.Background(), rootScene(), models.Settings{}, []string{"front"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outpaint failed")
}

func TestGenerateAnglesMissingInstructionIsSceneLocal(t *testing.T) {
	// Placement omits side_view_prompt: the side child carries an error node
	// while back renders fine.
	fake := &fakeClient{
		structuredFn: structuredRouted(map[string]string{
			"tag list":          `{"tags":"a market"}`,
			"Requested angles:": `{"back_view_prompt":"from behind"}`,
		}),
		imageFn: okImage,
	}
	svc, _ := newTestService(fake)

	children, err := svc.GenerateAngles(context.Background(), rootScene(), models.Settings{}, []string{"back", "side"})
	require.NoError(t, err)
	require.Len(t, children, 2)

	assert.NotNil(t, children[0].Image)
	assert.Nil(t, children[1].Image)
	require.NotNil(t, children[1].Error)
	assert.Contains(t, *children[1].Error, "side")
}

func TestGenerateAnglesRejectsUnknownAngle(t *testing.T) {
	fake := &fakeClient{}
	svc, _ := newTestService(fake)

	_, err := svc.GenerateAngles(context.Background(), rootScene(), models.Settings{}, []string{"overhead"})
	assert.Error(t, err)
	assert.Empty(t, fake.imageCalls)
}

func TestGenerateAnglesRequiresImage(t *testing.T) {
	fake := &fakeClient{}
	svc, _ := newTestService(fake)

	root := rootScene()
	root.Image = nil
	_, err := svc.GenerateAngles(context.Background(), root, models.Settings{}, []string{"front"})
	assert.Error(t, err)
}
