package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
)

func TestEditSceneReplacesImage(t *testing.T) {
	fake := &fakeClient{imageFn: okImage}
	svc, _ := newTestService(fake)

	edited, err := svc.EditScene(context.Background(), rootScene(), models.Settings{AspectRatio: "16:9"}, "make it rain")
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), edited.Data)

	require.Len(t, fake.imageCalls, 1)
	req := fake.imageCalls[0]
	assert.Equal(t, genai.ImageEditModel, req.Model)
	require.Len(t, req.Images, 1)
	assert.Equal(t, []byte("root"), req.Images[0].Data)
	assert.Contains(t, req.Instruction, "make it rain")
}

func TestEditSceneCarriesReferenceImage(t *testing.T) {
	fake := &fakeClient{imageFn: okImage}
	svc, _ := newTestService(fake)

	settings := models.Settings{
		Characters: []models.Character{
			{ID: uuid.New(), Name: "Ada", RefImage: []byte("ref"), RefMimeType: "image/png", Description: "a courier"},
		},
	}

	_, err := svc.EditScene(context.Background(), rootScene(), settings, "move her to the left")
	require.NoError(t, err)

	require.Len(t, fake.imageCalls, 1)
	// Scene image first, reference image second.
	require.Len(t, fake.imageCalls[0].Images, 2)
	assert.Equal(t, []byte("ref"), fake.imageCalls[0].Images[1].Data)
}

func TestEditSceneFilterRejection(t *testing.T) {
	fake := &fakeClient{
		imageFn: func(req genai.ImageRequest) (*genai.ImageResult, error) {
			return &genai.ImageResult{FilterReason: "no image in response"}, nil
		},
	}
	svc, _ := newTestService(fake)

	_, err := svc.EditScene(context.Background(), rootScene(), models.Settings{}, "something")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "content filter")
}

func TestEditSceneValidation(t *testing.T) {
	fake := &fakeClient{}
	svc, _ := newTestService(fake)

	scene := rootScene()
	scene.Image = nil
	_, err := svc.EditScene(context.Background(), scene, models.Settings{}, "x")
	assert.Error(t, err)

	_, err = svc.EditScene(context.Background(), rootScene(), models.Settings{}, "")
	assert.Error(t, err)
	assert.Empty(t, fake.imageCalls)
}

func TestContinuityTags(t *testing.T) {
	fake := &fakeClient{
		structuredFn: structuredJSON(`{"tags":"market, dawn, yellow jacket, wide shot"}`),
	}
	svc, _ := newTestService(fake)

	tags, err := svc.ContinuityTags(context.Background(), rootScene())
	require.NoError(t, err)
	assert.Equal(t, "market, dawn, yellow jacket, wide shot", tags)
}

func TestContinuityTagsEmptyIsError(t *testing.T) {
	fake := &fakeClient{structuredFn: structuredJSON(`{"tags":""}`)}
	svc, _ := newTestService(fake)

	_, err := svc.ContinuityTags(context.Background(), rootScene())
	assert.Error(t, err)
}
