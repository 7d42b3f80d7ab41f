package worker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsmith/storyboard/internal/models"
)

// twoRootGeneration builds [root0, child0a, root1] with idle video states.
func twoRootGeneration() (*models.Generation, models.Scene, models.Scene, models.Scene) {
	genID := uuid.New()
	root0 := models.Scene{ID: uuid.New(), GenerationID: genID, Image: []byte("r0"), Prompt: "a market at dawn"}
	child0a := models.Scene{ID: uuid.New(), GenerationID: genID, Image: []byte("c0a"), ParentID: &root0.ID}
	root1 := models.Scene{ID: uuid.New(), GenerationID: genID, Image: []byte("r1")}

	g := &models.Generation{
		ID:     genID,
		Scenes: []models.Scene{root0, child0a, root1},
		VideoStates: []models.VideoState{
			models.NewVideoState(), models.NewVideoState(), models.NewVideoState(),
		},
	}
	return g, root0, child0a, root1
}

func TestExtendSceneSplicesContinuationChild(t *testing.T) {
	g, root0, _, root1 := twoRootGeneration()

	frame := []byte("last-frame")
	child, err := extendScene(g, root0.ID, frame, "image/png")
	require.NoError(t, err)

	// The new node lands at the end of root0's child block, before root1.
	require.Len(t, g.Scenes, 4)
	require.Len(t, g.VideoStates, 4)
	assert.Equal(t, child.ID, g.Scenes[2].ID)
	assert.Equal(t, root1.ID, g.Scenes[3].ID)

	require.NotNil(t, child.ParentID)
	assert.Equal(t, root0.ID, *child.ParentID)
	assert.Equal(t, frame, child.Image)
	assert.Equal(t, "image/png", child.MimeType)
	assert.Equal(t, root0.Prompt, child.Prompt)

	// The continuation starts a fresh workflow, untouched by the source's.
	assert.Equal(t, models.VideoStatusIdle, g.VideoStates[2].Status)
	assert.Empty(t, g.VideoStates[2].Clips)
}

func TestExtendSceneFromAngleChildKeepsRoot(t *testing.T) {
	g, root0, child0a, _ := twoRootGeneration()

	child, err := extendScene(g, child0a.ID, []byte("frame"), "image/png")
	require.NoError(t, err)

	// Extending an angle child still parents the new node on the root.
	require.NotNil(t, child.ParentID)
	assert.Equal(t, root0.ID, *child.ParentID)
	assert.Equal(t, child.ID, g.Scenes[2].ID)
}

func TestExtendSceneUnknownSceneFails(t *testing.T) {
	g, _, _, _ := twoRootGeneration()

	_, err := extendScene(g, uuid.New(), []byte("frame"), "image/png")
	require.Error(t, err)
	assert.Len(t, g.Scenes, 3)
}
