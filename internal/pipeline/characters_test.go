package pipeline

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelsmith/storyboard/internal/models"
)

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	return f.text, f.err
}

func TestDescribeCharacter(t *testing.T) {
	fake := &fakeClient{
		structuredFn: structuredJSON(`{"description":"a tall courier in a yellow jacket","style":"vector caricature"}`),
	}
	svc, _ := newTestService(fake)

	c := models.Character{
		ID:          uuid.New(),
		Name:        "Ada",
		RefImage:    []byte("photo"),
		RefMimeType: "image/jpeg",
	}

	description, style, err := svc.DescribeCharacter(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "a tall courier in a yellow jacket", description)
	assert.Equal(t, "vector caricature", style)
}

func TestDescribeCharacterRequiresImage(t *testing.T) {
	fake := &fakeClient{}
	svc, _ := newTestService(fake)

	_, _, err := svc.DescribeCharacter(context.Background(), models.Character{Name: "Ada"})
	assert.Error(t, err)
	assert.Empty(t, fake.structuredCalls)
}

func TestDescribeCharacterEmptyDescriptionIsError(t *testing.T) {
	fake := &fakeClient{
		structuredFn: structuredJSON(`{"description":"","style":""}`),
	}
	svc, _ := newTestService(fake)

	c := models.Character{Name: "Ada", RefImage: []byte("x"), RefMimeType: "image/png"}
	_, _, err := svc.DescribeCharacter(context.Background(), c)
	assert.Error(t, err)
}

func TestDetectCharacterNames(t *testing.T) {
	tr := &fakeTranscriber{text: "Narrator: It begins.\nAda: Here.\nChidi: And here.\nAda: Again."}

	names, err := DetectCharacterNames(context.Background(), tr, []byte("audio"), "vo.mp3", roster("Ada"))
	require.NoError(t, err)

	// Narrator and roster members excluded, duplicates collapsed,
	// appearance order kept.
	assert.Equal(t, []string{"Chidi"}, names)
}

func TestDetectCharacterNamesTranscriptionError(t *testing.T) {
	tr := &fakeTranscriber{err: assert.AnError}
	_, err := DetectCharacterNames(context.Background(), tr, []byte("audio"), "vo.mp3", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transcription failed")
}

func TestNameFromFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ada_okafor.png", "Ada Okafor"},
		{"chidi-eze.jpeg", "Chidi Eze"},
		{"/uploads/MAMA.nkechi.webp", "Mama Nkechi"},
		{"...", ""},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, NameFromFilename(c.in), "input %q", c.in)
	}
}
