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

func roster(names ...string) []models.Character {
	out := make([]models.Character, len(names))
	for i, n := range names {
		out[i] = models.Character{ID: uuid.New(), Name: n}
	}
	return out
}

func TestDetectSpeakers(t *testing.T) {
	script := "NARRATOR: The city sleeps.\n" +
		"ada: Not tonight.\n" +
		"Stranger: Who goes there?\n" +
		"Ada: Still me.\n" +
		"Dr. Obi: punctuated names are not markers\n"

	speakers := DetectSpeakers(script, roster("Ada", "Chidi"))

	// Case-insensitive match, canonical casing, first-appearance order,
	// unknown and punctuated names ignored, no duplicates.
	assert.Equal(t, []string{"Narrator", "Ada"}, speakers)
}

func TestDetectSpeakersNoMarkers(t *testing.T) {
	speakers := DetectSpeakers("Just plain narration without any tags.", roster("Ada"))
	assert.Empty(t, speakers)
}

func TestGenerateSpeechEmptyScript(t *testing.T) {
	fake := &fakeClient{}
	svc, _ := newTestService(fake)

	audio, err := svc.GenerateSpeech(context.Background(), "   \n  ", models.Settings{})
	require.NoError(t, err)
	assert.Nil(t, audio)
	assert.Empty(t, fake.speechCalls)
}

func TestGenerateSpeechSingleNarrator(t *testing.T) {
	fake := &fakeClient{
		speechFn: func(req genai.SpeechRequest) ([]byte, error) { return []byte("wav"), nil },
	}
	svc, _ := newTestService(fake)

	audio, err := svc.GenerateSpeech(context.Background(), "The city sleeps.", models.Settings{ImageStyle: "Vector Toon"})
	require.NoError(t, err)
	assert.Equal(t, []byte("wav"), audio)

	require.Len(t, fake.speechCalls, 1)
	req := fake.speechCalls[0]
	assert.Equal(t, "Charon", req.Voice)
	assert.Empty(t, req.Speakers)
	assert.Contains(t, req.Text, "The city sleeps.")
	// Neutral delivery for non-regional styles.
	assert.NotContains(t, req.Text, "Nigerian accent")
}

func TestGenerateSpeechAccentedDeliveryForRegionalStyle(t *testing.T) {
	fake := &fakeClient{
		speechFn: func(req genai.SpeechRequest) ([]byte, error) { return []byte("wav"), nil },
	}
	svc, _ := newTestService(fake)

	_, err := svc.GenerateSpeech(context.Background(), "Wahala dey o.", models.Settings{ImageStyle: prompt.StyleNaijaCaricature})
	require.NoError(t, err)

	require.Len(t, fake.speechCalls, 1)
	assert.Contains(t, fake.speechCalls[0].Text, "Nigerian accent")
}

func TestGenerateSpeechSingleCharacterVoice(t *testing.T) {
	fake := &fakeClient{
		speechFn: func(req genai.SpeechRequest) ([]byte, error) { return []byte("wav"), nil },
	}
	svc, _ := newTestService(fake)

	_, err := svc.GenerateSpeech(context.Background(), "Ada: I know the way.", models.Settings{Characters: roster("Ada")})
	require.NoError(t, err)

	require.Len(t, fake.speechCalls, 1)
	assert.Equal(t, "Puck", fake.speechCalls[0].Voice)
}

func TestGenerateSpeechMultiSpeakerRoundRobin(t *testing.T) {
	fake := &fakeClient{
		speechFn: func(req genai.SpeechRequest) ([]byte, error) { return []byte("wav"), nil },
	}
	svc, _ := newTestService(fake)

	script := "Ada: Ready?\nNarrator: She was not.\nChidi: Let's go."
	_, err := svc.GenerateSpeech(context.Background(), script, models.Settings{Characters: roster("Ada", "Chidi")})
	require.NoError(t, err)

	require.Len(t, fake.speechCalls, 1)
	req := fake.speechCalls[0]
	// Multi-speaker: raw script, one pool voice per speaker in detection order.
	assert.Equal(t, script, req.Text)
	require.Len(t, req.Speakers, 3)
	assert.Equal(t, genai.SpeakerVoice{Speaker: "Ada", Voice: "Puck"}, req.Speakers[0])
	assert.Equal(t, genai.SpeakerVoice{Speaker: "Narrator", Voice: "Kore"}, req.Speakers[1])
	assert.Equal(t, genai.SpeakerVoice{Speaker: "Chidi", Voice: "Charon"}, req.Speakers[2])
}

func TestGenerateSpeechWrapsBackendError(t *testing.T) {
	fake := &fakeClient{
		speechFn: func(req genai.SpeechRequest) ([]byte, error) {
			return nil, assert.AnError
		},
	}
	svc, _ := newTestService(fake)

	_, err := svc.GenerateSpeech(context.Background(), "hello", models.Settings{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TTS generation failed")
}
