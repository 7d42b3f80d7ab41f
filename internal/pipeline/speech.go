package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/prompt"
)

// Voice presets. The multi-speaker pool is assigned round-robin in speaker
// detection order, cycling when speakers outnumber presets. Single-speaker
// scripts use the narrator or character preset directly.
var (
	multiSpeakerVoicePool = []string{"Puck", "Kore", "Charon", "Aoede", "Fenrir", "Zephyr"}

	narratorVoice  = "Charon"
	characterVoice = "Puck"
)

// speakerMarker matches a leading "Name:" speaker tag. Word characters and
// single spaces only; names with punctuation are intentionally not matched.
var speakerMarker = regexp.MustCompile(`^(\w+(?: \w+)*):`)

// DetectSpeakers scans the script line by line for leading "Name:" markers
// and returns, in first-appearance order, every marker that case-insensitively
// matches "Narrator" or a roster character name.
func DetectSpeakers(script string, characters []models.Character) []string {
	known := map[string]string{"narrator": "Narrator"}
	for _, c := range characters {
		if c.Name != "" {
			known[strings.ToLower(c.Name)] = c.Name
		}
	}

	var speakers []string
	seen := map[string]bool{}
	for _, line := range strings.Split(script, "\n") {
		m := speakerMarker.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		canonical, ok := known[strings.ToLower(m[1])]
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		speakers = append(speakers, canonical)
	}
	return speakers
}

// GenerateSpeech converts a dialogue or narration script into synthesized
// audio. More than one detected speaker ⇒ a single multi-speaker
// conversational job with round-robin voice assignment; one or zero speakers
// (defaulting to "Narrator") ⇒ single-speaker synthesis wrapped in a
// style-appropriate delivery instruction. An empty script yields nil audio.
func (s *Service) GenerateSpeech(ctx context.Context, script string, settings models.Settings) ([]byte, error) {
	if strings.TrimSpace(script) == "" {
		return nil, nil
	}

	speakers := DetectSpeakers(script, settings.Characters)

	var req genai.SpeechRequest
	if len(speakers) > 1 {
		s.publish("Synthesizing a %d-voice conversation...", len(speakers))
		req.Text = script
		req.Speakers = make([]genai.SpeakerVoice, len(speakers))
		for i, speaker := range speakers {
			req.Speakers[i] = genai.SpeakerVoice{
				Speaker: speaker,
				Voice:   multiSpeakerVoicePool[i%len(multiSpeakerVoicePool)],
			}
		}
	} else {
		sole := "Narrator"
		if len(speakers) == 1 {
			sole = speakers[0]
		}
		voice := narratorVoice
		if sole != "Narrator" {
			voice = characterVoice
		}
		s.publish("Synthesizing voiceover...")
		req.Text = prompt.SingleSpeakerDelivery(script, settings.ImageStyle)
		req.Voice = voice
	}

	audio, err := s.backend.GenerateSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("TTS generation failed: %w", err)
	}
	return audio, nil
}
