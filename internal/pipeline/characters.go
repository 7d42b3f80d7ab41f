package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/prompt"
)

// characterDescription is the structured shape of a describe call.
type characterDescription struct {
	Description string `json:"description"`
	Style       string `json:"style"`
}

// DescribeCharacter generates the character token (a precise casting
// description) and a detected visual-style label from the character's bound
// reference image. The caller owns the busy flag around this call.
func (s *Service) DescribeCharacter(ctx context.Context, c models.Character) (description, style string, err error) {
	if !c.HasReferenceImage() {
		return "", "", fmt.Errorf("character %q has no reference image to describe", c.Name)
	}

	s.publish("Studying %s's reference photo...", c.Name)

	var resp characterDescription
	images := []genai.InlineImage{{Data: c.RefImage, MimeType: c.RefMimeType}}
	if err := s.backend.GenerateStructured(ctx, prompt.DescribeCharacter(c.Name), images, &resp); err != nil {
		return "", "", fmt.Errorf("character description failed: %w", err)
	}
	if resp.Description == "" {
		return "", "", fmt.Errorf("character description came back empty")
	}
	return resp.Description, resp.Style, nil
}

// Transcriber turns raw audio into text. The OpenAI Whisper service in
// internal/transcribe implements it; tests use a fake.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// DetectCharacterNames transcribes an uploaded voiceover and returns, in
// order of appearance, speaker names found in the transcript that are not
// already on the roster and are not the narrator. These seed new empty
// Character records.
func DetectCharacterNames(ctx context.Context, tr Transcriber, audio []byte, filename string, roster []models.Character) ([]string, error) {
	text, err := tr.Transcribe(ctx, audio, filename)
	if err != nil {
		return nil, fmt.Errorf("voiceover transcription failed: %w", err)
	}

	onRoster := map[string]bool{"narrator": true}
	for _, c := range roster {
		onRoster[strings.ToLower(c.Name)] = true
	}

	var names []string
	seen := map[string]bool{}
	for _, line := range strings.Split(text, "\n") {
		m := speakerMarker.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		key := strings.ToLower(m[1])
		if onRoster[key] || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, m[1])
	}
	return names, nil
}

var filenameSeparators = regexp.MustCompile(`[_\-.]+`)

// NameFromFilename derives a display name from an uploaded file's name:
// "ada_okafor.png" → "Ada Okafor". Returns "" when nothing usable remains.
func NameFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = filenameSeparators.ReplaceAllString(base, " ")
	words := strings.Fields(base)
	if len(words) == 0 {
		return ""
	}
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
