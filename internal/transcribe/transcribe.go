// Package transcribe converts uploaded voiceover audio to text via OpenAI
// Whisper. The studio uses the transcript to detect speaker names and seed
// new characters from them.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// Service wraps the Whisper transcription endpoint.
type Service struct {
	client *openai.Client
}

// New creates a transcription service. The api key is OpenAI's, separate
// from the generative backend's key.
func New(apiKey string) *Service {
	return &Service{client: openai.NewClient(apiKey)}
}

// Transcribe sends audio bytes to Whisper and returns the transcript text.
// filename is a hint for the API's format detection (required by the
// library), e.g. "voiceover.mp3".
func (s *Service) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if filename == "" {
		filename = "audio.mp3"
	}

	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: filename,
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription failed: %w", err)
	}

	log.Printf("[Transcribe] %d bytes of audio → %d chars of text", len(audio), len(resp.Text))
	return resp.Text, nil
}
