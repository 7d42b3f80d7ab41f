// Package genai wraps the remote generative backend behind the five
// operation shapes the studio uses: structured JSON (with or without input
// images), image generation/editing, speech synthesis, and async video jobs.
//
// Every call goes through the shared retry policy — no shape bypasses it.
// Safety filtering is explicitly set to the least-restrictive threshold on
// all image and video calls; content shaping is done at the prompt level and
// filter-triggered empty results are a normal, recoverable outcome.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/reelsmith/storyboard/internal/retry"
)

// Default model identifiers for each operation shape.
const (
	TextModel        = "gemini-2.5-flash"
	ImageEditModel   = "gemini-2.5-flash-image-preview" // image-conditioned generation and edits
	TextToImageModel = "imagen-4.0-generate-001"        // text-to-image, structured aspect ratio
	SpeechModel      = "gemini-2.5-flash-preview-tts"
	VideoModel       = "veo-3.1-generate-preview"
)

// InlineImage is one binary image input or output.
type InlineImage struct {
	Data     []byte
	MimeType string
}

// ImageRequest describes one image generation or edit call.
type ImageRequest struct {
	Model       string // ImageEditModel or TextToImageModel
	Instruction string
	Images      []InlineImage // reference/base images; forces the image-conditioned path
	AspectRatio string        // passed structurally on the text-to-image path
}

// ImageResult is the outcome of an image call. A nil Image with a non-empty
// FilterReason means the backend succeeded but returned no image — treated
// as a content-filter rejection, not an exception.
type ImageResult struct {
	Image        *InlineImage
	FilterReason string
}

// SpeakerVoice maps one detected speaker to a prebuilt voice preset.
type SpeakerVoice struct {
	Speaker string
	Voice   string
}

// SpeechRequest describes one synthesis call. Speakers empty ⇒ single-speaker
// using Voice; otherwise a multi-speaker conversational job.
type SpeechRequest struct {
	Text     string
	Voice    string
	Speakers []SpeakerVoice
}

// VideoJobRequest describes one async video generation submission.
type VideoJobRequest struct {
	Model       string
	Instruction string
	Image       InlineImage
	AspectRatio string
	Resolution  string
}

// VideoJobStatus is the polled state of an async job. JobRef is the
// provider's opaque handle, replayed verbatim; only the documented
// done/error/uri surface is interpreted.
type VideoJobStatus struct {
	JobRef     string
	Done       bool
	Error      string
	URI        string
	VideoBytes []byte
}

// Client is the interface the pipelines program against; Service is the real
// backend implementation. Tests substitute fakes.
type Client interface {
	GenerateStructured(ctx context.Context, instruction string, images []InlineImage, out interface{}) error
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error)
	GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error)
	StartVideoJob(ctx context.Context, req VideoJobRequest) (string, error)
	PollVideoJob(ctx context.Context, jobRef string) (*VideoJobStatus, error)
	DownloadVideo(ctx context.Context, uri string) ([]byte, error)
}

// Service talks to the Gemini API. One Service is shared by all pipelines.
type Service struct {
	apiKey string
	policy *retry.Policy
	http   *http.Client
}

var _ Client = (*Service)(nil)

// NewService creates the backend client. policy must not be nil — it is the
// sole transient-failure recovery for every remote call.
func NewService(apiKey string, policy *retry.Policy) *Service {
	return &Service{
		apiKey: apiKey,
		policy: policy,
		http:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (s *Service) client(ctx context.Context) (*genai.Client, error) {
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return c, nil
}

// safetyOff disables backend filtering for the four standard harm categories.
// Content shaping is handled by prompt-level mandates instead.
func safetyOff() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, len(categories))
	for i, c := range categories {
		settings[i] = &genai.SafetySetting{Category: c, Threshold: genai.HarmBlockThresholdBlockNone}
	}
	return settings
}

func contents(instruction string, images []InlineImage) []*genai.Content {
	parts := []*genai.Part{genai.NewPartFromText(instruction)}
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

// GenerateStructured issues a text(+image) call demanding a JSON object and
// unmarshals it into out. Missing or non-conforming output fails loudly:
// downstream pipeline steps cannot proceed without the structured data.
func (s *Service) GenerateStructured(ctx context.Context, instruction string, images []InlineImage, out interface{}) error {
	return s.policy.Do(ctx, "structured generation", func() error {
		client, err := s.client(ctx)
		if err != nil {
			return err
		}

		resp, err := client.Models.GenerateContent(ctx, TextModel, contents(instruction, images), &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			SafetySettings:   safetyOff(),
		})
		if err != nil {
			return fmt.Errorf("structured generation request failed: %w", err)
		}

		text := responseText(resp)
		if text == "" {
			return fmt.Errorf("structured generation returned no text output")
		}
		if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
			return fmt.Errorf("structured generation returned non-conforming JSON: %w", err)
		}
		return nil
	})
}

// GenerateImage runs one image generation or edit. Requests carrying input
// images always use the image-conditioned model regardless of req.Model.
func (s *Service) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if req.Model == TextToImageModel && len(req.Images) == 0 {
		return s.generateImagen(ctx, req)
	}
	return s.generateConditioned(ctx, req)
}

// generateConditioned uses the multimodal model: instruction plus zero or
// more reference images in, inline image data out.
func (s *Service) generateConditioned(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	var result *ImageResult
	err := s.policy.Do(ctx, "image generation", func() error {
		client, err := s.client(ctx)
		if err != nil {
			return err
		}

		resp, err := client.Models.GenerateContent(ctx, ImageEditModel, contents(req.Instruction, req.Images), &genai.GenerateContentConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			SafetySettings:     safetyOff(),
		})
		if err != nil {
			return fmt.Errorf("image generation request failed: %w", err)
		}

		result = extractImage(resp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// generateImagen is the text-to-image path; the aspect ratio travels as a
// structured parameter, never as prompt text.
func (s *Service) generateImagen(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	var result *ImageResult
	err := s.policy.Do(ctx, "image generation", func() error {
		client, err := s.client(ctx)
		if err != nil {
			return err
		}

		resp, err := client.Models.GenerateImages(ctx, TextToImageModel, req.Instruction, &genai.GenerateImagesConfig{
			NumberOfImages: 1,
			AspectRatio:    req.AspectRatio,
		})
		if err != nil {
			return fmt.Errorf("image generation request failed: %w", err)
		}

		if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil || len(resp.GeneratedImages[0].Image.ImageBytes) == 0 {
			result = &ImageResult{FilterReason: "the model returned no image, possibly blocked by the content filter"}
			return nil
		}
		img := resp.GeneratedImages[0].Image
		mime := img.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		result = &ImageResult{Image: &InlineImage{Data: img.ImageBytes, MimeType: mime}}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GenerateSpeech synthesizes audio for a script, single- or multi-speaker.
func (s *Service) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	var audio []byte
	err := s.policy.Do(ctx, "speech synthesis", func() error {
		client, err := s.client(ctx)
		if err != nil {
			return err
		}

		speechConfig := &genai.SpeechConfig{}
		if len(req.Speakers) > 1 {
			voiceConfigs := make([]*genai.SpeakerVoiceConfig, len(req.Speakers))
			for i, sp := range req.Speakers {
				voiceConfigs[i] = &genai.SpeakerVoiceConfig{
					Speaker: sp.Speaker,
					VoiceConfig: &genai.VoiceConfig{
						PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: sp.Voice},
					},
				}
			}
			speechConfig.MultiSpeakerVoiceConfig = &genai.MultiSpeakerVoiceConfig{SpeakerVoiceConfigs: voiceConfigs}
		} else {
			speechConfig.VoiceConfig = &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			}
		}

		resp, err := client.Models.GenerateContent(ctx, SpeechModel, contents(req.Text, nil), &genai.GenerateContentConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig:       speechConfig,
		})
		if err != nil {
			return fmt.Errorf("speech request failed: %w", err)
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part.InlineData != nil && len(part.InlineData.Data) > 0 {
					audio = part.InlineData.Data
					return nil
				}
			}
		}
		return fmt.Errorf("speech synthesis returned no audio data")
	})
	if err != nil {
		return nil, err
	}
	return audio, nil
}

// StartVideoJob submits one async video generation and returns the provider's
// opaque job handle.
func (s *Service) StartVideoJob(ctx context.Context, req VideoJobRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = VideoModel
	}

	var jobRef string
	err := s.policy.Do(ctx, "video submission", func() error {
		client, err := s.client(ctx)
		if err != nil {
			return err
		}

		firstFrame := &genai.Image{
			ImageBytes: req.Image.Data,
			MIMEType:   req.Image.MimeType,
		}
		op, err := client.Models.GenerateVideos(ctx, model, req.Instruction, firstFrame, &genai.GenerateVideosConfig{
			AspectRatio:      req.AspectRatio,
			Resolution:       req.Resolution,
			NumberOfVideos:   1,
			PersonGeneration: "allow_adult",
		})
		if err != nil {
			return fmt.Errorf("failed to start video generation: %w", err)
		}
		jobRef = op.Name
		log.Printf("[Veo] Video job started: %s", jobRef)
		return nil
	})
	if err != nil {
		return "", err
	}
	return jobRef, nil
}

// PollVideoJob fetches the state of a previously submitted job. The handle is
// replayed verbatim; only done/error/uri are interpreted. A job that reports
// done with no retrievable output is a content-filter rejection, not a
// silent success.
func (s *Service) PollVideoJob(ctx context.Context, jobRef string) (*VideoJobStatus, error) {
	var status *VideoJobStatus
	err := s.policy.Do(ctx, "video status poll", func() error {
		client, err := s.client(ctx)
		if err != nil {
			return err
		}

		op, err := client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: jobRef}, nil)
		if err != nil {
			return fmt.Errorf("failed to poll video job: %w", err)
		}

		status = &VideoJobStatus{JobRef: jobRef, Done: op.Done}
		if !op.Done {
			return nil
		}

		if len(op.Error) > 0 {
			errJSON, _ := json.Marshal(op.Error)
			status.Error = string(errJSON)
			return nil
		}
		if op.Response == nil || len(op.Response.GeneratedVideos) == 0 || op.Response.GeneratedVideos[0].Video == nil {
			reason := "video blocked, possibly by the content filter"
			if op.Response != nil && op.Response.RAIMediaFilteredCount > 0 && len(op.Response.RAIMediaFilteredReasons) > 0 {
				reason = "video blocked by safety filters: " + strings.Join(op.Response.RAIMediaFilteredReasons, ", ")
			}
			status.Error = reason
			return nil
		}

		video := op.Response.GeneratedVideos[0].Video
		status.URI = video.URI
		status.VideoBytes = video.VideoBytes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

// DownloadVideo fetches the finished asset from its signed, time-limited
// location, credentialed via the key query parameter. HTTP failures are
// classified so the user gets permission vs expired-link guidance.
func (s *Service) DownloadVideo(ctx context.Context, uri string) ([]byte, error) {
	var data []byte
	err := s.policy.Do(ctx, "video download", func() error {
		signed := uri
		if u, err := url.Parse(uri); err == nil {
			q := u.Query()
			q.Set("key", s.apiKey)
			u.RawQuery = q.Encode()
			signed = u.String()
		}

		req, err := http.NewRequestWithContext(ctx, "GET", signed, nil)
		if err != nil {
			return fmt.Errorf("failed to create download request: %w", err)
		}

		resp, err := s.http.Do(req)
		if err != nil {
			return fmt.Errorf("video download request failed: %w", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to read
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized:
			return fmt.Errorf("video download denied (status %d): the API key lacks permission to fetch this asset", resp.StatusCode)
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return fmt.Errorf("video download link expired (status %d): regenerate the video to get a fresh link", resp.StatusCode)
		default:
			return fmt.Errorf("video download returned status %d", resp.StatusCode)
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read video data: %w", err)
		}
		if len(data) == 0 {
			return fmt.Errorf("downloaded video is empty (0 bytes)")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// extractImage pulls the first inline image from a generateContent response.
// No image parts at all ⇒ content-filter rejection carrying any text the
// model produced as the reason.
func extractImage(resp *genai.GenerateContentResponse) *ImageResult {
	var textParts []string
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mime := part.InlineData.MIMEType
				if mime == "" {
					mime = "image/png"
				}
				return &ImageResult{Image: &InlineImage{Data: part.InlineData.Data, MimeType: mime}}
			}
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
		}
	}

	reason := "the model returned no image, possibly blocked by the content filter"
	if len(textParts) > 0 {
		reason = fmt.Sprintf("%s (model said: %s)", reason, truncate(textParts[0], 200))
	}
	return &ImageResult{FilterReason: reason}
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// stripFences removes a markdown code fence the model sometimes wraps JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
