package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/reelsmith/storyboard/internal/genai"
)

// fakeClient implements genai.Client with per-method hooks and call
// recording. Unhooked methods fail loudly so a test never silently exercises
// a path it didn't stub.
type fakeClient struct {
	mu sync.Mutex

	structuredFn func(instruction string, images []genai.InlineImage, out interface{}) error
	imageFn      func(req genai.ImageRequest) (*genai.ImageResult, error)
	speechFn     func(req genai.SpeechRequest) ([]byte, error)
	startFn      func(req genai.VideoJobRequest) (string, error)
	pollFn       func(jobRef string) (*genai.VideoJobStatus, error)
	downloadFn   func(uri string) ([]byte, error)

	structuredCalls []string
	imageCalls      []genai.ImageRequest
	speechCalls     []genai.SpeechRequest
	startCalls      []genai.VideoJobRequest
	pollCalls       int
	downloadCalls   []string
}

func (f *fakeClient) GenerateStructured(ctx context.Context, instruction string, images []genai.InlineImage, out interface{}) error {
	f.mu.Lock()
	f.structuredCalls = append(f.structuredCalls, instruction)
	f.mu.Unlock()
	if f.structuredFn == nil {
		return fmt.Errorf("unexpected GenerateStructured call")
	}
	return f.structuredFn(instruction, images, out)
}

func (f *fakeClient) GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageResult, error) {
	f.mu.Lock()
	f.imageCalls = append(f.imageCalls, req)
	f.mu.Unlock()
	if f.imageFn == nil {
		return nil, fmt.Errorf("unexpected GenerateImage call")
	}
	return f.imageFn(req)
}

func (f *fakeClient) GenerateSpeech(ctx context.Context, req genai.SpeechRequest) ([]byte, error) {
	f.mu.Lock()
	f.speechCalls = append(f.speechCalls, req)
	f.mu.Unlock()
	if f.speechFn == nil {
		return nil, fmt.Errorf("unexpected GenerateSpeech call")
	}
	return f.speechFn(req)
}

func (f *fakeClient) StartVideoJob(ctx context.Context, req genai.VideoJobRequest) (string, error) {
	f.mu.Lock()
	f.startCalls = append(f.startCalls, req)
	f.mu.Unlock()
	if f.startFn == nil {
		return "", fmt.Errorf("unexpected StartVideoJob call")
	}
	return f.startFn(req)
}

func (f *fakeClient) PollVideoJob(ctx context.Context, jobRef string) (*genai.VideoJobStatus, error) {
	f.mu.Lock()
	f.pollCalls++
	f.mu.Unlock()
	if f.pollFn == nil {
		return nil, fmt.Errorf("unexpected PollVideoJob call")
	}
	return f.pollFn(jobRef)
}

func (f *fakeClient) DownloadVideo(ctx context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	f.downloadCalls = append(f.downloadCalls, uri)
	f.mu.Unlock()
	if f.downloadFn == nil {
		return nil, fmt.Errorf("unexpected DownloadVideo call")
	}
	return f.downloadFn(uri)
}

// structuredJSON returns a structuredFn that unmarshals the given JSON into
// the out parameter on every call.
func structuredJSON(payload string) func(string, []genai.InlineImage, interface{}) error {
	return func(_ string, _ []genai.InlineImage, out interface{}) error {
		return json.Unmarshal([]byte(payload), out)
	}
}

// structuredRouted returns a structuredFn that picks a canned JSON payload by
// instruction substring, failing loudly on instructions with no route.
func structuredRouted(routes map[string]string) func(string, []genai.InlineImage, interface{}) error {
	return func(instruction string, _ []genai.InlineImage, out interface{}) error {
		for marker, payload := range routes {
			if strings.Contains(instruction, marker) {
				return json.Unmarshal([]byte(payload), out)
			}
		}
		return fmt.Errorf("no canned response for instruction %q", instruction)
	}
}

// newTestService wires the fake client into a pipeline service with an
// instant, recording clock.
func newTestService(f *fakeClient) (*Service, *[]time.Duration) {
	delays := &[]time.Duration{}
	s := New(f, nil).WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
	return s, delays
}
