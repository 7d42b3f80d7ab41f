// Package pipeline implements the studio's multi-call workflows: storyboard
// scene generation, camera-angle derivation, in-place image edits, speech
// synthesis and video assembly. Each pipeline sequences its remote calls
// strictly in order, pacing consecutive image calls to respect backend rate
// limits, and keeps per-item failures local — one bad scene never sinks its
// siblings.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/reelsmith/storyboard/internal/genai"
	"github.com/reelsmith/storyboard/internal/models"
	"github.com/reelsmith/storyboard/internal/progress"
)

const (
	// imagePace is the unconditional pause between consecutive image
	// generations in one pipeline invocation. Not adaptive.
	imagePace = 15 * time.Second

	// videoPollInterval is the fixed sleep between video job status polls.
	videoPollInterval = 10 * time.Second
)

// Service runs every pipeline against one backend client.
type Service struct {
	backend genai.Client
	notify  *progress.Notifier

	// onStage, when set, is called as a pipeline crosses a lifecycle
	// boundary (e.g. breakdown done, image generation starting).
	onStage func(stage string)

	// sleep is the pacing clock; tests replace it to record delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates the pipeline service. notify may be nil (progress discarded).
func New(backend genai.Client, notify *progress.Notifier) *Service {
	return &Service{
		backend: backend,
		notify:  notify,
		sleep:   defaultSleep,
	}
}

// WithStageFunc registers a lifecycle-boundary callback.
func (s *Service) WithStageFunc(fn func(stage string)) *Service {
	s.onStage = fn
	return s
}

func (s *Service) stage(name string) {
	if s.onStage != nil {
		s.onStage(name)
	}
}

// WithSleep overrides the pacing clock for tests.
func (s *Service) WithSleep(sleep func(ctx context.Context, d time.Duration) error) *Service {
	s.sleep = sleep
	return s
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("pipeline cancelled: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

func (s *Service) publish(format string, args ...interface{}) {
	s.notify.Publish(fmt.Sprintf(format, args...))
}

// referenceCharacter returns the first roster character carrying a bound
// reference image, or nil. When present, that image rides along with every
// image call and forces the image-conditioned generation path so identity
// survives regardless of the user's model selection.
func referenceCharacter(settings models.Settings) *models.Character {
	for i := range settings.Characters {
		if settings.Characters[i].HasReferenceImage() {
			return &settings.Characters[i]
		}
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
