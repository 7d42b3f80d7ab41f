// Package media shells out to ffmpeg for the local asset work the studio
// needs: pulling the final frame out of a generated clip so "extend from
// last frame" can seed a continuation scene, and probing clip durations.
package media

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type FFmpegService struct {
	tempDir string
}

func NewFFmpegService(tempDir string) *FFmpegService {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		panic(fmt.Sprintf("failed to create temp dir: %v", err))
	}
	return &FFmpegService{tempDir: tempDir}
}

// CreateTempFile returns a unique path inside the service's temp directory.
func (s *FFmpegService) CreateTempFile(name string) string {
	return filepath.Join(s.tempDir, fmt.Sprintf("%s_%s", uuid.New().String()[:8], name))
}

// Cleanup removes temp files, ignoring errors (files may not exist).
func (s *FFmpegService) Cleanup(paths ...string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}

// WriteTemp persists bytes to a fresh temp file and returns its path.
func (s *FFmpegService) WriteTemp(name string, data []byte) (string, error) {
	path := s.CreateTempFile(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return path, nil
}

// ExtractLastFrame pulls the final frame of a video as PNG bytes. This is
// the seed image for an "extend from last frame" continuation scene.
func (s *FFmpegService) ExtractLastFrame(ctx context.Context, videoPath string) ([]byte, error) {
	framePath := s.CreateTempFile("lastframe.png")
	defer s.Cleanup(framePath)

	// -sseof -0.1 seeks to just before the end of the stream; -update 1
	// keeps overwriting so the surviving image is the final frame.
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-sseof", "-0.1",
		"-i", videoPath,
		"-update", "1",
		"-frames:v", "1",
		"-y",
		framePath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg last-frame extraction failed: %w (%s)", err, truncate(stderr.String(), 300))
	}

	data, err := os.ReadFile(framePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted frame: %w", err)
	}

	log.Printf("[Media] Extracted last frame from %s (%d bytes)", filepath.Base(videoPath), len(data))
	return data, nil
}

// GetVideoDuration probes a video's duration in milliseconds.
func (s *FFmpegService) GetVideoDuration(ctx context.Context, videoPath string) (int, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration %q: %w", strings.TrimSpace(string(out)), err)
	}

	return int(seconds * 1000), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
