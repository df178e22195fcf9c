// Package facematch scans a video for frames containing a reference face.
package facematch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"

	"github.com/clipsniper/api/internal/model"
	"github.com/clipsniper/api/internal/video"
)

const (
	DefaultThreshold     = 0.5
	DefaultMaxCandidates = 3
	DefaultProgressEvery = 10
)

// VideoSource probes and decodes video files
type VideoSource interface {
	Probe(ctx context.Context, path string) (video.Info, error)
	Frames(ctx context.Context, path string) (video.FrameReader, error)
}

// ProgressFunc receives scan progress as a percentage
type ProgressFunc func(percent int)

// Config tunes matching. Threshold is used as given, zero included; a frame
// matches when its cosine similarity is strictly above it.
type Config struct {
	Threshold     float64
	MaxCandidates int
	ProgressEvery int
}

// Result holds what a scan found
type Result struct {
	FPS        float64
	Frames     int
	Timestamps []float64
}

// Matcher compares every frame of a video against a reference face
type Matcher struct {
	detector Detector
	source   VideoSource
	cfg      Config
}

// NewMatcher creates a matcher; zero MaxCandidates and ProgressEvery take
// the defaults.
func NewMatcher(detector Detector, source VideoSource, cfg Config) *Matcher {
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = DefaultMaxCandidates
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	return &Matcher{detector: detector, source: source, cfg: cfg}
}

// Reference returns the embedding of the first face found in the image.
func (m *Matcher) Reference(ctx context.Context, imagePath string) ([]float32, error) {
	img, err := DecodeImage(imagePath)
	if err != nil {
		return nil, err
	}

	dets, err := m.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect reference face: %w", err)
	}
	if len(dets) == 0 || len(dets[0].Embedding) == 0 {
		return nil, model.ErrNoFaceDetected
	}
	return dets[0].Embedding, nil
}

// Match scans videoPath frame by frame and records the timestamp of every
// frame holding a face similar to the one in imagePath. If decoding fails
// part way through, the timestamps collected so far are returned along with
// an error wrapping model.ErrVideoDecode.
func (m *Matcher) Match(ctx context.Context, videoPath, imagePath string, progress ProgressFunc) (Result, error) {
	ref, err := m.Reference(ctx, imagePath)
	if err != nil {
		return Result{}, err
	}

	info, err := m.source.Probe(ctx, videoPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", model.ErrVideoDecode, err)
	}
	if info.FPS <= 0 {
		return Result{}, fmt.Errorf("%w: invalid frame rate %v", model.ErrVideoDecode, info.FPS)
	}

	frames, err := m.source.Frames(ctx, videoPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", model.ErrVideoDecode, err)
	}
	defer frames.Close()

	res := Result{FPS: info.FPS}
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		img, err := frames.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			return res, fmt.Errorf("%w: frame %d: %v", model.ErrVideoDecode, idx, err)
		}

		dets, err := m.detector.Detect(ctx, img)
		if err != nil {
			return res, fmt.Errorf("detect faces in frame %d: %w", idx, err)
		}

		if m.matches(ref, dets) {
			res.Timestamps = append(res.Timestamps, float64(idx)/info.FPS)
		}
		res.Frames = idx + 1

		if progress != nil && info.FrameCount > 0 && idx%m.cfg.ProgressEvery == 0 {
			progress(int(math.Floor(float64(idx) / float64(info.FrameCount) * 100)))
		}
	}

	log.Printf("Scanned %d frames of %s, %d matched", res.Frames, videoPath, len(res.Timestamps))
	return res, nil
}

// matches reports whether any of the largest detections resembles ref.
func (m *Matcher) matches(ref []float32, dets []Detection) bool {
	for _, d := range largest(dets, m.cfg.MaxCandidates) {
		if CosineSimilarity(ref, d.Embedding) > m.cfg.Threshold {
			return true
		}
	}
	return false
}
