package video

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/clipsniper/api/internal/model"
)

// Assembler cuts matched segments out of a source video and joins them
type Assembler struct {
	codec   Codec
	tempDir string
}

// NewAssembler creates an assembler writing intermediates under tempDir
// (the system temp dir when empty).
func NewAssembler(codec Codec, tempDir string) *Assembler {
	return &Assembler{codec: codec, tempDir: tempDir}
}

// ScaledWidth keeps the aspect ratio for the target height, rounded down to
// an even number.
func ScaledWidth(width, height, targetHeight int) int {
	if height <= 0 {
		return width
	}
	w := width * targetHeight / height
	w -= w % 2
	if w < 2 {
		w = 2
	}
	return w
}

// Assemble writes the concatenation of segments of videoPath to outputPath.
// The source is scaled once to targetHeight before cutting; a targetHeight
// of zero keeps the original size. Intermediates are always removed, and
// outputPath is removed when assembly fails.
func (a *Assembler) Assemble(ctx context.Context, videoPath string, segments []model.Segment, outputPath string, targetHeight int) (err error) {
	if len(segments) == 0 {
		return model.ErrNoMatchingContent
	}

	work, err := os.MkdirTemp(a.tempDir, "assemble-*")
	if err != nil {
		return fmt.Errorf("%w: create work dir: %w", model.ErrAssembly, err)
	}
	defer os.RemoveAll(work)

	defer func() {
		if err != nil {
			os.Remove(outputPath)
		}
	}()

	source := videoPath
	if targetHeight > 0 {
		info, err := a.codec.Probe(ctx, videoPath)
		if err != nil {
			return fmt.Errorf("%w: probe source: %w", model.ErrAssembly, err)
		}
		if info.Height > 0 && info.Height != targetHeight {
			scaled := filepath.Join(work, "scaled.mp4")
			width := ScaledWidth(info.Width, info.Height, targetHeight)
			if err := a.codec.Scale(ctx, videoPath, scaled, width, targetHeight); err != nil {
				return fmt.Errorf("%w: scale to %dx%d: %w", model.ErrAssembly, width, targetHeight, err)
			}
			source = scaled
		}
	}

	parts := make([]string, 0, len(segments))
	for i, seg := range segments {
		part := filepath.Join(work, fmt.Sprintf("part_%04d.mp4", i))
		if err := a.codec.Cut(ctx, source, part, seg.Start, seg.End); err != nil {
			return fmt.Errorf("%w: cut segment %d: %w", model.ErrAssembly, i, err)
		}
		parts = append(parts, part)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("%w: create output dir: %w", model.ErrAssembly, err)
	}
	if err := a.codec.Concat(ctx, parts, outputPath); err != nil {
		return fmt.Errorf("%w: concat: %w", model.ErrAssembly, err)
	}

	log.Printf("Assembled %d segments into %s", len(segments), outputPath)
	return nil
}
