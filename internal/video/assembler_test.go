package video

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clipsniper/api/internal/model"
)

type fakeCodec struct {
	info      Info
	scaled    [][2]int
	cuts      []model.Segment
	failCutAt int
	workDirs  map[string]bool
}

func (c *fakeCodec) Probe(context.Context, string) (Info, error) { return c.info, nil }

func (c *fakeCodec) Frames(context.Context, string) (FrameReader, error) {
	return nil, errors.New("not implemented")
}

func (c *fakeCodec) Scale(_ context.Context, _, out string, w, h int) error {
	c.scaled = append(c.scaled, [2]int{w, h})
	c.workDirs[filepath.Dir(out)] = true
	return os.WriteFile(out, []byte("scaled"), 0o644)
}

func (c *fakeCodec) Cut(_ context.Context, _, out string, start, end float64) error {
	if c.failCutAt >= 0 && len(c.cuts) == c.failCutAt {
		return errors.New("encoder crashed")
	}
	c.cuts = append(c.cuts, model.Segment{Start: start, End: end})
	c.workDirs[filepath.Dir(out)] = true
	return os.WriteFile(out, []byte("part"), 0o644)
}

func (c *fakeCodec) Concat(_ context.Context, parts []string, out string) error {
	return os.WriteFile(out, []byte("joined"), 0o644)
}

func newFakeCodec(info Info) *fakeCodec {
	return &fakeCodec{info: info, failCutAt: -1, workDirs: map[string]bool{}}
}

func TestScaledWidth(t *testing.T) {
	tests := []struct{ w, h, target, want int }{
		{1920, 1080, 360, 640},
		{1280, 720, 360, 640},
		{1080, 1920, 360, 202},
		{641, 361, 360, 638},
	}
	for _, tt := range tests {
		if got := ScaledWidth(tt.w, tt.h, tt.target); got != tt.want {
			t.Errorf("ScaledWidth(%d, %d, %d) = %d, want %d", tt.w, tt.h, tt.target, got, tt.want)
		}
	}
}

func TestAssemble(t *testing.T) {
	dir := t.TempDir()
	codec := newFakeCodec(Info{Width: 1920, Height: 1080})
	a := NewAssembler(codec, dir)

	segments := []model.Segment{{Start: 1.0, End: 1.4}, {Start: 3.0, End: 3.1}}
	out := filepath.Join(dir, "output", "job.mp4")

	if err := a.Assemble(context.Background(), "in.mp4", segments, out, 360); err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}

	if len(codec.scaled) != 1 || codec.scaled[0] != [2]int{640, 360} {
		t.Errorf("scaled = %v, want one scale to 640x360", codec.scaled)
	}
	if len(codec.cuts) != 2 || codec.cuts[1] != segments[1] {
		t.Errorf("cuts = %v, want %v", codec.cuts, segments)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output missing: %v", err)
	}
	for d := range codec.workDirs {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("work dir %s was not removed", d)
		}
	}
}

func TestAssembleSkipsScaleAtTargetHeight(t *testing.T) {
	dir := t.TempDir()
	codec := newFakeCodec(Info{Width: 640, Height: 360})

	err := NewAssembler(codec, dir).Assemble(context.Background(), "in.mp4",
		[]model.Segment{{Start: 0, End: 1}}, filepath.Join(dir, "out.mp4"), 360)
	if err != nil {
		t.Fatalf("Assemble failed: %v", err)
	}
	if len(codec.scaled) != 0 {
		t.Errorf("expected no scaling, got %v", codec.scaled)
	}
}

func TestAssembleNoSegments(t *testing.T) {
	codec := newFakeCodec(Info{})
	err := NewAssembler(codec, t.TempDir()).Assemble(context.Background(), "in.mp4", nil, "out.mp4", 360)
	if !errors.Is(err, model.ErrNoMatchingContent) {
		t.Fatalf("expected ErrNoMatchingContent, got %v", err)
	}
}

func TestAssembleFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	codec := newFakeCodec(Info{Width: 1280, Height: 720})
	codec.failCutAt = 1

	out := filepath.Join(dir, "out.mp4")
	if err := os.WriteFile(out, []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := NewAssembler(codec, dir).Assemble(context.Background(), "in.mp4",
		[]model.Segment{{Start: 0, End: 1}, {Start: 2, End: 3}}, out, 360)
	if !errors.Is(err, model.ErrAssembly) {
		t.Fatalf("expected ErrAssembly, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial output was not removed")
	}
	for d := range codec.workDirs {
		if _, err := os.Stat(d); !os.IsNotExist(err) {
			t.Errorf("work dir %s was not removed", d)
		}
	}
}
