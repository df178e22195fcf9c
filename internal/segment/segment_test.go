package segment

import (
	"math"
	"math/rand"
	"testing"

	"github.com/clipsniper/api/internal/model"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		timestamps []float64
		fps        float64
		want       []model.Segment
	}{
		{
			name:       "empty input",
			timestamps: nil,
			fps:        10,
			want:       nil,
		},
		{
			name:       "merge and split",
			timestamps: []float64{1.0, 1.2, 1.3, 3.0},
			fps:        10,
			want:       []model.Segment{{Start: 1.0, End: 1.4}, {Start: 3.0, End: 3.1}},
		},
		{
			name:       "gap equal to max gap merges",
			timestamps: []float64{2.0, 2.5},
			fps:        10,
			want:       []model.Segment{{Start: 2.0, End: 2.6}},
		},
		{
			name:       "single frame at min duration is kept",
			timestamps: []float64{0.0},
			fps:        10,
			want:       []model.Segment{{Start: 0.0, End: 0.1}},
		},
		{
			name:       "single frame at two seconds is kept",
			timestamps: []float64{2.0},
			fps:        10,
			want:       []model.Segment{{Start: 2.0, End: 2.1}},
		},
		{
			name:       "segment shorter than min duration is dropped",
			timestamps: []float64{4.0},
			fps:        25,
			want:       nil,
		},
		{
			name:       "unsorted input",
			timestamps: []float64{5.0, 5.1, 1.0, 1.1},
			fps:        10,
			want:       []model.Segment{{Start: 1.0, End: 1.2}, {Start: 5.0, End: 5.2}},
		},
		{
			name:       "invalid fps",
			timestamps: []float64{1.0, 1.1},
			fps:        0,
			want:       nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildDefault(tt.timestamps, tt.fps)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d segments %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if !almostEqual(got[i].Start, tt.want[i].Start) || !almostEqual(got[i].End, tt.want[i].End) {
					t.Errorf("segment %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestBuildDoesNotMutateInput(t *testing.T) {
	in := []float64{3.0, 1.0, 2.0}
	BuildDefault(in, 25)
	if in[0] != 3.0 || in[1] != 1.0 || in[2] != 2.0 {
		t.Errorf("input was modified: %v", in)
	}
}

func TestBuildProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	fps := 24.0

	for round := 0; round < 200; round++ {
		var ts []float64
		for i := 0; i < 500; i++ {
			if rng.Float64() < 0.3 {
				ts = append(ts, float64(i)/fps)
			}
		}

		segments := BuildDefault(ts, fps)
		for i, seg := range segments {
			if seg.End <= seg.Start {
				t.Fatalf("round %d: segment %d has non-positive length: %+v", round, i, seg)
			}
			if seg.Duration() < DefaultMinDuration-1e-9 {
				t.Fatalf("round %d: segment %d shorter than minimum: %+v", round, i, seg)
			}
			if i > 0 && seg.Start < segments[i-1].End {
				t.Fatalf("round %d: segments %d and %d overlap", round, i-1, i)
			}
		}
	}
}

func TestBuildCoversTimestamps(t *testing.T) {
	fps := 10.0
	ts := []float64{0.0, 0.1, 0.2, 0.3, 2.0, 2.1, 2.2}
	segments := BuildDefault(ts, fps)

	for _, x := range ts {
		covered := 0
		for _, seg := range segments {
			if x >= seg.Start && x < seg.End {
				covered++
			}
		}
		if covered != 1 {
			t.Errorf("timestamp %.2f covered by %d segments, want 1", x, covered)
		}
	}
}

func TestBuildSingleFrameThreshold(t *testing.T) {
	for _, fps := range []float64{10, 24, 25, 30, 50} {
		frame := 1 / fps
		for i := 0; i < 200; i++ {
			ts := []float64{float64(i) / fps}

			kept := Build(ts, fps, DefaultMaxGap, frame)
			if len(kept) != 1 {
				t.Errorf("fps %v frame %d: one-frame segment at min duration gave %v, want kept", fps, i, kept)
			}

			dropped := Build(ts, fps, DefaultMaxGap, 1.5*frame)
			if len(dropped) != 0 {
				t.Errorf("fps %v frame %d: one-frame segment below min duration gave %v, want dropped", fps, i, dropped)
			}
		}
	}
}

func TestBuildGapThreshold(t *testing.T) {
	for _, fps := range []float64{10, 24, 30, 50} {
		half := int(fps / 2)
		for i := 0; i < 200; i++ {
			atGap := []float64{float64(i) / fps, float64(i+half) / fps}
			if got := Build(atGap, fps, 0.5, 0); len(got) != 1 {
				t.Errorf("fps %v frame %d: gap of exactly 0.5s gave %d segments, want 1", fps, i, len(got))
			}

			pastGap := []float64{float64(i) / fps, float64(i+half+1) / fps}
			if got := Build(pastGap, fps, 0.5, 0); len(got) != 2 {
				t.Errorf("fps %v frame %d: gap of one frame over 0.5s gave %d segments, want 2", fps, i, len(got))
			}
		}
	}
}
