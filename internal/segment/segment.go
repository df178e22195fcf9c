// Package segment turns matched frame timestamps into playable time ranges.
package segment

import (
	"slices"

	"github.com/clipsniper/api/internal/model"
)

const (
	DefaultMaxGap      = 0.5
	DefaultMinDuration = 0.1
)

// epsilon absorbs rounding in frame timestamps (idx/fps) so that threshold
// comparisons behave the same at every position in the video.
const epsilon = 1e-9

// BuildDefault runs Build with the default gap and minimum duration.
func BuildDefault(timestamps []float64, fps float64) []model.Segment {
	return Build(timestamps, fps, DefaultMaxGap, DefaultMinDuration)
}

// Build merges timestamps at most maxGap apart into segments. Every segment
// is extended by one frame past its last timestamp, and segments shorter than
// minDuration are dropped; a segment exactly minDuration long is kept. The
// input slice is never modified.
func Build(timestamps []float64, fps, maxGap, minDuration float64) []model.Segment {
	if len(timestamps) == 0 || fps <= 0 {
		return nil
	}

	ts := timestamps
	if !slices.IsSorted(ts) {
		ts = slices.Clone(timestamps)
		slices.Sort(ts)
	}

	frame := 1 / fps
	var segments []model.Segment

	closeAt := func(start, end float64) {
		if end-start >= minDuration-epsilon {
			segments = append(segments, model.Segment{Start: start, End: end})
		}
	}

	start, prev := ts[0], ts[0]
	for _, t := range ts[1:] {
		if t-prev > maxGap+epsilon {
			// Never run past the next segment's start.
			closeAt(start, min(prev+frame, t))
			start = t
		}
		prev = t
	}
	closeAt(start, prev+frame)

	return segments
}
