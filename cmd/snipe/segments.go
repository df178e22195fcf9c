package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/clipsniper/api/internal/model"
	"github.com/clipsniper/api/internal/segment"
	"github.com/clipsniper/api/internal/video"
)

var segmentsCmd = &cobra.Command{
	Use:   "segments",
	Short: "Print the segments of the video that show the reference face",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		segments, err := findSegments(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printSegments(os.Stdout, segments)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(segmentsCmd)
}

// findSegments scans the video with a progress bar and groups the matches
func findSegments(ctx context.Context, o Options) ([]model.Segment, error) {
	if err := checkInputs(o); err != nil {
		return nil, err
	}

	codec := video.NewFFmpeg(video.Options{FFmpegPath: o.FFmpegPath, FFprobePath: o.FFprobePath})
	matcher := newMatcher(o, codec)

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("Scanning"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)
	res, err := matcher.Match(ctx, o.VideoPath, o.ImagePath, func(p int) {
		_ = bar.Set(p)
	})
	if err != nil {
		return nil, err
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	segments := segment.Build(res.Timestamps, res.FPS, o.MaxGap, o.MinDuration)
	fmt.Fprintf(os.Stderr, "%d of %d frames matched, %d segments\n", len(res.Timestamps), res.Frames, len(segments))
	return segments, nil
}

func printSegments(w io.Writer, segments []model.Segment) {
	if len(segments) == 0 {
		fmt.Fprintln(w, model.MessageNoMatch)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tDURATION")
	for _, s := range segments {
		fmt.Fprintf(tw, "%s\t%s\t%.2fs\n", fmtTime(s.Start), fmtTime(s.End), s.Duration())
	}
	tw.Flush()
}

func fmtTime(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", total/3600, total/60%60, total%60, int((seconds-float64(total))*1000))
}
