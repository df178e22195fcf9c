package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clipsniper/api/internal/model"
	"github.com/clipsniper/api/internal/video"
)

var (
	runOutput string
	runHeight int
	runAudio  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Write the scenes showing the reference face to a new video",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runClip(cmd.Context(), opts)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOutput, "out", "o", "", "Output video file")
	runCmd.Flags().IntVar(&runHeight, "height", 360, "Output height in pixels, 0 keeps the source size")
	runCmd.Flags().BoolVar(&runAudio, "audio", false, "Keep the audio track")
	_ = runCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(runCmd)
}

func runClip(ctx context.Context, o Options) error {
	segments, err := findSegments(ctx, o)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		fmt.Println(model.MessageNoMatch)
		return nil
	}
	printSegments(os.Stdout, segments)

	workDir, err := os.MkdirTemp("", "snipe-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)

	codec := video.NewFFmpeg(video.Options{
		FFmpegPath:  o.FFmpegPath,
		FFprobePath: o.FFprobePath,
		Audio:       runAudio,
	})
	assembler := video.NewAssembler(codec, workDir)

	out, err := filepath.Abs(runOutput)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Assembling clip...")
	if err := assembler.Assemble(ctx, o.VideoPath, segments, out, runHeight); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", out)
	return nil
}
