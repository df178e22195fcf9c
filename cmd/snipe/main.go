// Command snipe cuts the scenes showing a given face out of a video
// without running the API server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clipsniper/api/internal/client"
	"github.com/clipsniper/api/internal/config"
	"github.com/clipsniper/api/internal/facematch"
	"github.com/clipsniper/api/internal/video"
)

// Version is the application version.
const Version = "0.1.0"

// Options holds flags shared by run and segments
type Options struct {
	VideoPath   string
	ImagePath   string
	Threshold   float64
	MaxGap      float64
	MinDuration float64
	FaceURL     string
	FFmpegPath  string
	FFprobePath string
}

var opts Options

var rootCmd = &cobra.Command{
	Use:     "snipe",
	Short:   "Extract the scenes of a video that show a reference face",
	Version: Version,
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	faceURL := os.Getenv("FACE_SERVICE_URL")
	if faceURL == "" {
		faceURL = "http://localhost:8085"
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.VideoPath, "video", "v", "", "Input video file")
	pf.StringVarP(&opts.ImagePath, "image", "i", "", "Reference face image")
	pf.Float64VarP(&opts.Threshold, "threshold", "t", facematch.DefaultThreshold, "Face matching threshold")
	pf.Float64Var(&opts.MaxGap, "max-gap", 0.5, "Largest gap in seconds merged into one segment")
	pf.Float64Var(&opts.MinDuration, "min-duration", 0.1, "Segments must be longer than this many seconds")
	pf.StringVar(&opts.FaceURL, "face-url", faceURL, "Face detection service URL")
	pf.StringVar(&opts.FFmpegPath, "ffmpeg", "ffmpeg", "Path to ffmpeg")
	pf.StringVar(&opts.FFprobePath, "ffprobe", "ffprobe", "Path to ffprobe")
	_ = rootCmd.MarkPersistentFlagRequired("video")
	_ = rootCmd.MarkPersistentFlagRequired("image")
}

// newMatcher wires the face service and ffmpeg into a matcher
func newMatcher(o Options, codec *video.FFmpeg) *facematch.Matcher {
	faces := client.NewFaceClient(&config.FaceConfig{
		ServiceURL: o.FaceURL,
		Timeout:    30,
		MaxSide:    1280,
	})
	return facematch.NewMatcher(faces, codec, facematch.Config{Threshold: o.Threshold})
}

func checkInputs(o Options) error {
	for _, p := range []string{o.VideoPath, o.ImagePath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("input file %s: %w", p, err)
		}
	}
	return nil
}
