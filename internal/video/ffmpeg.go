// Package video wraps ffmpeg for probing, frame decoding and clip assembly.
package video

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Info describes the first video stream of a file
type Info struct {
	Width      int
	Height     int
	FPS        float64
	FrameCount int
	Duration   float64
}

// Codec is the video IO backend used by the matcher and assembler
type Codec interface {
	Probe(ctx context.Context, path string) (Info, error)
	Frames(ctx context.Context, path string) (FrameReader, error)
	Scale(ctx context.Context, in, out string, width, height int) error
	Cut(ctx context.Context, in, out string, start, end float64) error
	Concat(ctx context.Context, parts []string, out string) error
}

// Options configures the ffmpeg backend
type Options struct {
	FFmpegPath  string
	FFprobePath string
	VideoCodec  string
	Preset      string
	CRF         int
	Audio       bool
}

// FFmpeg implements Codec with the ffmpeg and ffprobe binaries
type FFmpeg struct {
	opts   Options
	runner CommandRunner
}

// NewFFmpeg creates an ffmpeg backend; empty options take defaults.
func NewFFmpeg(opts Options) *FFmpeg {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.FFprobePath == "" {
		opts.FFprobePath = "ffprobe"
	}
	if opts.VideoCodec == "" {
		opts.VideoCodec = "libx264"
	}
	if opts.Preset == "" {
		opts.Preset = "veryfast"
	}
	if opts.CRF == 0 {
		opts.CRF = 23
	}
	return &FFmpeg{opts: opts, runner: ExecRunner{}}
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads stream geometry, frame rate and frame count with ffprobe.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Info, error) {
	res, err := f.runner.Run(ctx, f.opts.FFprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate,nb_frames:format=duration",
		"-of", "json",
		path,
	)
	if err != nil {
		return Info{}, err
	}
	return parseProbe(res.Stdout)
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Info{}, fmt.Errorf("no video stream found")
	}

	st := out.Streams[0]
	info := Info{Width: st.Width, Height: st.Height}

	info.FPS = parseRate(st.AvgFrameRate)
	if info.FPS <= 0 {
		info.FPS = parseRate(st.RFrameRate)
	}
	info.Duration, _ = strconv.ParseFloat(out.Format.Duration, 64)

	if n, err := strconv.Atoi(st.NbFrames); err == nil && n > 0 {
		info.FrameCount = n
	} else if info.Duration > 0 && info.FPS > 0 {
		info.FrameCount = int(math.Round(info.Duration * info.FPS))
	}
	return info, nil
}

// parseRate parses an ffprobe rational such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}

// Frames decodes every frame of path as MJPEG piped through stdout.
func (f *FFmpeg) Frames(ctx context.Context, path string) (FrameReader, error) {
	stream, err := f.runner.Stream(ctx, f.opts.FFmpegPath,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-vsync", "0",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"-",
	)
	if err != nil {
		return nil, err
	}
	return newMJPEGReader(stream), nil
}

func (f *FFmpeg) encodeArgs() []string {
	args := []string{"-c:v", f.opts.VideoCodec, "-preset", f.opts.Preset, "-crf", strconv.Itoa(f.opts.CRF), "-pix_fmt", "yuv420p"}
	if f.opts.Audio {
		return append(args, "-c:a", "aac")
	}
	return append(args, "-an")
}

// Scale re-encodes in to the given frame size.
func (f *FFmpeg) Scale(ctx context.Context, in, out string, width, height int) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error", "-i", in,
		"-vf", fmt.Sprintf("scale=%d:%d", width, height)}
	args = append(args, f.encodeArgs()...)
	args = append(args, out)

	_, err := f.runner.Run(ctx, f.opts.FFmpegPath, args...)
	return err
}

// Cut re-encodes the range [start, end) of in.
func (f *FFmpeg) Cut(ctx context.Context, in, out string, start, end float64) error {
	args := []string{"-y", "-hide_banner", "-loglevel", "error",
		"-ss", formatSeconds(start),
		"-i", in,
		"-t", formatSeconds(end - start)}
	args = append(args, f.encodeArgs()...)
	args = append(args, out)

	_, err := f.runner.Run(ctx, f.opts.FFmpegPath, args...)
	return err
}

// Concat joins parts, which share one encoding, with the concat demuxer.
func (f *FFmpeg) Concat(ctx context.Context, parts []string, out string) error {
	if len(parts) == 0 {
		return fmt.Errorf("nothing to concatenate")
	}

	var list strings.Builder
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}

	listPath := filepath.Join(filepath.Dir(parts[0]), "concat.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	_, err := f.runner.Run(ctx, f.opts.FFmpegPath,
		"-y", "-hide_banner", "-loglevel", "error",
		"-f", "concat", "-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		out,
	)
	return err
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
