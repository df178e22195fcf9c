package video

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

const maxFrameSize = 32 * 1024 * 1024

// FrameReader yields decoded frames in presentation order.
type FrameReader interface {
	// Next returns io.EOF after the last frame.
	Next() (image.Image, error)
	Close() error
}

// SplitJPEG is a bufio.SplitFunc that cuts an MJPEG byte stream into
// individual JPEG images.
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start+2:], jpegEOI)
	if end == -1 {
		if atEOF {
			return 0, nil, io.ErrUnexpectedEOF
		}
		return 0, nil, nil
	}
	stop := start + 2 + end + 2
	return stop, data[start:stop], nil
}

type mjpegReader struct {
	stream  Stream
	scanner *bufio.Scanner
}

func newMJPEGReader(stream Stream) *mjpegReader {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 1024*1024), maxFrameSize)
	scanner.Split(SplitJPEG)
	return &mjpegReader{stream: stream, scanner: scanner}
}

func (r *mjpegReader) Next() (image.Image, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if err := r.stream.Wait(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}

	img, err := jpeg.Decode(bytes.NewReader(r.scanner.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (r *mjpegReader) Close() error {
	return r.stream.Close()
}
