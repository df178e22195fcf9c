package facematch

import (
	"context"
	"fmt"
	"image"
	"os"
	"slices"

	// Registered decoders for reference photos.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/clipsniper/api/internal/model"
)

// BoundingBox is a face rectangle in pixel coordinates
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Area returns the box area, zero for degenerate boxes
func (b BoundingBox) Area() float64 {
	w, h := b.X2-b.X1, b.Y2-b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Detection is one face found in a frame
type Detection struct {
	Box       BoundingBox `json:"box"`
	Embedding []float32   `json:"embedding"`
}

// Detector finds faces in a decoded image
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// DecodeImage reads an image file in any registered format.
func DecodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidImage, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidImage, err)
	}
	return img, nil
}

// largest returns up to n detections ordered by descending box area.
func largest(dets []Detection, n int) []Detection {
	if n <= 0 || len(dets) <= n {
		n = len(dets)
	}
	sorted := slices.Clone(dets)
	slices.SortStableFunc(sorted, func(a, b Detection) int {
		switch {
		case a.Box.Area() > b.Box.Area():
			return -1
		case a.Box.Area() < b.Box.Area():
			return 1
		}
		return 0
	})
	return sorted[:n]
}
