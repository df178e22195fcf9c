package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"golang.org/x/image/draw"

	"github.com/clipsniper/api/internal/config"
	"github.com/clipsniper/api/internal/facematch"
)

// FaceClient implements facematch.Detector against the face analysis
// microservice. Frames are sent as JPEG; oversized frames are downscaled
// first and the returned boxes mapped back to source pixels.
type FaceClient struct {
	httpClient *http.Client
	baseURL    string
	maxSide    int
}

type detectResponse struct {
	Faces []struct {
		BBox      [4]float64 `json:"bbox"`
		Embedding []float32  `json:"embedding"`
	} `json:"faces"`
}

// NewFaceClient creates a new face detection client
func NewFaceClient(cfg *config.FaceConfig) *FaceClient {
	return &FaceClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.ServiceURL,
		maxSide: cfg.MaxSide,
	}
}

// Detect returns the faces found in img
func (c *FaceClient) Detect(ctx context.Context, img image.Image) ([]facematch.Detection, error) {
	img, scale := downscale(img, c.maxSide)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	var result detectResponse
	if err := c.postImage(ctx, "/detect", buf.Bytes(), &result); err != nil {
		return nil, err
	}

	dets := make([]facematch.Detection, 0, len(result.Faces))
	for _, f := range result.Faces {
		dets = append(dets, facematch.Detection{
			Box: facematch.BoundingBox{
				X1: f.BBox[0] / scale,
				Y1: f.BBox[1] / scale,
				X2: f.BBox[2] / scale,
				Y2: f.BBox[3] / scale,
			},
			Embedding: f.Embedding,
		})
	}
	return dets, nil
}

// HealthCheck checks if the face service is available
func (c *FaceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("face service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *FaceClient) IsConfigured() bool {
	return c.baseURL != ""
}

// postImage uploads a JPEG as multipart field "image" and decodes the JSON reply
func (c *FaceClient) postImage(ctx context.Context, endpoint string, jpegData []byte, result interface{}) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", "frame.jpg")
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(jpegData); err != nil {
		return fmt.Errorf("failed to write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("face service error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

// downscale shrinks img so its longest side is at most maxSide and returns
// the applied scale factor.
func downscale(img image.Image, maxSide int) (image.Image, float64) {
	b := img.Bounds()
	longest := max(b.Dx(), b.Dy())
	if maxSide <= 0 || longest <= maxSide {
		return img, 1
	}

	scale := float64(maxSide) / float64(longest)
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst, scale
}
