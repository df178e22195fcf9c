package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipsniper/api/internal/config"
	"github.com/clipsniper/api/internal/model"
	"github.com/clipsniper/api/internal/queue"
	"github.com/clipsniper/api/internal/service"
	"github.com/clipsniper/api/pkg/response"
)

type fakeClipService struct {
	submitErr error
	submitted []string
	jobs      map[string]*model.Job
	statusErr error
}

func (s *fakeClipService) Submit(_ context.Context, in service.SubmitInput) (*model.SubmitResponse, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	video, _ := io.ReadAll(in.Video)
	image, _ := io.ReadAll(in.Image)
	s.submitted = append(s.submitted, string(video)+"|"+string(image))
	return &model.SubmitResponse{
		JobID:     "job-1",
		State:     model.JobStateQueued,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}, nil
}

func (s *fakeClipService) Status(_ context.Context, jobID string) (*model.Job, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, model.ErrUnknownJob
	}
	return job, nil
}

func setupApp(svc ClipService) *fiber.App {
	h := NewClipHandler(svc, validator.New(), config.StorageConfig{
		MaxVideoSize: 64,
		MaxImageSize: 32,
	})
	app := fiber.New()
	clips := app.Group("/api/clips")
	clips.Post("/", h.Submit)
	clips.Get("/:jobId/status", h.Status)
	clips.Get("/:jobId", h.Get)
	return app
}

func strPtr(s string) *string { return &s }

func TestSubmit(t *testing.T) {
	svc := &fakeClipService{}
	app := setupApp(svc)

	resp := doMultipart(t, app, "/api/clips",
		upload{"video", "in.mp4", []byte("video-bytes")},
		upload{"image", "face.png", []byte("image-bytes")},
	)
	assertStatus(t, resp, http.StatusAccepted)

	body := parseJSON(t, resp)
	if body["jobId"] != "job-1" || body["state"] != "queued" {
		t.Errorf("unexpected body: %v", body)
	}
	if len(svc.submitted) != 1 || svc.submitted[0] != "video-bytes|image-bytes" {
		t.Errorf("unexpected submissions: %v", svc.submitted)
	}
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name  string
		files []upload
	}{
		{"missing video", []upload{{"image", "face.png", []byte("i")}}},
		{"missing image", []upload{{"video", "in.mp4", []byte("v")}}},
		{"empty video", []upload{{"video", "in.mp4", nil}, {"image", "face.png", []byte("i")}}},
		{"video too large", []upload{{"video", "in.mp4", make([]byte, 65)}, {"image", "face.png", []byte("i")}}},
		{"image too large", []upload{{"video", "in.mp4", []byte("v")}, {"image", "face.png", make([]byte, 33)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeClipService{}
			resp := doMultipart(t, setupApp(svc), "/api/clips", tt.files...)
			assertStatus(t, resp, http.StatusBadRequest)
			if code := errorCode(t, parseJSON(t, resp)); code != response.CodeValidationError {
				t.Errorf("code = %s", code)
			}
			if len(svc.submitted) != 0 {
				t.Error("invalid request reached the service")
			}
		})
	}
}

func TestSubmitQueueFull(t *testing.T) {
	app := setupApp(&fakeClipService{submitErr: fmt.Errorf("failed to queue job: %w", queue.ErrQueueFull)})

	resp := doMultipart(t, app, "/api/clips",
		upload{"video", "in.mp4", []byte("v")},
		upload{"image", "face.png", []byte("i")},
	)
	assertStatus(t, resp, http.StatusServiceUnavailable)
	if resp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if code := errorCode(t, parseJSON(t, resp)); code != response.CodeQueueFull {
		t.Errorf("code = %s", code)
	}
}

func TestStatus(t *testing.T) {
	svc := &fakeClipService{jobs: map[string]*model.Job{
		"running": {ID: "running", State: model.JobStateProcessing, Progress: 40},
		"done":    {ID: "done", State: model.JobStateDone, Progress: 100, OutputLocation: strPtr("http://x/media/output/done.mp4")},
		"nomatch": {ID: "nomatch", State: model.JobStateDone, Progress: 100, Message: model.MessageNoMatch},
		"failed":  {ID: "failed", State: model.JobStateFailed, Error: strPtr("no face found in reference image"), ErrorCode: model.CodeNoFaceDetected},
	}}
	app := setupApp(svc)

	tests := []struct {
		id   string
		want map[string]interface{}
	}{
		{"running", map[string]interface{}{"done": false, "progress": float64(40), "state": "processing"}},
		{"done", map[string]interface{}{"done": true, "outputUrl": "http://x/media/output/done.mp4"}},
		{"nomatch", map[string]interface{}{"done": false, "message": model.MessageNoMatch}},
		{"failed", map[string]interface{}{"done": false, "state": "failed", "errorCode": model.CodeNoFaceDetected}},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			resp, err := doRequest(app, http.MethodGet, "/api/clips/"+tt.id+"/status", nil, nil)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			assertStatus(t, resp, http.StatusOK)
			body := parseJSON(t, resp)
			if body["jobId"] != tt.id {
				t.Errorf("jobId = %v", body["jobId"])
			}
			for k, v := range tt.want {
				if body[k] != v {
					t.Errorf("%s = %v, want %v", k, body[k], v)
				}
			}
		})
	}
}

func TestStatusUnknownJob(t *testing.T) {
	app := setupApp(&fakeClipService{})

	for _, path := range []string{"/api/clips/missing/status", "/api/clips/bad..id/status", "/api/clips/missing"} {
		resp, err := doRequest(app, http.MethodGet, path, nil, nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		assertStatus(t, resp, http.StatusNotFound)
		if code := errorCode(t, parseJSON(t, resp)); code != response.CodeNotFound {
			t.Errorf("%s: code = %s", path, code)
		}
	}
}

func TestStatusUnreadableRecord(t *testing.T) {
	app := setupApp(&fakeClipService{statusErr: fmt.Errorf("%w: corrupt", model.ErrStorage)})

	resp, err := doRequest(app, http.MethodGet, "/api/clips/job-1/status", nil, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	if body["done"] != false || body["error"] != "status record unreadable" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestGetFullRecord(t *testing.T) {
	app := setupApp(&fakeClipService{jobs: map[string]*model.Job{
		"job-1": {ID: "job-1", State: model.JobStateDone, Segments: []model.Segment{{Start: 1, End: 2}}},
	}})

	resp, err := doRequest(app, http.MethodGet, "/api/clips/job-1", nil, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	segments, ok := body["segments"].([]interface{})
	if !ok || len(segments) != 1 {
		t.Errorf("unexpected segments: %v", body["segments"])
	}
}
