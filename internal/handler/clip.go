package handler

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipsniper/api/internal/config"
	"github.com/clipsniper/api/internal/model"
	"github.com/clipsniper/api/internal/queue"
	"github.com/clipsniper/api/internal/service"
	"github.com/clipsniper/api/internal/storage"
	"github.com/clipsniper/api/pkg/response"
)

// retryAfterSeconds is sent with 503 responses when the queue is full
const retryAfterSeconds = 30

// ClipService is what the handler needs from the job manager
type ClipService interface {
	Submit(ctx context.Context, in service.SubmitInput) (*model.SubmitResponse, error)
	Status(ctx context.Context, jobID string) (*model.Job, error)
}

type ClipHandler struct {
	service   ClipService
	validator *validator.Validate
	limits    config.StorageConfig
}

func NewClipHandler(svc ClipService, v *validator.Validate, limits config.StorageConfig) *ClipHandler {
	return &ClipHandler{
		service:   svc,
		validator: v,
		limits:    limits,
	}
}

// Submit handles POST /api/clips
func (h *ClipHandler) Submit(c *fiber.Ctx) error {
	video, err := c.FormFile("video")
	if err != nil {
		return response.ValidationError(c, "video file is required", nil)
	}
	image, err := c.FormFile("image")
	if err != nil {
		return response.ValidationError(c, "image file is required", nil)
	}

	form := model.SubmitForm{
		VideoName: video.Filename,
		VideoSize: video.Size,
		ImageName: image.Filename,
		ImageSize: image.Size,
	}
	if err := h.validator.Struct(&form); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	if h.limits.MaxVideoSize > 0 && video.Size > h.limits.MaxVideoSize {
		return response.ValidationError(c, fmt.Sprintf("Video exceeds %dMB limit", h.limits.MaxVideoSize>>20), map[string]interface{}{
			"maxSize":  h.limits.MaxVideoSize,
			"fileSize": video.Size,
		})
	}
	if h.limits.MaxImageSize > 0 && image.Size > h.limits.MaxImageSize {
		return response.ValidationError(c, fmt.Sprintf("Image exceeds %dMB limit", h.limits.MaxImageSize>>20), map[string]interface{}{
			"maxSize":  h.limits.MaxImageSize,
			"fileSize": image.Size,
		})
	}

	vf, err := video.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open video")
	}
	defer vf.Close()

	imf, err := image.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open image")
	}
	defer imf.Close()

	result, err := h.service.Submit(c.UserContext(), service.SubmitInput{
		Video:     vf,
		VideoName: video.Filename,
		Image:     imf,
		ImageName: image.Filename,
	})
	switch {
	case err == nil:
		return response.Accepted(c, result)
	case errors.Is(err, queue.ErrQueueFull):
		return response.QueueFull(c, retryAfterSeconds)
	case errors.Is(err, storage.ErrTooLarge):
		return response.ValidationError(c, "Upload exceeds size limit", nil)
	default:
		log.Printf("Failed to submit clip job: %v", err)
		return response.ServiceError(c, "Failed to submit job")
	}
}

// Status handles GET /api/clips/:jobId/status
func (h *ClipHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if !model.ValidJobID(jobID) {
		return response.NotFound(c, "Job not found")
	}

	job, err := h.service.Status(c.UserContext(), jobID)
	switch {
	case err == nil:
		return response.OK(c, model.NewStatusResponse(job))
	case errors.Is(err, model.ErrUnknownJob):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, model.ErrStorage):
		log.Printf("Unreadable status for job %s: %v", jobID, err)
		return response.OK(c, model.StatusResponse{
			JobID: jobID,
			Done:  false,
			Error: "status record unreadable",
		})
	default:
		return response.ServiceError(c, err.Error())
	}
}

// Get handles GET /api/clips/:jobId
func (h *ClipHandler) Get(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if !model.ValidJobID(jobID) {
		return response.NotFound(c, "Job not found")
	}

	job, err := h.service.Status(c.UserContext(), jobID)
	switch {
	case err == nil:
		return response.OK(c, job)
	case errors.Is(err, model.ErrUnknownJob):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, model.ErrStorage):
		return response.StorageError(c, "status record unreadable")
	default:
		return response.ServiceError(c, err.Error())
	}
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
