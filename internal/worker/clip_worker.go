package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/clipsniper/api/internal/model"
	"github.com/clipsniper/api/internal/queue"
)

// ClipWorker runs clip tasks delivered by the asynq server
type ClipWorker struct {
	handler queue.Handler
}

// NewClipWorker creates a new clip worker
func NewClipWorker(handler queue.Handler) *ClipWorker {
	return &ClipWorker{handler: handler}
}

// Register binds the worker to its task types
func (w *ClipWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TaskTypeProcess, w.ProcessTask)
	mux.HandleFunc(queue.TaskTypeCleanup, w.CleanupTask)
}

// ProcessTask handles clip:process tasks
func (w *ClipWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task model.ClipTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("failed to unmarshal clip task: %v: %w", err, asynq.SkipRetry)
	}
	if !model.ValidJobID(task.JobID) {
		return fmt.Errorf("invalid job id %q: %w", task.JobID, asynq.SkipRetry)
	}

	log.Printf("Received clip task for job %s", task.JobID)
	return w.handler.Process(ctx, task)
}

// CleanupTask handles clip:cleanup tasks
func (w *ClipWorker) CleanupTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.CleanupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal cleanup task: %v: %w", err, asynq.SkipRetry)
	}
	if !model.ValidJobID(payload.JobID) {
		return fmt.Errorf("invalid job id %q: %w", payload.JobID, asynq.SkipRetry)
	}
	return w.handler.Cleanup(ctx, payload.JobID)
}
