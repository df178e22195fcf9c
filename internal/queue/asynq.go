package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/clipsniper/api/internal/model"
)

const (
	TaskTypeProcess = "clip:process"
	TaskTypeCleanup = "clip:cleanup"

	QueueClips       = "clips"
	QueueMaintenance = "maintenance"
)

// CleanupPayload is the body of a clip:cleanup task
type CleanupPayload struct {
	JobID string `json:"jobId"`
}

// Asynq enqueues jobs to redis for an asynq worker server
type Asynq struct {
	client     *asynq.Client
	inspector  *asynq.Inspector
	maxPending int
	timeout    time.Duration

	// admit serializes the pending check with the enqueue that follows it.
	admit sync.Mutex
}

// NewAsynq creates a redis-backed queue. maxPending bounds queued plus
// running jobs; timeout bounds a single job and is ignored when zero.
func NewAsynq(opt asynq.RedisClientOpt, maxPending int, timeout time.Duration) *Asynq {
	return &Asynq{
		client:     asynq.NewClient(opt),
		inspector:  asynq.NewInspector(opt),
		maxPending: maxPending,
		timeout:    timeout,
	}
}

// NewProcessTask builds a clip:process task
func NewProcessTask(task model.ClipTask) (*asynq.Task, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeProcess, data), nil
}

// NewCleanupTask builds a clip:cleanup task
func NewCleanupTask(jobID string) (*asynq.Task, error) {
	data, err := json.Marshal(CleanupPayload{JobID: jobID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeCleanup, data), nil
}

// Enqueue rejects with ErrQueueFull once maxPending jobs are queued or
// running. Submits through one Asynq are admitted one at a time, so they
// cannot overshoot the limit together; separate processes sharing the redis
// queue still can, by at most one job each.
func (q *Asynq) Enqueue(ctx context.Context, task model.ClipTask) error {
	q.admit.Lock()
	defer q.admit.Unlock()

	if q.maxPending > 0 {
		info, err := q.inspector.GetQueueInfo(QueueClips)
		switch {
		case err == nil:
			if info.Pending+info.Active >= q.maxPending {
				return ErrQueueFull
			}
		case errors.Is(err, asynq.ErrQueueNotFound):
		default:
			return fmt.Errorf("failed to inspect queue: %w", err)
		}
	}

	t, err := NewProcessTask(task)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueClips),
		asynq.MaxRetry(0),
		asynq.TaskID(task.JobID),
		asynq.Retention(24 * time.Hour),
	}
	if q.timeout > 0 {
		opts = append(opts, asynq.Timeout(q.timeout))
	}

	if _, err := q.client.EnqueueContext(ctx, t, opts...); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

func (q *Asynq) ScheduleCleanup(ctx context.Context, jobID string, delay time.Duration) error {
	t, err := NewCleanupTask(jobID)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, t,
		asynq.Queue(QueueMaintenance),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(3),
		asynq.TaskID("cleanup:"+jobID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func (q *Asynq) Close() error {
	return errors.Join(q.client.Close(), q.inspector.Close())
}
