// Package queue hands clip jobs to background workers.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/clipsniper/api/internal/model"
)

var (
	// ErrQueueFull is returned when no more jobs can be accepted right now.
	// Callers may retry later.
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Handler runs queued work
type Handler interface {
	Process(ctx context.Context, task model.ClipTask) error
	Cleanup(ctx context.Context, jobID string) error
}

// Queue accepts jobs and deferred cleanups
type Queue interface {
	Enqueue(ctx context.Context, task model.ClipTask) error
	ScheduleCleanup(ctx context.Context, jobID string, delay time.Duration) error
	Close() error
}
