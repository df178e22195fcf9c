package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clipsniper/api/internal/model"
)

type recordingHandler struct {
	mu        sync.Mutex
	processed []string
	cleaned   chan string
	block     chan struct{}
	started   chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		cleaned: make(chan string, 10),
		started: make(chan string, 10),
	}
}

func (h *recordingHandler) Process(ctx context.Context, task model.ClipTask) error {
	h.started <- task.JobID
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h.mu.Lock()
	h.processed = append(h.processed, task.JobID)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) Cleanup(_ context.Context, jobID string) error {
	h.cleaned <- jobID
	return nil
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("got %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

func TestLocalProcessesTasks(t *testing.T) {
	h := newRecordingHandler()
	q := NewLocal(2, 4)
	q.Start(h)

	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(context.Background(), model.ClipTask{JobID: id}); err != nil {
			t.Fatalf("Enqueue(%s) failed: %v", id, err)
		}
	}
	for i := 0; i < 3; i++ {
		select {
		case <-h.started:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for tasks")
		}
	}
	q.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.processed) != 3 {
		t.Errorf("processed %v, want 3 tasks", h.processed)
	}
}

func TestLocalBackpressure(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	q := NewLocal(1, 1)
	q.Start(h)
	defer q.Close()

	if err := q.Enqueue(context.Background(), model.ClipTask{JobID: "running"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitFor(t, h.started, "running")

	if err := q.Enqueue(context.Background(), model.ClipTask{JobID: "waiting"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(context.Background(), model.ClipTask{JobID: "rejected"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if q.Pending() != 1 {
		t.Errorf("pending = %d, want 1", q.Pending())
	}

	close(h.block)
	waitFor(t, h.started, "waiting")
}

func TestLocalScheduleCleanup(t *testing.T) {
	h := newRecordingHandler()
	q := NewLocal(1, 1)
	q.Start(h)
	defer q.Close()

	if err := q.ScheduleCleanup(context.Background(), "old", 10*time.Millisecond); err != nil {
		t.Fatalf("ScheduleCleanup failed: %v", err)
	}
	waitFor(t, h.cleaned, "old")
}

func TestLocalClose(t *testing.T) {
	h := newRecordingHandler()
	h.block = make(chan struct{})
	q := NewLocal(1, 2)
	q.Start(h)

	if err := q.Enqueue(context.Background(), model.ClipTask{JobID: "long"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	waitFor(t, h.started, "long")

	if err := q.ScheduleCleanup(context.Background(), "later", time.Hour); err != nil {
		t.Fatalf("ScheduleCleanup failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the running job")
	}

	if err := q.Enqueue(context.Background(), model.ClipTask{JobID: "late"}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}
