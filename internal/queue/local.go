package queue

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/clipsniper/api/internal/model"
)

// Local runs jobs on a fixed number of goroutines fed by a bounded buffer.
// Enqueue never blocks; a full buffer yields ErrQueueFull.
type Local struct {
	tasks   chan model.ClipTask
	workers int

	mu      sync.Mutex
	closed  bool
	timers  map[string]*time.Timer
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewLocal(workers, size int) *Local {
	if workers < 1 {
		workers = 1
	}
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		tasks:   make(chan model.ClipTask, size),
		workers: workers,
		timers:  make(map[string]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start launches the workers. Tasks enqueued earlier are picked up.
func (q *Local) Start(h Handler) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	log.Printf("Local queue started with %d workers, capacity %d", q.workers, cap(q.tasks))
}

func (q *Local) Enqueue(_ context.Context, task model.ClipTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending returns the number of tasks waiting for a worker
func (q *Local) Pending() int {
	return len(q.tasks)
}

func (q *Local) ScheduleCleanup(_ context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if t, ok := q.timers[jobID]; ok {
		t.Stop()
	}
	q.timers[jobID] = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, jobID)
		h := q.handler
		q.mu.Unlock()
		if h == nil {
			return
		}
		if err := h.Cleanup(q.ctx, jobID); err != nil {
			log.Printf("Cleanup of job %s failed: %v", jobID, err)
		}
	})
	return nil
}

// Close stops accepting work, cancels running jobs and waits for workers.
// Pending cleanups are dropped.
func (q *Local) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for id, t := range q.timers {
		t.Stop()
		delete(q.timers, id)
	}
	close(q.tasks)
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	return nil
}

func (q *Local) work(n int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.run(n, task)
		}
	}
}

func (q *Local) run(n int, task model.ClipTask) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker %d: job %s panicked: %v", n, task.JobID, r)
		}
	}()

	q.mu.Lock()
	h := q.handler
	q.mu.Unlock()

	if err := h.Process(q.ctx, task); err != nil {
		log.Printf("Worker %d: job %s: %v", n, task.JobID, err)
	}
}
