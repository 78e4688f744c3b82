package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/backstead/backstead/internal/logging"
)

// Job is one unit of background work.
type Job struct {
	ID      string
	Type    string
	Payload map[string]any
}

// Queue accepts background jobs. Submitters decide what and when; retry
// policy belongs to the queue implementation, not the caller.
type Queue interface {
	Submit(jobType string, payload map[string]any) (string, error)
}

// Handler processes one job. Panics are contained per job.
type Handler func(ctx context.Context, job Job)

// Memory is an in-process queue backed by a buffered channel and a fixed
// worker pool. Jobs do not survive a process restart; the database rows
// they reference do, which is what makes interrupted work inspectable.
type Memory struct {
	jobs     chan Job
	handlers map[string]Handler
	mu       sync.RWMutex
	wg       sync.WaitGroup
	workers  int
}

func NewMemory(workers, depth int) *Memory {
	if workers <= 0 {
		workers = 4
	}
	if depth <= 0 {
		depth = 64
	}
	return &Memory{
		jobs:     make(chan Job, depth),
		handlers: make(map[string]Handler),
		workers:  workers,
	}
}

// Register binds a handler to a job type. Must happen before Start.
func (q *Memory) Register(jobType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = handler
}

// Start launches the worker pool. Workers drain until ctx is cancelled.
func (q *Memory) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
}

// Wait blocks until all workers have exited.
func (q *Memory) Wait() {
	q.wg.Wait()
}

func (q *Memory) worker(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			q.dispatch(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

func (q *Memory) dispatch(ctx context.Context, job Job) {
	q.mu.RLock()
	handler, ok := q.handlers[job.Type]
	q.mu.RUnlock()

	if !ok {
		logging.L().Error("queue_unknown_job_type", "job_id", job.ID, "type", job.Type)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			logging.L().Error("queue_job_panic", "job_id", job.ID, "type", job.Type, "panic", r)
		}
	}()

	logging.L().Info("queue_job_start", "job_id", job.ID, "type", job.Type)
	handler(ctx, job)
}

// Submit enqueues a job without blocking. A full queue is an error the
// caller records rather than a wait.
func (q *Memory) Submit(jobType string, payload map[string]any) (string, error) {
	job := Job{
		ID:      "job-" + uuid.New().String()[:8],
		Type:    jobType,
		Payload: payload,
	}

	select {
	case q.jobs <- job:
		return job.ID, nil
	default:
		return "", fmt.Errorf("job queue is full")
	}
}
