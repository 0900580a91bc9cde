package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var ErrQueueClosed = errors.New("queue: shut down")

type Job struct {
	Fn   func() error
	Errc chan error
}

// RequestQueueManager bounds the number of HTTP handlers running at once.
type RequestQueueManager struct {
	jobs    chan Job
	workers int
	log     zerolog.Logger
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func NewRequestQueueManager(queueSize int, maxWorkers int, log zerolog.Logger) *RequestQueueManager {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	q := &RequestQueueManager{
		jobs:    make(chan Job, queueSize),
		workers: maxWorkers,
		log:     log.With().Str("component", "queue").Logger(),
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.work(i)
	}
	return q
}

func (q *RequestQueueManager) work(id int) {
	defer q.wg.Done()
	q.log.Debug().Int("worker", id).Msg("worker started")
	for job := range q.jobs {
		err := q.run(job)
		if job.Errc != nil {
			job.Errc <- err
		}
	}
	q.log.Debug().Int("worker", id).Msg("worker stopped")
}

// run turns a handler panic into an error so one bad request cannot take a worker down.
func (q *RequestQueueManager) run(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Interface("panic", r).Msg("job panicked")
			err = fmt.Errorf("queue: job panicked: %v", r)
		}
	}()
	return job.Fn()
}

// Submit waits for room in the queue. It gives up when ctx ends first, which is how a
// disconnected client leaves the line, and fails once the queue has been shut down.
func (q *RequestQueueManager) Submit(ctx context.Context, job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Depth is the number of jobs waiting for a worker.
func (q *RequestQueueManager) Depth() int {
	return len(q.jobs)
}

// Shutdown stops accepting jobs, lets queued ones finish and waits for the workers.
func (q *RequestQueueManager) Shutdown() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	q.wg.Wait()
}
