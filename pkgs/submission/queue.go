package submission

import (
	"context"
	"errors"
	"sync"

	"github.com/naveenchin/tt-backend/pkgs/metrics"
	log "github.com/sirupsen/logrus"
)

// ErrQueueClosed is returned for work submitted after Stop
var ErrQueueClosed = errors.New("submission queue closed")

type job struct {
	ctx  context.Context
	run  func(ctx context.Context) error
	done chan error
}

// Queue runs jobs one at a time in arrival order. It owns the critical
// section from nonce acquisition to broadcast for the signing account.
type Queue struct {
	jobs chan *job

	mu      sync.RWMutex
	closed  bool
	stopped chan struct{}
}

// NewQueue creates a queue holding up to size waiting jobs
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		jobs:    make(chan *job, size),
		stopped: make(chan struct{}),
	}
}

// Start launches the worker goroutine
func (q *Queue) Start() {
	go q.worker()
}

// Stop rejects new jobs and waits until queued jobs have drained
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.stopped
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	<-q.stopped
}

// Do runs fn on the worker and returns its result. If ctx is done before
// the job reaches the head of the queue, fn is never called.
func (q *Queue) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	j := &job{ctx: ctx, run: fn, done: make(chan error, 1)}

	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	select {
	case q.jobs <- j:
		metrics.QueueDepth.Inc()
	case <-ctx.Done():
		q.mu.RUnlock()
		return ctx.Err()
	}
	q.mu.RUnlock()

	// A job is never abandoned once enqueued; a signed transaction may
	// already be on the wire when ctx expires.
	return <-j.done
}

func (q *Queue) worker() {
	defer close(q.stopped)

	for j := range q.jobs {
		metrics.QueueDepth.Dec()
		if err := j.ctx.Err(); err != nil {
			log.WithError(err).Debug("Dropping submission whose request ended while queued")
			j.done <- err
			continue
		}
		j.done <- j.run(j.ctx)
	}
}
