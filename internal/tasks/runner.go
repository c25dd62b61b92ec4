// Package tasks runs best-effort side effects off the request path.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"trading-challenges/internal/logger"
)

// Task is a unit of non-critical work. Returning an error schedules a retry.
type Task func(ctx context.Context) error

// Submitter accepts non-critical work. Submit never blocks and never fails
// the caller; a task that cannot be queued is logged and dropped.
type Submitter interface {
	Submit(name string, fn Task)
}

type Stats struct {
	Submitted int64 `json:"submitted"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

type job struct {
	name string
	fn   Task
}

// Runner executes tasks on a fixed pool of workers with exponential backoff.
type Runner struct {
	queue      chan job
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
	ctx        context.Context
	cancel     context.CancelFunc
	maxRetries uint64
	baseDelay  time.Duration
	log        *logrus.Entry

	submitted, succeeded, failed, dropped atomic.Int64
}

type Option func(*Runner)

// WithRetry sets the retry count and the first backoff delay.
func WithRetry(maxRetries uint64, baseDelay time.Duration) Option {
	return func(r *Runner) {
		r.maxRetries = maxRetries
		r.baseDelay = baseDelay
	}
}

func NewRunner(workers, queueSize int, opts ...Option) *Runner {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		queue:      make(chan job, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		maxRetries: 3,
		baseDelay:  100 * time.Millisecond,
		log:        logger.Component("tasks"),
	}
	for _, opt := range opts {
		opt(r)
	}

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

func (r *Runner) Submit(name string, fn Task) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		r.log.WithField("task", name).Warn("runner closed, task dropped")
		return
	}

	select {
	case r.queue <- job{name: name, fn: fn}:
		r.submitted.Add(1)
	default:
		r.dropped.Add(1)
		r.log.WithField("task", name).Warn("task queue full, task dropped")
	}
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for j := range r.queue {
		r.run(j)
	}
}

func (r *Runner) run(j job) {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.baseDelay))
	attempts := 0
	err := retry.Do(r.ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := j.fn(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		r.failed.Add(1)
		r.log.WithFields(logrus.Fields{"task": j.name, "attempts": attempts}).WithError(err).Warn("task failed")
		return
	}
	r.succeeded.Add(1)
}

func (r *Runner) Stats() Stats {
	return Stats{
		Submitted: r.submitted.Load(),
		Succeeded: r.succeeded.Load(),
		Failed:    r.failed.Load(),
		Dropped:   r.dropped.Load(),
	}
}

// Close stops accepting tasks and waits for queued ones. When ctx expires
// first, in-flight retries are cancelled.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}

// Inline runs each task once, synchronously. Errors are logged only.
type Inline struct{}

func (Inline) Submit(name string, fn Task) {
	if err := fn(context.Background()); err != nil {
		logger.Component("tasks").WithField("task", name).WithError(err).Warn("task failed")
	}
}
