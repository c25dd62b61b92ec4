// Package jobs runs the periodic maintenance work: the challenge status
// sweep, the MT5 leaderboard poll and push endpoint cleanup.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"trading-challenges/internal/logger"
)

// ErrAlreadyRunning is returned by Run when the previous run has not finished.
var ErrAlreadyRunning = errors.New("job is already running")

// Func is one execution of a job. The result is kept as the job's last result.
type Func func(ctx context.Context) (interface{}, error)

// Status is a snapshot of a job's run history.
type Status struct {
	Name        string      `json:"name"`
	Interval    string      `json:"interval"`
	Running     bool        `json:"running"`
	LastRun     *time.Time  `json:"last_run"`
	LastSuccess *time.Time  `json:"last_success"`
	LastError   string      `json:"last_error,omitempty"`
	LastResult  interface{} `json:"last_result,omitempty"`
	Runs        int64       `json:"runs"`
	Skipped     int64       `json:"skipped"`
}

// Job wraps a Func with an overlap guard and run bookkeeping. It is safe to
// trigger from the scheduler and from HTTP at the same time; the loser of
// the race is skipped.
type Job struct {
	name       string
	interval   time.Duration
	timeout    time.Duration
	runAtStart bool
	fn         Func
	log        *logrus.Entry

	running sync.Mutex

	mu     sync.RWMutex
	status Status
}

type JobOption func(*Job)

// RunAtStart makes the scheduler fire the job immediately on start.
func RunAtStart() JobOption {
	return func(j *Job) { j.runAtStart = true }
}

// WithTimeout bounds a single run.
func WithTimeout(d time.Duration) JobOption {
	return func(j *Job) { j.timeout = d }
}

func NewJob(name string, interval time.Duration, fn Func, opts ...JobOption) *Job {
	j := &Job{
		name:     name,
		interval: interval,
		fn:       fn,
		log:      logger.Component(name),
		status:   Status{Name: name, Interval: interval.String()},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Job) Name() string { return j.name }

// Run executes the job once unless a run is already in flight.
func (j *Job) Run(ctx context.Context) (interface{}, error) {
	if !j.running.TryLock() {
		j.mu.Lock()
		j.status.Skipped++
		j.mu.Unlock()
		j.log.Warn("previous run still in progress, skipping")
		return nil, ErrAlreadyRunning
	}
	defer j.running.Unlock()

	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	started := time.Now()
	j.mu.Lock()
	j.status.Running = true
	j.status.LastRun = &started
	j.status.Runs++
	j.mu.Unlock()

	result, err := j.fn(ctx)

	finished := time.Now()
	j.mu.Lock()
	j.status.Running = false
	if err != nil {
		j.status.LastError = err.Error()
	} else {
		j.status.LastError = ""
		j.status.LastSuccess = &finished
		j.status.LastResult = result
	}
	j.mu.Unlock()

	entry := j.log.WithField("duration", finished.Sub(started).String())
	if err != nil {
		entry.WithError(err).Error("job failed")
		return nil, err
	}
	entry.Debug("job finished")
	return result, nil
}

// Status returns a copy of the job's bookkeeping.
func (j *Job) Status() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}
