package jobs

import (
	"context"
	"fmt"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"trading-challenges/internal/logger"
)

// Scheduler runs registered jobs on their intervals. gocron's singleton
// mode keeps one run per job at a time; Job.Run guards against manual
// triggers overlapping a scheduled run.
type Scheduler struct {
	cron   gocron.Scheduler
	jobs   []*Job
	byName map[string]*Job
	ctx    context.Context
	cancel context.CancelFunc
	log    *logrus.Entry
}

func NewScheduler(jobs ...*Job) (*Scheduler, error) {
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron,
		byName: make(map[string]*Job, len(jobs)),
		ctx:    ctx,
		cancel: cancel,
		log:    logger.Component("scheduler"),
	}
	for _, j := range jobs {
		if err := s.add(j); err != nil {
			cancel()
			_ = cron.Shutdown()
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(j *Job) error {
	if _, dup := s.byName[j.name]; dup {
		return fmt.Errorf("duplicate job %q", j.name)
	}
	opts := []gocron.JobOption{
		gocron.WithName(j.name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if j.runAtStart {
		opts = append(opts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	_, err := s.cron.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() {
			// Run logs its own failures.
			_, _ = j.Run(s.ctx)
		}),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", j.name, err)
	}
	s.jobs = append(s.jobs, j)
	s.byName[j.name] = j
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	for _, j := range s.jobs {
		s.log.WithFields(logrus.Fields{"job": j.name, "interval": j.interval.String()}).Info("job scheduled")
	}
}

// Shutdown cancels in-flight runs and waits for them to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.cron.Shutdown()
}

// Job looks a registered job up by name.
func (s *Scheduler) Job(name string) (*Job, bool) {
	j, ok := s.byName[name]
	return j, ok
}

// Statuses lists every job's bookkeeping in registration order.
func (s *Scheduler) Statuses() []Status {
	out := make([]Status, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Status())
	}
	return out
}
