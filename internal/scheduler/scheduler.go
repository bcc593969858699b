package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Job represents a scheduled job
type Job interface {
	Run(ctx context.Context) error
	Name() string
}

// JobFunc adapts a function to Job
type JobFunc struct {
	JobName string
	Fn      func(ctx context.Context) error
}

// Run calls Fn
func (j JobFunc) Run(ctx context.Context) error { return j.Fn(ctx) }

// Name returns JobName
func (j JobFunc) Name() string { return j.JobName }

// Scheduler runs jobs on cron schedules. A run that is still going when its
// next tick fires makes that tick a no-op.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	log  *logrus.Entry
}

// New creates a new scheduler. Jobs receive ctx.
func New(ctx context.Context, log *logrus.Logger) *Scheduler {
	entry := log.WithField("component", "scheduler")
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.PrintfLogger(entry)),
			cron.SkipIfStillRunning(cron.PrintfLogger(entry)),
		)),
		ctx: ctx,
		log: entry,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("Scheduler stopped")
}

// AddJob registers a job with a standard five-field cron spec or a
// descriptor such as "@monthly" or "@every 24h"
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.WithField("job", job.Name()).Debug("Running job")

		if err := job.Run(s.ctx); err != nil {
			s.log.WithError(err).WithField("job", job.Name()).Error("Job failed")
		} else {
			s.log.WithField("job", job.Name()).Debug("Job completed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s with %q: %w", job.Name(), schedule, err)
	}

	s.log.WithFields(logrus.Fields{
		"schedule": schedule,
		"job":      job.Name(),
	}).Info("Job registered")
	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.WithField("job", job.Name()).Info("Running job immediately")
	return job.Run(s.ctx)
}
