// Package scheduler admits queued jobs one at a time, in creation order.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mkweon/cafe-archiver/internal/archiver"
)

// DefaultPollInterval is the queue polling period.
const DefaultPollInterval = 5 * time.Second

// JobRunner executes one claimed job to completion and writes its own
// terminal status.
type JobRunner interface {
	Execute(ctx context.Context, job archiver.Job)
}

// Scheduler polls the job store and runs at most one job at a time.
// Admission is a single transactional claim on the store: "transition the
// oldest queued job to running, only if nothing is running", so concurrent
// scheduler instances cannot double-admit.
type Scheduler struct {
	jobs     archiver.JobStore
	runner   JobRunner
	clock    archiver.Clock
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(jobs archiver.JobStore, runner JobRunner, clock archiver.Clock, interval time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		jobs:     jobs,
		runner:   runner,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks, ticking until the context finishes. Each tick claims and runs
// at most one job; the tick timer does not advance while a job is running,
// so jobs never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick claims the next job, if any, and runs it synchronously. The runner
// owns outcome bookkeeping; a panic escaping it is caught here so one bad
// job cannot kill the scheduling loop (the runner has already recorded the
// failure at that point).
func (s *Scheduler) tick(ctx context.Context) {
	job, claimed, err := s.jobs.ClaimNextJob(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("job claim failed", zap.Error(err))
		return
	}
	if !claimed {
		return
	}

	s.logger.Info("job claimed", zap.String("job_id", job.ID))
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job run panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
			)
		}
	}()
	s.runner.Execute(ctx, job)
}
