package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/observability"
	"github.com/tidesignal/newsbrief/internal/platform/worker"
)

const lockHashMultiplier = 31

// execute runs one scheduled firing of the job: leader election when
// configured, then the attempt loop.
func (r *Runner) execute(ctx context.Context, job Job, logger *zerolog.Logger) {
	if job.Leader && r.cfg.LeaderElection {
		r.executeAsLeader(ctx, job, logger)

		return
	}

	r.executeAttempts(ctx, job, logger)
}

func (r *Runner) executeAsLeader(ctx context.Context, job Job, logger *zerolog.Logger) {
	id := lockID(job.Queue)

	acquired, err := r.store.TryAcquireAdvisoryLock(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("failed to acquire lock")
		return
	}

	if !acquired {
		logger.Debug().Msg("did not acquire lock, skipping")

		return
	}

	defer func() {
		if err := r.store.ReleaseAdvisoryLock(ctx, id); err != nil {
			logger.Error().Err(err).Msg("failed to release lock")
		}
	}()

	r.executeAttempts(ctx, job, logger)
}

// executeAttempts runs the task until it succeeds or the retry budget is
// spent. Context cancellation ends the firing without recording an outcome.
func (r *Runner) executeAttempts(ctx context.Context, job Job, logger *zerolog.Logger) {
	start := time.Now()

	var err error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if waitErr := worker.Wait(ctx, r.backoff(attempt)); waitErr != nil {
				return
			}

			observability.JobRetries.WithLabelValues(job.Queue).Inc()
		}

		if err = r.attempt(ctx, job); err == nil {
			observability.JobRuns.WithLabelValues(job.Queue, statusSuccess).Inc()
			observability.JobDurationSeconds.WithLabelValues(job.Queue).Observe(time.Since(start).Seconds())

			return
		}

		if ctx.Err() != nil {
			return
		}

		logger.Warn().Err(err).Int(logKeyAttempt, attempt+1).Msg("Job attempt failed")
	}

	observability.JobRuns.WithLabelValues(job.Queue, statusError).Inc()
	observability.JobDurationSeconds.WithLabelValues(job.Queue).Observe(time.Since(start).Seconds())

	logger.Error().Err(err).Msg("Job failed, retries exhausted")
}

// attempt runs the task once. The task context carries the soft deadline;
// cancellation there is cooperative. The hard deadline bounds how long the
// runner waits before abandoning the attempt. An abandoned task's late send
// lands in the buffered channel instead of blocking.
func (r *Runner) attempt(ctx context.Context, job Job) error {
	softCtx, cancel := context.WithTimeout(ctx, r.cfg.SoftTimeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("job %s panicked: %v", job.Queue, rec)
			}
		}()

		done <- job.Task(softCtx)
	}()

	hard := time.NewTimer(r.cfg.HardTimeout)
	defer hard.Stop()

	select {
	case err := <-done:
		return err
	case <-hard.C:
		return fmt.Errorf("job %s: %w", job.Queue, ErrHardDeadline)
	}
}

// backoff returns the delay before the given retry, doubling from the base
// and capped.
func (r *Runner) backoff(attempt int) time.Duration {
	d := r.retryBase << (attempt - 1)
	if d > r.retryCap {
		return r.retryCap
	}

	return d
}

// lockID hashes a queue name to a Postgres advisory lock key. The prefix
// keeps the keys out of the way of other applications on the same database.
func lockID(queue string) int64 {
	var h int64

	for _, c := range "newsbrief:" + queue {
		h = lockHashMultiplier*h + int64(c)
	}

	return h
}
