// Package jobs drives the pipeline's periodic work across six queues:
// ingest, extract, embed, score, summarise, and email. Interval queues fire
// on a ticker, daily queues at a UTC wall-clock time. Each queue runs at
// most one task at a time; a firing is retried a bounded number of times
// and abandoned at the hard deadline. Daily queues are guarded by Postgres
// advisory-lock leader election so a single replica generates briefings and
// sends email.
package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidesignal/newsbrief/internal/platform/config"
	"github.com/tidesignal/newsbrief/internal/platform/observability"
	"github.com/tidesignal/newsbrief/internal/platform/schedule"
	"github.com/tidesignal/newsbrief/internal/platform/worker"
	db "github.com/tidesignal/newsbrief/internal/storage"
)

// Queue names. They label logs and metrics and key the advisory locks of
// the daily queues.
const (
	QueueIngest    = "ingest"
	QueueExtract   = "extract"
	QueueEmbed     = "embed"
	QueueScore     = "score"
	QueueSummarise = "summarise"
	QueueEmail     = "email"
)

const (
	// maxRetries bounds how many times a failed firing is rerun before it
	// is recorded as failed.
	maxRetries = 3

	retryBackoffBase = 30 * time.Second
	retryBackoffCap  = time.Minute

	backlogRefreshInterval = time.Minute

	statusSuccess = "success"
	statusError   = "error"

	logKeyQueue    = "queue"
	logKeyAttempt  = "attempt"
	logKeyInterval = "interval"
	logKeyAt       = "at"
)

// ErrHardDeadline reports a task that did not return within the hard time
// limit and was abandoned.
var ErrHardDeadline = errors.New("job exceeded hard time limit")

// Task is one unit of queue work. The context it receives carries the soft
// deadline; tasks must honor cancellation.
type Task func(ctx context.Context) error

// Job describes one queue. Exactly one of Interval or Daily should be set.
type Job struct {
	// Queue names the job in logs, metrics, and the advisory-lock key.
	Queue string

	// Interval fires the task on a fixed ticker when positive.
	Interval time.Duration

	// Daily fires the task at a UTC wall-clock time when non-nil.
	Daily *schedule.Clock

	// RunOnStart runs an interval job once immediately on startup.
	RunOnStart bool

	// Leader guards firings with advisory-lock leader election.
	Leader bool

	// Task does the work.
	Task Task
}

// Store is the storage surface the runner needs: advisory locks for leader
// election and status counts for the backlog gauge.
type Store interface {
	TryAcquireAdvisoryLock(ctx context.Context, lockID int64) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context, lockID int64) error
	CountItemsByStatus(ctx context.Context) (map[string]int, error)
}

// Compile-time assertion that *db.DB implements Store.
var _ Store = (*db.DB)(nil)

// Runner owns one goroutine per registered job and blocks in Run until the
// context is canceled.
type Runner struct {
	cfg       config.PipelineConfig
	store     Store
	jobs      []Job
	retryBase time.Duration
	retryCap  time.Duration
	logger    *zerolog.Logger
}

func NewRunner(cfg config.PipelineConfig, store Store, logger *zerolog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		store:     store,
		retryBase: retryBackoffBase,
		retryCap:  retryBackoffCap,
		logger:    logger,
	}
}

// Register adds a job. All jobs must be registered before Run.
func (r *Runner) Register(job Job) {
	r.jobs = append(r.jobs, job)
}

// Run schedules every registered job plus the backlog gauge refresher and
// blocks until the context is canceled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info().Int("jobs", len(r.jobs)).Msg("Starting job runner")

	var wg sync.WaitGroup

	for i := range r.jobs {
		job := r.jobs[i]

		wg.Add(1)

		go func() {
			defer wg.Done()

			r.runJob(ctx, job)
		}()
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		r.refreshBacklog(ctx)
	}()

	wg.Wait()

	r.logger.Info().Msg("Job runner stopped")

	return ctx.Err() //nolint:wrapcheck
}

func (r *Runner) runJob(ctx context.Context, job Job) {
	logger := r.logger.With().Str(logKeyQueue, job.Queue).Logger()

	switch {
	case job.Daily != nil:
		r.runDaily(ctx, job, &logger)
	case job.Interval > 0:
		r.runInterval(ctx, job, &logger)
	default:
		logger.Error().Msg("Job has no trigger, not scheduling")
	}
}

// runInterval fires the job on a fixed ticker. Firings never overlap: a run
// that overlaps the next tick delays it.
func (r *Runner) runInterval(ctx context.Context, job Job, logger *zerolog.Logger) {
	logger.Info().Dur(logKeyInterval, job.Interval).Msg("Queue scheduled")

	if job.RunOnStart {
		r.execute(ctx, job, logger)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.execute(ctx, job, logger)
		}
	}
}

// runDaily fires the job at each UTC occurrence of its clock time.
func (r *Runner) runDaily(ctx context.Context, job Job, logger *zerolog.Logger) {
	logger.Info().Str(logKeyAt, job.Daily.String()).Msg("Queue scheduled daily")

	for {
		next := job.Daily.Next(time.Now())
		if err := worker.WaitUntil(ctx, next); err != nil {
			return
		}

		r.execute(ctx, job, logger)
	}
}

// refreshBacklog keeps the per-status backlog gauge current while the
// runner is up.
func (r *Runner) refreshBacklog(ctx context.Context) {
	r.updateBacklogGauge(ctx)

	ticker := time.NewTicker(backlogRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.updateBacklogGauge(ctx)
		}
	}
}

// pipelineStatuses enumerates every status the backlog gauge tracks. All of
// them are set each refresh so a drained status drops back to zero.
var pipelineStatuses = []string{
	db.StatusNew,
	db.StatusExtracted,
	db.StatusEmbedded,
	db.StatusClustered,
	db.StatusScored,
}

func (r *Runner) updateBacklogGauge(ctx context.Context) {
	counts, err := r.store.CountItemsByStatus(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			r.logger.Warn().Err(err).Msg("failed to count pipeline backlog")
		}

		return
	}

	for _, status := range pipelineStatuses {
		observability.StageBacklog.WithLabelValues(status).Set(float64(counts[status]))
	}
}
