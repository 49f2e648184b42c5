// Package jobs runs named batch jobs on fixed intervals with run
// bookkeeping and optional cross-process single-flight locking.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwyatt/polywatch/internal/domain"
)

// Func is the body of a batch job. It must honour ctx cancellation.
type Func func(ctx context.Context) error

// Job is one periodic batch job.
type Job struct {
	// Name identifies the job in the run log and in lock keys.
	Name string

	// Interval is the time between run starts. Runs never overlap within a
	// process; a tick that fires while the previous run is still executing
	// is coalesced into at most one pending run.
	Interval time.Duration

	// Timeout bounds a single run. Zero means no per-run deadline beyond
	// the parent context.
	Timeout time.Duration

	// Run is the job body.
	Run Func

	// Singleton requests a distributed lock around each run so only one
	// process executes the job at a time. Requires a lock manager on the
	// runner; ignored otherwise.
	Singleton bool
}

// Runner executes a set of jobs until the context is cancelled. Each job
// gets its own ticker goroutine; run outcomes are recorded through the job
// store.
type Runner struct {
	store  domain.JobStore
	locks  domain.LockManager
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a Runner. locks may be nil, in which case Singleton
// jobs run without cross-process exclusion.
func NewRunner(store domain.JobStore, locks domain.LockManager, logger *slog.Logger) *Runner {
	return &Runner{
		store:  store,
		locks:  locks,
		logger: logger.With(slog.String("component", "jobs")),
		now:    time.Now,
	}
}

// Run drives a single job loop. Call in a goroutine per job. The first run
// happens one interval after start; returns ctx.Err() on cancellation.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("jobs: job needs a name and a body")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("jobs: job %s needs a positive interval", job.Name)
	}

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx, job)
		}
	}
}

// runOnce executes one run of the job, acquiring the distributed lock for
// singleton jobs and recording the outcome. A held lock is a skip, not a
// failure.
func (r *Runner) runOnce(ctx context.Context, job Job) {
	if job.Singleton && r.locks != nil {
		ttl := job.Interval
		if job.Timeout > 0 && job.Timeout > ttl {
			ttl = job.Timeout
		}
		release, err := r.locks.Acquire(ctx, "job:"+job.Name, ttl)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				r.logger.Debug("job skipped, lock held elsewhere", slog.String("job", job.Name))
				return
			}
			r.logger.Error("job lock acquire failed",
				slog.String("job", job.Name),
				slog.String("error", err.Error()))
			return
		}
		defer release()
	}

	runCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	started := r.now()
	if err := r.store.RecordStart(ctx, job.Name, started); err != nil {
		r.logger.Warn("job start bookkeeping failed",
			slog.String("job", job.Name),
			slog.String("error", err.Error()))
	}

	err := job.Run(runCtx)
	finished := r.now()
	elapsed := finished.Sub(started)

	if err != nil {
		r.logger.Error("job run failed",
			slog.String("job", job.Name),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		if recErr := r.store.RecordFailure(ctx, job.Name, finished, elapsed, err); recErr != nil {
			r.logger.Warn("job failure bookkeeping failed",
				slog.String("job", job.Name),
				slog.String("error", recErr.Error()))
		}
		return
	}

	r.logger.Debug("job run finished",
		slog.String("job", job.Name),
		slog.Duration("elapsed", elapsed))
	if recErr := r.store.RecordSuccess(ctx, job.Name, finished, elapsed); recErr != nil {
		r.logger.Warn("job success bookkeeping failed",
			slog.String("job", job.Name),
			slog.String("error", recErr.Error()))
	}
}
