package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// JobStore implements domain.JobStore using PostgreSQL. One row per job name
// carries the latest run bookkeeping.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore creates a JobStore backed by the given connection pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

// RecordStart marks the job as started.
func (s *JobStore) RecordStart(ctx context.Context, jobName string, startedAt time.Time) error {
	const query = `
		INSERT INTO job_runs (job_name, last_started_at)
		VALUES ($1, $2)
		ON CONFLICT (job_name) DO UPDATE SET
			last_started_at = EXCLUDED.last_started_at`

	if _, err := s.pool.Exec(ctx, query, jobName, startedAt.UTC()); err != nil {
		return fmt.Errorf("postgres: record job start %s: %w", jobName, err)
	}
	return nil
}

// RecordSuccess marks the latest run as succeeded and clears the error
// fields.
func (s *JobStore) RecordSuccess(ctx context.Context, jobName string, finishedAt time.Time, duration time.Duration) error {
	const query = `
		UPDATE job_runs SET
			last_success_at  = $2,
			last_error       = NULL,
			last_error_at    = NULL,
			last_duration_ms = $3
		WHERE job_name = $1`

	if _, err := s.pool.Exec(ctx, query, jobName, finishedAt.UTC(), durationMillis(duration)); err != nil {
		return fmt.Errorf("postgres: record job success %s: %w", jobName, err)
	}
	return nil
}

// RecordFailure marks the latest run as failed with its error text.
func (s *JobStore) RecordFailure(ctx context.Context, jobName string, failedAt time.Time, duration time.Duration, runErr error) error {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	const query = `
		UPDATE job_runs SET
			last_error_at    = $2,
			last_error       = $3,
			last_duration_ms = $4
		WHERE job_name = $1`

	if _, err := s.pool.Exec(ctx, query, jobName, failedAt.UTC(), errText, durationMillis(duration)); err != nil {
		return fmt.Errorf("postgres: record job failure %s: %w", jobName, err)
	}
	return nil
}

func durationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
