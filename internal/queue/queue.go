package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/FulfillmentGo/pkg/database"
)

// Job statuses. A job is pending until a worker claims it (processing), then
// either completed, rescheduled back to pending, or dead once its attempts
// are exhausted.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusDead       = "dead"
)

// Job is one durable unit of work on a named queue.
type Job struct {
	ID          int64
	Queue       string
	Payload     []byte
	Attempts    int
	MaxAttempts int
}

// Store is the PostgreSQL-backed job store shared by all named queues.
type Store struct {
	db        database.DBTX
	logger    *slog.Logger
	baseDelay time.Duration
	maxDelay  time.Duration
	lease     time.Duration
}

// NewStore creates a job store. baseDelay and maxDelay bound the exponential
// retry backoff. lease is the visibility timeout: a job stuck in processing
// longer than the lease is considered abandoned by a dead worker and becomes
// claimable again. The lease must comfortably exceed the longest worker
// JobTimeout plus settlement, or live jobs get double-claimed.
func NewStore(db database.DBTX, logger *slog.Logger, baseDelay, maxDelay, lease time.Duration) *Store {
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	return &Store{
		db:        db,
		logger:    logger,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		lease:     lease,
	}
}

// retryDelay returns the backoff before the next attempt: baseDelay shifted
// left by the attempt count, capped at maxDelay.
func (s *Store) retryDelay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 30 {
		return s.maxDelay
	}
	delay := s.baseDelay << attempts
	if delay > s.maxDelay || delay <= 0 {
		return s.maxDelay
	}
	return delay
}

// Enqueue inserts a pending job on the named queue, runnable immediately.
func (s *Store) Enqueue(ctx context.Context, queueName string, payload []byte, maxAttempts int) (int64, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	query := `
		INSERT INTO jobs (queue, payload, status, attempts, max_attempts, run_at, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, $3, NOW(), NOW(), NOW())
		RETURNING id`

	var id int64
	if err := s.db.QueryRow(ctx, query, queueName, payload, maxAttempts).Scan(&id); err != nil {
		return 0, fmt.Errorf("enqueue job on %s: %w", queueName, err)
	}

	s.logger.DebugContext(ctx, "job enqueued",
		slog.String("queue", queueName),
		slog.Int64("job_id", id),
		slog.Int("max_attempts", maxAttempts),
	)
	return id, nil
}

// Claim picks the oldest runnable job on the named queue and marks it
// processing. The subselect uses FOR UPDATE SKIP LOCKED so concurrent workers
// never claim the same job. Jobs left processing past the store's lease (a
// worker crashed between claim and settle) are retaken, with the retake
// counted as an attempt so a crash loop still exhausts the job. Returns nil
// when the queue is empty.
func (s *Store) Claim(ctx context.Context, queueName string) (*Job, error) {
	query := `
		UPDATE jobs
		SET status = 'processing',
			attempts = attempts + CASE WHEN status = 'processing' THEN 1 ELSE 0 END,
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $1
			  AND (
				(status = 'pending' AND run_at <= NOW())
				OR (status = 'processing' AND updated_at <= NOW() - $2)
			  )
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue, payload, attempts, max_attempts`

	var job Job
	err := s.db.QueryRow(ctx, query, queueName, s.lease).Scan(
		&job.ID, &job.Queue, &job.Payload, &job.Attempts, &job.MaxAttempts,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job on %s: %w", queueName, err)
	}
	return &job, nil
}

// Complete marks a claimed job as completed.
func (s *Store) Complete(ctx context.Context, jobID int64) error {
	if _, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = 'completed', updated_at = NOW() WHERE id = $1`,
		jobID,
	); err != nil {
		return fmt.Errorf("complete job %d: %w", jobID, err)
	}
	return nil
}

// Fail records a failed attempt. The job is rescheduled with exponential
// backoff while attempts remain; once exhausted it transitions to dead
// exactly once and Fail reports dead=true so the worker can fire the
// queue's dead-letter callback.
func (s *Store) Fail(ctx context.Context, job *Job, cause error) (dead bool, err error) {
	attempts := job.Attempts + 1

	if attempts >= job.MaxAttempts {
		if _, err := s.db.Exec(ctx,
			`UPDATE jobs SET status = 'dead', attempts = $2, last_error = $3, updated_at = NOW() WHERE id = $1`,
			job.ID, attempts, cause.Error(),
		); err != nil {
			return false, fmt.Errorf("mark job %d dead: %w", job.ID, err)
		}
		s.logger.ErrorContext(ctx, "job exhausted retries",
			slog.String("queue", job.Queue),
			slog.Int64("job_id", job.ID),
			slog.Int("attempts", attempts),
			slog.String("error", cause.Error()),
		)
		return true, nil
	}

	delay := s.retryDelay(job.Attempts)
	if _, err := s.db.Exec(ctx,
		`UPDATE jobs SET status = 'pending', attempts = $2, last_error = $3, run_at = NOW() + $4, updated_at = NOW() WHERE id = $1`,
		job.ID, attempts, cause.Error(), delay,
	); err != nil {
		return false, fmt.Errorf("reschedule job %d: %w", job.ID, err)
	}

	s.logger.WarnContext(ctx, "job failed, rescheduled",
		slog.String("queue", job.Queue),
		slog.Int64("job_id", job.ID),
		slog.Int("attempt", attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Duration("backoff", delay),
		slog.String("error", cause.Error()),
	)
	return false, nil
}
