package orchestrator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kikootwo/readmeabook/internal/request"
)

// JobStore provides access to the durable job queue.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a job store.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

const jobColumns = `id, correlation_id, type, request_id, payload, status, attempts,
	max_attempts, next_run_at, last_error, created_at, updated_at`

// Enqueue inserts a queued job. The partial unique index on active jobs
// rejects a second in-flight pipeline job for the same request; that surfaces
// as ErrJobAlreadyQueued.
func (s *JobStore) Enqueue(ctx context.Context, ex request.Execer, correlationID string, jobType request.Stage, requestID int64, payload any, maxAttempts int) error {
	data := []byte("{}")
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal job payload: %w", err)
		}
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO jobs (correlation_id, type, request_id, payload, max_attempts)
		VALUES (?, ?, ?, ?, ?)`,
		correlationID, string(jobType), requestID, string(data), maxAttempts)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrJobAlreadyQueued
		}
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// ClaimNext atomically claims the oldest due queued job, moving it to running
// and bumping its attempt counter. Returns nil with no error when nothing is
// due.
func (s *JobStore) ClaimNext(ctx context.Context) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = 'queued' AND next_run_at <= CURRENT_TIMESTAMP
		ORDER BY next_run_at ASC, id ASC LIMIT 1`)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'running', attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'queued'`, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if affected == 0 {
		// Lost the race: another worker claimed it between select and update.
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim: %w", err)
	}

	job.Status = JobStatusRunning
	job.Attempts++
	return job, nil
}

// Get returns a job by ID.
func (s *JobStore) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// GetActiveByRequest returns the in-flight pipeline job for a request, if any.
func (s *JobStore) GetActiveByRequest(ctx context.Context, requestID int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE request_id = ? AND status IN ('queued', 'running') AND type != 'notify'
		LIMIT 1`, requestID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

// MarkCompleted finishes a job. Runs against the given Execer so completion
// can share a transaction with the decision it produced.
func (s *JobStore) MarkCompleted(ctx context.Context, ex request.Execer, id int64) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE jobs SET status = 'completed', last_error = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Requeue puts a running job back in the queue for a retry after delay. An
// empty lastError keeps whatever error the job last recorded, so a lock
// contention requeue never wipes the message from a genuine failure.
func (s *JobStore) Requeue(ctx context.Context, id int64, lastError string, delay time.Duration) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'queued', last_error = COALESCE(NULLIF(?, ''), last_error),
		    next_run_at = datetime('now', ?), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		lastError, fmt.Sprintf("+%d seconds", int(delay.Seconds())), id)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

// MarkFailed terminally fails a job. Runs against the given Execer.
func (s *JobStore) MarkFailed(ctx context.Context, ex request.Execer, id int64, lastError string) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE jobs SET status = 'failed', last_error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, lastError, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// CancelPending cancels every queued job for a request. Running jobs observe
// the request's cancelled status and abort themselves.
func (s *JobStore) CancelPending(ctx context.Context, ex request.Execer, requestID int64) error {
	_, err := ex.ExecContext(ctx, `
		UPDATE jobs SET status = 'cancelled', updated_at = CURRENT_TIMESTAMP
		WHERE request_id = ? AND status = 'queued'`, requestID)
	if err != nil {
		return fmt.Errorf("failed to cancel pending jobs: %w", err)
	}
	return nil
}

// ResetRunning requeues jobs left in running state by an unclean shutdown.
// Called once on startup before workers start.
func (s *JobStore) ResetRunning(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = 'queued', updated_at = CURRENT_TIMESTAMP
		WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running jobs: %w", err)
	}
	return res.RowsAffected()
}

// DeleteFinishedOlderThan prunes completed, failed, and cancelled jobs.
func (s *JobStore) DeleteFinishedOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed', 'cancelled')
		  AND updated_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(sc rowScanner) (*Job, error) {
	var job Job
	var jobType, status, payload string
	var lastError sql.NullString

	err := sc.Scan(&job.ID, &job.CorrelationID, &jobType, &job.RequestID, &payload,
		&status, &job.Attempts, &job.MaxAttempts, &job.NextRunAt, &lastError,
		&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.Type = request.Stage(jobType)
	job.Status = JobStatus(status)
	job.Payload = json.RawMessage(payload)
	if lastError.Valid {
		job.LastError = &lastError.String
	}
	return &job, nil
}
