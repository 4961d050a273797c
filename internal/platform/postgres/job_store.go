package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/outbox"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/store"
)

const jobColumns = `id, subject_id, job_type, status, attempt_count, run_at, claimed_at, locked_by,
	lease_expires_at, last_error_code, last_error_message, created_at`

// JobStore implements outbox.Store on PostgreSQL.
type JobStore struct {
	db     store.DBTX
	now    outbox.Clock
	logger *slog.Logger
}

var _ outbox.Store = (*JobStore)(nil)

// NewJobStore creates a JobStore. A nil clock selects outbox.SystemClock.
func NewJobStore(db store.DBTX, clock outbox.Clock, log *slog.Logger) *JobStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if clock == nil {
		clock = outbox.SystemClock
	}
	if log == nil {
		log = slog.Default()
	}
	return &JobStore{
		db:     db,
		now:    clock,
		logger: log.With(slog.String("component", "postgres_job_store")),
	}
}

// WithTx returns a JobStore bound to tx.
func (s *JobStore) WithTx(tx *sql.Tx) outbox.Store {
	return &JobStore{db: tx, now: s.now, logger: s.logger}
}

// Create implements outbox.Store.
func (s *JobStore) Create(ctx context.Context, subjectID uuid.UUID, jobType string) (*outbox.Job, error) {
	now := s.now()
	job := &outbox.Job{
		ID:        uuid.New(),
		SubjectID: subjectID,
		JobType:   jobType,
		Status:    outbox.JobStatusPending,
		RunAt:     now,
		CreatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrichment_outbox (id, subject_id, job_type, status, attempt_count, run_at, created_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)`,
		job.ID, subjectID, jobType, string(job.Status), now,
	)
	if IsForeignKeyViolation(err) {
		return nil, fmt.Errorf("failed to create job: %w", store.ErrItemNotFound)
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create job",
			slog.String("subject_id", subjectID.String()),
			slog.String("job_type", jobType),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to create job: %w", MapError(err))
	}
	return job, nil
}

// ClaimNext implements outbox.Store. Rows locked by another claimer's
// transaction are skipped rather than waited on.
func (s *JobStore) ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*outbox.Job, error) {
	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'IN_PROGRESS',
			claimed_at = $1,
			locked_by = $2,
			lease_expires_at = $3,
			attempt_count = attempt_count + 1
		WHERE id = (
			SELECT id FROM enrichment_outbox
			WHERE status = 'PENDING' AND run_at <= $1
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns,
		now, workerID, now.Add(lease),
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", MapError(err))
	}
	return job, nil
}

// MarkCompleted implements outbox.Store.
func (s *JobStore) MarkCompleted(ctx context.Context, id uuid.UUID, workerID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM enrichment_outbox
		WHERE id = $1 AND locked_by = $2 AND status = 'IN_PROGRESS'`,
		id, workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", MapError(err))
	}
	return s.fenced(ctx, result, id, "mark_completed")
}

// MarkFailed implements outbox.Store.
func (s *JobStore) MarkFailed(ctx context.Context, id uuid.UUID, workerID, code, message string, backoff time.Duration) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'PENDING',
			claimed_at = NULL,
			locked_by = NULL,
			lease_expires_at = NULL,
			run_at = $1,
			last_error_code = $2,
			last_error_message = $3
		WHERE id = $4 AND locked_by = $5 AND status = 'IN_PROGRESS'`,
		s.now().Add(backoff), nullString(code), nullString(outbox.SanitizeMessage(message)), id, workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", MapError(err))
	}
	return s.fenced(ctx, result, id, "mark_failed")
}

// MarkDead implements outbox.Store.
func (s *JobStore) MarkDead(ctx context.Context, id uuid.UUID, workerID, code, message string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'DEAD', last_error_code = $1, last_error_message = $2
		WHERE id = $3 AND locked_by = $4 AND status = 'IN_PROGRESS'`,
		nullString(code), nullString(outbox.SanitizeMessage(message)), id, workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job dead: %w", MapError(err))
	}
	return s.fenced(ctx, result, id, "mark_dead")
}

// ReleaseClaim implements outbox.Store.
func (s *JobStore) ReleaseClaim(ctx context.Context, id uuid.UUID, workerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'PENDING', claimed_at = NULL, locked_by = NULL, lease_expires_at = NULL
		WHERE id = $1 AND locked_by = $2 AND status = 'IN_PROGRESS'`,
		id, workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to release job claim: %w", MapError(err))
	}
	return s.fenced(ctx, result, id, "release_claim")
}

// ReclaimExpired implements outbox.Store.
func (s *JobStore) ReclaimExpired(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'PENDING', claimed_at = NULL, locked_by = NULL, lease_expires_at = NULL
		WHERE status = 'IN_PROGRESS' AND lease_expires_at IS NOT NULL AND lease_expires_at < $1`,
		s.now(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired leases: %w", MapError(err))
	}
	return rowsAffected(result)
}

// DeleteBySubject implements outbox.Store.
func (s *JobStore) DeleteBySubject(ctx context.Context, subjectID uuid.UUID) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM enrichment_outbox WHERE subject_id = $1`, subjectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs for subject: %w", MapError(err))
	}
	return rowsAffected(result)
}

// PendingCount implements outbox.Store.
func (s *JobStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrichment_outbox WHERE status = 'PENDING'`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", MapError(err))
	}
	return n, nil
}

// Get implements outbox.Store.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*outbox.Job, error) {
	job, err := scanJob(s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM enrichment_outbox WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", MapError(err))
	}
	return job, nil
}

// ListDead implements outbox.Store.
func (s *JobStore) ListDead(ctx context.Context, limit int) ([]*outbox.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM enrichment_outbox
		WHERE status = 'DEAD'
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead jobs: %w", MapError(err))
	}
	defer func() { _ = rows.Close() }()

	var jobs []*outbox.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dead job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dead jobs: %w", err)
	}
	return jobs, nil
}

// Requeue implements outbox.Store.
func (s *JobStore) Requeue(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'PENDING', attempt_count = 0, run_at = $1,
			claimed_at = NULL, locked_by = NULL, lease_expires_at = NULL
		WHERE id = $2 AND status = 'DEAD'`,
		s.now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrJobNotFound)
}

// fenced resolves a lease-fenced write that may have touched no row. A job
// that no longer exists was completed or cancelled and is not an error; a
// job that exists belongs to another lease holder.
func (s *JobStore) fenced(ctx context.Context, result sql.Result, id uuid.UUID, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM enrichment_outbox WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check job: %w", MapError(err))
	}
	if exists {
		return outbox.ErrLeaseLost
	}

	logger.FromContextOrDefault(ctx, s.logger).Warn("job not found, nothing updated",
		slog.String("job_id", id.String()),
		slog.String("operation", op))
	return nil
}

func rowsAffected(result sql.Result) (int, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func scanJob(row rowScanner) (*outbox.Job, error) {
	var job outbox.Job
	var status string
	var claimedAt, leaseExpiresAt sql.NullTime
	var lockedBy, lastErrorCode, lastErrorMsg sql.NullString

	if err := row.Scan(
		&job.ID, &job.SubjectID, &job.JobType, &status, &job.AttemptCount, &job.RunAt, &claimedAt, &lockedBy,
		&leaseExpiresAt, &lastErrorCode, &lastErrorMsg, &job.CreatedAt,
	); err != nil {
		return nil, err
	}

	job.Status = outbox.JobStatus(status)
	job.RunAt = job.RunAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	job.ClaimedAt = utcPtr(claimedAt)
	job.LeaseExpiresAt = utcPtr(leaseExpiresAt)
	job.LockedBy = lockedBy.String
	job.LastErrorCode = lastErrorCode.String
	job.LastErrorMsg = lastErrorMsg.String
	return &job, nil
}

func utcPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
