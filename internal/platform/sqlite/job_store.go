package sqlite

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

// JobStore implements outbox.Store on SQLite.
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
		logger: log.With(slog.String("component", "sqlite_job_store")),
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
		VALUES (?, ?, ?, ?, 0, ?, ?)`,
		job.ID.String(), subjectID.String(), jobType, string(job.Status), toNanos(now), toNanos(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", mapError(err))
	}

	logger.FromContextOrDefault(ctx, s.logger).Debug("job created",
		slog.String("job_id", job.ID.String()),
		slog.String("subject_id", subjectID.String()),
		slog.String("job_type", jobType))
	return job, nil
}

// ClaimNext implements outbox.Store with a single conditional UPDATE ...
// RETURNING; the surrounding connection serializes concurrent claimers.
func (s *JobStore) ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*outbox.Job, error) {
	now := s.now()
	row := s.db.QueryRowContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'IN_PROGRESS',
			claimed_at = ?,
			locked_by = ?,
			lease_expires_at = ?,
			attempt_count = attempt_count + 1
		WHERE id = (
			SELECT id FROM enrichment_outbox
			WHERE status = 'PENDING' AND run_at <= ?
			ORDER BY created_at, rowid
			LIMIT 1
		) AND status = 'PENDING'
		RETURNING `+jobColumns,
		toNanos(now), workerID, toNanos(now.Add(lease)), toNanos(now),
	)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return job, nil
}

// MarkCompleted implements outbox.Store.
func (s *JobStore) MarkCompleted(ctx context.Context, id uuid.UUID, workerID string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM enrichment_outbox
		WHERE id = ? AND locked_by = ? AND status = 'IN_PROGRESS'`,
		id.String(), workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
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
			run_at = ?,
			last_error_code = ?,
			last_error_message = ?
		WHERE id = ? AND locked_by = ? AND status = 'IN_PROGRESS'`,
		toNanos(s.now().Add(backoff)), nullString(code), nullString(outbox.SanitizeMessage(message)), id.String(), workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return s.fenced(ctx, result, id, "mark_failed")
}

// MarkDead implements outbox.Store.
func (s *JobStore) MarkDead(ctx context.Context, id uuid.UUID, workerID, code, message string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'DEAD', last_error_code = ?, last_error_message = ?
		WHERE id = ? AND locked_by = ? AND status = 'IN_PROGRESS'`,
		nullString(code), nullString(outbox.SanitizeMessage(message)), id.String(), workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark job dead: %w", err)
	}
	return s.fenced(ctx, result, id, "mark_dead")
}

// ReleaseClaim implements outbox.Store.
func (s *JobStore) ReleaseClaim(ctx context.Context, id uuid.UUID, workerID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'PENDING', claimed_at = NULL, locked_by = NULL, lease_expires_at = NULL
		WHERE id = ? AND locked_by = ? AND status = 'IN_PROGRESS'`,
		id.String(), workerID,
	)
	if err != nil {
		return fmt.Errorf("failed to release job claim: %w", err)
	}
	return s.fenced(ctx, result, id, "release_claim")
}

// ReclaimExpired implements outbox.Store.
func (s *JobStore) ReclaimExpired(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE enrichment_outbox
		SET status = 'PENDING', claimed_at = NULL, locked_by = NULL, lease_expires_at = NULL
		WHERE status = 'IN_PROGRESS' AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		toNanos(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim expired leases: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// DeleteBySubject implements outbox.Store.
func (s *JobStore) DeleteBySubject(ctx context.Context, subjectID uuid.UUID) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM enrichment_outbox WHERE subject_id = ?`, subjectID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs for subject: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// PendingCount implements outbox.Store.
func (s *JobStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM enrichment_outbox WHERE status = 'PENDING'`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending jobs: %w", err)
	}
	return n, nil
}

// Get implements outbox.Store.
func (s *JobStore) Get(ctx context.Context, id uuid.UUID) (*outbox.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM enrichment_outbox WHERE id = ?`, id.String())
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListDead implements outbox.Store.
func (s *JobStore) ListDead(ctx context.Context, limit int) ([]*outbox.Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM enrichment_outbox
		WHERE status = 'DEAD'
		ORDER BY created_at, rowid
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead jobs: %w", err)
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
		SET status = 'PENDING', attempt_count = 0, run_at = ?,
			claimed_at = NULL, locked_by = NULL, lease_expires_at = NULL
		WHERE id = ? AND status = 'DEAD'`,
		toNanos(s.now()), id.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return store.ErrJobNotFound
	}
	return nil
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
		`SELECT EXISTS (SELECT 1 FROM enrichment_outbox WHERE id = ?)`, id.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check job: %w", err)
	}
	if exists {
		return outbox.ErrLeaseLost
	}

	logger.FromContextOrDefault(ctx, s.logger).Warn("job not found, nothing updated",
		slog.String("job_id", id.String()),
		slog.String("operation", op))
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*outbox.Job, error) {
	var job outbox.Job
	var id, subjectID, status string
	var runAt, createdAt int64
	var claimedAt, leaseExpiresAt sql.NullInt64
	var lockedBy, lastErrorCode, lastErrorMsg sql.NullString

	if err := row.Scan(
		&id, &subjectID, &job.JobType, &status, &job.AttemptCount, &runAt, &claimedAt, &lockedBy,
		&leaseExpiresAt, &lastErrorCode, &lastErrorMsg, &createdAt,
	); err != nil {
		return nil, err
	}

	var err error
	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", id, err)
	}
	if job.SubjectID, err = uuid.Parse(subjectID); err != nil {
		return nil, fmt.Errorf("invalid subject id %q: %w", subjectID, err)
	}
	job.Status = outbox.JobStatus(status)
	job.RunAt = fromNanos(runAt)
	job.CreatedAt = fromNanos(createdAt)
	job.ClaimedAt = timePtr(claimedAt)
	job.LeaseExpiresAt = timePtr(leaseExpiresAt)
	job.LockedBy = lockedBy.String
	job.LastErrorCode = lastErrorCode.String
	job.LastErrorMsg = lastErrorMsg.String
	return &job, nil
}
