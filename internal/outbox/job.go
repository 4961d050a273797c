package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/redact"
)

// JobStatus is the persisted state of a job. Completed jobs are deleted, so
// there is no stored terminal success value; a job awaiting retry is PENDING
// with populated error fields and a future RunAt.
type JobStatus string

// Persisted job states.
const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusDead       JobStatus = "DEAD"
)

// MaxErrorMessageLength caps stored diagnostic messages, in characters.
const MaxErrorMessageLength = 500

// Job is one unit of deferred work against a subject entity.
type Job struct {
	ID             uuid.UUID  `json:"id"`
	SubjectID      uuid.UUID  `json:"subject_id"`
	JobType        string     `json:"job_type"`
	Status         JobStatus  `json:"status"`
	AttemptCount   int        `json:"attempt_count"`
	RunAt          time.Time  `json:"run_at"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"`
	LockedBy       string     `json:"locked_by,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
	LastErrorCode  string     `json:"last_error_code,omitempty"`
	LastErrorMsg   string     `json:"last_error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// SanitizeMessage redacts and truncates a diagnostic before it is stored.
func SanitizeMessage(msg string) string {
	return redact.Message(msg, MaxErrorMessageLength)
}

// Store is the durable job table. Every state transition of a job goes
// through it.
type Store interface {
	// Create inserts a PENDING job runnable immediately with zero attempts.
	Create(ctx context.Context, subjectID uuid.UUID, jobType string) (*Job, error)

	// ClaimNext leases the oldest runnable job to workerID, incrementing its
	// attempt count. Rows locked by concurrent claimers are skipped.
	// Returns nil, nil when nothing is runnable.
	ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*Job, error)

	// The terminal writes below are fenced on workerID: they apply only
	// while the job is IN_PROGRESS under that worker's lease. A job that
	// no longer exists is not an error. A job held by anyone else yields
	// ErrLeaseLost and nothing is written.

	// MarkCompleted deletes the job.
	MarkCompleted(ctx context.Context, id uuid.UUID, workerID string) error

	// MarkFailed returns the job to PENDING, clears its claim and delays it by backoff.
	MarkFailed(ctx context.Context, id uuid.UUID, workerID, code, message string, backoff time.Duration) error

	// MarkDead dead-letters the job, keeping its claim fields.
	MarkDead(ctx context.Context, id uuid.UUID, workerID, code, message string) error

	// ReleaseClaim hands a claimed job back to PENDING without recording a
	// failure. The worker uses it for jobs it claimed but did not start
	// because it is shutting down.
	ReleaseClaim(ctx context.Context, id uuid.UUID, workerID string) error

	// ReclaimExpired resets every in-progress job whose lease lapsed back to
	// PENDING without touching attempt counts, returning how many were reset.
	ReclaimExpired(ctx context.Context) (int, error)

	// DeleteBySubject removes every job for subjectID, returning how many were removed.
	DeleteBySubject(ctx context.Context, subjectID uuid.UUID) (int, error)

	// PendingCount counts PENDING jobs, including those waiting on backoff.
	PendingCount(ctx context.Context) (int, error)

	// Get returns a job by ID, or store.ErrJobNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Job, error)

	// ListDead returns dead-lettered jobs, oldest first.
	ListDead(ctx context.Context, limit int) ([]*Job, error)

	// Requeue revives a DEAD job as PENDING with a fresh retry budget.
	// Returns store.ErrJobNotFound if no dead job has that ID.
	Requeue(ctx context.Context, id uuid.UUID) error

	// WithTx returns a Store bound to tx.
	WithTx(tx *sql.Tx) Store
}

// Clock supplies the current time. Stores and workers accept one so tests
// can move time forward.
type Clock func() time.Time

// SystemClock returns the current UTC time.
func SystemClock() time.Time {
	return time.Now().UTC()
}
