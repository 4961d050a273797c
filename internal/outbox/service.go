package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/events"
)

// Publisher announces committed jobs. *events.Notifier implements it.
type Publisher interface {
	Notify(ctx context.Context, event *events.JobCreatedEvent)
}

// Service is the producer-side API of the outbox used by entity workflows.
type Service struct {
	jobs      Store
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates a Service. publisher may be nil.
func NewService(jobs Store, publisher Publisher, logger *slog.Logger) *Service {
	if jobs == nil {
		panic("jobs store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:      jobs,
		publisher: publisher,
		logger:    logger.With("component", "outbox_service"),
	}
}

// Enqueue persists a job outside any caller transaction and announces it.
func (s *Service) Enqueue(ctx context.Context, subjectID uuid.UUID, jobType string) (*Job, error) {
	job, err := s.EnqueueTx(ctx, nil, subjectID, jobType)
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, job)
	return job, nil
}

// EnqueueTx persists a job inside tx. The caller must call Announce once tx
// has committed; a job announced before commit may not be visible yet.
func (s *Service) EnqueueTx(ctx context.Context, tx *sql.Tx, subjectID uuid.UUID, jobType string) (*Job, error) {
	jobs := s.jobs
	if tx != nil {
		jobs = jobs.WithTx(tx)
	}
	job, err := jobs.Create(ctx, subjectID, jobType)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobType, err)
	}
	return job, nil
}

// Announce fires the wake-up signal for a committed job. It never fails.
func (s *Service) Announce(ctx context.Context, job *Job) {
	if s.publisher == nil || job == nil {
		return
	}
	s.publisher.Notify(ctx, &events.JobCreatedEvent{
		JobID:     job.ID,
		SubjectID: job.SubjectID,
		JobType:   job.JobType,
		CreatedAt: job.CreatedAt,
	})
}

// CancelForSubject removes pending, in-flight and dead jobs for a subject
// that is being abandoned. tx may be nil.
func (s *Service) CancelForSubject(ctx context.Context, tx *sql.Tx, subjectID uuid.UUID) (int, error) {
	jobs := s.jobs
	if tx != nil {
		jobs = jobs.WithTx(tx)
	}
	n, err := jobs.DeleteBySubject(ctx, subjectID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel jobs for subject %s: %w", subjectID, err)
	}
	if n > 0 {
		s.logger.Debug("cancelled jobs for subject", "subject_id", subjectID, "count", n)
	}
	return n, nil
}

// PendingCount reports how many jobs are waiting to run.
func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.jobs.PendingCount(ctx)
}
