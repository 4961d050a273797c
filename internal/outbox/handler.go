package outbox

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/store"
)

// Subject is the entity a job refers to, as seen by the worker.
type Subject interface {
	// AwaitingProcessing reports whether the subject is still in the single
	// state that legitimately precedes processing.
	AwaitingProcessing() bool
}

// Handler processes one job type. Load, Apply and Fail run inside
// transactions opened by the worker; Process runs outside any transaction,
// under the worker's concurrency gate.
type Handler interface {
	// Load reads the subject with a row lock. It returns ErrSubjectNotFound
	// when the subject no longer exists.
	Load(ctx context.Context, tx *sql.Tx, subjectID uuid.UUID) (Subject, error)

	// Process computes the result for subject. Errors that implement
	// CodedError are recorded with their code.
	Process(ctx context.Context, subject Subject) (any, error)

	// Apply persists result onto subject.
	Apply(ctx context.Context, tx *sql.Tx, subject Subject, result any) error

	// Fail moves subject into its terminal failed state once retries are exhausted.
	Fail(ctx context.Context, tx *sql.Tx, subject Subject) error
}

// Transactor opens transactions for the worker and the service.
type Transactor interface {
	InTx(ctx context.Context, fn store.TxFn) error
}
