package outbox_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/outbox"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/platform/sqlite"
	"github.com/litevault/litevault-api/internal/store"
	"github.com/stretchr/testify/require"
)

const testJobType = "enrichment"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// itemHandler processes items with a pluggable process function. beforeLoad,
// when set, runs at the start of every Load.
type itemHandler struct {
	items      store.ItemStore
	process    func(ctx context.Context, item *domain.Item) (any, error)
	beforeLoad func()
	missing    sync.Map
	calls      atomic.Int32
}

func (h *itemHandler) Load(ctx context.Context, tx *sql.Tx, subjectID uuid.UUID) (outbox.Subject, error) {
	if h.beforeLoad != nil {
		h.beforeLoad()
	}
	if _, gone := h.missing.Load(subjectID); gone {
		return nil, outbox.ErrSubjectNotFound
	}
	item, err := h.items.WithTx(tx).GetForUpdate(ctx, subjectID)
	if errors.Is(err, store.ErrItemNotFound) {
		return nil, outbox.ErrSubjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (h *itemHandler) Process(ctx context.Context, subject outbox.Subject) (any, error) {
	h.calls.Add(1)
	if h.process == nil {
		return "Enriched title", nil
	}
	return h.process(ctx, subject.(*domain.Item))
}

func (h *itemHandler) Apply(ctx context.Context, tx *sql.Tx, subject outbox.Subject, result any) error {
	item := subject.(*domain.Item)
	item.MarkEnriched(result.(string), "summary", []string{"notes"}, domain.SourceTypeNote)
	return h.items.WithTx(tx).Update(ctx, item)
}

func (h *itemHandler) Fail(ctx context.Context, tx *sql.Tx, subject outbox.Subject) error {
	item := subject.(*domain.Item)
	item.MarkFailed()
	return h.items.WithTx(tx).Update(ctx, item)
}

type testEnv struct {
	db      *sql.DB
	clock   *testClock
	jobs    *sqlite.JobStore
	items   *sqlite.ItemStore
	tx      *store.Transactor
	handler *itemHandler
	logs    *logger.TestLogBuffer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log, _ := logger.GetTestLogger(t)
	clock := &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	items := sqlite.NewItemStore(db, log)

	return &testEnv{
		db:      db,
		clock:   clock,
		jobs:    sqlite.NewJobStore(db, clock.Now, log),
		items:   items,
		tx:      store.NewTransactor(db),
		handler: &itemHandler{items: items},
	}
}

func (e *testEnv) newWorker(t *testing.T, wake outbox.WakeSource, config outbox.WorkerConfig) *outbox.Worker {
	t.Helper()

	if config.WorkerID == "" {
		config.WorkerID = "test-worker"
	}
	if config.Retry.Backoff == nil {
		config.Retry = outbox.DefaultRetryPolicy()
	}
	log, logs := logger.GetTestLogger(t)
	e.logs = logs
	return outbox.NewWorker(e.jobs, e.tx, wake, map[string]outbox.Handler{testJobType: e.handler}, config, log)
}

// createItem inserts an ENRICHING item.
func (e *testEnv) createItem(t *testing.T) *domain.Item {
	t.Helper()

	item, err := domain.NewItem(uuid.New(), "some captured text")
	require.NoError(t, err)
	require.NoError(t, e.items.Create(context.Background(), item))
	return item
}

// enqueue inserts an ENRICHING item and a job for it.
func (e *testEnv) enqueue(t *testing.T) (*domain.Item, *outbox.Job) {
	t.Helper()

	item := e.createItem(t)
	job, err := e.jobs.Create(context.Background(), item.ID, testJobType)
	require.NoError(t, err)
	return item, job
}

func (e *testEnv) item(t *testing.T, id uuid.UUID) *domain.Item {
	t.Helper()

	item, err := e.items.GetByID(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (e *testEnv) setStatus(t *testing.T, id uuid.UUID, status domain.ItemStatus) {
	t.Helper()

	_, err := e.db.ExecContext(context.Background(),
		`UPDATE items SET status = ? WHERE id = ?`, string(status), id.String())
	require.NoError(t, err)
}
