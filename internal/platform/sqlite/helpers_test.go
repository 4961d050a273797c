package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/platform/sqlite"
	"github.com/stretchr/testify/require"
)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
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

// openTestDB opens a migrated database in a per-test directory.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "litevault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// createItem inserts an ENRICHING item so jobs have a subject to reference.
func createItem(t *testing.T, db *sql.DB) *domain.Item {
	t.Helper()

	log, _ := logger.GetTestLogger(t)
	item, err := domain.NewItem(uuid.New(), "captured text for enrichment")
	require.NoError(t, err)
	require.NoError(t, sqlite.NewItemStore(db, log).Create(context.Background(), item))
	return item
}
