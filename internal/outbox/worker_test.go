package outbox_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/domain"
	"github.com/litevault/litevault-api/internal/events"
	"github.com/litevault/litevault-api/internal/outbox"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"github.com/litevault/litevault-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_ProcessesJob(t *testing.T) {
	env := newTestEnv(t)
	item, job := env.enqueue(t)
	w := env.newWorker(t, nil, outbox.WorkerConfig{})

	assert.Equal(t, 1, w.Drain(context.Background()))

	got := env.item(t, item.ID)
	assert.Equal(t, domain.ItemStatusReadyToConfirm, got.Status)
	assert.Equal(t, "Enriched title", got.Title)

	_, err := env.jobs.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound, "completed jobs are deleted")
	assert.Equal(t, int64(1), w.Stats()[outbox.OutcomeSucceeded])
}

func TestWorker_DrainProcessesBatch(t *testing.T) {
	env := newTestEnv(t)
	for range 5 {
		env.enqueue(t)
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 3})

	assert.Equal(t, 3, w.Drain(context.Background()))
	assert.Equal(t, 2, w.Drain(context.Background()))
	assert.Equal(t, 0, w.Drain(context.Background()))

	pending, err := env.jobs.PendingCount(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Equal(t, int32(5), env.handler.calls.Load())
}

func TestWorker_OrphanedJobIsCompleted(t *testing.T) {
	env := newTestEnv(t)
	item, job := env.enqueue(t)
	env.handler.missing.Store(item.ID, true)
	w := env.newWorker(t, nil, outbox.WorkerConfig{})

	w.Drain(context.Background())

	_, err := env.jobs.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.Zero(t, env.handler.calls.Load(), "no provider call for a missing subject")
	assert.Equal(t, int64(1), w.Stats()[outbox.OutcomeOrphaned])
}

func TestWorker_StaleSubjectBeforeProcessing(t *testing.T) {
	env := newTestEnv(t)
	item, job := env.enqueue(t)
	env.setStatus(t, item.ID, domain.ItemStatusReadyToConfirm)
	w := env.newWorker(t, nil, outbox.WorkerConfig{})

	w.Drain(context.Background())

	_, err := env.jobs.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.Zero(t, env.handler.calls.Load())
	assert.Equal(t, int64(1), w.Stats()[outbox.OutcomeStale])
}

func TestWorker_StaleSubjectAfterProcessing(t *testing.T) {
	env := newTestEnv(t)
	item, job := env.enqueue(t)
	env.handler.process = func(ctx context.Context, _ *domain.Item) (any, error) {
		// The user discards the item while the provider call is in flight.
		_, err := env.db.ExecContext(ctx, `UPDATE items SET status = ? WHERE id = ?`,
			string(domain.ItemStatusDiscarded), item.ID.String())
		return "late result", err
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{})

	w.Drain(context.Background())

	got := env.item(t, item.ID)
	assert.Equal(t, domain.ItemStatusDiscarded, got.Status)
	assert.Empty(t, got.Title, "a result computed for a stale subject is never written")

	_, err := env.jobs.Get(context.Background(), job.ID)
	assert.ErrorIs(t, err, store.ErrJobNotFound)
	assert.Equal(t, int64(1), w.Stats()[outbox.OutcomeStale])
}

func TestWorker_RetriesThenDeadLetters(t *testing.T) {
	env := newTestEnv(t)
	item, job := env.enqueue(t)
	env.handler.process = func(context.Context, *domain.Item) (any, error) {
		return nil, errors.New("provider unavailable")
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{
		BatchSize: 1,
		Retry: outbox.RetryPolicy{
			Backoff:    []time.Duration{0, 30 * time.Second, 5 * time.Minute},
			MaxRetries: 3,
		},
	})
	ctx := context.Background()

	// Attempt 1 fails with zero backoff.
	require.Equal(t, 1, w.Drain(ctx))
	got, err := env.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.JobStatusPending, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, outbox.ErrorCodeUnexpected, got.LastErrorCode)
	assert.Equal(t, "provider unavailable", got.LastErrorMsg)
	assert.True(t, got.RunAt.Equal(env.clock.Now()))

	// Attempt 2 fails with 30s backoff.
	require.Equal(t, 1, w.Drain(ctx))
	got, err = env.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.AttemptCount)
	assert.True(t, got.RunAt.Equal(env.clock.Now().Add(30*time.Second)))
	assert.Equal(t, 0, w.Drain(ctx), "backoff not elapsed")

	// Attempt 3 fails with 5m backoff.
	env.clock.Advance(30 * time.Second)
	require.Equal(t, 1, w.Drain(ctx))
	got, err = env.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.AttemptCount)
	assert.True(t, got.RunAt.Equal(env.clock.Now().Add(5*time.Minute)))
	assert.Equal(t, domain.ItemStatusEnriching, env.item(t, item.ID).Status)

	// Attempt 4 exhausts the budget.
	env.clock.Advance(5 * time.Minute)
	require.Equal(t, 1, w.Drain(ctx))
	got, err = env.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.JobStatusDead, got.Status)
	assert.Equal(t, 4, got.AttemptCount)
	assert.Equal(t, domain.ItemStatusFailed, env.item(t, item.ID).Status)

	assert.Equal(t, 0, w.Drain(ctx), "dead jobs are never claimed")
	assert.Equal(t, int32(4), env.handler.calls.Load())

	stats := w.Stats()
	assert.Equal(t, int64(3), stats[outbox.OutcomeRetrying])
	assert.Equal(t, int64(1), stats[outbox.OutcomeDead])
}

type codedError struct{}

func (codedError) Error() string     { return "content blocked by safety filter" }
func (codedError) ErrorCode() string { return "LLM_CONTENT_BLOCKED" }

func TestWorker_RecordsHandlerErrorCode(t *testing.T) {
	env := newTestEnv(t)
	_, job := env.enqueue(t)
	env.handler.process = func(context.Context, *domain.Item) (any, error) {
		return nil, codedError{}
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 1})

	w.Drain(context.Background())

	got, err := env.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "LLM_CONTENT_BLOCKED", got.LastErrorCode)
	assert.Equal(t, "content blocked by safety filter", got.LastErrorMsg)
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	env := newTestEnv(t)
	item, job := env.enqueue(t)
	env.handler.process = func(context.Context, *domain.Item) (any, error) {
		panic("provider exploded")
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 1})

	require.NotPanics(t, func() { w.Drain(context.Background()) })

	got, err := env.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.JobStatusPending, got.Status)
	assert.Equal(t, outbox.ErrorCodeUnexpected, got.LastErrorCode)
	assert.Contains(t, got.LastErrorMsg, "provider exploded")
	assert.Equal(t, domain.ItemStatusEnriching, env.item(t, item.ID).Status)
	assert.Equal(t, int64(1), w.Stats()[outbox.OutcomeRetrying])
}

func TestWorker_UnknownJobTypeIsDeadLettered(t *testing.T) {
	env := newTestEnv(t)
	item := env.createItem(t)
	job, err := env.jobs.Create(context.Background(), item.ID, "thumbnail")
	require.NoError(t, err)
	w := env.newWorker(t, nil, outbox.WorkerConfig{})

	w.Drain(context.Background())

	got, err := env.jobs.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.JobStatusDead, got.Status)
	assert.Equal(t, outbox.ErrorCodeUnknownJobType, got.LastErrorCode)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Equal(t, domain.ItemStatusEnriching, env.item(t, item.ID).Status)
}

func TestWorker_ConcurrencyGate(t *testing.T) {
	env := newTestEnv(t)
	for range 6 {
		env.enqueue(t)
	}

	var active, peak atomic.Int32
	env.handler.process = func(context.Context, *domain.Item) (any, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		active.Add(-1)
		return "title", nil
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 6, Concurrency: 2})

	assert.Equal(t, 6, w.Drain(context.Background()))
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int64(6), w.Stats()[outbox.OutcomeSucceeded])
}

func TestWorker_ReclaimNow(t *testing.T) {
	env := newTestEnv(t)
	item, _ := env.enqueue(t)
	ctx := context.Background()

	stuck, err := env.jobs.ClaimNext(ctx, "crashed-worker", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, stuck)

	w := env.newWorker(t, nil, outbox.WorkerConfig{LeaseDuration: time.Minute})
	assert.Equal(t, 0, w.Drain(ctx), "a leased job is not claimable")

	env.clock.Advance(2 * time.Minute)
	n, err := w.ReclaimNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, 1, w.Drain(ctx))
	assert.Equal(t, domain.ItemStatusReadyToConfirm, env.item(t, item.ID).Status)
}

func TestWorker_WakesOnNotify(t *testing.T) {
	env := newTestEnv(t)
	log, _ := logger.GetTestLogger(t)
	notifier := events.NewNotifier(true, log)
	svc := outbox.NewService(env.jobs, notifier, log)

	w := env.newWorker(t, notifier, outbox.WorkerConfig{PollInterval: time.Hour, ReclaimInterval: time.Hour})
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	// Let the startup drain run before the job exists.
	time.Sleep(20 * time.Millisecond)

	item := env.createItem(t)
	_, err := svc.Enqueue(context.Background(), item.ID, testJobType)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return env.item(t, item.ID).Status == domain.ItemStatusReadyToConfirm
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_PollsWithoutNotifier(t *testing.T) {
	env := newTestEnv(t)
	w := env.newWorker(t, nil, outbox.WorkerConfig{PollInterval: 20 * time.Millisecond, ReclaimInterval: time.Hour})
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	time.Sleep(20 * time.Millisecond)
	item, _ := env.enqueue(t)

	assert.Eventually(t, func() bool {
		return env.item(t, item.ID).Status == domain.ItemStatusReadyToConfirm
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWorker_StartTwice(t *testing.T) {
	env := newTestEnv(t)
	w := env.newWorker(t, nil, outbox.WorkerConfig{PollInterval: time.Hour, ReclaimInterval: time.Hour})

	require.NoError(t, w.Start())
	assert.Error(t, w.Start())
	w.Stop()
	w.Stop()
}

func TestWorker_StopUnregistersFromNotifier(t *testing.T) {
	env := newTestEnv(t)
	log, _ := logger.GetTestLogger(t)
	notifier := events.NewNotifier(true, log)

	w := env.newWorker(t, notifier, outbox.WorkerConfig{PollInterval: time.Hour, ReclaimInterval: time.Hour})
	require.NoError(t, w.Start())
	w.Stop()

	item, job := env.enqueue(t)
	notifier.Notify(context.Background(), &events.JobCreatedEvent{JobID: job.ID, SubjectID: item.ID})

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, domain.ItemStatusEnriching, env.item(t, item.ID).Status)
}

func TestWorker_StopWaitsForInFlightJob(t *testing.T) {
	env := newTestEnv(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	env.handler.process = func(context.Context, *domain.Item) (any, error) {
		once.Do(func() { close(started) })
		<-release
		return "finished during shutdown", nil
	}
	item, _ := env.enqueue(t)

	w := env.newWorker(t, nil, outbox.WorkerConfig{PollInterval: time.Hour, ReclaimInterval: time.Hour})
	require.NoError(t, w.Start())

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never picked up")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the job finished")
	}

	got := env.item(t, item.ID)
	assert.Equal(t, domain.ItemStatusReadyToConfirm, got.Status)
	assert.Equal(t, "finished during shutdown", got.Title)
}

func TestGenerateWorkerID(t *testing.T) {
	a := outbox.GenerateWorkerID()
	b := outbox.GenerateWorkerID()

	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^.+-\d+-[0-9a-f]{8}$`, a)
}

func TestWorker_ClaimsOnlyWhenASlotIsFree(t *testing.T) {
	env := newTestEnv(t)
	for range 3 {
		env.enqueue(t)
	}
	ctx := context.Background()

	// Each provider call takes 40s of a 1m lease. Halfway through the second
	// call another worker reclaims and claims whatever it can.
	var (
		processed []uuid.UUID
		reclaimed int
		taken     *outbox.Job
		stealErr  error
	)
	env.handler.process = func(ctx context.Context, item *domain.Item) (any, error) {
		processed = append(processed, item.ID)
		env.clock.Advance(40 * time.Second)
		if env.handler.calls.Load() == 2 {
			reclaimed, stealErr = env.jobs.ReclaimExpired(ctx)
			if stealErr == nil {
				taken, stealErr = env.jobs.ClaimNext(ctx, "other-worker", time.Minute)
			}
		}
		return "title", nil
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 3, Concurrency: 1, LeaseDuration: time.Minute})

	assert.Equal(t, 2, w.Drain(ctx))
	require.NoError(t, stealErr)
	assert.Zero(t, reclaimed, "no lease expires while its job waits for a slot")
	require.NotNil(t, taken, "the third job was never claimed by this worker")
	assert.NotContains(t, processed, taken.SubjectID)
	assert.Len(t, processed, 2)
	assert.Equal(t, int64(2), w.Stats()[outbox.OutcomeSucceeded])

	got, err := env.jobs.Get(ctx, taken.ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.JobStatusInProgress, got.Status)
	assert.Equal(t, "other-worker", got.LockedBy)
	assert.Equal(t, 1, got.AttemptCount)
}

// takeOver lets the lease run out mid-call and hands the job to other-worker.
func (e *testEnv) takeOver(ctx context.Context) error {
	e.clock.Advance(2 * time.Minute)
	if _, err := e.jobs.ReclaimExpired(ctx); err != nil {
		return err
	}
	job, err := e.jobs.ClaimNext(ctx, "other-worker", time.Minute)
	if err != nil {
		return err
	}
	if job == nil {
		return errors.New("job was not reclaimable")
	}
	return nil
}

func TestWorker_DiscardsResultAfterLeaseLost(t *testing.T) {
	env := newTestEnv(t)
	item, job := env.enqueue(t)
	ctx := context.Background()

	var takeOverErr error
	env.handler.process = func(ctx context.Context, _ *domain.Item) (any, error) {
		takeOverErr = env.takeOver(ctx)
		return "late title", nil
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 1, LeaseDuration: time.Minute})

	assert.Equal(t, 1, w.Drain(ctx))
	require.NoError(t, takeOverErr)

	got := env.item(t, item.ID)
	assert.Equal(t, domain.ItemStatusEnriching, got.Status)
	assert.Empty(t, got.Title, "a result from a lost lease is never written")

	j, err := env.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.JobStatusInProgress, j.Status)
	assert.Equal(t, "other-worker", j.LockedBy)
	assert.Equal(t, 2, j.AttemptCount)

	stats := w.Stats()
	assert.Equal(t, int64(1), stats[outbox.OutcomeLeaseLost])
	assert.Zero(t, stats[outbox.OutcomeSucceeded])
}

func TestWorker_FailureAfterLeaseLostIsNotRecorded(t *testing.T) {
	tests := []struct {
		name  string
		retry outbox.RetryPolicy
	}{
		{"retry", outbox.DefaultRetryPolicy()},
		{"dead-letter", outbox.RetryPolicy{Backoff: []time.Duration{0}, MaxRetries: 0}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			item, job := env.enqueue(t)
			ctx := context.Background()

			var takeOverErr error
			env.handler.process = func(ctx context.Context, _ *domain.Item) (any, error) {
				takeOverErr = env.takeOver(ctx)
				return nil, errors.New("provider unavailable")
			}
			w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 1, LeaseDuration: time.Minute, Retry: tc.retry})

			w.Drain(ctx)
			require.NoError(t, takeOverErr)

			j, err := env.jobs.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, outbox.JobStatusInProgress, j.Status)
			assert.Equal(t, "other-worker", j.LockedBy)
			assert.Empty(t, j.LastErrorCode)
			assert.Equal(t, domain.ItemStatusEnriching, env.item(t, item.ID).Status)

			stats := w.Stats()
			assert.Equal(t, int64(1), stats[outbox.OutcomeLeaseLost])
			assert.Zero(t, stats[outbox.OutcomeRetrying])
			assert.Zero(t, stats[outbox.OutcomeDead])
		})
	}
}

func TestWorker_StopReleasesUnstartedJob(t *testing.T) {
	env := newTestEnv(t)
	item, job := env.enqueue(t)
	ctx := context.Background()

	loading := make(chan struct{})
	resume := make(chan struct{})
	var once sync.Once
	env.handler.beforeLoad = func() {
		once.Do(func() {
			close(loading)
			<-resume
		})
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 1})

	drained := make(chan int, 1)
	go func() { drained <- w.Drain(ctx) }()

	select {
	case <-loading:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never claimed")
	}
	w.Stop()
	close(resume)

	select {
	case n := <-drained:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not finish")
	}

	got, err := env.jobs.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, outbox.JobStatusPending, got.Status)
	assert.Empty(t, got.LockedBy)
	assert.Equal(t, 1, got.AttemptCount, "a released claim still counts as an attempt")
	assert.Zero(t, env.handler.calls.Load())
	assert.Equal(t, domain.ItemStatusEnriching, env.item(t, item.ID).Status)
	assert.Equal(t, int64(1), w.Stats()[outbox.OutcomeReleased])
}

type invalidOutputError struct{}

func (invalidOutputError) Error() string           { return "title is empty" }
func (invalidOutputError) ErrorCode() string       { return "LLM_VALIDATION_ERROR" }
func (invalidOutputError) ValidationFailure() bool { return true }

func TestWorker_LogsValidationFailureForAlerting(t *testing.T) {
	tests := []struct {
		name    string
		retry   outbox.RetryPolicy
		wantMsg string
	}{
		{"retry", outbox.DefaultRetryPolicy(), "job output failed validation, will retry"},
		{"dead-letter", outbox.RetryPolicy{Backoff: []time.Duration{0}, MaxRetries: 0}, "job output failed validation, dead-lettered"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, job := env.enqueue(t)
			env.handler.process = func(context.Context, *domain.Item) (any, error) {
				return nil, fmt.Errorf("enrich: %w", invalidOutputError{})
			}
			w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 1, Retry: tc.retry})

			w.Drain(context.Background())

			got, err := env.jobs.Get(context.Background(), job.ID)
			require.NoError(t, err)
			assert.Equal(t, "LLM_VALIDATION_ERROR", got.LastErrorCode)

			entries, err := env.logs.GetLogEntries()
			require.NoError(t, err)
			var found map[string]any
			for _, e := range entries {
				if e["msg"] == tc.wantMsg {
					found = e
				}
			}
			require.NotNil(t, found, "no validation failure entry logged")
			assert.Equal(t, "ERROR", found["level"])
			assert.Equal(t, "validation_failure", found["alert"])
			assert.Equal(t, "LLM_VALIDATION_ERROR", found["error_code"])
		})
	}
}

func TestWorker_OrdinaryFailureIsNotAlerted(t *testing.T) {
	env := newTestEnv(t)
	env.enqueue(t)
	env.handler.process = func(context.Context, *domain.Item) (any, error) {
		return nil, codedError{}
	}
	w := env.newWorker(t, nil, outbox.WorkerConfig{BatchSize: 1})

	w.Drain(context.Background())

	entries, err := env.logs.GetLogEntries()
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e, "alert")
	}
}
