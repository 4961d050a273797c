package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/litevault/litevault-api/internal/events"
	"github.com/litevault/litevault-api/internal/platform/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const tracerName = "github.com/litevault/litevault-api/internal/outbox"

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	// WorkerID identifies this worker in job leases. Empty selects GenerateWorkerID().
	WorkerID string

	// PollInterval is the fallback period between drain cycles.
	PollInterval time.Duration

	// ReclaimInterval is the period between expired-lease sweeps.
	ReclaimInterval time.Duration

	// LeaseDuration is how long a claim stays exclusive.
	LeaseDuration time.Duration

	// BatchSize caps the jobs claimed per drain cycle.
	BatchSize int

	// Concurrency caps jobs held at once. A job is claimed only when a
	// slot is free, so its lease covers one Handler.Process call.
	Concurrency int

	Retry RetryPolicy
}

// DefaultWorkerConfig returns a WorkerConfig with reasonable defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		PollInterval:    30 * time.Second,
		ReclaimInterval: 2 * time.Minute,
		LeaseDuration:   5 * time.Minute,
		BatchSize:       10,
		Concurrency:     3,
		Retry:           DefaultRetryPolicy(),
	}
}

// GenerateWorkerID returns hostname-pid-suffix, unique per process start.
func GenerateWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}

// WakeSource delivers job-created signals to a single registered handler.
type WakeSource interface {
	Register(handler events.EventHandler) (unregister func())
}

// Outcome labels how a claimed job left the worker. Succeeded, orphaned and
// stale all delete the job; they differ only for logs, traces and Stats.
type Outcome string

// Job outcomes.
const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeOrphaned  Outcome = "orphaned"
	OutcomeStale     Outcome = "stale"
	OutcomeRetrying  Outcome = "retrying"
	OutcomeDead      Outcome = "dead"
	// OutcomeReleased means the job was claimed but handed back unstarted
	// because the worker is stopping.
	OutcomeReleased Outcome = "released"
	// OutcomeLeaseLost means another worker took over the job after this
	// worker's lease lapsed; nothing this worker computed was written.
	OutcomeLeaseLost Outcome = "lease_lost"
	// OutcomeAbandoned means the failure itself could not be recorded; the
	// lease is left to expire and the reclaimer recovers the job.
	OutcomeAbandoned Outcome = "abandoned"
)

// Worker drains the outbox: it claims runnable jobs, runs them through
// their Handler and records the result.
type Worker struct {
	jobs     Store
	tx       Transactor
	wake     WakeSource
	handlers map[string]Handler
	config   WorkerConfig
	logger   *slog.Logger
	tracer   trace.Tracer
	sem      *semaphore.Weighted

	signal  chan struct{}
	drainMu sync.Mutex

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
	unregister func()

	statsMu sync.Mutex
	stats   map[Outcome]int64
}

// NewWorker creates a Worker. wake may be nil, in which case only the poll
// timer and the reclaimer trigger drains.
func NewWorker(
	jobs Store,
	tx Transactor,
	wake WakeSource,
	handlers map[string]Handler,
	config WorkerConfig,
	log *slog.Logger,
) *Worker {
	defaults := DefaultWorkerConfig()
	if config.WorkerID == "" {
		config.WorkerID = GenerateWorkerID()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.ReclaimInterval <= 0 {
		config.ReclaimInterval = defaults.ReclaimInterval
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = defaults.LeaseDuration
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		jobs:       jobs,
		tx:         tx,
		wake:       wake,
		handlers:   handlers,
		config:     config,
		logger:     log.With("component", "outbox_worker", "worker_id", config.WorkerID),
		tracer:     otel.Tracer(tracerName),
		sem:        semaphore.NewWeighted(int64(config.Concurrency)),
		signal:     make(chan struct{}, 1),
		ctx:        ctx,
		cancelFunc: cancel,
		stats:      make(map[Outcome]int64),
	}
}

// ID returns the identifier written into job leases.
func (w *Worker) ID() string {
	return w.config.WorkerID
}

// Start registers for wake-ups, schedules an immediate drain and starts the
// drain, poll and reclaim loops.
func (w *Worker) Start() error {
	started := false
	w.startOnce.Do(func() {
		started = true
		if w.wake != nil {
			w.unregister = w.wake.Register(events.HandlerFunc(
				func(ctx context.Context, event *events.JobCreatedEvent) error {
					w.Trigger()
					return nil
				},
			))
		}

		w.Trigger()

		w.wg.Add(3)
		go w.drainLoop()
		go w.pollLoop()
		go w.reclaimLoop()

		w.logger.Info("outbox worker started",
			"poll_interval", w.config.PollInterval,
			"reclaim_interval", w.config.ReclaimInterval,
			"lease", w.config.LeaseDuration,
			"batch_size", w.config.BatchSize,
			"concurrency", w.config.Concurrency,
			"notify", w.wake != nil)
	})
	if !started {
		return errors.New("worker already started")
	}
	return nil
}

// Stop deregisters from wake-ups, stops the timers and waits for an
// in-flight drain cycle to finish. Jobs already in Handler.Process run to
// completion, claimed jobs that have not started are released, and no
// further jobs are claimed.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		if w.unregister != nil {
			w.unregister()
		}
		w.cancelFunc()
		w.wg.Wait()
		w.logger.Info("outbox worker stopped")
	})
}

// Trigger requests a drain cycle. Requests made while one is pending collapse into it.
func (w *Worker) Trigger() {
	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *Worker) stopping() bool {
	select {
	case <-w.ctx.Done():
		return true
	default:
		return false
	}
}

func (w *Worker) drainLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.signal:
			w.Drain(context.Background())
		}
	}
}

func (w *Worker) pollLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.Trigger()
		}
	}
}

func (w *Worker) reclaimLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ReclaimNow(w.ctx); err != nil {
				w.logger.Error("failed to reclaim expired leases", "error", err)
			}
		}
	}
}

// ReclaimNow resets expired leases and, if any were reset, requests a drain.
func (w *Worker) ReclaimNow(ctx context.Context) (int, error) {
	n, err := w.jobs.ReclaimExpired(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		w.logger.Info("reclaimed jobs with expired leases", "count", n)
		w.Trigger()
	}
	return n, nil
}

// Drain runs one drain cycle: it claims up to BatchSize jobs, stopping early
// when none is runnable, and waits for all of them. Each claim waits for a
// free processing slot first. Cycles never overlap. It returns the number
// of jobs claimed.
func (w *Worker) Drain(ctx context.Context) int {
	w.drainMu.Lock()
	defer w.drainMu.Unlock()

	var wg sync.WaitGroup
	claimed := 0

	for claimed < w.config.BatchSize && !w.stopping() {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			w.logger.Error("failed to acquire processing slot", "error", err)
			break
		}
		if w.stopping() {
			w.sem.Release(1)
			break
		}

		job, err := w.jobs.ClaimNext(ctx, w.config.WorkerID, w.config.LeaseDuration)
		if err != nil {
			w.sem.Release(1)
			w.logger.Error("failed to claim job", "error", err)
			break
		}
		if job == nil {
			w.sem.Release(1)
			break
		}
		claimed++

		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			defer w.sem.Release(1)
			w.process(ctx, job)
		}(job)
	}

	wg.Wait()

	if claimed > 0 {
		w.logger.Debug("drain cycle finished", "claimed", claimed)
	}
	return claimed
}

// Stats returns how many jobs ended with each outcome since the worker was created.
func (w *Worker) Stats() map[Outcome]int64 {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()

	out := make(map[Outcome]int64, len(w.stats))
	for k, v := range w.stats {
		out[k] = v
	}
	return out
}

func (w *Worker) record(outcome Outcome) {
	w.statsMu.Lock()
	w.stats[outcome]++
	w.statsMu.Unlock()
}

// process handles execution of a single claimed job.
func (w *Worker) process(ctx context.Context, job *Job) {
	ctx, span := w.tracer.Start(ctx, "outbox.process", trace.WithAttributes(
		attribute.String("outbox.job_id", job.ID.String()),
		attribute.String("outbox.job_type", job.JobType),
		attribute.String("outbox.subject_id", job.SubjectID.String()),
		attribute.Int("outbox.attempt", job.AttemptCount),
	))
	defer span.End()

	log := w.logger.With(
		"job_id", job.ID,
		"job_type", job.JobType,
		"subject_id", job.SubjectID,
		"attempt", job.AttemptCount,
	)
	ctx = logger.WithLogger(ctx, log)

	outcome := OutcomeAbandoned
	defer func() {
		if p := recover(); p != nil {
			log.Error("panic while recording job failure", "panic", p)
			outcome = OutcomeAbandoned
		}
		w.record(outcome)
		span.SetAttributes(attribute.String("outbox.outcome", string(outcome)))
	}()

	log.Info("processing job")

	result, err := w.run(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "job failed")
		outcome = w.fail(ctx, job, err)
		return
	}

	outcome = result
	switch outcome {
	case OutcomeOrphaned:
		log.Warn("subject not found, removing job")
	case OutcomeStale:
		log.Info("subject no longer awaiting processing, skipping")
	case OutcomeReleased:
		log.Info("worker stopping, job released unstarted")
	case OutcomeLeaseLost:
		log.Warn("lease lost to another worker, result discarded",
			"lease_duration", w.config.LeaseDuration)
	default:
		log.Info("job completed")
	}
}

// run performs the claimed job and returns how it completed. Any error
// means the job has not been completed and must be recorded as failed.
func (w *Worker) run(ctx context.Context, job *Job) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &panicError{value: p}
		}
	}()

	handler, ok := w.handlers[job.JobType]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoHandler, job.JobType)
	}

	workerID := w.config.WorkerID

	var subject Subject
	err = w.tx.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		s, err := handler.Load(ctx, tx, job.SubjectID)
		switch {
		case errors.Is(err, ErrSubjectNotFound):
			outcome = OutcomeOrphaned
		case err != nil:
			return fmt.Errorf("failed to load subject: %w", err)
		case !s.AwaitingProcessing():
			outcome = OutcomeStale
		case w.stopping():
			outcome = OutcomeReleased
			return w.jobs.WithTx(tx).ReleaseClaim(ctx, job.ID, workerID)
		default:
			subject = s
			return nil
		}
		return w.jobs.WithTx(tx).MarkCompleted(ctx, job.ID, workerID)
	})
	if errors.Is(err, ErrLeaseLost) {
		return OutcomeLeaseLost, nil
	}
	if err != nil {
		return "", err
	}
	if subject == nil {
		return outcome, nil
	}

	result, err := handler.Process(ctx, subject)
	if err != nil {
		return "", err
	}

	outcome = OutcomeSucceeded
	err = w.tx.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		s, err := handler.Load(ctx, tx, job.SubjectID)
		switch {
		case errors.Is(err, ErrSubjectNotFound):
			outcome = OutcomeOrphaned
		case err != nil:
			return fmt.Errorf("failed to reload subject: %w", err)
		case !s.AwaitingProcessing():
			outcome = OutcomeStale
		default:
			if err := handler.Apply(ctx, tx, s, result); err != nil {
				return fmt.Errorf("failed to apply result: %w", err)
			}
		}
		return w.jobs.WithTx(tx).MarkCompleted(ctx, job.ID, workerID)
	})
	if errors.Is(err, ErrLeaseLost) {
		return OutcomeLeaseLost, nil
	}
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// fail records a failed attempt: retry with backoff while the budget lasts,
// otherwise fail the subject and dead-letter the job.
func (w *Worker) fail(ctx context.Context, job *Job, cause error) Outcome {
	log := logger.FromContextOrDefault(ctx, w.logger)
	code, msg := Classify(cause)
	policy := w.config.Retry
	workerID := w.config.WorkerID
	invalidOutput := IsValidationFailure(cause)

	if !policy.IsExhausted(job.AttemptCount) && !errors.Is(cause, ErrNoHandler) {
		backoff := policy.BackoffFor(job.AttemptCount)
		err := w.jobs.MarkFailed(ctx, job.ID, workerID, code, msg, backoff)
		if errors.Is(err, ErrLeaseLost) {
			log.Warn("lease lost before failure was recorded", "error_code", code)
			return OutcomeLeaseLost
		}
		if err != nil {
			log.Error("failed to record job failure", "error", err, "error_code", code)
			return OutcomeAbandoned
		}
		if invalidOutput {
			log.Error("job output failed validation, will retry",
				"error_code", code,
				"error", msg,
				"backoff", backoff,
				"alert", "validation_failure")
			return OutcomeRetrying
		}
		log.Warn("job failed, will retry",
			"error_code", code,
			"error", msg,
			"backoff", backoff,
			"max_retries", policy.MaxRetries)
		return OutcomeRetrying
	}

	handler := w.handlers[job.JobType]
	err := w.tx.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if handler != nil {
			s, err := handler.Load(ctx, tx, job.SubjectID)
			switch {
			case errors.Is(err, ErrSubjectNotFound):
			case err != nil:
				return fmt.Errorf("failed to load subject: %w", err)
			case s.AwaitingProcessing():
				if err := handler.Fail(ctx, tx, s); err != nil {
					return fmt.Errorf("failed to mark subject failed: %w", err)
				}
			}
		}
		return w.jobs.WithTx(tx).MarkDead(ctx, job.ID, workerID, code, msg)
	})
	if errors.Is(err, ErrLeaseLost) {
		log.Warn("lease lost before job was dead-lettered", "error_code", code)
		return OutcomeLeaseLost
	}
	if err != nil {
		log.Error("failed to dead-letter job", "error", err, "error_code", code)
		return OutcomeAbandoned
	}

	if invalidOutput {
		log.Error("job output failed validation, dead-lettered",
			"error_code", code,
			"error", msg,
			"alert", "validation_failure")
		return OutcomeDead
	}
	log.Error("job dead-lettered",
		"error_code", code,
		"error", msg,
		"max_retries", policy.MaxRetries)
	return OutcomeDead
}
