package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/litevault/litevault-api/internal/config"
	"github.com/litevault/litevault-api/internal/enrichment"
	"github.com/litevault/litevault-api/internal/events"
	"github.com/litevault/litevault-api/internal/outbox"
	"github.com/litevault/litevault-api/internal/platform/gemini"
	"github.com/litevault/litevault-api/internal/platform/postgres"
	"github.com/litevault/litevault-api/internal/platform/sqlite"
	"github.com/litevault/litevault-api/internal/service"
	"github.com/litevault/litevault-api/internal/service/auth"
	"github.com/litevault/litevault-api/internal/store"
	"github.com/pressly/goose/v3"
)

// application holds the long-lived dependencies shared by the commands.
type application struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB

	items    store.ItemStore
	jobs     outbox.Store
	tx       *store.Transactor
	notifier *events.Notifier
	outbox   *outbox.Service
	itemSvc  *service.ItemService
	jwt      auth.JWTService
}

// openDatabase connects to the configured store, optionally applying migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger, migrate bool) (*sql.DB, error) {
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, log)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return db, nil
	case "sqlite":
		if migrate {
			return sqlite.Open(cfg.Database.URL)
		}
		return sqlite.Connect(cfg.Database.URL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

func migrationProvider(cfg *config.Config, db *sql.DB) (*goose.Provider, error) {
	if cfg.Database.Driver == "sqlite" {
		return sqlite.MigrationProvider(db)
	}
	return postgres.MigrationProvider(db)
}

// newApplication opens the database, applies migrations and wires the
// stores and services. The caller must call close.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	db, err := openDatabase(ctx, cfg, log, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	app := &application{cfg: cfg, logger: log, db: db, tx: store.NewTransactor(db)}

	var opts []events.Option
	switch cfg.Database.Driver {
	case "postgres":
		app.items = postgres.NewItemStore(db, log)
		app.jobs = postgres.NewJobStore(db, nil, log)
		opts = append(opts, events.WithBroadcast(postgres.Broadcaster(db, cfg.Job.NotifyChannel)))
	default:
		app.items = sqlite.NewItemStore(db, log)
		app.jobs = sqlite.NewJobStore(db, nil, log)
	}

	app.notifier = events.NewNotifier(cfg.Job.NotifyEnabled, log, opts...)
	app.outbox = outbox.NewService(app.jobs, app.notifier, log)

	app.itemSvc, err = service.NewItemService(app.items, app.tx, app.outbox, log)
	if err != nil {
		app.close()
		return nil, err
	}

	app.jwt, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		app.close()
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	return app, nil
}

// newProvider builds the configured enrichment backend.
func newProvider(ctx context.Context, cfg config.LLMConfig, log *slog.Logger) (enrichment.Provider, error) {
	switch cfg.Provider {
	case "stub":
		return enrichment.StubProvider{}, nil
	case "gemini":
		return gemini.NewProvider(ctx, log.With("component", "gemini_provider"), cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", enrichment.ErrInvalidConfig, cfg.Provider)
	}
}

// newWorker builds the outbox worker with the enrichment handler registered.
func (app *application) newWorker(ctx context.Context) (*outbox.Worker, error) {
	provider, err := newProvider(ctx, app.cfg.LLM, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize enrichment provider: %w", err)
	}

	handlers := map[string]outbox.Handler{
		enrichment.JobType: enrichment.NewHandler(app.items, provider, app.logger),
	}

	job := app.cfg.Job
	return outbox.NewWorker(app.jobs, app.tx, app.notifier, handlers, outbox.WorkerConfig{
		WorkerID:        job.WorkerID,
		PollInterval:    job.EffectivePollInterval(),
		ReclaimInterval: job.ReclaimInterval,
		LeaseDuration:   job.LeaseDuration,
		BatchSize:       job.BatchSize,
		Concurrency:     app.cfg.LLM.Concurrency,
		Retry: outbox.RetryPolicy{
			Backoff:    job.Backoff,
			MaxRetries: job.MaxRetries,
		},
	}, app.logger), nil
}

// newListener returns the cross-process wake-up listener, or nil when the
// store has no LISTEN/NOTIFY support or notifications are disabled.
func (app *application) newListener() *postgres.Listener {
	if app.cfg.Database.Driver != "postgres" || !app.cfg.Job.NotifyEnabled {
		return nil
	}
	return postgres.NewListener(app.cfg.Database.URL, app.cfg.Job.NotifyChannel, app.notifier, app.logger)
}

func (app *application) close() {
	if app.db == nil {
		return
	}
	if err := app.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		app.logger.Error("failed to close database", "error", err)
	}
}
