package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/repubhub/republic-api/internal/clock"
	"github.com/repubhub/republic-api/internal/config"
	"github.com/repubhub/republic-api/internal/notify"
	"github.com/repubhub/republic-api/internal/platform/postgres"
	"github.com/repubhub/republic-api/internal/recurrence"
	"github.com/repubhub/republic-api/internal/service"
	"github.com/repubhub/republic-api/internal/service/auth"
	"github.com/repubhub/republic-api/internal/store"
	"github.com/repubhub/republic-api/internal/sweep"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	clock  clock.Clock

	taskStore store.TaskStore

	jwtService  auth.JWTService
	notifier    notify.Notifier
	engine      *recurrence.Engine
	taskService service.TaskService

	scheduler *sweep.Scheduler
}

// newApplication creates a new application instance with all dependencies
// initialized. It accepts the core dependencies that must be established
// before application wiring: configuration, logger and database connection.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
		clock:  clock.System(),
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	app.taskStore = postgres.NewPostgresTaskStore(db, logger)
	app.notifier = notify.NewLogNotifier(logger)

	app.engine, err = recurrence.NewEngine(app.taskStore, app.clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create recurrence engine: %w", err)
	}

	app.taskService, err = service.NewTaskService(
		app.taskStore,
		app.engine,
		app.notifier,
		app.clock,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	if cfg.Sweep.Enabled {
		jobs, err := sweep.NewJobs(app.taskStore, app.engine, app.notifier, app.clock, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create sweep jobs: %w", err)
		}

		app.scheduler = sweep.NewScheduler(logger)
		if err := app.scheduler.RegisterAll(jobs.All()); err != nil {
			return nil, fmt.Errorf("failed to register sweep jobs: %w", err)
		}
	}

	logger.Info("Application initialized successfully")
	return app, nil
}

// Run starts the sweep scheduler and the HTTP server, blocking until the
// context is canceled or the server fails.
func (app *application) Run(ctx context.Context) error {
	if app.scheduler != nil {
		app.scheduler.Start()
	}

	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("Error closing database connection", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
