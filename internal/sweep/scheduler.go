package sweep

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/repubhub/republic-api/internal/platform/logger"
)

// Scheduler fires registered sweep jobs on their cron triggers.
// Jobs are independent: a failing job is logged and retried on its next
// tick, and no coordination between jobs is assumed or provided.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewScheduler creates a Scheduler.
// If log is nil, a default logger will be used.
func NewScheduler(log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}

	return &Scheduler{
		cron:   cron.New(),
		logger: log.With(slog.String("component", "sweep_scheduler")),
	}
}

// Register wires a job to its cron trigger.
// Returns an error if the job's spec does not parse.
func (s *Scheduler) Register(job Job) error {
	jobLogger := s.logger.With(slog.String("job", job.Name))

	_, err := s.cron.AddFunc(job.Spec, func() {
		ctx := logger.WithLogger(context.Background(), jobLogger)

		jobLogger.Debug("sweep job starting")
		if err := job.Run(ctx); err != nil {
			jobLogger.Error("sweep job failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to register sweep job %q: %w", job.Name, err)
	}

	s.logger.Info("sweep job registered",
		slog.String("job", job.Name),
		slog.String("spec", job.Spec))
	return nil
}

// RegisterAll registers every job, stopping at the first bad spec.
func (s *Scheduler) RegisterAll(jobs []Job) error {
	for _, job := range jobs {
		if err := s.Register(job); err != nil {
			return err
		}
	}
	return nil
}

// Start begins firing jobs on their triggers. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("sweep scheduler started")
}

// Stop stops the trigger clock and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("sweep scheduler stopped")
}
