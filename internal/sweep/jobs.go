// Package sweep runs the periodic batch jobs that keep task state current:
// due-date notifications, overdue reclassification and recurrence catch-up.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/repubhub/republic-api/internal/clock"
	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/notify"
	"github.com/repubhub/republic-api/internal/store"
)

// Sweep window constants.
const (
	dueSoonWindow      = 24 * time.Hour
	dueSoonLongWindow  = 72 * time.Hour
	overdueNoticeAge   = 24 * time.Hour
)

// Job is one named periodic sweep. Spec is a standard 5-field cron
// expression; Run is directly invokable, so tests never wait on the
// scheduler's wall clock.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// RecurrenceSpawner spawns the next instance of a recurring task.
type RecurrenceSpawner interface {
	CreateNextInstance(ctx context.Context, template *domain.Task) (*domain.Task, error)
}

// Jobs holds the dependencies shared by all sweep jobs and builds them.
type Jobs struct {
	tasks    store.TaskStore
	spawner  RecurrenceSpawner
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// NewJobs creates the sweep job set.
// Returns an error if the task store or spawner is nil. A nil notifier
// defaults to the log-backed notifier, a nil clock to the system clock.
func NewJobs(
	tasks store.TaskStore,
	spawner RecurrenceSpawner,
	notifier notify.Notifier,
	clk clock.Clock,
	log *slog.Logger,
) (*Jobs, error) {
	if tasks == nil {
		return nil, fmt.Errorf("%w: task store cannot be nil", domain.ErrValidation)
	}
	if spawner == nil {
		return nil, fmt.Errorf("%w: recurrence spawner cannot be nil", domain.ErrValidation)
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Jobs{
		tasks:    tasks,
		spawner:  spawner,
		notifier: notifier,
		clock:    clk,
		logger:   log.With(slog.String("component", "sweep")),
	}, nil
}

// All returns every sweep job with its default trigger. The triggers are
// spread across distinct times so the jobs do not pile up on one tick.
func (j *Jobs) All() []Job {
	return []Job{
		{Name: "due_soon_24h", Spec: "0 7 * * *", Run: j.RunDueSoon24h},
		{Name: "due_soon_3d", Spec: "15 7 * * *", Run: j.RunDueSoon3d},
		{Name: "overdue_notice", Spec: "30 7 * * *", Run: j.RunOverdueNotice},
		{Name: "recurrence_overdue", Spec: "45 7 * * *", Run: j.RunRecurrenceOverdue},
		{Name: "recurrence_completed", Spec: "0 8 * * *", Run: j.RunRecurrenceCompleted},
	}
}

// RunDueSoon24h notifies assignees of pending and in-progress tasks due
// within the next 24 hours.
func (j *Jobs) RunDueSoon24h(ctx context.Context) error {
	now := j.clock.Now()
	tasks, err := j.tasks.FindDueWithin(ctx, now, dueSoonWindow)
	if err != nil {
		return fmt.Errorf("failed to query tasks due within 24h: %w", err)
	}

	j.forEach(ctx, "due_soon_24h", tasks, func(ctx context.Context, task *domain.Task) error {
		j.notifyAssignees(ctx, task, notify.KindDueSoon,
			fmt.Sprintf("%q is due within 24 hours", task.Title))
		return nil
	})
	return nil
}

// RunDueSoon3d notifies assignees of pending and in-progress tasks due
// within the next 3 days.
func (j *Jobs) RunDueSoon3d(ctx context.Context) error {
	now := j.clock.Now()
	tasks, err := j.tasks.FindDueWithin(ctx, now, dueSoonLongWindow)
	if err != nil {
		return fmt.Errorf("failed to query tasks due within 3 days: %w", err)
	}

	j.forEach(ctx, "due_soon_3d", tasks, func(ctx context.Context, task *domain.Task) error {
		j.notifyAssignees(ctx, task, notify.KindDueSoon,
			fmt.Sprintf("%q is due within 3 days", task.Title))
		return nil
	})
	return nil
}

// RunOverdueNotice notifies assignees of tasks more than a day past due.
func (j *Jobs) RunOverdueNotice(ctx context.Context) error {
	now := j.clock.Now()
	tasks, err := j.tasks.FindOverdueLongerThan(ctx, now, overdueNoticeAge)
	if err != nil {
		return fmt.Errorf("failed to query overdue tasks: %w", err)
	}

	j.forEach(ctx, "overdue_notice", tasks, func(ctx context.Context, task *domain.Task) error {
		j.notifyAssignees(ctx, task, notify.KindOverdue,
			fmt.Sprintf("%q is overdue", task.Title))
		return nil
	})
	return nil
}

// RunRecurrenceOverdue is the catch-up path for recurring tasks that went
// overdue instead of being completed: it reclassifies them and spawns the
// next instance. The spawner's idempotency guard makes re-running this
// alongside the completion fast path safe.
func (j *Jobs) RunRecurrenceOverdue(ctx context.Context) error {
	now := j.clock.Now()
	tasks, err := j.tasks.FindRecurringOverdue(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to query overdue recurring tasks: %w", err)
	}

	j.forEach(ctx, "recurrence_overdue", tasks, func(ctx context.Context, task *domain.Task) error {
		if task.RefreshOverdue(now) {
			if err := j.tasks.Save(ctx, task); err != nil {
				return fmt.Errorf("failed to persist overdue transition: %w", err)
			}
		}

		child, err := j.spawner.CreateNextInstance(ctx, task)
		if err != nil {
			return fmt.Errorf("failed to spawn next instance: %w", err)
		}
		if child != nil {
			j.notifyAssignees(ctx, child, notify.KindAssigned,
				fmt.Sprintf("New recurring task %q", child.Title))
		}
		return nil
	})
	return nil
}

// RunRecurrenceCompleted is the catch-up path for completed recurring tasks
// whose synchronous spawn never happened.
func (j *Jobs) RunRecurrenceCompleted(ctx context.Context) error {
	tasks, err := j.tasks.FindRecurringCompletedWithoutChild(ctx)
	if err != nil {
		return fmt.Errorf("failed to query completed recurring tasks: %w", err)
	}

	j.forEach(ctx, "recurrence_completed", tasks, func(ctx context.Context, task *domain.Task) error {
		child, err := j.spawner.CreateNextInstance(ctx, task)
		if err != nil {
			return fmt.Errorf("failed to spawn next instance: %w", err)
		}
		if child != nil {
			j.notifyAssignees(ctx, child, notify.KindAssigned,
				fmt.Sprintf("New recurring task %q", child.Title))
		}
		return nil
	})
	return nil
}

// forEach processes each task in its own failure boundary: one bad task is
// logged and skipped, never aborting the remaining batch.
func (j *Jobs) forEach(
	ctx context.Context,
	jobName string,
	tasks []*domain.Task,
	fn func(ctx context.Context, task *domain.Task) error,
) {
	log := j.logger.With(slog.String("job", jobName))

	var failed int
	for _, task := range tasks {
		if err := fn(ctx, task); err != nil {
			failed++
			log.Error("sweep task processing failed",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	log.Info("sweep finished",
		slog.Int("processed", len(tasks)),
		slog.Int("failed", failed))
}

// notifyAssignees fans a notification out to every assignee of the task.
// Delivery errors are logged by the notifier path and never stop the sweep.
func (j *Jobs) notifyAssignees(ctx context.Context, task *domain.Task, kind notify.Kind, message string) {
	for _, userID := range task.AssignedUserIDs {
		n := notify.Notification{
			RecipientID: userID,
			TaskID:      task.ID,
			TaskTitle:   task.Title,
			Kind:        kind,
			Message:     message,
		}
		if err := j.notifier.Notify(ctx, n); err != nil {
			j.logger.Error("failed to send sweep notification",
				slog.String("recipient_id", userID.String()),
				slog.String("task_id", task.ID.String()),
				slog.String("kind", string(kind)),
				slog.String("error", err.Error()))
		}
	}
}
