package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/repubhub/republic-api/internal/clock"
	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/notify"
	"github.com/repubhub/republic-api/internal/platform/logger"
	"github.com/repubhub/republic-api/internal/store"
)

// RecurrenceSpawner spawns the next instance of a recurring task.
// A (nil, nil) return means the spawn was a no-op (not recurring, horizon
// reached, or a child already exists).
type RecurrenceSpawner interface {
	CreateNextInstance(ctx context.Context, template *domain.Task) (*domain.Task, error)
}

// TaskUpdate holds a partial update request. Nil fields are left unchanged.
type TaskUpdate struct {
	Title       *string
	Description *string
	Category    *string
	DueDate     *time.Time

	// Status accepts "pending" or "in_progress" only: other lifecycle
	// states are reached through their dedicated operations.
	Status *string

	IsRecurring        *bool
	RecurrenceType     *string
	RecurrenceInterval *int
	RecurrenceEndDate  *time.Time
}

// TaskService provides task lifecycle operations.
type TaskService interface {
	// CreateTask validates and persists a new original task.
	CreateTask(ctx context.Context, params domain.TaskParams) (*domain.Task, error)

	// GetTask retrieves a task by its ID.
	GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// ListTasks retrieves tasks matching the filter together with the
	// total match count (ignoring pagination).
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error)

	// StartProgress moves a pending or overdue task to in_progress.
	// The returned flag reports whether the status actually changed; an
	// ineligible starting state is a no-op, not an error.
	StartProgress(ctx context.Context, id uuid.UUID) (*domain.Task, bool, error)

	// CompleteTask completes a task. On an actual transition it spawns the
	// next recurring instance (when applicable) and notifies assignees.
	CompleteTask(ctx context.Context, id uuid.UUID) (*domain.Task, bool, error)

	// CancelTask cancels a task. No recurrence side effect.
	CancelTask(ctx context.Context, id uuid.UUID) (*domain.Task, bool, error)

	// AssignUser adds a member to the task's assignee set and notifies
	// them. Idempotent.
	AssignUser(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, bool, error)

	// UnassignUser removes a member from the task's assignee set. Idempotent.
	UnassignUser(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, bool, error)

	// UpdateTask applies the non-nil fields of the partial update, then
	// re-runs the overdue check so a due-date edit is reclassified
	// immediately.
	UpdateTask(ctx context.Context, id uuid.UUID, update TaskUpdate) (*domain.Task, error)

	// DeleteTask removes a task permanently.
	DeleteTask(ctx context.Context, id uuid.UUID) error
}

// taskServiceImpl implements the TaskService interface.
type taskServiceImpl struct {
	tasks    store.TaskStore
	spawner  RecurrenceSpawner
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if the task store or spawner is nil. A nil notifier
// defaults to the log-backed notifier, a nil clock to the system clock.
func NewTaskService(
	tasks store.TaskStore,
	spawner RecurrenceSpawner,
	notifier notify.Notifier,
	clk clock.Clock,
	log *slog.Logger,
) (TaskService, error) {
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

	return &taskServiceImpl{
		tasks:    tasks,
		spawner:  spawner,
		notifier: notifier,
		clock:    clk,
		logger:   log.With(slog.String("component", "task_service")),
	}, nil
}

// CreateTask implements TaskService.CreateTask
func (s *taskServiceImpl) CreateTask(ctx context.Context, params domain.TaskParams) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := domain.NewTask(params, s.clock.Now())
	if err != nil {
		return nil, NewTaskServiceError("create_task", "invalid task", err)
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		log.Error("failed to create task",
			slog.String("error", err.Error()))
		return nil, NewTaskServiceError("create_task", "failed to save task", err)
	}

	for _, userID := range task.AssignedUserIDs {
		s.send(ctx, notify.Notification{
			RecipientID: userID,
			TaskID:      task.ID,
			TaskTitle:   task.Title,
			Kind:        notify.KindAssigned,
			Message:     fmt.Sprintf("You were assigned to %q", task.Title),
		})
	}

	log.Info("task created",
		slog.String("task_id", task.ID.String()),
		slog.String("republic_id", task.RepublicID.String()))

	return task, nil
}

// GetTask implements TaskService.GetTask
func (s *taskServiceImpl) GetTask(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, NewTaskServiceError("get_task",
				fmt.Sprintf("task %s not found", id), store.ErrTaskNotFound)
		}
		return nil, NewTaskServiceError("get_task", "failed to retrieve task", err)
	}
	return task, nil
}

// ListTasks implements TaskService.ListTasks
func (s *taskServiceImpl) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	if filter.Now.IsZero() {
		filter.Now = s.clock.Now()
	}

	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, 0, NewTaskServiceError("list_tasks", "failed to list tasks", err)
	}

	total, err := s.tasks.Count(ctx, filter)
	if err != nil {
		return nil, 0, NewTaskServiceError("list_tasks", "failed to count tasks", err)
	}

	return tasks, total, nil
}

// StartProgress implements TaskService.StartProgress
func (s *taskServiceImpl) StartProgress(ctx context.Context, id uuid.UUID) (*domain.Task, bool, error) {
	return s.transition(ctx, id, "start_progress", func(task *domain.Task, now time.Time) bool {
		return task.StartProgress(now)
	})
}

// CompleteTask implements TaskService.CompleteTask
func (s *taskServiceImpl) CompleteTask(ctx context.Context, id uuid.UUID) (*domain.Task, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, changed, err := s.transition(ctx, id, "complete_task", func(task *domain.Task, now time.Time) bool {
		return task.Complete(now)
	})
	if err != nil || !changed {
		return task, changed, err
	}

	// Fast path of recurrence advancement. Failure here is logged, not
	// propagated: the completion already happened, and the scheduled
	// catch-up sweep will spawn the instance later.
	if task.IsRecurring {
		if _, err := s.spawner.CreateNextInstance(ctx, task); err != nil {
			log.Error("failed to spawn next recurring instance on completion",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
		}
	}

	for _, userID := range task.AssignedUserIDs {
		s.send(ctx, notify.Notification{
			RecipientID: userID,
			TaskID:      task.ID,
			TaskTitle:   task.Title,
			Kind:        notify.KindCompleted,
			Message:     fmt.Sprintf("%q was completed", task.Title),
		})
	}

	return task, true, nil
}

// CancelTask implements TaskService.CancelTask
func (s *taskServiceImpl) CancelTask(ctx context.Context, id uuid.UUID) (*domain.Task, bool, error) {
	return s.transition(ctx, id, "cancel_task", func(task *domain.Task, now time.Time) bool {
		return task.Cancel(now)
	})
}

// AssignUser implements TaskService.AssignUser
func (s *taskServiceImpl) AssignUser(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, bool, error) {
	if userID == uuid.Nil {
		return nil, false, NewTaskServiceError("assign_user", "user ID cannot be empty", domain.ErrInvalidID)
	}

	task, changed, err := s.transition(ctx, taskID, "assign_user", func(task *domain.Task, now time.Time) bool {
		return task.Assign(userID, now)
	})
	if err != nil || !changed {
		return task, changed, err
	}

	s.send(ctx, notify.Notification{
		RecipientID: userID,
		TaskID:      task.ID,
		TaskTitle:   task.Title,
		Kind:        notify.KindAssigned,
		Message:     fmt.Sprintf("You were assigned to %q", task.Title),
	})

	return task, true, nil
}

// UnassignUser implements TaskService.UnassignUser
func (s *taskServiceImpl) UnassignUser(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, bool, error) {
	if userID == uuid.Nil {
		return nil, false, NewTaskServiceError("unassign_user", "user ID cannot be empty", domain.ErrInvalidID)
	}

	return s.transition(ctx, taskID, "unassign_user", func(task *domain.Task, now time.Time) bool {
		return task.Unassign(userID, now)
	})
}

// UpdateTask implements TaskService.UpdateTask
func (s *taskServiceImpl) UpdateTask(ctx context.Context, id uuid.UUID, update TaskUpdate) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()

	if update.Title != nil {
		task.Title = *update.Title
	}
	if update.Description != nil {
		task.Description = *update.Description
	}
	if update.Category != nil {
		task.Category = *update.Category
	}
	if update.DueDate != nil {
		task.DueDate = update.DueDate
	}
	if update.IsRecurring != nil {
		task.IsRecurring = *update.IsRecurring
	}
	if update.RecurrenceType != nil {
		typ, err := domain.ParseRecurrenceType(*update.RecurrenceType)
		if err != nil {
			return nil, NewTaskServiceError("update_task", "invalid recurrence type", err)
		}
		task.RecurrenceType = typ
	}
	if update.RecurrenceInterval != nil {
		task.RecurrenceInterval = *update.RecurrenceInterval
	}
	if update.RecurrenceEndDate != nil {
		task.RecurrenceEndDate = update.RecurrenceEndDate
	}

	if update.Status != nil {
		status, err := domain.ParseTaskStatus(*update.Status)
		if err != nil {
			return nil, NewTaskServiceError("update_task", "invalid status", err)
		}
		switch status {
		case domain.TaskStatusInProgress:
			task.StartProgress(now)
		case domain.TaskStatusPending:
			task.ResetToPending(now)
		default:
			return nil, NewTaskServiceError("update_task",
				fmt.Sprintf("status %q cannot be set directly, use the lifecycle operations", status),
				domain.ErrInvalidTaskStatus)
		}
	}

	// A due-date edit must be reclassified immediately.
	task.RefreshOverdue(now)

	task.UpdatedAt = now
	if err := task.Validate(); err != nil {
		return nil, NewTaskServiceError("update_task", "invalid task", err)
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		log.Error("failed to save updated task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		if store.IsNotFoundError(err) {
			return nil, NewTaskServiceError("update_task",
				fmt.Sprintf("task %s not found", id), store.ErrTaskNotFound)
		}
		return nil, NewTaskServiceError("update_task", "failed to save task", err)
	}

	return task, nil
}

// DeleteTask implements TaskService.DeleteTask
func (s *taskServiceImpl) DeleteTask(ctx context.Context, id uuid.UUID) error {
	if err := s.tasks.Delete(ctx, id); err != nil {
		if store.IsNotFoundError(err) {
			return NewTaskServiceError("delete_task",
				fmt.Sprintf("task %s not found", id), store.ErrTaskNotFound)
		}
		return NewTaskServiceError("delete_task", "failed to delete task", err)
	}
	return nil
}

// transition loads a task, applies a domain transition and persists the
// result when the transition changed anything. The returned flag makes the
// silent no-op case observable to callers.
func (s *taskServiceImpl) transition(
	ctx context.Context,
	id uuid.UUID,
	operation string,
	apply func(task *domain.Task, now time.Time) bool,
) (*domain.Task, bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, false, NewTaskServiceError(operation,
				fmt.Sprintf("task %s not found", id), store.ErrTaskNotFound)
		}
		return nil, false, NewTaskServiceError(operation, "failed to retrieve task", err)
	}

	if !apply(task, s.clock.Now()) {
		log.Debug("transition was a no-op",
			slog.String("operation", operation),
			slog.String("task_id", task.ID.String()),
			slog.String("status", string(task.Status)))
		return task, false, nil
	}

	if err := s.tasks.Save(ctx, task); err != nil {
		log.Error("failed to persist transition",
			slog.String("operation", operation),
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return nil, false, NewTaskServiceError(operation, "failed to save task", err)
	}

	return task, true, nil
}

// send fires a notification, logging delivery errors without propagating
// them: notification failures never change task state.
func (s *taskServiceImpl) send(ctx context.Context, n notify.Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to send notification",
			slog.String("recipient_id", n.RecipientID.String()),
			slog.String("task_id", n.TaskID.String()),
			slog.String("kind", string(n.Kind)),
			slog.String("error", err.Error()))
	}
}
