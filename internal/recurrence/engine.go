// Package recurrence derives the next occurrence of a recurring task and
// spawns it idempotently.
package recurrence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/repubhub/republic-api/internal/clock"
	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/platform/logger"
	"github.com/repubhub/republic-api/internal/store"
)

// TaskStore is the subset of the task store the engine needs.
type TaskStore interface {
	Create(ctx context.Context, task *domain.Task) error
	ExistsChild(ctx context.Context, parentID uuid.UUID) (bool, error)
}

// NextDueDate computes the due date of the occurrence following current.
// The next date always derives from the task's current due date, not from
// "now": completing a task late must not drift the schedule. A long-overdue
// chain can therefore produce a next instance that is itself already in the
// past; that instance is picked up by the next overdue sweep like any other.
func NextDueDate(current time.Time, typ domain.RecurrenceType, interval int) time.Time {
	switch typ {
	case domain.RecurrenceDaily:
		return current.AddDate(0, 0, interval)
	case domain.RecurrenceWeekly:
		return current.AddDate(0, 0, 7*interval)
	case domain.RecurrenceMonthly:
		return current.AddDate(0, interval, 0)
	case domain.RecurrenceYearly:
		return current.AddDate(interval, 0, 0)
	default:
		// Unreachable for validated tasks; return current unchanged rather
		// than guessing a unit.
		return current
	}
}

// ShouldContinue reports whether recurrence continues past the task's
// current due date: true if the task has no recurrence horizon, or the
// computed next due date is on or before it.
func ShouldContinue(task *domain.Task) bool {
	if !task.IsRecurring || task.DueDate == nil {
		return false
	}

	if task.RecurrenceEndDate == nil {
		return true
	}

	next := NextDueDate(*task.DueDate, task.RecurrenceType, task.RecurrenceInterval)
	return !next.After(*task.RecurrenceEndDate)
}

// BuildNextInstance constructs the next occurrence of template as a fresh
// pending task: title, description, category, republic, recurrence
// configuration and the full assignee set are copied; the due date advances
// by one recurrence step; ParentTaskID points back at the template.
// Pure construction — nothing is persisted.
func BuildNextInstance(template *domain.Task, now time.Time) (*domain.Task, error) {
	if template.DueDate == nil {
		return nil, domain.ErrRecurringDueDateRequired
	}

	next := NextDueDate(*template.DueDate, template.RecurrenceType, template.RecurrenceInterval)
	parentID := template.ID

	assignees := make([]uuid.UUID, len(template.AssignedUserIDs))
	copy(assignees, template.AssignedUserIDs)

	child := &domain.Task{
		ID:                 uuid.New(),
		RepublicID:         template.RepublicID,
		Title:              template.Title,
		Description:        template.Description,
		Category:           template.Category,
		AssignedUserIDs:    assignees,
		Status:             domain.TaskStatusPending,
		DueDate:            &next,
		CreatedAt:          now,
		UpdatedAt:          now,
		IsRecurring:        template.IsRecurring,
		RecurrenceType:     template.RecurrenceType,
		RecurrenceInterval: template.RecurrenceInterval,
		RecurrenceEndDate:  template.RecurrenceEndDate,
		ParentTaskID:       &parentID,
	}

	if err := child.Validate(); err != nil {
		return nil, err
	}

	return child, nil
}

// Engine spawns the next instance of recurring tasks through the task store.
// It is the single choke point invoked from both the synchronous completion
// path and the scheduled catch-up sweeps; the existence check plus the
// store's unique constraint on parent_task_id make running both paths safe.
type Engine struct {
	tasks  TaskStore
	clock  clock.Clock
	logger *slog.Logger
}

// NewEngine creates a recurrence Engine.
// Returns an error if the task store is nil. A nil clock defaults to the
// system clock and a nil logger to slog.Default().
func NewEngine(tasks TaskStore, clk clock.Clock, log *slog.Logger) (*Engine, error) {
	if tasks == nil {
		return nil, fmt.Errorf("%w: task store cannot be nil", domain.ErrValidation)
	}
	if clk == nil {
		clk = clock.System()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		tasks:  tasks,
		clock:  clk,
		logger: log.With(slog.String("component", "recurrence_engine")),
	}, nil
}

// CreateNextInstance attempts to spawn the next occurrence of template.
// It returns (nil, nil) — a no-op — when the template is not recurring,
// recurrence has reached its horizon, or a child instance already exists
// (including the case where a concurrent caller won the race and the
// store's unique constraint rejected our insert). Otherwise it persists
// and returns the new instance.
func (e *Engine) CreateNextInstance(ctx context.Context, template *domain.Task) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, e.logger)

	if !template.IsRecurring {
		return nil, nil
	}

	if !ShouldContinue(template) {
		log.Debug("recurrence horizon reached, not spawning next instance",
			slog.String("task_id", template.ID.String()))
		return nil, nil
	}

	exists, err := e.tasks.ExistsChild(ctx, template.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing child task: %w", err)
	}
	if exists {
		log.Debug("child instance already exists, not spawning another",
			slog.String("task_id", template.ID.String()))
		return nil, nil
	}

	child, err := BuildNextInstance(template, e.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to build next instance: %w", err)
	}

	if err := e.tasks.Create(ctx, child); err != nil {
		// A concurrent spawn beat us to the unique constraint; the outcome
		// the caller cares about (exactly one child) holds, so treat it as
		// the no-op case.
		if store.IsDuplicateError(err) {
			log.Debug("concurrent spawn created the child first",
				slog.String("task_id", template.ID.String()))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to persist next instance: %w", err)
	}

	log.Info("spawned next recurring instance",
		slog.String("parent_task_id", template.ID.String()),
		slog.String("task_id", child.ID.String()),
		slog.Time("due_date", *child.DueDate))

	return child, nil
}
