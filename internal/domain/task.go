package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusOverdue    TaskStatus = "overdue"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// RecurrenceType represents the calendar unit a recurring task advances by.
type RecurrenceType string

// Possible recurrence type values.
const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
	RecurrenceYearly  RecurrenceType = "yearly"
)

// Task-specific validation errors.
var (
	// ErrTaskIDEmpty is returned when a task ID is empty or nil.
	ErrTaskIDEmpty = errors.New("task ID cannot be empty")

	// ErrTaskRepublicIDEmpty is returned when a task's republic ID is empty or nil.
	ErrTaskRepublicIDEmpty = errors.New("task republic ID cannot be empty")

	// ErrTaskTitleEmpty is returned when a task's title is empty or blank.
	ErrTaskTitleEmpty = errors.New("task title cannot be empty")

	// ErrInvalidTaskStatus is returned when a task status is not valid.
	ErrInvalidTaskStatus = errors.New("invalid task status")

	// ErrInvalidRecurrenceType is returned when a recurrence type string
	// does not match any known value.
	ErrInvalidRecurrenceType = errors.New("invalid recurrence type")

	// ErrRecurrenceTypeRequired is returned when a recurring task has no
	// recurrence type.
	ErrRecurrenceTypeRequired = errors.New("recurring task requires a recurrence type")

	// ErrRecurrenceIntervalInvalid is returned when a recurring task has a
	// zero or negative recurrence interval.
	ErrRecurrenceIntervalInvalid = errors.New("recurrence interval must be a positive integer")

	// ErrRecurringDueDateRequired is returned when a recurring task has no
	// due date to advance from.
	ErrRecurringDueDateRequired = errors.New("recurring task requires a due date")

	// ErrCompletedAtMismatch is returned when CompletedAt and the completed
	// status disagree with each other.
	ErrCompletedAtMismatch = errors.New("completedAt must be set exactly when status is completed")
)

// Task represents a single household chore owned by a republic.
// A task may recur; recurring tasks spawn their next occurrence through the
// recurrence engine, linked back to the spawning instance via ParentTaskID.
type Task struct {
	ID          uuid.UUID `json:"id"`
	RepublicID  uuid.UUID `json:"republic_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`

	// AssignedUserIDs holds the member ids this task is assigned to.
	// Set semantics: no duplicates, order not significant. Empty is valid.
	AssignedUserIDs []uuid.UUID `json:"assigned_user_ids"`

	Status      TaskStatus `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	IsRecurring        bool           `json:"is_recurring"`
	RecurrenceType     RecurrenceType `json:"recurrence_type,omitempty"`
	RecurrenceInterval int            `json:"recurrence_interval,omitempty"`
	RecurrenceEndDate  *time.Time     `json:"recurrence_end_date,omitempty"`

	// ParentTaskID links a spawned recurring instance back to the task it
	// continues. Nil for originals.
	ParentTaskID *uuid.UUID `json:"parent_task_id,omitempty"`
}

// TaskParams holds the caller-supplied fields for creating a new task.
type TaskParams struct {
	RepublicID         uuid.UUID
	Title              string
	Description        string
	Category           string
	AssignedUserIDs    []uuid.UUID
	DueDate            *time.Time
	IsRecurring        bool
	RecurrenceType     RecurrenceType
	RecurrenceInterval int
	RecurrenceEndDate  *time.Time
}

// NewTask creates a new original Task (ParentTaskID nil, status pending)
// from the given parameters. It generates a new UUID for the task ID and
// stamps CreatedAt/UpdatedAt with now.
// Returns an error if validation fails.
func NewTask(params TaskParams, now time.Time) (*Task, error) {
	task := &Task{
		ID:                 uuid.New(),
		RepublicID:         params.RepublicID,
		Title:              params.Title,
		Description:        params.Description,
		Category:           params.Category,
		AssignedUserIDs:    dedupeIDs(params.AssignedUserIDs),
		Status:             TaskStatusPending,
		DueDate:            params.DueDate,
		CreatedAt:          now,
		UpdatedAt:          now,
		IsRecurring:        params.IsRecurring,
		RecurrenceType:     params.RecurrenceType,
		RecurrenceInterval: params.RecurrenceInterval,
		RecurrenceEndDate:  params.RecurrenceEndDate,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
// Returns an error if any field fails validation.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}

	if t.RepublicID == uuid.Nil {
		return ErrTaskRepublicIDEmpty
	}

	if t.Title == "" {
		return ErrTaskTitleEmpty
	}

	if !isValidTaskStatus(t.Status) {
		return fmt.Errorf("%w: %q", ErrInvalidTaskStatus, t.Status)
	}

	if t.IsRecurring {
		if t.RecurrenceType == "" {
			return ErrRecurrenceTypeRequired
		}
		if !isValidRecurrenceType(t.RecurrenceType) {
			return fmt.Errorf("%w: %q", ErrInvalidRecurrenceType, t.RecurrenceType)
		}
		if t.RecurrenceInterval <= 0 {
			return ErrRecurrenceIntervalInvalid
		}
		if t.DueDate == nil {
			return ErrRecurringDueDateRequired
		}
	}

	if (t.CompletedAt != nil) != (t.Status == TaskStatusCompleted) {
		return ErrCompletedAtMismatch
	}

	return nil
}

// IsTerminal reports whether the task is in a terminal state.
// Completed and cancelled tasks accept no further status mutation.
func (t *Task) IsTerminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusCancelled
}

// StartProgress transitions the task to in_progress.
// Allowed only from pending or overdue; any other state is a silent no-op.
// Returns whether the status changed.
func (t *Task) StartProgress(now time.Time) bool {
	if t.Status != TaskStatusPending && t.Status != TaskStatusOverdue {
		return false
	}

	t.Status = TaskStatusInProgress
	t.UpdatedAt = now
	return true
}

// Complete transitions the task to completed and records the completion
// time. Allowed from any non-terminal state; terminal states are a no-op.
// Returns whether the status changed.
func (t *Task) Complete(now time.Time) bool {
	if t.IsTerminal() {
		return false
	}

	t.Status = TaskStatusCompleted
	t.CompletedAt = &now
	t.UpdatedAt = now
	return true
}

// Cancel transitions the task to cancelled. Allowed from any non-terminal
// state; terminal states are a no-op. Returns whether the status changed.
func (t *Task) Cancel(now time.Time) bool {
	if t.IsTerminal() {
		return false
	}

	t.Status = TaskStatusCancelled
	t.UpdatedAt = now
	return true
}

// ResetToPending moves the task back to pending. Allowed from in_progress
// or overdue; terminal states and pending itself are a no-op.
// Returns whether the status changed.
func (t *Task) ResetToPending(now time.Time) bool {
	if t.Status != TaskStatusInProgress && t.Status != TaskStatusOverdue {
		return false
	}

	t.Status = TaskStatusPending
	t.UpdatedAt = now
	return true
}

// RefreshOverdue runs the auto-overdue check: if the task is pending or
// in_progress and its due date lies strictly before now, it transitions to
// overdue. Terminal tasks, tasks without a due date and tasks already
// overdue are untouched, so repeated calls are idempotent.
// Returns whether the status changed.
func (t *Task) RefreshOverdue(now time.Time) bool {
	if t.Status != TaskStatusPending && t.Status != TaskStatusInProgress {
		return false
	}

	if t.DueDate == nil || !t.DueDate.Before(now) {
		return false
	}

	t.Status = TaskStatusOverdue
	t.UpdatedAt = now
	return true
}

// IsAssignedTo reports whether the task is assigned to the given user.
func (t *Task) IsAssignedTo(userID uuid.UUID) bool {
	for _, id := range t.AssignedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Assign adds the given user to the task's assignee set. Idempotent.
// Returns whether the set changed.
func (t *Task) Assign(userID uuid.UUID, now time.Time) bool {
	if t.IsAssignedTo(userID) {
		return false
	}

	t.AssignedUserIDs = append(t.AssignedUserIDs, userID)
	t.UpdatedAt = now
	return true
}

// Unassign removes the given user from the task's assignee set. Idempotent.
// Returns whether the set changed.
func (t *Task) Unassign(userID uuid.UUID, now time.Time) bool {
	for i, id := range t.AssignedUserIDs {
		if id == userID {
			t.AssignedUserIDs = append(t.AssignedUserIDs[:i], t.AssignedUserIDs[i+1:]...)
			t.UpdatedAt = now
			return true
		}
	}
	return false
}

// ParseTaskStatus converts a status string to a TaskStatus.
// Returns ErrInvalidTaskStatus for unknown values.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !isValidTaskStatus(status) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskStatus, s)
	}
	return status, nil
}

// ParseRecurrenceType converts a recurrence type string to a RecurrenceType.
// Returns ErrInvalidRecurrenceType for unknown values.
func ParseRecurrenceType(s string) (RecurrenceType, error) {
	typ := RecurrenceType(s)
	if !isValidRecurrenceType(typ) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRecurrenceType, s)
	}
	return typ, nil
}

// isValidTaskStatus checks if the given status is a valid TaskStatus.
func isValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted,
		TaskStatusOverdue, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// isValidRecurrenceType checks if the given type is a valid RecurrenceType.
func isValidRecurrenceType(typ RecurrenceType) bool {
	switch typ {
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly, RecurrenceYearly:
		return true
	default:
		return false
	}
}

// dedupeIDs returns the given ids with duplicates removed, preserving order.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}

	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
