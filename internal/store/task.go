package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/repubhub/republic-api/internal/domain"
)

// SortDirection controls list ordering.
type SortDirection string

// Valid sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// TaskFilter describes the recognized query criteria for listing tasks.
// Zero-valued (nil) fields are ignored; set fields are combined with AND.
type TaskFilter struct {
	// RepublicID scopes the query to one household.
	RepublicID *uuid.UUID

	// Status matches the task's lifecycle state exactly.
	Status *domain.TaskStatus

	// Category matches the free-text category exactly.
	Category *string

	// IsRecurring selects recurring (true) or one-shot (false) tasks.
	IsRecurring *bool

	// IsOverdue selects tasks whose due date has passed relative to Now,
	// regardless of whether the overdue sweep has reclassified them yet.
	// Requires Now to be set.
	IsOverdue *bool

	// Due date window, inclusive on both ends.
	DueDateFrom *time.Time
	DueDateTo   *time.Time

	// Creation time window, inclusive on both ends.
	CreatedAtFrom *time.Time
	CreatedAtTo   *time.Time

	// AssignedUserID selects tasks assigned to the given member.
	AssignedUserID *uuid.UUID

	// Unassigned selects tasks with zero assignees when true.
	Unassigned *bool

	// SearchTerm is matched case-insensitively as a substring against
	// title and description.
	SearchTerm *string

	// Now is the reference instant for the IsOverdue criterion.
	Now time.Time

	// Pagination. Page is 1-based; Size of 0 means the implementation default.
	Page int
	Size int

	// Sorting. SortBy must be one of the whitelisted column names
	// recognized by the implementation; empty means creation time.
	SortBy        string
	SortDirection SortDirection
}

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns ErrDuplicate (wrapping ErrChildExists) if the task declares a
	// parent that already has a child instance — the unique constraint on
	// parent_task_id is the atomic backstop for idempotent recurrence
	// instance creation.
	Create(ctx context.Context, task *domain.Task) error

	// Save persists the current state of an existing task, including its
	// assignee set. Returns ErrTaskNotFound if the task does not exist.
	Save(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Delete removes a task from the store by its ID.
	// Returns ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// List retrieves tasks matching the filter, ordered and paginated as
	// the filter requests.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// Count returns the total number of tasks matching the filter,
	// ignoring pagination.
	Count(ctx context.Context, filter TaskFilter) (int, error)

	// ExistsChild reports whether any task references parentID as its
	// parent. This is the fast-path idempotency check before spawning a
	// recurring instance; the unique constraint closes the remaining race.
	ExistsChild(ctx context.Context, parentID uuid.UUID) (bool, error)

	// FindDueWithin retrieves pending and in-progress tasks whose due date
	// falls within (now, now+window].
	FindDueWithin(ctx context.Context, now time.Time, window time.Duration) ([]*domain.Task, error)

	// FindOverdueLongerThan retrieves pending and in-progress tasks whose
	// due date lies more than age before now.
	FindOverdueLongerThan(ctx context.Context, now time.Time, age time.Duration) ([]*domain.Task, error)

	// FindRecurringOverdue retrieves recurring tasks whose due date has
	// passed and that are not in a terminal state.
	FindRecurringOverdue(ctx context.Context, now time.Time) ([]*domain.Task, error)

	// FindRecurringCompletedWithoutChild retrieves completed recurring
	// tasks that have not spawned a next instance yet.
	FindRecurringCompletedWithoutChild(ctx context.Context) ([]*domain.Task, error)

	// WithTx returns a new TaskStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller,
	// typically via RunInTransaction.
	WithTx(tx *sql.Tx) TaskStore
}
