package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/store"
)

// Default and maximum page sizes for List.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// sortColumns whitelists the task columns List may order by.
var sortColumns = map[string]string{
	"due_date":   "t.due_date",
	"created_at": "t.created_at",
	"updated_at": "t.updated_at",
	"title":      "t.title",
	"status":     "t.status",
}

// taskSelectColumns are the columns every task query selects, with the
// assignee set aggregated into a comma-joined string so a single row scan
// reconstructs the whole entity.
const taskSelectColumns = `
	t.id, t.republic_id, t.title, t.description, t.category, t.status,
	t.due_date, t.completed_at, t.created_at, t.updated_at,
	t.is_recurring, t.recurrence_type, t.recurrence_interval, t.recurrence_end_date,
	t.parent_task_id,
	COALESCE(string_agg(a.user_id::text, ','), '') AS assigned_user_ids`

const taskSelectFrom = `
	FROM tasks t
	LEFT JOIN task_assignments a ON a.task_id = t.id`

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db store.DBTX, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements store.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
	}
}

// inTransaction runs fn in a transaction when the store is bound to a plain
// connection, and directly when it is already transaction-scoped. Writes
// touch both the tasks table and the assignments table, so they need the
// transactional path either way.
func (s *PostgresTaskStore) inTransaction(ctx context.Context, fn func(ts store.TaskStore) error) error {
	if db, ok := s.db.(*sql.DB); ok {
		return store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return fn(s.WithTx(tx))
		})
	}
	return fn(s)
}

// Create implements store.TaskStore.Create
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	return s.inTransaction(ctx, func(ts store.TaskStore) error {
		txStore := ts.(*PostgresTaskStore)

		query := `
			INSERT INTO tasks (
				id, republic_id, title, description, category, status,
				due_date, completed_at, created_at, updated_at,
				is_recurring, recurrence_type, recurrence_interval, recurrence_end_date,
				parent_task_id
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`

		_, err := txStore.db.ExecContext(ctx, query,
			task.ID,
			task.RepublicID,
			task.Title,
			task.Description,
			task.Category,
			task.Status,
			task.DueDate,
			task.CompletedAt,
			task.CreatedAt,
			task.UpdatedAt,
			task.IsRecurring,
			nullString(string(task.RecurrenceType)),
			nullInt(task.RecurrenceInterval),
			task.RecurrenceEndDate,
			task.ParentTaskID,
		)
		if err != nil {
			s.logger.Error("failed to insert task",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			return MapError(err)
		}

		return txStore.replaceAssignments(ctx, task.ID, task.AssignedUserIDs)
	})
}

// Save implements store.TaskStore.Save
func (s *PostgresTaskStore) Save(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	return s.inTransaction(ctx, func(ts store.TaskStore) error {
		txStore := ts.(*PostgresTaskStore)

		query := `
			UPDATE tasks
			SET republic_id = $2, title = $3, description = $4, category = $5,
				status = $6, due_date = $7, completed_at = $8, updated_at = $9,
				is_recurring = $10, recurrence_type = $11, recurrence_interval = $12,
				recurrence_end_date = $13, parent_task_id = $14
			WHERE id = $1
		`

		result, err := txStore.db.ExecContext(ctx, query,
			task.ID,
			task.RepublicID,
			task.Title,
			task.Description,
			task.Category,
			task.Status,
			task.DueDate,
			task.CompletedAt,
			task.UpdatedAt,
			task.IsRecurring,
			nullString(string(task.RecurrenceType)),
			nullInt(task.RecurrenceInterval),
			task.RecurrenceEndDate,
			task.ParentTaskID,
		)
		if err != nil {
			s.logger.Error("failed to update task",
				slog.String("task_id", task.ID.String()),
				slog.String("error", err.Error()))
			return MapError(err)
		}

		if err := CheckRowsAffected(result); err != nil {
			return err
		}

		return txStore.replaceAssignments(ctx, task.ID, task.AssignedUserIDs)
	})
}

// replaceAssignments rewrites the assignee rows for a task to match the
// given set. Must run inside a transaction.
func (s *PostgresTaskStore) replaceAssignments(ctx context.Context, taskID uuid.UUID, userIDs []uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM task_assignments WHERE task_id = $1`, taskID); err != nil {
		return MapError(err)
	}

	for _, userID := range userIDs {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO task_assignments (task_id, user_id) VALUES ($1, $2)`,
			taskID, userID); err != nil {
			return MapError(err)
		}
	}

	return nil
}

// GetByID implements store.TaskStore.GetByID
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	query := `SELECT` + taskSelectColumns + taskSelectFrom + `
	WHERE t.id = $1
	GROUP BY t.id`

	task, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if store.IsNotFoundError(MapError(err)) {
			return nil, store.ErrTaskNotFound
		}
		return nil, MapError(err)
	}

	return task, nil
}

// Delete implements store.TaskStore.Delete
// Assignment rows are removed by the ON DELETE CASCADE constraint on
// task_assignments.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return MapError(err)
	}

	return CheckRowsAffected(result)
}

// List implements store.TaskStore.List
func (s *PostgresTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	where, args := buildFilterWhere(filter)

	query := `SELECT` + taskSelectColumns + taskSelectFrom
	if where != "" {
		query += "\n\tWHERE " + where
	}
	query += "\n\tGROUP BY t.id"
	query += "\n\tORDER BY " + orderClause(filter)

	size := filter.Size
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	args = append(args, size, (page-1)*size)
	query += fmt.Sprintf("\n\tLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	return s.queryTasks(ctx, query, args...)
}

// Count implements store.TaskStore.Count
func (s *PostgresTaskStore) Count(ctx context.Context, filter store.TaskFilter) (int, error) {
	where, args := buildFilterWhere(filter)

	query := `SELECT COUNT(*) FROM tasks t`
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, MapError(err)
	}

	return count, nil
}

// ExistsChild implements store.TaskStore.ExistsChild
func (s *PostgresTaskStore) ExistsChild(ctx context.Context, parentID uuid.UUID) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE parent_task_id = $1)`,
		parentID,
	).Scan(&exists)
	if err != nil {
		return false, MapError(err)
	}

	return exists, nil
}

// FindDueWithin implements store.TaskStore.FindDueWithin
func (s *PostgresTaskStore) FindDueWithin(ctx context.Context, now time.Time, window time.Duration) ([]*domain.Task, error) {
	query := `SELECT` + taskSelectColumns + taskSelectFrom + `
	WHERE t.status IN ($1, $2)
	  AND t.due_date > $3
	  AND t.due_date <= $4
	GROUP BY t.id
	ORDER BY t.due_date ASC`

	return s.queryTasks(ctx, query,
		domain.TaskStatusPending, domain.TaskStatusInProgress, now, now.Add(window))
}

// FindOverdueLongerThan implements store.TaskStore.FindOverdueLongerThan
func (s *PostgresTaskStore) FindOverdueLongerThan(ctx context.Context, now time.Time, age time.Duration) ([]*domain.Task, error) {
	query := `SELECT` + taskSelectColumns + taskSelectFrom + `
	WHERE t.status IN ($1, $2)
	  AND t.due_date < $3
	GROUP BY t.id
	ORDER BY t.due_date ASC`

	return s.queryTasks(ctx, query,
		domain.TaskStatusPending, domain.TaskStatusInProgress, now.Add(-age))
}

// FindRecurringOverdue implements store.TaskStore.FindRecurringOverdue
func (s *PostgresTaskStore) FindRecurringOverdue(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	query := `SELECT` + taskSelectColumns + taskSelectFrom + `
	WHERE t.is_recurring
	  AND t.due_date < $1
	  AND t.status NOT IN ($2, $3)
	GROUP BY t.id
	ORDER BY t.due_date ASC`

	return s.queryTasks(ctx, query,
		now, domain.TaskStatusCompleted, domain.TaskStatusCancelled)
}

// FindRecurringCompletedWithoutChild implements
// store.TaskStore.FindRecurringCompletedWithoutChild
func (s *PostgresTaskStore) FindRecurringCompletedWithoutChild(ctx context.Context) ([]*domain.Task, error) {
	query := `SELECT` + taskSelectColumns + taskSelectFrom + `
	WHERE t.is_recurring
	  AND t.status = $1
	  AND NOT EXISTS (SELECT 1 FROM tasks c WHERE c.parent_task_id = t.id)
	GROUP BY t.id
	ORDER BY t.due_date ASC`

	return s.queryTasks(ctx, query, domain.TaskStatusCompleted)
}

// queryTasks runs a task select and scans all rows.
func (s *PostgresTaskStore) queryTasks(ctx context.Context, query string, args ...any) ([]*domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("failed to query tasks",
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("failed to close rows", slog.String("error", err.Error()))
		}
	}()

	var tasks []*domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// buildFilterWhere translates a TaskFilter into a WHERE clause and its
// arguments. Returns an empty clause when no criteria are set.
func buildFilterWhere(filter store.TaskFilter) (string, []any) {
	var clauses []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.RepublicID != nil {
		clauses = append(clauses, "t.republic_id = "+arg(*filter.RepublicID))
	}
	if filter.Status != nil {
		clauses = append(clauses, "t.status = "+arg(*filter.Status))
	}
	if filter.Category != nil {
		clauses = append(clauses, "t.category = "+arg(*filter.Category))
	}
	if filter.IsRecurring != nil {
		clauses = append(clauses, "t.is_recurring = "+arg(*filter.IsRecurring))
	}
	if filter.IsOverdue != nil {
		now := filter.Now
		if now.IsZero() {
			now = time.Now().UTC()
		}
		if *filter.IsOverdue {
			clauses = append(clauses,
				"t.due_date IS NOT NULL AND t.due_date < "+arg(now),
				"t.status NOT IN ("+arg(domain.TaskStatusCompleted)+", "+arg(domain.TaskStatusCancelled)+")")
		} else {
			clauses = append(clauses,
				"(t.due_date IS NULL OR t.due_date >= "+arg(now)+")")
		}
	}
	if filter.DueDateFrom != nil {
		clauses = append(clauses, "t.due_date >= "+arg(*filter.DueDateFrom))
	}
	if filter.DueDateTo != nil {
		clauses = append(clauses, "t.due_date <= "+arg(*filter.DueDateTo))
	}
	if filter.CreatedAtFrom != nil {
		clauses = append(clauses, "t.created_at >= "+arg(*filter.CreatedAtFrom))
	}
	if filter.CreatedAtTo != nil {
		clauses = append(clauses, "t.created_at <= "+arg(*filter.CreatedAtTo))
	}
	if filter.AssignedUserID != nil {
		clauses = append(clauses,
			"EXISTS (SELECT 1 FROM task_assignments fa WHERE fa.task_id = t.id AND fa.user_id = "+
				arg(*filter.AssignedUserID)+")")
	}
	if filter.Unassigned != nil && *filter.Unassigned {
		clauses = append(clauses,
			"NOT EXISTS (SELECT 1 FROM task_assignments fa WHERE fa.task_id = t.id)")
	}
	if filter.SearchTerm != nil && *filter.SearchTerm != "" {
		pattern := "%" + escapeLike(*filter.SearchTerm) + "%"
		p := arg(pattern)
		clauses = append(clauses,
			"(t.title ILIKE "+p+" OR t.description ILIKE "+p+")")
	}

	return strings.Join(clauses, " AND "), args
}

// orderClause resolves the filter's sort request against the column
// whitelist, defaulting to newest-first creation order.
func orderClause(filter store.TaskFilter) string {
	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = "t.created_at"
	}

	direction := "DESC"
	if filter.SortDirection == store.SortAsc {
		direction = "ASC"
	}

	// NULLS LAST keeps undated tasks at the end when sorting by due date.
	return column + " " + direction + " NULLS LAST"
}

// escapeLike escapes LIKE metacharacters in a user-supplied search term.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTask.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row, including the aggregated assignee string,
// into a domain.Task.
func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task               domain.Task
		dueDate            sql.NullTime
		completedAt        sql.NullTime
		recurrenceType     sql.NullString
		recurrenceInterval sql.NullInt64
		recurrenceEnd      sql.NullTime
		parentTaskID       sql.Null[uuid.UUID]
		assignedIDs        string
	)

	err := row.Scan(
		&task.ID,
		&task.RepublicID,
		&task.Title,
		&task.Description,
		&task.Category,
		&task.Status,
		&dueDate,
		&completedAt,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.IsRecurring,
		&recurrenceType,
		&recurrenceInterval,
		&recurrenceEnd,
		&parentTaskID,
		&assignedIDs,
	)
	if err != nil {
		return nil, err
	}

	if dueDate.Valid {
		t := dueDate.Time.UTC()
		task.DueDate = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		task.CompletedAt = &t
	}
	if recurrenceType.Valid {
		task.RecurrenceType = domain.RecurrenceType(recurrenceType.String)
	}
	if recurrenceInterval.Valid {
		task.RecurrenceInterval = int(recurrenceInterval.Int64)
	}
	if recurrenceEnd.Valid {
		t := recurrenceEnd.Time.UTC()
		task.RecurrenceEndDate = &t
	}
	if parentTaskID.Valid {
		id := parentTaskID.V
		task.ParentTaskID = &id
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()

	if assignedIDs != "" {
		for _, raw := range strings.Split(assignedIDs, ",") {
			userID, err := uuid.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("malformed assignee id %q: %w", raw, err)
			}
			task.AssignedUserIDs = append(task.AssignedUserIDs, userID)
		}
	}

	return &task, nil
}

// nullString converts an empty string to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullInt converts a zero int to NULL.
func nullInt(i int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(i), Valid: i != 0}
}
