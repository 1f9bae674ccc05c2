package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/store"
)

func TestBuildFilterWhere(t *testing.T) {
	t.Parallel()

	t.Run("empty filter", func(t *testing.T) {
		t.Parallel()

		where, args := buildFilterWhere(store.TaskFilter{})
		assert.Empty(t, where)
		assert.Empty(t, args)
	})

	t.Run("status and recurring", func(t *testing.T) {
		t.Parallel()

		status := domain.TaskStatusPending
		recurring := true
		where, args := buildFilterWhere(store.TaskFilter{
			Status:      &status,
			IsRecurring: &recurring,
		})

		assert.Equal(t, "t.status = $1 AND t.is_recurring = $2", where)
		require.Len(t, args, 2)
		assert.Equal(t, status, args[0])
		assert.Equal(t, true, args[1])
	})

	t.Run("overdue uses the filter reference time", func(t *testing.T) {
		t.Parallel()

		overdue := true
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		where, args := buildFilterWhere(store.TaskFilter{
			IsOverdue: &overdue,
			Now:       now,
		})

		assert.Contains(t, where, "t.due_date < $1")
		assert.Contains(t, where, "t.status NOT IN ($2, $3)")
		require.Len(t, args, 3)
		assert.Equal(t, now, args[0])
	})

	t.Run("not overdue", func(t *testing.T) {
		t.Parallel()

		overdue := false
		where, _ := buildFilterWhere(store.TaskFilter{
			IsOverdue: &overdue,
			Now:       time.Now(),
		})

		assert.Contains(t, where, "t.due_date IS NULL OR t.due_date >= $1")
	})

	t.Run("assignee and unassigned predicates", func(t *testing.T) {
		t.Parallel()

		userID := uuid.New()
		where, args := buildFilterWhere(store.TaskFilter{AssignedUserID: &userID})
		assert.Contains(t, where, "EXISTS (SELECT 1 FROM task_assignments")
		assert.Equal(t, []any{userID}, args)

		unassigned := true
		where, args = buildFilterWhere(store.TaskFilter{Unassigned: &unassigned})
		assert.Contains(t, where, "NOT EXISTS (SELECT 1 FROM task_assignments")
		assert.Empty(t, args)
	})

	t.Run("search term escapes LIKE metacharacters", func(t *testing.T) {
		t.Parallel()

		term := "50%_done"
		where, args := buildFilterWhere(store.TaskFilter{SearchTerm: &term})
		assert.Contains(t, where, "t.title ILIKE $1 OR t.description ILIKE $1")
		require.Len(t, args, 1)
		assert.Equal(t, `%50\%\_done%`, args[0])
	})

	t.Run("date windows", func(t *testing.T) {
		t.Parallel()

		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
		where, args := buildFilterWhere(store.TaskFilter{
			DueDateFrom:   &from,
			DueDateTo:     &to,
			CreatedAtFrom: &from,
		})

		assert.Equal(t,
			"t.due_date >= $1 AND t.due_date <= $2 AND t.created_at >= $3", where)
		assert.Len(t, args, 3)
	})
}

func TestOrderClause(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter store.TaskFilter
		want   string
	}{
		{
			name:   "default is newest first",
			filter: store.TaskFilter{},
			want:   "t.created_at DESC NULLS LAST",
		},
		{
			name:   "whitelisted column ascending",
			filter: store.TaskFilter{SortBy: "due_date", SortDirection: store.SortAsc},
			want:   "t.due_date ASC NULLS LAST",
		},
		{
			name:   "unknown column falls back",
			filter: store.TaskFilter{SortBy: "id; DROP TABLE tasks"},
			want:   "t.created_at DESC NULLS LAST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, orderClause(tt.filter))
		})
	}
}

func TestNullHelpers(t *testing.T) {
	t.Parallel()

	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("daily").Valid)
	assert.False(t, nullInt(0).Valid)
	assert.True(t, nullInt(3).Valid)
}
