package recurrence

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repubhub/republic-api/internal/clock"
	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/store"
)

// mockTaskStore is a hand-rolled in-memory stand-in for the task store.
type mockTaskStore struct {
	created   []*domain.Task
	children  map[uuid.UUID]bool
	createErr error
	existsErr error
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{children: make(map[uuid.UUID]bool)}
}

func (m *mockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if m.createErr != nil {
		return m.createErr
	}
	if task.ParentTaskID != nil {
		if m.children[*task.ParentTaskID] {
			return store.ErrChildExists
		}
		m.children[*task.ParentTaskID] = true
	}
	m.created = append(m.created, task)
	return nil
}

func (m *mockTaskStore) ExistsChild(ctx context.Context, parentID uuid.UUID) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	return m.children[parentID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func recurringTask(t *testing.T, due time.Time, typ domain.RecurrenceType, interval int) *domain.Task {
	t.Helper()

	task, err := domain.NewTask(domain.TaskParams{
		RepublicID:         uuid.New(),
		Title:              "Water the plants",
		AssignedUserIDs:    []uuid.UUID{uuid.New(), uuid.New()},
		DueDate:            &due,
		IsRecurring:        true,
		RecurrenceType:     typ,
		RecurrenceInterval: interval,
	}, due.Add(-24*time.Hour))
	require.NoError(t, err)
	return task
}

func TestNextDueDate(t *testing.T) {
	t.Parallel()

	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name     string
		current  time.Time
		typ      domain.RecurrenceType
		interval int
		want     time.Time
	}{
		{"daily x1", date(2024, 1, 15), domain.RecurrenceDaily, 1, date(2024, 1, 16)},
		{"daily x3", date(2024, 1, 30), domain.RecurrenceDaily, 3, date(2024, 2, 2)},
		{"weekly x2", date(2024, 3, 1), domain.RecurrenceWeekly, 2, date(2024, 3, 15)},
		{"monthly x1", date(2024, 1, 15), domain.RecurrenceMonthly, 1, date(2024, 2, 15)},
		{"yearly x1", date(2024, 1, 15), domain.RecurrenceYearly, 1, date(2025, 1, 15)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := NextDueDate(tt.current, tt.typ, tt.interval)
			assert.True(t, got.Equal(tt.want), "want %s, got %s", tt.want, got)
		})
	}
}

func TestShouldContinue(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	t.Run("no horizon continues forever", func(t *testing.T) {
		t.Parallel()

		task := recurringTask(t, due, domain.RecurrenceMonthly, 1)
		assert.True(t, ShouldContinue(task))
	})

	t.Run("next date past horizon stops", func(t *testing.T) {
		t.Parallel()

		end := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
		task := recurringTask(t, due, domain.RecurrenceMonthly, 1)
		task.RecurrenceEndDate = &end

		// Next occurrence would be 2024-02-15, past the horizon.
		assert.False(t, ShouldContinue(task))
	})

	t.Run("next date on horizon continues", func(t *testing.T) {
		t.Parallel()

		end := time.Date(2024, 2, 15, 9, 0, 0, 0, time.UTC)
		task := recurringTask(t, due, domain.RecurrenceMonthly, 1)
		task.RecurrenceEndDate = &end

		assert.True(t, ShouldContinue(task))
	})

	t.Run("non-recurring never continues", func(t *testing.T) {
		t.Parallel()

		task, err := domain.NewTask(domain.TaskParams{
			RepublicID: uuid.New(),
			Title:      "One-off errand",
		}, due)
		require.NoError(t, err)
		assert.False(t, ShouldContinue(task))
	})
}

func TestBuildNextInstance(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	now := time.Date(2024, 1, 16, 8, 0, 0, 0, time.UTC)

	template := recurringTask(t, due, domain.RecurrenceWeekly, 1)
	template.Description = "Back garden too"
	template.Category = "garden"

	child, err := BuildNextInstance(template, now)
	require.NoError(t, err)

	assert.NotEqual(t, template.ID, child.ID)
	assert.Equal(t, template.RepublicID, child.RepublicID)
	assert.Equal(t, template.Title, child.Title)
	assert.Equal(t, template.Description, child.Description)
	assert.Equal(t, template.Category, child.Category)
	assert.ElementsMatch(t, template.AssignedUserIDs, child.AssignedUserIDs)
	assert.Equal(t, domain.TaskStatusPending, child.Status)
	assert.Nil(t, child.CompletedAt)
	require.NotNil(t, child.DueDate)
	assert.True(t, child.DueDate.Equal(due.AddDate(0, 0, 7)))
	require.NotNil(t, child.ParentTaskID)
	assert.Equal(t, template.ID, *child.ParentTaskID)
	assert.True(t, child.IsRecurring)
	assert.Equal(t, template.RecurrenceType, child.RecurrenceType)
	assert.Equal(t, template.RecurrenceInterval, child.RecurrenceInterval)
	assert.True(t, child.CreatedAt.Equal(now))
}

func TestEngine_CreateNextInstance(t *testing.T) {
	t.Parallel()

	due := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	now := clock.NewFixed(time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC))

	t.Run("spawns and persists the next instance", func(t *testing.T) {
		t.Parallel()

		tasks := newMockTaskStore()
		engine, err := NewEngine(tasks, now, testLogger())
		require.NoError(t, err)

		template := recurringTask(t, due, domain.RecurrenceDaily, 2)
		child, err := engine.CreateNextInstance(context.Background(), template)
		require.NoError(t, err)
		require.NotNil(t, child)

		require.Len(t, tasks.created, 1)
		assert.Same(t, child, tasks.created[0])
		assert.True(t, child.DueDate.Equal(due.AddDate(0, 0, 2)))
	})

	t.Run("idempotent across repeated calls", func(t *testing.T) {
		t.Parallel()

		tasks := newMockTaskStore()
		engine, err := NewEngine(tasks, now, testLogger())
		require.NoError(t, err)

		template := recurringTask(t, due, domain.RecurrenceWeekly, 1)

		first, err := engine.CreateNextInstance(context.Background(), template)
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := engine.CreateNextInstance(context.Background(), template)
		require.NoError(t, err)
		assert.Nil(t, second, "second call must be a no-op")
		assert.Len(t, tasks.created, 1, "exactly one child regardless of call count")
	})

	t.Run("concurrent duplicate insert is the no-op outcome", func(t *testing.T) {
		t.Parallel()

		tasks := newMockTaskStore()
		tasks.createErr = store.ErrChildExists
		engine, err := NewEngine(tasks, now, testLogger())
		require.NoError(t, err)

		template := recurringTask(t, due, domain.RecurrenceDaily, 1)
		child, err := engine.CreateNextInstance(context.Background(), template)
		assert.NoError(t, err)
		assert.Nil(t, child)
	})

	t.Run("no-op past recurrence horizon", func(t *testing.T) {
		t.Parallel()

		tasks := newMockTaskStore()
		engine, err := NewEngine(tasks, now, testLogger())
		require.NoError(t, err)

		end := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
		template := recurringTask(t, due, domain.RecurrenceMonthly, 1)
		template.RecurrenceEndDate = &end

		child, err := engine.CreateNextInstance(context.Background(), template)
		require.NoError(t, err)
		assert.Nil(t, child)
		assert.Empty(t, tasks.created)
	})

	t.Run("no-op for non-recurring task", func(t *testing.T) {
		t.Parallel()

		tasks := newMockTaskStore()
		engine, err := NewEngine(tasks, now, testLogger())
		require.NoError(t, err)

		task, err := domain.NewTask(domain.TaskParams{
			RepublicID: uuid.New(),
			Title:      "Fix the door handle",
		}, now.Now())
		require.NoError(t, err)

		child, err := engine.CreateNextInstance(context.Background(), task)
		require.NoError(t, err)
		assert.Nil(t, child)
	})

	t.Run("late completion keeps the schedule", func(t *testing.T) {
		t.Parallel()

		// Task due Jan 1, completed (and processed) on Jan 20: the child is
		// due Feb 1, derived from the original due date, not Feb 20.
		lateNow := clock.NewFixed(time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		tasks := newMockTaskStore()
		engine, err := NewEngine(tasks, lateNow, testLogger())
		require.NoError(t, err)

		originalDue := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
		template := recurringTask(t, originalDue, domain.RecurrenceMonthly, 1)
		template.Complete(lateNow.Now())

		child, err := engine.CreateNextInstance(context.Background(), template)
		require.NoError(t, err)
		require.NotNil(t, child)
		assert.True(t, child.DueDate.Equal(time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)),
			"child due date must derive from the original due date")
	})

	t.Run("store failures propagate", func(t *testing.T) {
		t.Parallel()

		tasks := newMockTaskStore()
		tasks.existsErr = errors.New("connection reset")
		engine, err := NewEngine(tasks, now, testLogger())
		require.NoError(t, err)

		template := recurringTask(t, due, domain.RecurrenceDaily, 1)
		_, err = engine.CreateNextInstance(context.Background(), template)
		assert.Error(t, err)
	})
}
