package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/repubhub/republic-api/internal/domain"
	"github.com/repubhub/republic-api/internal/notify"
	"github.com/repubhub/republic-api/internal/store"
)

// mockTaskStore is an in-memory store.TaskStore for service tests.
type mockTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	createErr error
	saveErr   error
	getErr    error
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func (m *mockTaskStore) clone(task *domain.Task) *domain.Task {
	copied := *task
	copied.AssignedUserIDs = append([]uuid.UUID(nil), task.AssignedUserIDs...)
	return &copied
}

func (m *mockTaskStore) Create(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if task.ParentTaskID != nil {
		for _, existing := range m.tasks {
			if existing.ParentTaskID != nil && *existing.ParentTaskID == *task.ParentTaskID {
				return store.ErrChildExists
			}
		}
	}
	m.tasks[task.ID] = m.clone(task)
	return nil
}

func (m *mockTaskStore) Save(ctx context.Context, task *domain.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	m.tasks[task.ID] = m.clone(task)
	return nil
}

func (m *mockTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	task, ok := m.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return m.clone(task), nil
}

func (m *mockTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *mockTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, task := range m.tasks {
		out = append(out, m.clone(task))
	}
	return out, nil
}

func (m *mockTaskStore) Count(ctx context.Context, filter store.TaskFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks), nil
}

func (m *mockTaskStore) ExistsChild(ctx context.Context, parentID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, task := range m.tasks {
		if task.ParentTaskID != nil && *task.ParentTaskID == parentID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockTaskStore) FindDueWithin(ctx context.Context, now time.Time, window time.Duration) ([]*domain.Task, error) {
	return nil, nil
}

func (m *mockTaskStore) FindOverdueLongerThan(ctx context.Context, now time.Time, age time.Duration) ([]*domain.Task, error) {
	return nil, nil
}

func (m *mockTaskStore) FindRecurringOverdue(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	return nil, nil
}

func (m *mockTaskStore) FindRecurringCompletedWithoutChild(ctx context.Context) ([]*domain.Task, error) {
	return nil, nil
}

func (m *mockTaskStore) WithTx(tx *sql.Tx) store.TaskStore {
	return m
}

// mockSpawner records CreateNextInstance calls.
type mockSpawner struct {
	mu       sync.Mutex
	calls    []*domain.Task
	spawned  *domain.Task
	spawnErr error
}

func (m *mockSpawner) CreateNextInstance(ctx context.Context, template *domain.Task) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, template)
	if m.spawnErr != nil {
		return nil, m.spawnErr
	}
	return m.spawned, nil
}

func (m *mockSpawner) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockNotifier records sent notifications.
type mockNotifier struct {
	mu        sync.Mutex
	sent      []notify.Notification
	notifyErr error
}

func (m *mockNotifier) Notify(ctx context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return m.notifyErr
}

func (m *mockNotifier) sentNotifications() []notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Notification(nil), m.sent...)
}
