package gormstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *TaskStore {
	t.Helper()
	return setupTestStoreWithOptions(t, TaskStoreOptions{QueryTimeout: time.Second})
}

func setupTestStoreWithOptions(t *testing.T, opts TaskStoreOptions) *TaskStore {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewTaskStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
}

func newTask(t *testing.T, title string, priority domain.TaskPriority, assignee string) *domain.Task {
	t.Helper()
	var assignedTo *string
	if assignee != "" {
		assignedTo = &assignee
	}
	task, err := domain.NewTask(title, "", priority, assignedTo, nil)
	require.NoError(t, err)
	return task
}

func TestTaskStore_CreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	creator := "carol"
	task, err := domain.NewTask("Ship it", "all of it", domain.TaskPriorityCritical, nil, &creator)
	require.NoError(t, err)

	require.NoError(t, s.Create(ctx, task))
	assert.EqualValues(t, 1, task.Version)

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, "Ship it", got.Title)
	assert.Equal(t, "all of it", got.Description)
	assert.Equal(t, domain.TaskStatusPending, got.Status)
	assert.Equal(t, domain.TaskPriorityCritical, got.Priority)
	assert.Nil(t, got.AssignedTo)
	require.NotNil(t, got.CreatedBy)
	assert.Equal(t, "carol", *got.CreatedBy)
	assert.WithinDuration(t, task.CreatedAt, got.CreatedAt, time.Millisecond)
	assert.EqualValues(t, 1, got.Version)

	err = s.Create(ctx, task)
	assert.ErrorIs(t, err, store.ErrDuplicate)
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "create", storeErr.Operation)

	_, err = s.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStore_UpdateChecksVersion(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	task := newTask(t, "Versioned", domain.TaskPriorityLow, "")
	require.NoError(t, s.Create(ctx, task))

	stale := *task
	require.NoError(t, task.Start())
	require.NoError(t, s.Update(ctx, task))
	assert.EqualValues(t, 2, task.Version)

	require.NoError(t, stale.Cancel(""))
	assert.ErrorIs(t, s.Update(ctx, &stale), store.ErrConflict)

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, got.Status)

	missing := newTask(t, "Missing", domain.TaskPriorityLow, "")
	assert.ErrorIs(t, s.Update(ctx, missing), store.ErrTaskNotFound)
}

func TestTaskStore_CompletedAtRoundTrips(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	task := newTask(t, "Finish", domain.TaskPriorityMedium, "dave")
	require.NoError(t, s.Create(ctx, task))
	require.NoError(t, task.Start())
	require.NoError(t, s.Update(ctx, task))
	require.NoError(t, task.Complete())
	require.NoError(t, s.Update(ctx, task))

	got, err := s.GetByID(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.WithinDuration(t, *task.CompletedAt, *got.CompletedAt, time.Millisecond)
}

func TestTaskStore_Delete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	task := newTask(t, "Delete me", domain.TaskPriorityLow, "")
	require.NoError(t, s.Create(ctx, task))

	require.NoError(t, s.Delete(ctx, task.ID))
	assert.ErrorIs(t, s.Delete(ctx, task.ID), store.ErrTaskNotFound)
	_, err := s.GetByID(ctx, task.ID)
	assert.ErrorIs(t, err, store.ErrTaskNotFound)
}

func TestTaskStore_List(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		assignee := "alice"
		if i%2 == 1 {
			assignee = "bob"
		}
		task := newTask(t, fmt.Sprintf("Task %d", i), domain.TaskPriorityMedium, assignee)
		task.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		task.UpdatedAt = task.CreatedAt
		require.NoError(t, s.Create(ctx, task))
	}

	tasks, total, err := s.List(ctx, store.TaskFilter{})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, tasks, 5)
	assert.Equal(t, "Task 4", tasks[0].Title, "newest first")

	alice := "alice"
	tasks, total, err = s.List(ctx, store.TaskFilter{AssignedTo: &alice, Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "total ignores pagination")
	require.Len(t, tasks, 2)
	assert.Equal(t, "Task 2", tasks[0].Title)
	assert.Equal(t, "Task 0", tasks[1].Title)

	completed := domain.TaskStatusCompleted
	tasks, total, err = s.List(ctx, store.TaskFilter{Status: &completed})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, tasks)
}

func TestTaskStore_CountsSumToTotal(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	priorities := []domain.TaskPriority{
		domain.TaskPriorityLow, domain.TaskPriorityHigh, domain.TaskPriorityHigh, domain.TaskPriorityCritical,
	}
	for i, p := range priorities {
		task := newTask(t, fmt.Sprintf("T%d", i), p, "erin")
		require.NoError(t, s.Create(ctx, task))
		if i == 0 {
			require.NoError(t, task.Cancel("obsolete"))
			require.NoError(t, s.Update(ctx, task))
		}
	}
	require.NoError(t, s.Create(ctx, newTask(t, "Unassigned", domain.TaskPriorityLow, "")))

	counts, err := s.Counts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, counts.Total())
	assert.Equal(t, 4, counts.ByStatus[domain.TaskStatusPending])
	assert.Equal(t, 1, counts.ByStatus[domain.TaskStatusCancelled])
	assert.Equal(t, 0, counts.ByStatus[domain.TaskStatusCompleted])
	assert.Equal(t, 2, counts.ByPriority[domain.TaskPriorityHigh])
	assert.Equal(t, 2, counts.ByPriority[domain.TaskPriorityLow])

	erin := "erin"
	counts, err = s.Counts(ctx, &erin)
	require.NoError(t, err)
	assert.Equal(t, 4, counts.Total())

	sum := 0
	for _, n := range counts.ByPriority {
		sum += n
	}
	assert.Equal(t, counts.Total(), sum)
}

func TestTaskStore_RunInTx(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	task := newTask(t, "Transactional", domain.TaskPriorityHigh, "")
	require.NoError(t, s.Create(ctx, task))

	t.Run("commits on success", func(t *testing.T) {
		err := s.RunInTx(ctx, func(ctx context.Context, tx store.TaskStore) error {
			locked, err := tx.GetForUpdate(ctx, task.ID)
			if err != nil {
				return err
			}
			if err := locked.Start(); err != nil {
				return err
			}
			return tx.Update(ctx, locked)
		})
		require.NoError(t, err)

		got, err := s.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusInProgress, got.Status)
	})

	t.Run("rolls back on error", func(t *testing.T) {
		err := s.RunInTx(ctx, func(ctx context.Context, tx store.TaskStore) error {
			locked, err := tx.GetForUpdate(ctx, task.ID)
			if err != nil {
				return err
			}
			if err := locked.Complete(); err != nil {
				return err
			}
			if err := tx.Update(ctx, locked); err != nil {
				return err
			}
			return domain.ErrInvalidTransition
		})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)

		got, err := s.GetByID(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusInProgress, got.Status)
		assert.Nil(t, got.CompletedAt)
	})

	t.Run("not found inside tx", func(t *testing.T) {
		err := s.RunInTx(ctx, func(ctx context.Context, tx store.TaskStore) error {
			_, err := tx.GetForUpdate(ctx, uuid.New())
			return err
		})
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestTaskStore_TimesOutOnExhaustedPool(t *testing.T) {
	s := setupTestStoreWithOptions(t, TaskStoreOptions{QueryTimeout: 100 * time.Millisecond})
	sqlDB, err := s.db.DB()
	require.NoError(t, err)

	// :memory: allows one connection; an open transaction holds it.
	held, err := sqlDB.Begin()
	require.NoError(t, err)
	defer func() { _ = held.Rollback() }()

	type outcome struct {
		name string
		err  error
	}
	done := make(chan outcome, 2)
	go func() {
		err := s.RunInTx(context.Background(), func(ctx context.Context, tx store.TaskStore) error {
			return nil
		})
		done <- outcome{"RunInTx", err}
	}()
	go func() {
		_, err := s.GetByID(context.Background(), uuid.New())
		done <- outcome{"GetByID", err}
	}()

	for i := 0; i < 2; i++ {
		select {
		case got := <-done:
			assert.ErrorIs(t, got.err, store.ErrUnavailable, got.name)
		case <-time.After(3 * time.Second):
			t.Fatal("store kept waiting for a connection past QueryTimeout")
		}
	}
}

func TestTaskStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
