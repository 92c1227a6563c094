package gormstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/store"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskStoreOptions tunes timeouts applied by TaskStore.
type TaskStoreOptions struct {
	// QueryTimeout bounds each statement run outside a transaction, and each
	// RunInTx call as a whole, including the wait for a pooled connection.
	QueryTimeout time.Duration
}

// TaskStore implements store.TaskStore on a *gorm.DB.
type TaskStore struct {
	db     *gorm.DB
	inTx   bool
	logger *slog.Logger
	opts   TaskStoreOptions
}

var _ store.TaskStore = (*TaskStore)(nil)

// NewTaskStore creates a TaskStore. If logger is nil, a default logger will be used.
func NewTaskStore(db *gorm.DB, logger *slog.Logger, opts TaskStoreOptions) *TaskStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
		opts:   opts,
	}
}

func (s *TaskStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.inTx || s.opts.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.QueryTimeout)
}

// Create implements store.TaskStore.Create.
func (s *TaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	model := fromDomain(task)
	model.Version = 1
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		s.logger.ErrorContext(ctx, "failed to insert task",
			slog.String("task_id", model.ID),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "create", "failed to insert task", mapError(err))
	}
	task.Version = 1
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *TaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.get(ctx, s.db.WithContext(ctx), id)
}

// GetForUpdate implements store.TaskStore.GetForUpdate. SQLite ignores the
// locking clause; concurrent writers are caught by the version check.
func (s *TaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	query := s.db.WithContext(ctx)
	if s.inTx {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return s.get(ctx, query, id)
}

func (s *TaskStore) get(_ context.Context, query *gorm.DB, id uuid.UUID) (*domain.Task, error) {
	var model taskModel
	if err := query.First(&model, "id = ?", id.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrTaskNotFound
		}
		return nil, mapError(err)
	}
	return model.toDomain()
}

// Update implements store.TaskStore.Update.
func (s *TaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result := s.db.WithContext(ctx).
		Model(&taskModel{}).
		Where("id = ? AND version = ?", task.ID.String(), task.Version).
		Updates(map[string]any{
			"title":        task.Title,
			"description":  task.Description,
			"status":       string(task.Status),
			"priority":     string(task.Priority),
			"assigned_to":  task.AssignedTo,
			"updated_at":   task.UpdatedAt.UTC(),
			"completed_at": task.CompletedAt,
			"version":      gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return store.NewStoreError("task", "update", "failed to update task", mapError(result.Error))
	}
	if result.RowsAffected == 0 {
		var n int64
		if err := s.db.WithContext(ctx).Model(&taskModel{}).
			Where("id = ?", task.ID.String()).Count(&n).Error; err != nil {
			return mapError(err)
		}
		if n == 0 {
			return store.ErrTaskNotFound
		}
		s.logger.WarnContext(ctx, "task version changed concurrently",
			slog.String("task_id", task.ID.String()))
		return fmt.Errorf("%w: task %s was modified concurrently", store.ErrConflict, task.ID)
	}
	task.Version++
	return nil
}

// Delete implements store.TaskStore.Delete.
func (s *TaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result := s.db.WithContext(ctx).Delete(&taskModel{}, "id = ?", id.String())
	if result.Error != nil {
		return store.NewStoreError("task", "delete", "failed to delete task", mapError(result.Error))
	}
	if result.RowsAffected == 0 {
		return store.ErrTaskNotFound
	}
	return nil
}

// List implements store.TaskStore.List.
func (s *TaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	filter = filter.Normalize()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.WithContext(ctx).Model(&taskModel{})
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Priority != nil {
		query = query.Where("priority = ?", string(*filter.Priority))
	}
	if filter.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filter.AssignedTo)
	}
	// The filtered query is shared by Count and Find.
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, mapError(err)
	}

	var models []taskModel
	err := query.Order("created_at DESC").Order("id").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&models).Error
	if err != nil {
		return nil, 0, mapError(err)
	}

	tasks := make([]*domain.Task, 0, len(models))
	for i := range models {
		task, err := models[i].toDomain()
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, task)
	}
	return tasks, int(total), nil
}

type countRow struct {
	Status   string
	Priority string
	N        int
}

// Counts implements store.TaskStore.Counts with a single grouped query.
func (s *TaskStore) Counts(ctx context.Context, assignedTo *string) (store.TaskCounts, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.db.WithContext(ctx).Model(&taskModel{}).
		Select("status, priority, COUNT(*) AS n")
	if assignedTo != nil {
		query = query.Where("assigned_to = ?", *assignedTo)
	}

	var rows []countRow
	if err := query.Group("status, priority").Scan(&rows).Error; err != nil {
		return store.TaskCounts{}, mapError(err)
	}

	counts := store.NewTaskCounts()
	for _, r := range rows {
		counts.ByStatus[domain.TaskStatus(r.Status)] += r.N
		counts.ByPriority[domain.TaskPriority(r.Priority)] += r.N
	}
	return counts, nil
}

// RunInTx implements store.TaskStore.RunInTx.
func (s *TaskStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.TaskStore) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &TaskStore{db: tx, inTx: true, logger: s.logger, opts: s.opts})
	})
	return mapError(err)
}

// Ping implements store.TaskStore.Ping.
func (s *TaskStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

// mapError converts GORM and SQLite errors to store errors. Errors that are
// already store or domain errors pass through unchanged.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated), errors.Is(err, gorm.ErrCheckConstraintViolated):
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	case strings.Contains(err.Error(), "database is locked"):
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}
