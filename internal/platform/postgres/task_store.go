package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/store"
)

const taskColumns = `id, title, description, status, priority, assigned_to, created_by,
	created_at, updated_at, completed_at, version`

// TaskStoreOptions tunes timeouts applied by PostgresTaskStore.
type TaskStoreOptions struct {
	// QueryTimeout bounds each statement run outside a transaction, and each
	// RunInTx call as a whole, including the wait for a pooled connection.
	QueryTimeout time.Duration

	// LockTimeout is set as lock_timeout for every transaction started by
	// RunInTx. Zero leaves the server default.
	LockTimeout time.Duration
}

// PostgresTaskStore implements the store.TaskStore interface
// using a PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     store.DBTX
	sqlDB  *sql.DB // nil when bound to a transaction
	logger *slog.Logger
	opts   TaskStoreOptions
}

// Ensure PostgresTaskStore implements store.TaskStore interface
var _ store.TaskStore = (*PostgresTaskStore)(nil)

// NewPostgresTaskStore creates a new PostgreSQL implementation of the TaskStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresTaskStore(db *sql.DB, logger *slog.Logger, opts TaskStoreOptions) *PostgresTaskStore {
	if db == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTaskStore{
		db:     db,
		sqlDB:  db,
		logger: logger.With(slog.String("component", "task_store")),
		opts:   opts,
	}
}

// WithTx returns a store whose statements run inside tx.
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) *PostgresTaskStore {
	return &PostgresTaskStore{
		db:     tx,
		logger: s.logger,
		opts:   s.opts,
	}
}

func (s *PostgresTaskStore) inTx() bool {
	return s.sqlDB == nil
}

// withTimeout applies QueryTimeout to statements that are not part of a
// transaction. Inside a transaction the deadline set by RunInTx governs.
func (s *PostgresTaskStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.inTx() || s.opts.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opts.QueryTimeout)
}

// Create implements store.TaskStore.Create.
// The stored task starts at version 1.
func (s *PostgresTaskStore) Create(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, description, status, priority, assigned_to, created_by,
			created_at, updated_at, completed_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1)`,
		task.ID, task.Title, task.Description, string(task.Status), string(task.Priority),
		nullString(task.AssignedTo), nullString(task.CreatedBy),
		task.CreatedAt, task.UpdatedAt, nullTime(task.CompletedAt),
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to insert task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "create", "failed to insert task", MapError(err))
	}

	task.Version = 1
	s.logger.DebugContext(ctx, "task created", slog.String("task_id", task.ID.String()))
	return nil
}

// GetByID implements store.TaskStore.GetByID.
func (s *PostgresTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.get(ctx, id, "")
}

// GetForUpdate implements store.TaskStore.GetForUpdate.
func (s *PostgresTaskStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	if !s.inTx() {
		return s.get(ctx, id, "")
	}
	return s.get(ctx, id, " FOR UPDATE")
}

func (s *PostgresTaskStore) get(ctx context.Context, id uuid.UUID, suffix string) (*domain.Task, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = $1"+suffix, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		if IsLockNotAvailable(err) {
			s.logger.WarnContext(ctx, "timed out waiting for task lock",
				slog.String("task_id", id.String()))
		}
		return nil, MapError(err)
	}
	return task, nil
}

// Update implements store.TaskStore.Update.
func (s *PostgresTaskStore) Update(ctx context.Context, task *domain.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = $1, description = $2, status = $3, priority = $4, assigned_to = $5,
			updated_at = $6, completed_at = $7, version = version + 1
		WHERE id = $8 AND version = $9`,
		task.Title, task.Description, string(task.Status), string(task.Priority),
		nullString(task.AssignedTo), task.UpdatedAt, nullTime(task.CompletedAt),
		task.ID, task.Version,
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to update task",
			slog.String("task_id", task.ID.String()),
			slog.String("error", err.Error()))
		return store.NewStoreError("task", "update", "failed to update task", MapError(err))
	}

	if err := CheckRowsAffected(result, "task"); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return s.missingOrStale(ctx, task.ID)
	}

	task.Version++
	return nil
}

// missingOrStale distinguishes a deleted row from a version mismatch after
// an UPDATE matched nothing.
func (s *PostgresTaskStore) missingOrStale(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM tasks WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return MapError(err)
	}
	if !exists {
		return store.ErrTaskNotFound
	}
	s.logger.WarnContext(ctx, "task version changed concurrently",
		slog.String("task_id", id.String()))
	return fmt.Errorf("%w: task %s was modified concurrently", store.ErrConflict, id)
}

// Delete implements store.TaskStore.Delete.
func (s *PostgresTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = $1", id)
	if err != nil {
		return store.NewStoreError("task", "delete", "failed to delete task", MapError(err))
	}
	if err := CheckRowsAffected(result, "task"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return store.ErrTaskNotFound
		}
		return err
	}
	return nil
}

// List implements store.TaskStore.List.
func (s *PostgresTaskStore) List(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, int, error) {
	filter = filter.Normalize()
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args := buildTaskWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks"+where, args...).Scan(&total); err != nil {
		return nil, 0, MapError(err)
	}

	query := fmt.Sprintf("SELECT %s FROM tasks%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d",
		taskColumns, where, len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, 0, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*domain.Task, 0, filter.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, 0, MapError(err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, MapError(err)
	}
	return tasks, total, nil
}

func buildTaskWhere(filter store.TaskFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		clauses = append(clauses, fmt.Sprintf("priority = $%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to = $%d", len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Counts implements store.TaskStore.Counts with a single grouped query.
func (s *PostgresTaskStore) Counts(ctx context.Context, assignedTo *string) (store.TaskCounts, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "SELECT status, priority, COUNT(*) FROM tasks"
	var args []any
	if assignedTo != nil {
		query += " WHERE assigned_to = $1"
		args = append(args, *assignedTo)
	}
	query += " GROUP BY status, priority"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.TaskCounts{}, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	counts := store.NewTaskCounts()
	for rows.Next() {
		var (
			status, priority string
			n                int
		)
		if err := rows.Scan(&status, &priority, &n); err != nil {
			return store.TaskCounts{}, MapError(err)
		}
		counts.ByStatus[domain.TaskStatus(status)] += n
		counts.ByPriority[domain.TaskPriority(priority)] += n
	}
	if err := rows.Err(); err != nil {
		return store.TaskCounts{}, MapError(err)
	}
	return counts, nil
}

// RunInTx implements store.TaskStore.RunInTx. A store that is already bound
// to a transaction runs fn inside it.
func (s *PostgresTaskStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.TaskStore) error) error {
	if s.inTx() {
		return fn(ctx, s)
	}
	if s.opts.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.QueryTimeout)
		defer cancel()
	}
	err := store.RunInTransaction(ctx, s.sqlDB, func(ctx context.Context, tx *sql.Tx) error {
		if s.opts.LockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.opts.LockTimeout.Milliseconds())
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return MapError(err)
			}
		}
		return fn(ctx, s.WithTx(tx))
	})
	return MapError(err)
}

// Ping implements store.TaskStore.Ping.
func (s *PostgresTaskStore) Ping(ctx context.Context) error {
	if s.inTx() {
		_, err := s.db.ExecContext(ctx, "SELECT 1")
		return MapError(err)
	}
	return MapError(s.sqlDB.PingContext(ctx))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var (
		task                  domain.Task
		status, priority      string
		assignedTo, createdBy sql.NullString
		completedAt           sql.NullTime
	)
	err := row.Scan(&task.ID, &task.Title, &task.Description, &status, &priority,
		&assignedTo, &createdBy, &task.CreatedAt, &task.UpdatedAt, &completedAt, &task.Version)
	if err != nil {
		return nil, err
	}
	task.Status = domain.TaskStatus(status)
	task.Priority = domain.TaskPriority(priority)
	if assignedTo.Valid {
		task.AssignedTo = &assignedTo.String
	}
	if createdBy.Valid {
		task.CreatedBy = &createdBy.String
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		task.CompletedAt = &t
	}
	task.CreatedAt = task.CreatedAt.UTC()
	task.UpdatedAt = task.UpdatedAt.UTC()
	return &task, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
