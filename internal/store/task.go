package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/domain"
)

// Pagination bounds applied by TaskFilter.Normalize.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// TaskFilter narrows a task listing. Nil fields do not filter.
type TaskFilter struct {
	Status     *domain.TaskStatus
	Priority   *domain.TaskPriority
	AssignedTo *string
	Limit      int
	Offset     int
}

// Normalize clamps pagination to the supported range.
func (f TaskFilter) Normalize() TaskFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// TaskCounts holds per-status and per-priority counts read in one query.
type TaskCounts struct {
	ByStatus   map[domain.TaskStatus]int
	ByPriority map[domain.TaskPriority]int
}

// NewTaskCounts returns counts with every known status and priority present
// and set to zero.
func NewTaskCounts() TaskCounts {
	counts := TaskCounts{
		ByStatus:   make(map[domain.TaskStatus]int, len(domain.AllTaskStatuses)),
		ByPriority: make(map[domain.TaskPriority]int, len(domain.AllTaskPriorities)),
	}
	for _, s := range domain.AllTaskStatuses {
		counts.ByStatus[s] = 0
	}
	for _, p := range domain.AllTaskPriorities {
		counts.ByPriority[p] = 0
	}
	return counts
}

// Total returns the sum of the per-status counts.
func (c TaskCounts) Total() int {
	total := 0
	for _, n := range c.ByStatus {
		total += n
	}
	return total
}

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task to the store.
	// Returns store.ErrDuplicate if a task with the same ID exists.
	// Returns validation errors from the domain Task if data is invalid.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns store.ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// GetForUpdate retrieves a task and locks its row until the surrounding
	// transaction ends. Outside a transaction it behaves like GetByID.
	// Returns store.ErrTaskNotFound if the task does not exist.
	// Returns store.ErrConflict if the lock could not be acquired in time.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Update persists a modified task. The write only succeeds if the stored
	// version still equals task.Version; on success task.Version is
	// incremented.
	// Returns store.ErrTaskNotFound if the task does not exist.
	// Returns store.ErrConflict if the stored version changed.
	Update(ctx context.Context, task *domain.Task) error

	// Delete permanently removes a task by its ID.
	// Returns store.ErrTaskNotFound if the task does not exist.
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns the tasks matching filter ordered by creation time
	// (newest first), together with the total number of matches ignoring
	// pagination.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, int, error)

	// Counts returns the number of tasks per status and per priority,
	// optionally restricted to one assignee, computed from the current
	// committed state.
	Counts(ctx context.Context, assignedTo *string) (TaskCounts, error)

	// RunInTx executes fn inside a transaction. The TaskStore passed to fn is
	// bound to that transaction. The transaction commits when fn returns nil
	// and rolls back on error or panic.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx TaskStore) error) error

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}
