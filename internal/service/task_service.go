package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/domain"
	"github.com/phrazzld/taskflow-api/internal/events"
	"github.com/phrazzld/taskflow-api/internal/platform/logger"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// Operation names used in errors and logs.
const (
	OpCreate     = "create"
	OpGet        = "get"
	OpList       = "list"
	OpUpdate     = "update"
	OpStart      = "start"
	OpComplete   = "complete"
	OpCancel     = "cancel"
	OpAssign     = "assign"
	OpDelete     = "delete"
	OpStatistics = "statistics"
)

// CreateTaskInput carries the caller-supplied fields of a new task.
type CreateTaskInput struct {
	Title       string
	Description string
	Priority    domain.TaskPriority
	AssignedTo  *string
}

// UpdateTaskInput carries the editable fields of a task. Nil fields are left
// unchanged.
type UpdateTaskInput struct {
	Title       *string
	Description *string
}

// TaskPage is one page of a task listing.
type TaskPage struct {
	Tasks  []*domain.Task
	Total  int
	Limit  int
	Offset int
}

// Statistics summarizes the tasks visible to a caller at the time of the call.
type Statistics struct {
	Total      int
	ByStatus   map[domain.TaskStatus]int
	ByPriority map[domain.TaskPriority]int
}

// TaskService provides the task use cases.
type TaskService interface {
	// Create stores a new pending task and publishes task.created.
	Create(ctx context.Context, input CreateTaskInput) (*domain.Task, error)

	// Get returns a single task.
	Get(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns the tasks matching filter, newest first.
	List(ctx context.Context, filter store.TaskFilter) (*TaskPage, error)

	// Update changes title and/or description and publishes task.updated.
	// An update that changes nothing is not persisted and emits no event.
	Update(ctx context.Context, id uuid.UUID, input UpdateTaskInput) (*domain.Task, error)

	// Start moves a pending task to in_progress.
	Start(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Complete moves an in_progress task to completed.
	Complete(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// Cancel moves a pending or in_progress task to cancelled.
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Task, error)

	// Assign sets the assignee of a non-terminal task.
	Assign(ctx context.Context, id uuid.UUID, assignee string) (*domain.Task, error)

	// Delete removes a task in any state and publishes task.deleted.
	Delete(ctx context.Context, id uuid.UUID) error

	// Statistics counts tasks per status and priority, optionally for one
	// assignee.
	Statistics(ctx context.Context, assignedTo *string) (*Statistics, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	store     store.TaskStore
	publisher events.Publisher
	logger    *slog.Logger
}

var _ TaskService = (*taskServiceImpl)(nil)

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	taskStore store.TaskStore,
	publisher events.Publisher,
	logger *slog.Logger,
) (TaskService, error) {
	if taskStore == nil {
		return nil, fmt.Errorf("%w: task store cannot be nil", domain.ErrValidation)
	}
	if publisher == nil {
		return nil, fmt.Errorf("%w: event publisher cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		store:     taskStore,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "task_service")),
	}, nil
}

func (s *taskServiceImpl) Create(ctx context.Context, input CreateTaskInput) (*domain.Task, error) {
	actor := domain.ActorFromContext(ctx)
	var createdBy *string
	if actor != "" {
		createdBy = &actor
	}

	task, err := domain.NewTask(input.Title, input.Description, input.Priority, input.AssignedTo, createdBy)
	if err != nil {
		return nil, NewTaskServiceError(OpCreate, uuid.Nil, "invalid task", err)
	}

	event, err := events.NewEvent(events.TypeTaskCreated, task.ID, actor, events.TaskCreatedData{
		Title:      task.Title,
		Priority:   string(task.Priority),
		AssignedTo: task.AssignedTo,
	})
	if err != nil {
		return nil, s.wrapError(ctx, OpCreate, task.ID, err)
	}

	err = s.store.RunInTx(ctx, func(ctx context.Context, tx store.TaskStore) error {
		return tx.Create(ctx, task)
	})
	if err != nil {
		return nil, s.wrapError(ctx, OpCreate, task.ID, err)
	}

	if err := s.publish(ctx, OpCreate, event); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *taskServiceImpl) Get(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, s.wrapError(ctx, OpGet, id, err)
	}
	return task, nil
}

func (s *taskServiceImpl) List(ctx context.Context, filter store.TaskFilter) (*TaskPage, error) {
	filter = filter.Normalize()
	tasks, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, s.wrapError(ctx, OpList, uuid.Nil, err)
	}
	return &TaskPage{
		Tasks:  tasks,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

func (s *taskServiceImpl) Update(ctx context.Context, id uuid.UUID, input UpdateTaskInput) (*domain.Task, error) {
	return s.mutate(ctx, OpUpdate, id, func(task *domain.Task, actor string) (*events.Event, error) {
		changed, err := task.UpdateDetails(input.Title, input.Description)
		if err != nil || len(changed) == 0 {
			return nil, err
		}
		return events.NewEvent(events.TypeTaskUpdated, task.ID, actor, events.TaskUpdatedData{
			Title:   task.Title,
			Changed: changed,
		})
	})
}

func (s *taskServiceImpl) Start(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.mutate(ctx, OpStart, id, func(task *domain.Task, actor string) (*events.Event, error) {
		if err := task.Start(); err != nil {
			return nil, err
		}
		return events.NewEvent(events.TypeTaskStarted, task.ID, actor, events.TaskStatusData{Title: task.Title})
	})
}

func (s *taskServiceImpl) Complete(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return s.mutate(ctx, OpComplete, id, func(task *domain.Task, actor string) (*events.Event, error) {
		if err := task.Complete(); err != nil {
			return nil, err
		}
		return events.NewEvent(events.TypeTaskCompleted, task.ID, actor, events.TaskStatusData{Title: task.Title})
	})
}

func (s *taskServiceImpl) Cancel(ctx context.Context, id uuid.UUID, reason string) (*domain.Task, error) {
	return s.mutate(ctx, OpCancel, id, func(task *domain.Task, actor string) (*events.Event, error) {
		if err := task.Cancel(reason); err != nil {
			return nil, err
		}
		return events.NewEvent(events.TypeTaskCancelled, task.ID, actor, events.TaskCancelledData{
			Title:  task.Title,
			Reason: reason,
		})
	})
}

func (s *taskServiceImpl) Assign(ctx context.Context, id uuid.UUID, assignee string) (*domain.Task, error) {
	return s.mutate(ctx, OpAssign, id, func(task *domain.Task, actor string) (*events.Event, error) {
		previous, err := task.Assign(assignee)
		if err != nil {
			return nil, err
		}
		return events.NewEvent(events.TypeTaskAssigned, task.ID, actor, events.TaskAssignedData{
			Title:            task.Title,
			AssignedTo:       *task.AssignedTo,
			PreviousAssignee: previous,
		})
	})
}

func (s *taskServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	actor := domain.ActorFromContext(ctx)
	var event *events.Event

	attempt := func() error {
		return s.store.RunInTx(ctx, func(ctx context.Context, tx store.TaskStore) error {
			task, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := tx.Delete(ctx, id); err != nil {
				return err
			}
			event, err = events.NewEvent(events.TypeTaskDeleted, id, actor, events.TaskDeletedData{
				Title:  task.Title,
				Status: string(task.Status),
			})
			return err
		})
	}

	if err := s.withConflictRetry(ctx, OpDelete, id, attempt); err != nil {
		return s.wrapError(ctx, OpDelete, id, err)
	}
	return s.publish(ctx, OpDelete, event)
}

func (s *taskServiceImpl) Statistics(ctx context.Context, assignedTo *string) (*Statistics, error) {
	counts, err := s.store.Counts(ctx, assignedTo)
	if err != nil {
		return nil, s.wrapError(ctx, OpStatistics, uuid.Nil, err)
	}
	return &Statistics{
		Total:      counts.Total(),
		ByStatus:   counts.ByStatus,
		ByPriority: counts.ByPriority,
	}, nil
}

// transition applies one lifecycle change to a locked task and returns the
// event describing it, or nil when the task was left unchanged.
type transition func(task *domain.Task, actor string) (*events.Event, error)

// mutate runs apply against the locked current state of the task, persists
// the result and publishes the event after commit.
func (s *taskServiceImpl) mutate(ctx context.Context, op string, id uuid.UUID, apply transition) (*domain.Task, error) {
	actor := domain.ActorFromContext(ctx)
	var (
		result *domain.Task
		event  *events.Event
	)

	attempt := func() error {
		return s.store.RunInTx(ctx, func(ctx context.Context, tx store.TaskStore) error {
			task, err := tx.GetForUpdate(ctx, id)
			if err != nil {
				return err
			}
			ev, err := apply(task, actor)
			if err != nil {
				return err
			}
			if ev != nil {
				if err := tx.Update(ctx, task); err != nil {
					return err
				}
			}
			result, event = task, ev
			return nil
		})
	}

	if err := s.withConflictRetry(ctx, op, id, attempt); err != nil {
		return nil, s.wrapError(ctx, op, id, err)
	}
	if event == nil {
		logger.FromContextOrDefault(ctx, s.logger).Debug("task unchanged, nothing to persist",
			slog.String("task_id", id.String()),
			slog.String("operation", op))
		return result, nil
	}
	if err := s.publish(ctx, op, event); err != nil {
		return nil, err
	}
	return result, nil
}

// withConflictRetry runs attempt and, if it lost a race, runs it once more
// in a fresh transaction.
func (s *taskServiceImpl) withConflictRetry(ctx context.Context, op string, id uuid.UUID, attempt func() error) error {
	err := attempt()
	if !errors.Is(err, store.ErrConflict) {
		return err
	}
	logger.FromContextOrDefault(ctx, s.logger).Warn("conflict on task, retrying once",
		slog.String("task_id", id.String()),
		slog.String("operation", op),
		slog.String("error", err.Error()))
	return attempt()
}

func (s *taskServiceImpl) publish(ctx context.Context, op string, event *events.Event) error {
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to publish event after commit",
			slog.String("task_id", event.TaskID.String()),
			slog.String("operation", op),
			slog.String("event_id", event.ID.String()),
			slog.String("event_type", string(event.Type)),
			slog.String("error", err.Error()))
		return NewTaskServiceError(op, event.TaskID, "change committed but event was not published",
			fmt.Errorf("%w: %w", ErrPublishFailure, err))
	}
	return nil
}

// wrapError converts store and domain failures into a TaskServiceError,
// logging the ones that are not the caller's fault.
func (s *taskServiceImpl) wrapError(ctx context.Context, op string, id uuid.UUID, err error) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	switch {
	case store.IsNotFoundError(err):
		return NewTaskServiceError(op, id, "task not found", ErrTaskNotFound)
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidTransition):
		return NewTaskServiceError(op, id, "request rejected", err)
	case errors.Is(err, store.ErrConflict):
		log.Warn("task modified concurrently",
			slog.String("task_id", id.String()),
			slog.String("operation", op))
		return NewTaskServiceError(op, id, "task was modified concurrently", err)
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		log.Error("task store unavailable",
			slog.String("task_id", id.String()),
			slog.String("operation", op),
			slog.String("error", err.Error()))
		if !errors.Is(err, store.ErrUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDependencyUnavailable, err)
		}
		return NewTaskServiceError(op, id, "task store unavailable", err)
	default:
		log.Error("task operation failed",
			slog.String("task_id", id.String()),
			slog.String("operation", op),
			slog.String("error", err.Error()))
		return NewTaskServiceError(op, id, "unexpected error", err)
	}
}
