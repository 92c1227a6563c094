package service

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/taskflow-api/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// Callers check them with errors.Is; the API layer maps them to HTTP status
// codes. Validation and transition failures surface as the domain errors
// domain.ErrValidation and domain.ErrInvalidTransition.
var (
	// ErrTaskNotFound indicates that the requested task does not exist.
	ErrTaskNotFound = store.ErrTaskNotFound

	// ErrConflict indicates the task was modified concurrently and the retry
	// also lost the race.
	ErrConflict = store.ErrConflict

	// ErrDependencyUnavailable indicates the store could not be reached or
	// timed out.
	ErrDependencyUnavailable = store.ErrUnavailable

	// ErrPublishFailure indicates the change was committed but its event
	// could not be appended to the log.
	ErrPublishFailure = errors.New("event publish failed")
)

// TaskServiceError is a custom error type for task service errors.
type TaskServiceError struct {
	Operation string
	TaskID    uuid.UUID
	Message   string
	Err       error
}

// Error implements the error interface for TaskServiceError.
func (e *TaskServiceError) Error() string {
	prefix := "task service " + e.Operation + " failed"
	if e.TaskID != uuid.Nil {
		prefix += " for task " + e.TaskID.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *TaskServiceError) Unwrap() error {
	return e.Err
}

// NewTaskServiceError creates a new TaskServiceError.
func NewTaskServiceError(operation string, taskID uuid.UUID, message string, err error) *TaskServiceError {
	return &TaskServiceError{
		Operation: operation,
		TaskID:    taskID,
		Message:   message,
		Err:       err,
	}
}
