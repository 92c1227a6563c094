package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when a lifecycle operation is not
	// permitted from the task's current status.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")
)

// Validation errors for Task
var (
	ErrEmptyTaskID         = fmt.Errorf("%w: task ID cannot be empty", ErrValidation)
	ErrEmptyTaskTitle      = fmt.Errorf("%w: task title cannot be empty", ErrValidation)
	ErrTaskTitleTooLong    = fmt.Errorf("%w: task title exceeds %d characters", ErrValidation, MaxTitleLength)
	ErrDescriptionTooLong  = fmt.Errorf("%w: task description exceeds %d characters", ErrValidation, MaxDescriptionLength)
	ErrEmptyAssignee       = fmt.Errorf("%w: assignee cannot be empty", ErrValidation)
	ErrAssigneeTooLong     = fmt.Errorf("%w: assignee exceeds %d characters", ErrValidation, MaxAssigneeLength)
	ErrInvalidTaskStatus   = fmt.Errorf("%w: invalid task status", ErrValidation)
	ErrInvalidTaskPriority = fmt.Errorf("%w: invalid task priority", ErrValidation)
	ErrNothingToUpdate     = fmt.Errorf("%w: no fields to update", ErrValidation)
	ErrCancelReasonTooLong = fmt.Errorf("%w: cancellation reason exceeds %d characters", ErrValidation, MaxReasonLength)
)
