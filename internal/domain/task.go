package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// AllTaskStatuses lists every status in lifecycle order.
var AllTaskStatuses = []TaskStatus{
	TaskStatusPending,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusCancelled,
}

// TaskPriority represents how urgent a task is
type TaskPriority string

// Possible task priority values
const (
	TaskPriorityLow      TaskPriority = "low"
	TaskPriorityMedium   TaskPriority = "medium"
	TaskPriorityHigh     TaskPriority = "high"
	TaskPriorityCritical TaskPriority = "critical"
)

// AllTaskPriorities lists every priority from lowest to highest.
var AllTaskPriorities = []TaskPriority{
	TaskPriorityLow,
	TaskPriorityMedium,
	TaskPriorityHigh,
	TaskPriorityCritical,
}

// Field limits enforced by Validate.
const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxAssigneeLength    = 100
	MaxReasonLength      = 500
)

// IsValid reports whether s is a known status.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition is permitted from s.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusCancelled
}

// IsValid reports whether p is a known priority.
func (p TaskPriority) IsValid() bool {
	switch p {
	case TaskPriorityLow, TaskPriorityMedium, TaskPriorityHigh, TaskPriorityCritical:
		return true
	default:
		return false
	}
}

// ParseTaskStatus converts a raw string into a TaskStatus.
func ParseTaskStatus(raw string) (TaskStatus, error) {
	status := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !status.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskStatus, raw)
	}
	return status, nil
}

// ParseTaskPriority converts a raw string into a TaskPriority.
// An empty string yields the default priority.
func ParseTaskPriority(raw string) (TaskPriority, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return TaskPriorityMedium, nil
	}
	priority := TaskPriority(trimmed)
	if !priority.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskPriority, raw)
	}
	return priority, nil
}

// Task is a unit of work tracked by the service. Its status only changes
// through the transition methods below.
type Task struct {
	ID          uuid.UUID    `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	AssignedTo  *string      `json:"assigned_to,omitempty"`
	CreatedBy   *string      `json:"created_by,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`

	// Version is incremented by the store on every write and is used to
	// detect concurrent modification.
	Version int64 `json:"version"`
}

// NewTask creates a pending task. Title, description and assignee are
// trimmed before validation; a nil or blank assignee leaves the task
// unassigned.
func NewTask(title, description string, priority TaskPriority, assignee, createdBy *string) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Status:      TaskStatusPending,
		Priority:    priority,
		AssignedTo:  normalizeOptional(assignee),
		CreatedBy:   normalizeOptional(createdBy),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if task.Priority == "" {
		task.Priority = TaskPriorityMedium
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}

	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrEmptyTaskID
	}
	if err := validateTitle(t.Title); err != nil {
		return err
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if !t.Status.IsValid() {
		return ErrInvalidTaskStatus
	}
	if !t.Priority.IsValid() {
		return ErrInvalidTaskPriority
	}
	if t.AssignedTo != nil {
		if err := validateAssignee(*t.AssignedTo); err != nil {
			return err
		}
	}
	return nil
}

// IsTerminal reports whether the task is completed or cancelled.
func (t *Task) IsTerminal() bool {
	return t.Status.IsTerminal()
}

// Start moves a pending task to in_progress.
func (t *Task) Start() error {
	if t.Status != TaskStatusPending {
		return transitionError("start", t.Status)
	}
	t.Status = TaskStatusInProgress
	t.touch()
	return nil
}

// Complete moves an in_progress task to completed and records CompletedAt.
func (t *Task) Complete() error {
	if t.Status != TaskStatusInProgress {
		return transitionError("complete", t.Status)
	}
	t.Status = TaskStatusCompleted
	t.touch()
	completedAt := t.UpdatedAt
	t.CompletedAt = &completedAt
	return nil
}

// Cancel moves a pending or in_progress task to cancelled. The reason is only
// validated here; it travels on the emitted event, not on the task.
func (t *Task) Cancel(reason string) error {
	if t.IsTerminal() {
		return transitionError("cancel", t.Status)
	}
	if utf8.RuneCountInString(strings.TrimSpace(reason)) > MaxReasonLength {
		return ErrCancelReasonTooLong
	}
	t.Status = TaskStatusCancelled
	t.touch()
	return nil
}

// Assign sets the assignee of a non-terminal task and returns the previous
// assignee, if any.
func (t *Task) Assign(assignee string) (*string, error) {
	if t.IsTerminal() {
		return nil, transitionError("assign", t.Status)
	}
	assignee = strings.TrimSpace(assignee)
	if err := validateAssignee(assignee); err != nil {
		return nil, err
	}
	previous := t.AssignedTo
	t.AssignedTo = &assignee
	t.touch()
	return previous, nil
}

// UpdateDetails changes the title and/or description of a non-terminal task.
// Nil arguments are left untouched. It returns the names of the fields whose
// value actually changed; an empty result means the task was not modified.
func (t *Task) UpdateDetails(title, description *string) ([]string, error) {
	if title == nil && description == nil {
		return nil, ErrNothingToUpdate
	}
	if t.IsTerminal() {
		return nil, transitionError("update", t.Status)
	}

	var changed []string
	newTitle, newDescription := t.Title, t.Description

	if title != nil {
		newTitle = strings.TrimSpace(*title)
		if err := validateTitle(newTitle); err != nil {
			return nil, err
		}
		if newTitle != t.Title {
			changed = append(changed, "title")
		}
	}
	if description != nil {
		newDescription = strings.TrimSpace(*description)
		if utf8.RuneCountInString(newDescription) > MaxDescriptionLength {
			return nil, ErrDescriptionTooLong
		}
		if newDescription != t.Description {
			changed = append(changed, "description")
		}
	}

	if len(changed) == 0 {
		return nil, nil
	}

	t.Title = newTitle
	t.Description = newDescription
	t.touch()
	return changed, nil
}

func (t *Task) touch() {
	now := time.Now().UTC()
	// Keep UpdatedAt strictly monotonic even on coarse clocks.
	if !now.After(t.UpdatedAt) {
		now = t.UpdatedAt.Add(time.Microsecond)
	}
	t.UpdatedAt = now
}

func transitionError(op string, from TaskStatus) error {
	return fmt.Errorf("%w: cannot %s task in %s status", ErrInvalidTransition, op, from)
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrEmptyTaskTitle
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return ErrTaskTitleTooLong
	}
	return nil
}

func validateAssignee(assignee string) error {
	if strings.TrimSpace(assignee) == "" {
		return ErrEmptyAssignee
	}
	if utf8.RuneCountInString(assignee) > MaxAssigneeLength {
		return ErrAssigneeTooLong
	}
	return nil
}

func normalizeOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
