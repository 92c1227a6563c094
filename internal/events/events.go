package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies what happened to a task.
type Type string

// Event types emitted by the task service.
const (
	TypeTaskCreated   Type = "task.created"
	TypeTaskStarted   Type = "task.started"
	TypeTaskCompleted Type = "task.completed"
	TypeTaskCancelled Type = "task.cancelled"
	TypeTaskAssigned  Type = "task.assigned"
	TypeTaskUpdated   Type = "task.updated"
	TypeTaskDeleted   Type = "task.deleted"
)

// AllTypes lists every event type the service can emit.
var AllTypes = []Type{
	TypeTaskCreated,
	TypeTaskStarted,
	TypeTaskCompleted,
	TypeTaskCancelled,
	TypeTaskAssigned,
	TypeTaskUpdated,
	TypeTaskDeleted,
}

// ErrMalformedEvent is returned when a message read from the log cannot be
// decoded into a valid Event. Such messages are never retried.
var ErrMalformedEvent = errors.New("malformed event")

// Event is an immutable record of a single task state change.
type Event struct {
	// ID is a unique identifier for this event, used for deduplication
	ID uuid.UUID `json:"event_id"`

	// Type indicates which transition happened
	Type Type `json:"event_type"`

	// OccurredAt is the time the transition was committed
	OccurredAt time.Time `json:"occurred_at"`

	// TaskID identifies the task the event describes
	TaskID uuid.UUID `json:"task_id"`

	// Actor is the user that performed the change, empty if anonymous
	Actor string `json:"actor,omitempty"`

	// Data contains the type-specific payload serialized as JSON
	Data json.RawMessage `json:"data"`
}

// TaskCreatedData is the payload of task.created.
type TaskCreatedData struct {
	Title      string  `json:"title"`
	Priority   string  `json:"priority"`
	AssignedTo *string `json:"assigned_to,omitempty"`
}

// TaskStatusData is the payload of task.started and task.completed.
type TaskStatusData struct {
	Title string `json:"title"`
}

// TaskCancelledData is the payload of task.cancelled.
type TaskCancelledData struct {
	Title  string `json:"title"`
	Reason string `json:"reason,omitempty"`
}

// TaskAssignedData is the payload of task.assigned.
type TaskAssignedData struct {
	Title            string  `json:"title"`
	AssignedTo       string  `json:"assigned_to"`
	PreviousAssignee *string `json:"previous_assignee,omitempty"`
}

// TaskUpdatedData is the payload of task.updated.
type TaskUpdatedData struct {
	Title   string   `json:"title"`
	Changed []string `json:"changed"`
}

// TaskDeletedData is the payload of task.deleted.
type TaskDeletedData struct {
	Title  string `json:"title"`
	Status string `json:"status"`
}

// NewEvent creates a new Event with the specified type and payload.
func NewEvent(eventType Type, taskID uuid.UUID, actor string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		TaskID:     taskID,
		Actor:      actor,
		Data:       dataBytes,
	}, nil
}

// UnmarshalData decodes the event payload into the provided structure.
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Encode serializes the event for the wire.
func (e *Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode validates body against the event schema and parses it. All
// failures wrap ErrMalformedEvent.
func Decode(body []byte) (*Event, error) {
	if err := ValidateEnvelope(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	return &event, nil
}
