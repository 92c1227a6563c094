// Package notify turns task events into human-readable chat messages.
package notify

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"

	"github.com/phrazzld/taskflow-api/internal/events"
)

// Sender delivers a formatted message to its destination.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// DefaultTypes is the notify-set used when none is configured.
var DefaultTypes = []events.Type{
	events.TypeTaskCreated,
	events.TypeTaskCompleted,
	events.TypeTaskAssigned,
	events.TypeTaskCancelled,
}

// ParseTypes converts configured type names into a notify-set. An empty list
// yields DefaultTypes.
func ParseTypes(names []string) ([]events.Type, error) {
	if len(names) == 0 {
		return DefaultTypes, nil
	}
	known := make(map[events.Type]bool, len(events.AllTypes))
	for _, t := range events.AllTypes {
		known[t] = true
	}

	out := make([]events.Type, 0, len(names))
	for _, name := range names {
		t := events.Type(strings.TrimSpace(name))
		if !known[t] {
			return nil, fmt.Errorf("unknown event type %q", name)
		}
		out = append(out, t)
	}
	return out, nil
}

// Formatter renders events whose type is in its notify-set.
type Formatter struct {
	types map[events.Type]bool
}

// NewFormatter creates a Formatter for the given notify-set.
func NewFormatter(types []events.Type) *Formatter {
	set := make(map[events.Type]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return &Formatter{types: set}
}

// Wants reports whether events of type t are notified.
func (f *Formatter) Wants(t events.Type) bool {
	return f.types[t]
}

// Format renders e as Telegram HTML. All user-supplied text is escaped.
// A payload that does not match the event type wraps
// events.ErrMalformedEvent.
func (f *Formatter) Format(e *events.Event) (string, error) {
	m := &message{}

	switch e.Type {
	case events.TypeTaskCreated:
		var data events.TaskCreatedData
		if err := decode(e, &data); err != nil {
			return "", err
		}
		m.header("🆕", "New Task Created")
		m.field("📋", "Title", data.Title)
		m.id(e)
		m.field("⚡", "Priority", data.Priority)
		if data.AssignedTo != nil {
			m.field("👤", "Assigned to", *data.AssignedTo)
		}
		m.optional("✍️", "Created by", e.Actor)

	case events.TypeTaskStarted, events.TypeTaskCompleted:
		var data events.TaskStatusData
		if err := decode(e, &data); err != nil {
			return "", err
		}
		if e.Type == events.TypeTaskStarted {
			m.header("▶️", "Task Started")
		} else {
			m.header("✅", "Task Completed")
		}
		m.field("📋", "Title", data.Title)
		m.id(e)
		if e.Type == events.TypeTaskStarted {
			m.optional("👤", "Started by", e.Actor)
		} else {
			m.optional("👤", "Completed by", e.Actor)
		}

	case events.TypeTaskAssigned:
		var data events.TaskAssignedData
		if err := decode(e, &data); err != nil {
			return "", err
		}
		m.header("👥", "Task Assigned")
		m.field("📋", "Title", data.Title)
		m.id(e)
		m.field("👤", "Assigned to", data.AssignedTo)
		if data.PreviousAssignee != nil {
			m.field("↩️", "Previously", *data.PreviousAssignee)
		}
		m.optional("📝", "Assigned by", e.Actor)

	case events.TypeTaskCancelled:
		var data events.TaskCancelledData
		if err := decode(e, &data); err != nil {
			return "", err
		}
		m.header("❌", "Task Cancelled")
		m.field("📋", "Title", data.Title)
		m.id(e)
		m.optional("👤", "Cancelled by", e.Actor)
		m.optional("📝", "Reason", data.Reason)

	case events.TypeTaskUpdated:
		var data events.TaskUpdatedData
		if err := decode(e, &data); err != nil {
			return "", err
		}
		m.header("✏️", "Task Updated")
		m.field("📋", "Title", data.Title)
		m.id(e)
		m.field("🔄", "Changed", strings.Join(data.Changed, ", "))
		m.optional("👤", "Updated by", e.Actor)

	case events.TypeTaskDeleted:
		var data events.TaskDeletedData
		if err := decode(e, &data); err != nil {
			return "", err
		}
		m.header("🗑", "Task Deleted")
		m.field("📋", "Title", data.Title)
		m.id(e)
		m.field("📌", "Last status", data.Status)
		m.optional("👤", "Deleted by", e.Actor)

	default:
		return "", fmt.Errorf("%w: unsupported event type %q", events.ErrMalformedEvent, e.Type)
	}

	return m.String(), nil
}

func decode(e *events.Event, v interface{}) error {
	if err := e.UnmarshalData(v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", events.ErrMalformedEvent, e.Type, err)
	}
	return nil
}

type message struct {
	strings.Builder
}

func (m *message) header(icon, title string) {
	fmt.Fprintf(m, "%s <b>%s</b>\n\n", icon, title)
}

func (m *message) id(e *events.Event) {
	fmt.Fprintf(m, "🔖 ID: <code>%s</code>\n", e.TaskID)
}

func (m *message) field(icon, label, value string) {
	fmt.Fprintf(m, "%s %s: %s\n", icon, label, html.EscapeString(value))
}

func (m *message) optional(icon, label, value string) {
	if value != "" {
		m.field(icon, label, value)
	}
}

// LogSender writes notifications to a logger. It stands in for a chat
// sender when none is configured so the consumer still drains the log.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger.With(slog.String("component", "log_sender"))}
}

// Send logs text at info level and never fails.
func (s *LogSender) Send(ctx context.Context, text string) error {
	s.logger.InfoContext(ctx, "notification", slog.String("text", text))
	return nil
}
