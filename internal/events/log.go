package events

import (
	"context"
	"errors"
)

// ErrSubscriptionClosed is returned by Fetch after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Publisher appends events to an ordered, durable log.
// Publish is synchronous: a nil error means the event was accepted by the
// log, any failure is returned to the caller and the event is not retried.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
}

// Message is a single delivery read from the log.
type Message struct {
	// ID is the backend position of the message (stream entry ID or
	// delivery tag). It is only meaningful to the Subscription that
	// returned it.
	ID string

	// Body is the encoded Event.
	Body []byte

	// Deliveries counts how many times the message has been handed to the
	// consumer group, including this one.
	Deliveries int64
}

// Subscription reads the log on behalf of one member of a consumer group.
// The log tracks the group's position, so a restarted consumer resumes after
// the last acknowledged message.
type Subscription interface {
	// Fetch returns the next batch. Messages previously fetched by this
	// consumer and not acknowledged are returned again before new ones.
	// An empty batch with a nil error means nothing arrived within the
	// backend's block timeout.
	Fetch(ctx context.Context) ([]Message, error)

	// Ack marks a message as handled for the group. Acknowledging an
	// already acknowledged message is a no-op.
	Ack(ctx context.Context, msg Message) error

	// Retry leaves a message unacknowledged so that it is redelivered on a
	// later Fetch.
	Retry(ctx context.Context, msg Message) error

	// DeadLetter moves a message to the dead-letter destination and
	// acknowledges it.
	DeadLetter(ctx context.Context, msg Message, reason string) error

	// Close releases the subscription's resources.
	Close() error
}
