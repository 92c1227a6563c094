// Package events provides the domain event envelope and the interfaces that
// connect the task service to the event log.
//
// This package defines event types and the log contracts that allow the task
// service and the notification worker to evolve independently. The service
// appends events through a Publisher; the worker reads them back through a
// Subscription, which tracks its position in the log per consumer group.
//
// The primary components are:
// - Event: the serialized record of a single task state change
// - Publisher: appends events to the log
// - Subscription: reads, acknowledges and retries events for a consumer group
// - MemoryLog: an in-process log implementing both sides, used for tests
//   and single-process runs
package events
