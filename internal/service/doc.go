// Package service implements the task use cases on top of a store.TaskStore
// and an events.Publisher.
//
// Every mutation locks and reloads the task inside a transaction, applies the
// lifecycle transition, persists it, commits, and only then publishes exactly
// one event.
package service
