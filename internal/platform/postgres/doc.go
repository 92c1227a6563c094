// Package postgres provides the PostgreSQL implementation of store.TaskStore
// and the embedded goose migrations that create its schema.
//
// Mutating operations lock rows with SELECT ... FOR UPDATE under a
// transaction-local lock_timeout, and every UPDATE is guarded by the row's
// version column.
package postgres
