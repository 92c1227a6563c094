// Package store defines the persistence contract for tasks.
//
// TaskStore abstracts the storage backend from the task service. Backends
// live under internal/platform (postgres, gormstore) and translate their
// driver errors into the sentinels declared in errors.go, so callers only
// ever check for ErrNotFound, ErrConflict or ErrUnavailable.
package store
