// Package gormstore implements store.TaskStore on GORM. It backs the
// service with SQLite for local runs and tests, where the version column is
// the only protection against concurrent writers.
package gormstore
