package postgres

import "embed"

// MigrationsDir is the directory inside Migrations holding the goose files.
const MigrationsDir = "migrations"

// Migrations holds the goose SQL migrations for the task schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS
