package database

import "errors"

var (
	// ErrNotOpen is returned when an operation is attempted on a closed or nil database.
	ErrNotOpen = errors.New("database: not open")

	// ErrMigrationChanged means an applied migration file was edited after
	// it ran. Add a new migration instead of changing an old one.
	ErrMigrationChanged = errors.New("database: applied migration has changed")
)
