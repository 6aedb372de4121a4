package database

import "errors"

// Domain errors for the database package.
var (
	// ErrNotInstrumentDB is returned when a file fails the instrument
	// database validity probe (missing tables or info entries).
	ErrNotInstrumentDB = errors.New("database: not a valid instrument database")
)
