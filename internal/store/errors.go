package store

import "errors"

// Domain errors for the store package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, store.ErrInstrumentNotFound) {
//	    // handle unknown instrument
//	}
var (
	// ErrNotFound is returned when a single-row lookup matches nothing.
	ErrNotFound = errors.New("store: not found")

	// ErrMultipleResults is returned when a query expected to match at
	// most one row matches more than one.
	ErrMultipleResults = errors.New("store: multiple results for single-row query")

	// ErrInstrumentNotFound is returned when an instrument name does not exist.
	ErrInstrumentNotFound = errors.New("store: instrument not found")

	// ErrInstrumentExists is returned when creating an instrument whose
	// name is already taken.
	ErrInstrumentExists = errors.New("store: instrument already exists")

	// ErrChannelNotFound is returned when a channel name does not exist.
	ErrChannelNotFound = errors.New("store: channel not found")

	// ErrPositionNotFound is returned when a position name does not exist
	// for the given instrument.
	ErrPositionNotFound = errors.New("store: position not found")

	// ErrUnknownKind is returned when a channel type name is not in the
	// pvtype lookup and could not be created.
	ErrUnknownKind = errors.New("store: unknown channel kind")
)
