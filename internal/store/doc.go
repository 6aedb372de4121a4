// Package store is the schema access layer of the instrument database.
//
// It provides typed CRUD over the persisted entities:
//
//   - Instrument: a named, ordered collection of channels (instrument table)
//   - Channel: a process variable with a display type (pv, pvtype tables)
//   - Member: the ordered instrument/channel relation (instrument_pv table)
//   - Position: a named snapshot per instrument (position table)
//   - PositionValue: the stored value rows of a snapshot (position_pv table)
//   - the info key/value singleton (schema metadata, host/process lock)
//
// # Query contracts
//
// Single-row lookups come in two flavours: Get* returns a per-entity
// not-found error when nothing matches, Find* returns (nil, nil). Either
// flavour reports ErrMultipleResults when a query expected to match at
// most one row matches several.
//
// Channel names are normalized on every path into the store; a lookup that
// finds a row stored under an unnormalized name repairs it in place.
//
// Multi-row mutations (instrument creation, position writes, cascade
// deletes) each run in a single transaction.
//
// # Thread Safety
//
// The SQLiteStore is safe for concurrent readers. Mutating operations must
// be serialized by the caller (the position engine holds a lock around
// save/restore/remove).
package store
