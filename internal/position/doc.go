// Package position implements saving and restoring instrument positions.
//
// A position is a named snapshot of every channel value of an instrument.
// Save validates that a value was supplied for each member channel and
// writes the snapshot atomically; an incomplete save writes nothing.
// Restore replays a snapshot onto the live channels in membership order,
// skipping channels that are unreachable or have no stored value, and can
// optionally wait for every write to complete within a deadline.
//
// The engine serializes mutating operations and reports each batch to the
// optional audit trail.
package position
