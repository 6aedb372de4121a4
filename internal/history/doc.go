// Package history records an audit trail of position operations.
//
// Saves, restore batches, and the individual channel writes inside a
// restore are written as InfluxDB points so operators can answer "who
// moved this instrument, when, and to what" after the fact. Recording is
// optional: a nil Recorder is a safe no-op, and writes are batched and
// asynchronous so the audit backend cannot slow instrument control.
package history
