package channel

import "errors"

// Domain errors for the channel package.
var (
	// ErrNotConnected is returned when an operation requires a live
	// connection and the channel never connected. During a batch restore
	// this is a skip reason, not a fatal error.
	ErrNotConnected = errors.New("channel: not connected")

	// ErrInvalidName is returned when a channel name is empty after
	// normalization.
	ErrInvalidName = errors.New("channel: invalid name")

	// ErrPutFailed is returned when issuing a write to a channel fails.
	ErrPutFailed = errors.New("channel: put failed")
)
