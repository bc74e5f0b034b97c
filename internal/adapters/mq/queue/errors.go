package queue

import "errors"

// Sentinel kinds for enqueue failures.
var (
	ErrClosed = errors.New("job queue closed")
	ErrFull   = errors.New("job queue full")
)
