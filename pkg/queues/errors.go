package queues

import "errors"

// Queue errors.
var (
	ErrUnknownJobType     = errors.New("unknown job type")
	ErrQueueEmpty         = errors.New("queue is empty")
	ErrJobNotFound        = errors.New("job not found")
	ErrQueueClosed        = errors.New("queue is closed")
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")
)
