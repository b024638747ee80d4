package sessions

import "errors"

var (
	// ErrNotFound is returned when no live session is registered under the
	// requested name.
	ErrNotFound = errors.New("no session with that name")

	// ErrQueueClosed is returned when pushing to, or reading from, an observer
	// queue that has been closed.
	ErrQueueClosed = errors.New("observer queue closed")

	// ErrInvalidGracePeriod is returned by New when the grace period is negative.
	ErrInvalidGracePeriod = errors.New("grace period must not be negative")
)
