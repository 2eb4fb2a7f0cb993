package queue

import "errors"

var (
	// ErrDuplicate is returned by Enqueue when a non-terminal item already
	// exists for the same source and Force is not set.
	ErrDuplicate = errors.New("source already queued")
	// ErrUnknownItem is returned for IDs the queue does not hold.
	ErrUnknownItem = errors.New("unknown queue item")
	// ErrTerminal is returned when an operation requires a live item.
	ErrTerminal = errors.New("queue item already finished")
	// ErrNotResumable is returned by RetryStorage for items that did not
	// fail during persistence.
	ErrNotResumable = errors.New("queue item did not fail in storage")
)
