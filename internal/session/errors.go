package session

import "errors"

var (
	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session closed")
	// ErrUnknownEntity is returned when a mutation names a message or
	// subscription that is not in the current view.
	ErrUnknownEntity = errors.New("unknown entity")
)
