package executor

import "errors"

var (
	ErrBadRequest = errors.New("executor: bad request")
	// ErrSessionInPast rejects buffer-mode sessions whose first command is
	// already due.
	ErrSessionInPast = errors.New("executor: session starts in the past")
	// ErrNotPending is returned when cancelling a session with no
	// undispatched commands.
	ErrNotPending = errors.New("executor: session has no pending commands")
	ErrQueueFull  = errors.New("executor: event queue full")
	// ErrWatchLost ends Run when the submission key can no longer be watched.
	ErrWatchLost = errors.New("executor: submission watch lost")
)
