package tracker

import (
	"errors"
	"fmt"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrUnknownSession is returned by [Tracker.Confirm] when the session id is not
// open and cannot be found in the store, e.g. because it was discarded.
var ErrUnknownSession = errors.New("unknown session")

// ErrInvalidCode is returned by [Tracker.Confirm] for a blank project code.
var ErrInvalidCode = errors.New("invalid project code")

// ErrClosed is returned by operations issued after [Tracker.Shutdown].
var ErrClosed = errors.New("tracker shut down")

// ///////////////////////////////////////////////
// StoreWriteError
// ///////////////////////////////////////////////

// StoreWriteError reports a failed store operation. It is recoverable: the
// write is kept and retried before the next store operation.
type StoreWriteError struct {
	// Op is the store operation: "upsert", "delete", or "get".
	Op string
	// SessionID identifies the affected session.
	SessionID string
	// Err is the underlying store error.
	Err error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store %s session %s: %v", e.Op, e.SessionID, e.Err)
}

// Unwrap returns the store error.
func (e *StoreWriteError) Unwrap() error { return e.Err }
