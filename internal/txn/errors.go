package txn

import "errors"

// ErrDeadlock is wrapped into the error Run returns when the wall-clock
// timeout elapses before a transaction finishes executing.
var ErrDeadlock = errors.New("transaction timed out")

// ErrAborted is wrapped into the error Run returns when an operation
// itself fails (as opposed to timing out).
var ErrAborted = errors.New("transaction aborted")
