// Package doxstorr is an embedded document database: schema-optional JSON
// documents organised into named collections, with secondary indexing,
// block-level persistence for large payloads, and multi-operation atomic
// transactions guarded by a write-ahead journal.
package doxstorr

import "errors"

// Category identifies one of the error categories from the error-handling
// design: not-found, already-exists, validation, storage, index, query,
// concurrency, transaction, configuration. Every public Engine method
// returns at most one error, and that error always carries a Category.
type Category string

const (
	CategoryNotFound      Category = "not-found"
	CategoryAlreadyExists Category = "already-exists"
	CategoryValidation    Category = "validation"
	CategoryStorage       Category = "storage"
	CategoryIndex         Category = "index"
	CategoryQuery         Category = "query"
	CategoryConcurrency   Category = "concurrency"
	CategoryTransaction   Category = "transaction"
	CategoryConfiguration Category = "configuration"
)

// Error is a categorized doxstorr error. Wrap with fmt.Errorf("...: %w", err)
// to add context without losing the category (errors.As still matches).
type Error struct {
	Category Category
	Op       string // operation that failed, e.g. "add_document"
	Err      error  // root cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category) + ": " + e.Op
	}
	return string(e.Category) + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the same category, so callers can write
// errors.Is(err, doxstorr.ErrNotFound) style checks against the category
// sentinels below without caring about the operation or root cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Err == nil {
		return t.Category == e.Category
	}
	return false
}

func newErr(cat Category, op string, err error) *Error {
	return &Error{Category: cat, Op: op, Err: err}
}

// Category sentinels usable with errors.Is for a coarse-grained check
// ("was this a not-found error") without caring about the operation.
var (
	ErrNotFound      = &Error{Category: CategoryNotFound}
	ErrAlreadyExists = &Error{Category: CategoryAlreadyExists}
	ErrValidation    = &Error{Category: CategoryValidation}
	ErrStorage       = &Error{Category: CategoryStorage}
	ErrIndex         = &Error{Category: CategoryIndex}
	ErrQuery         = &Error{Category: CategoryQuery}
	ErrConcurrency   = &Error{Category: CategoryConcurrency}
	ErrTransaction   = &Error{Category: CategoryTransaction}
	ErrConfiguration = &Error{Category: CategoryConfiguration}
)

// ErrDeadlockDetected is surfaced when a transaction's wall-clock timeout
// elapses; it is always wrapped in a CategoryTransaction *Error.
var ErrDeadlockDetected = errors.New("deadlock detected: transaction timed out")

// ErrTransactionAborted wraps the root cause of an aborted transaction;
// callers receive this, never the rollback error (rollback errors are
// logged, not raised — see internal/txn.Manager.Run).
var ErrTransactionAborted = errors.New("transaction aborted")
