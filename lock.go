package doxstorr

import "github.com/ha1tch/doxstorr/internal/rwlock"

// keyLocker adapts one key of an rwlock.KeyLocks registry to
// sync.Locker, the interface internal/txn.Transaction.AddOperation
// requires so it can hold an arbitrary caller-supplied lock across the
// life of a transaction step.
type keyLocker struct {
	locks *rwlock.KeyLocks[int64]
	key   int64
}

func (l keyLocker) Lock()   { l.locks.Lock(l.key) }
func (l keyLocker) Unlock() { l.locks.Unlock(l.key) }
