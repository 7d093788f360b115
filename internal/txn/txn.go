// Package txn implements atomic multi-operation transactions: add a
// sequence of (apply, undo) pairs guarded by locks, run them, and on
// any failure unwind everything already applied in reverse order.
//
// Locking is acquire-on-add: AddOperation acquires its lock
// immediately, using sync.Locker so callers can supply either a plain
// mutex or a per-key lock from internal/rwlock's KeyLocks. The
// wall-clock timeout passed to Run (via context.WithTimeout) is the
// only deadlock backstop this package provides: it makes no attempt at
// cycle detection, only bounding how long a transaction may hold its
// locks before being rolled back and reported as a deadlock.
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// OperationType names the kind of change one Operation represents.
type OperationType int

const (
	OpAdd OperationType = iota + 1
	OpUpdate
	OpDelete
)

// Operation is a logical description of one change, kept alongside the
// apply/undo closures so the journal can record something serializable
// without reaching into the closures themselves.
type Operation struct {
	Type         OperationType
	CollectionID int64
	DocID        int64
	Data         any
}

type step struct {
	op     Operation
	apply  func() error
	undo   func() error
	lock   sync.Locker
}

// Transaction accumulates operations, each already holding its lock by
// the time AddOperation returns, ready for Run to execute in order.
type Transaction struct {
	ID    int64
	steps []step
	log   zerolog.Logger
}

// AddOperation appends one step and immediately acquires lock: by the
// time this returns, the transaction holds the lock for the remainder
// of its life (or until rollback releases it).
func (t *Transaction) AddOperation(op Operation, apply, undo func() error, lock sync.Locker) {
	lock.Lock()
	t.steps = append(t.steps, step{op: op, apply: apply, undo: undo, lock: lock})
	t.log.Debug().Int64("txn", t.ID).Int("step", len(t.steps)).Msg("added operation")
}

func (t *Transaction) execute() error {
	for i, s := range t.steps {
		if err := s.apply(); err != nil {
			return fmt.Errorf("operation %d: %w", i, err)
		}
	}
	return nil
}

func (t *Transaction) rollback() {
	for i := len(t.steps) - 1; i >= 0; i-- {
		if err := t.steps[i].undo(); err != nil {
			t.log.Error().Int64("txn", t.ID).Int("step", i).Err(err).Msg("rollback step failed")
		}
	}
}

func (t *Transaction) releaseLocks() {
	for _, s := range t.steps {
		s.lock.Unlock()
	}
}

// Operations returns the logical operation list, e.g. for the caller to
// hand to the journal before Run executes them.
func (t *Transaction) Operations() []Operation {
	ops := make([]Operation, len(t.steps))
	for i, s := range t.steps {
		ops[i] = s.op
	}
	return ops
}

// Manager issues transaction ids and runs transactions under a
// wall-clock timeout.
type Manager struct {
	mu      sync.Mutex
	nextID  int64
	timeout time.Duration
	log     zerolog.Logger
}

// NewManager returns a Manager whose Run calls abort after timeout
// (the zero value defaults to 5s).
func NewManager(timeout time.Duration, log zerolog.Logger) *Manager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{timeout: timeout, log: log}
}

// Begin allocates a new Transaction with the next id.
func (m *Manager) Begin() *Transaction {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()
	return &Transaction{ID: id, log: m.log}
}

// Run executes t's operations in order within m's timeout. On success,
// every lock is released. On failure (operation error or timeout), the
// undo closure of every added step runs, in reverse order, whether or
// not that step's apply ran, and all locks are released exactly once
// before Run returns.
//
// ErrDeadlock is returned (wrapped) if the timeout elapses
// before execute finishes; any other operation error is returned
// wrapped in ErrAborted.
func (m *Manager) Run(ctx context.Context, t *Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	// execute() runs on its own goroutine so the timeout can fire without
	// waiting for it. This bounds how long the caller waits but does not
	// forcibly stop operations already in flight — the undo closures are
	// expected to be safe to run even if the corresponding apply is still
	// executing.
	done := make(chan error, 1)
	go func() {
		done <- t.execute()
	}()

	select {
	case err := <-done:
		if err != nil {
			t.rollback()
			t.releaseLocks()
			m.log.Error().Int64("txn", t.ID).Err(err).Msg("transaction aborted")
			return fmt.Errorf("%w: %v", ErrAborted, err)
		}
		t.releaseLocks()
		m.log.Info().Int64("txn", t.ID).Msg("transaction committed")
		return nil

	case <-ctx.Done():
		t.rollback()
		t.releaseLocks()
		m.log.Warn().Int64("txn", t.ID).Msg("transaction timed out, treating as deadlock")
		return fmt.Errorf("%w: transaction %d", ErrDeadlock, t.ID)
	}
}
