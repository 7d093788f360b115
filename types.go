package doxstorr

import (
	"github.com/ha1tch/doxstorr/internal/schema"
)

// Document is one stored document, as spec.md §3 names it: its
// identity, owning collection, timestamps, and its payload. Every
// payload, whatever its size, is stored through the block store family
// and addressed via BlockPointer and Size; the engine does not compress
// document payloads and does not set Compressed.
type Document struct {
	ID           int64
	CollectionID int64
	CreatedAt    int64
	UpdatedAt    int64
	Compressed   bool
	Data         any
	BlockPointer int64
	Size         int64
}

// Collection is a named group of documents with an optional schema.
type Collection struct {
	ID            int64
	Name          string
	Schema        *schema.Definition
	ForeignKeys   map[string]schema.ForeignKey
	EnforceSchema bool
	DocumentCount int64
	CreatedAt     int64
	UpdatedAt     int64
}

// OperationType names one kind of change inside an atomic transaction.
type OperationType int

const (
	OpAdd OperationType = iota + 1
	OpUpdate
	OpDelete
)

// Operation describes one step of an AtomicTransactionExecute call.
type Operation struct {
	Type         OperationType
	CollectionID int64
	DocID        int64
	Data         map[string]any
}

// OperationResult is the outcome of one Operation within a transaction.
type OperationResult struct {
	Success bool
	DocID   int64
}
