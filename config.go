package doxstorr

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ha1tch/doxstorr/internal/index"
)

// Config controls how Open builds an Engine: where its files live, how
// large its caches and worker pool are, which index features are on,
// and how long a transaction may run before its wall-clock timeout
// treats it as a deadlock.
type Config struct {
	// DataDir is the sandboxed directory every engine file lives under
	// (snapshots, block files, bitmaps, journal). Created if absent.
	DataDir string

	// CacheCapacity bounds the document and collection LRU caches.
	// Defaults to 1000 when zero.
	CacheCapacity int

	// BlockWorkers bounds the block store's worker pool. Defaults to
	// runtime.NumCPU() when zero.
	BlockWorkers int

	// IndexConfig controls which secondary-index features the engine's
	// index.Manager exposes.
	IndexConfig index.Config

	// TransactionTimeout bounds how long AtomicTransactionExecute (and
	// every other mutating operation, each of which runs as a
	// single-step transaction) waits before its deadlock backstop
	// fires. Defaults to 5 seconds when zero.
	TransactionTimeout time.Duration

	// Logger is the root logger every subcomponent derives a
	// component-tagged child from. Defaults to a no-op logger.
	Logger zerolog.Logger
}
