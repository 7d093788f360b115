// Package maintenance is a thin pass-through over the engine's
// internal components: index rebuild, a minimal document/block
// integrity check, and a storage compaction hook. CheckIntegrity only
// verifies one invariant — every stored document's block pointer, if
// set, resolves to a non-empty pointer list — and CompactData is a
// documented stub left for a future on-disk compaction pass.
package maintenance

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DocumentLister is the narrow capability CheckIntegrity needs: every
// stored document id and its block pointer (0 meaning none).
type DocumentLister interface {
	AllBlockPointers() map[int64]int64
}

// PointerResolver reports whether a block pointer entry id resolves to
// at least one stored block.
type PointerResolver interface {
	HasPointers(entryID int64) bool
}

// IndexRebuilder is the narrow capability RebuildIndexes needs.
type IndexRebuilder interface {
	ClearIndexes()
	RebuildFrom(docs DocumentLister) error
}

// Maintenance runs the engine's housekeeping passes.
type Maintenance struct {
	docs      DocumentLister
	pointers  PointerResolver
	indexes   IndexRebuilder
	log       zerolog.Logger
}

// New returns a Maintenance pass wired to the given collaborators.
func New(docs DocumentLister, pointers PointerResolver, indexes IndexRebuilder, log zerolog.Logger) *Maintenance {
	return &Maintenance{docs: docs, pointers: pointers, indexes: indexes, log: log}
}

// CheckIntegrity verifies that every document's block pointer, when
// set, resolves to at least one stored block. Returns the ids that
// fail this check (empty slice means the store is consistent).
func (m *Maintenance) CheckIntegrity() ([]int64, error) {
	m.log.Info().Msg("starting integrity check")
	var broken []int64
	for docID, entryID := range m.docs.AllBlockPointers() {
		if entryID == 0 {
			continue
		}
		if !m.pointers.HasPointers(entryID) {
			broken = append(broken, docID)
		}
	}
	if len(broken) > 0 {
		m.log.Warn().Ints64("doc_ids", broken).Msg("integrity check found documents with unresolved block pointers")
	}
	return broken, nil
}

// CompactData is left as a documented stub: storage compaction (reclaiming
// space from freed blocks) is a larger on-disk rewrite that has no
// dependency on journal replay or index rebuilding.
func (m *Maintenance) CompactData() error {
	m.log.Info().Msg("compaction requested but is out of scope; no-op")
	return nil
}

// RebuildIndexes clears and rebuilds every index from the document
// store; RunMaintenance calls it when CheckIntegrity reports broken
// documents.
func (m *Maintenance) RebuildIndexes() error {
	m.log.Info().Msg("rebuilding indexes")
	m.indexes.ClearIndexes()
	if err := m.indexes.RebuildFrom(m.docs); err != nil {
		return fmt.Errorf("maintenance: rebuild indexes: %w", err)
	}
	m.log.Info().Msg("indexes rebuilt")
	return nil
}

// RunMaintenance runs the full sequence: integrity check, rebuild on
// failure, then compaction.
func (m *Maintenance) RunMaintenance() error {
	m.log.Info().Msg("running maintenance tasks")
	broken, err := m.CheckIntegrity()
	if err != nil {
		return err
	}
	if len(broken) > 0 {
		m.log.Warn().Msg("integrity check failed, rebuilding indexes")
		if err := m.RebuildIndexes(); err != nil {
			return err
		}
	}
	if err := m.CompactData(); err != nil {
		return err
	}
	m.log.Info().Msg("maintenance tasks completed")
	return nil
}
