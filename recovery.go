package doxstorr

import (
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/ha1tch/doxstorr/internal/journal"
	"github.com/ha1tch/doxstorr/internal/maintenance"
)

// journalPayload is the shape every journal entry's Data field decodes
// to: enough to replay the mutation idempotently after a crash.
type journalPayload struct {
	CollectionID int64          `json:"collection_id"`
	DocID        int64          `json:"doc_id,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// recoverJournal replays the entries earlier runs left in the journal
// (this is the only place the journal is cleared), then clears it.
// Replay is best-effort: add_document and update_document entries are
// skipped, and delete_document deletes the document again if it is
// still present in the snapshot.
func (e *Engine) recoverJournal() error {
	entries, err := e.jrn.Recover()
	if err != nil {
		return fmt.Errorf("recover journal: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}
	e.log.Warn().Int("entries", len(entries)).Msg("replaying journal from a previous run")
	for _, entry := range entries {
		if err := e.replayJournalEntry(entry); err != nil {
			e.log.Error().Err(err).Str("operation", entry.Operation).Msg("failed to replay journal entry")
		}
	}
	return e.jrn.Clear()
}

func (e *Engine) replayJournalEntry(entry journal.Entry) error {
	switch entry.Operation {
	case "add_document":
		// add_document is logged before the document id is assigned, so
		// there is nothing to reconcile it against here; a crash between
		// the journal write and the document store commit just leaves the
		// add never having happened, which is a safe outcome. Left for
		// RunMaintenance's integrity check to flag anything it implies.
		return nil
	case "update_document":
		// Same reasoning as add_document: the update itself is already
		// durable in the document snapshot and block files by the time
		// this entry could be replayed, or it never happened at all.
		return nil
	case "delete_document":
		var payload journalPayload
		if err := decodeJournalData(entry.Data, &payload); err != nil {
			return err
		}
		if payload.DocID == 0 {
			return nil
		}
		if _, err := e.documents.Get(payload.DocID); err != nil {
			return nil // already gone
		}
		return e.documents.Delete(payload.DocID)
	default:
		return nil
	}
}

func decodeJournalData(data any, out *journalPayload) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// AllBlockPointers implements maintenance.DocumentLister: the raw
// (offset-by-one) BlockPointer value for every stored document, 0
// meaning no block storage was used.
func (e *Engine) AllBlockPointers() map[int64]int64 {
	result := make(map[int64]int64)
	colls, err := e.collections.List()
	if err != nil {
		return result
	}
	for _, c := range colls {
		docs, err := e.documents.ListByCollection(c.ID)
		if err != nil {
			continue
		}
		for _, d := range docs {
			result[d.ID] = d.BlockPointer
		}
	}
	return result
}

// HasPointers implements maintenance.PointerResolver: entryID here is
// the raw (offset-by-one) BlockPointer value, matching AllBlockPointers.
func (e *Engine) HasPointers(entryID int64) bool {
	if entryID == 0 {
		return false
	}
	pointers, err := e.ptrs.GetPointers(int(entryID - blockPointerOffset))
	return err == nil && len(pointers) > 0
}

// ClearIndexes implements maintenance.IndexRebuilder.
func (e *Engine) ClearIndexes() {
	e.indexes.Clear()
}

// RebuildFrom implements maintenance.IndexRebuilder. It ignores the
// supplied DocumentLister (that capability only exposes block-pointer
// presence, not the field data secondary indexes need) and instead
// walks the engine's own collection and document stores directly,
// since in this wiring the DocumentLister passed in is always the
// Engine itself.
func (e *Engine) RebuildFrom(_ maintenance.DocumentLister) error {
	colls, err := e.collections.List()
	if err != nil {
		return err
	}
	for _, c := range colls {
		if c.Schema == nil {
			continue
		}
		docs, err := e.documents.ListByCollection(c.ID)
		if err != nil {
			return err
		}
		for _, d := range docs {
			data, err := e.readDocumentData(d)
			if err != nil {
				continue
			}
			m, ok := data.(map[string]any)
			if !ok {
				continue
			}
			e.indexFields(c.ID, d.ID, m, true)
		}
	}
	return nil
}
