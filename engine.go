package doxstorr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ha1tch/doxstorr/dlog"
	"github.com/ha1tch/doxstorr/internal/blockstore"
	"github.com/ha1tch/doxstorr/internal/docstore"
	"github.com/ha1tch/doxstorr/internal/index"
	"github.com/ha1tch/doxstorr/internal/journal"
	"github.com/ha1tch/doxstorr/internal/maintenance"
	"github.com/ha1tch/doxstorr/internal/rwlock"
	"github.com/ha1tch/doxstorr/internal/schema"
	"github.com/ha1tch/doxstorr/internal/txn"
)

// Engine is the embedded document database: it wires every
// subcomponent named in the component design (three block-size
// classes, the shared pointer table, the document and collection
// stores, the secondary-index manager, the write-ahead journal, and
// the transaction manager) behind the public operations below.
type Engine struct {
	cfg  Config
	log  zerolog.Logger
	root *os.Root

	pool   *blockstore.Pool
	blocks [3]*blockstore.Store // small, medium, large
	ptrs   *blockstore.PointerTable

	documents   *docstore.Store
	collections *collectionStore

	indexes *index.Manager
	jrn     *journal.Journal
	txns    *txn.Manager
	maint   *maintenance.Maintenance

	docLocks  *rwlock.KeyLocks[int64]
	collLocks *rwlock.KeyLocks[int64]

	closeOnce sync.Once
}

// Open builds every subcomponent (the three block stores, the
// document and collection stores, all run concurrently via
// golang.org/x/sync/errgroup to fan out independent I/O), then
// replays the write-ahead journal before returning a ready Engine.
func Open(cfg Config) (*Engine, error) {
	const op = "open"
	if cfg.DataDir == "" {
		return nil, newErr(CategoryConfiguration, op, errors.New("data dir is required"))
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = 1000
	}
	if cfg.BlockWorkers <= 0 {
		cfg.BlockWorkers = runtime.NumCPU()
	}
	if cfg.TransactionTimeout <= 0 {
		cfg.TransactionTimeout = 5 * time.Second
	}
	log := cfg.Logger

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, newErr(CategoryStorage, op, err)
	}
	root, err := os.OpenRoot(cfg.DataDir)
	if err != nil {
		return nil, newErr(CategoryStorage, op, err)
	}

	pool := blockstore.NewPool(cfg.BlockWorkers)

	var small, medium, large *blockstore.Store
	var documents, collectionsRaw *docstore.Store

	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() (err error) {
		small, err = blockstore.Open(root, "small_blocks.bin", blockstore.SmallBlockSize, pool)
		return err
	})
	g.Go(func() (err error) {
		medium, err = blockstore.Open(root, "medium_blocks.bin", blockstore.MediumBlockSize, pool)
		return err
	})
	g.Go(func() (err error) {
		large, err = blockstore.Open(root, "large_blocks.bin", blockstore.LargeBlockSize, pool)
		return err
	})
	g.Go(func() (err error) {
		documents, err = docstore.Open(filepath.Join(cfg.DataDir, "documents.json"), cfg.CacheCapacity, dlog.Component(log, "docstore"))
		return err
	})
	g.Go(func() (err error) {
		collectionsRaw, err = docstore.Open(filepath.Join(cfg.DataDir, "collections.json"), cfg.CacheCapacity, dlog.Component(log, "collections"))
		return err
	})
	if err := g.Wait(); err != nil {
		pool.Close()
		return nil, newErr(CategoryStorage, op, err)
	}

	collections, err := newCollectionStore(collectionsRaw)
	if err != nil {
		return nil, newErr(CategoryStorage, op, err)
	}

	idxMgr := index.NewManager(cfg.IndexConfig)
	idxMgr.Open()

	jrn, err := journal.Open(filepath.Join(cfg.DataDir, "journal.log"))
	if err != nil {
		return nil, newErr(CategoryStorage, op, err)
	}

	e := &Engine{
		cfg:         cfg,
		log:         log,
		root:        root,
		pool:        pool,
		blocks:      [3]*blockstore.Store{small, medium, large},
		ptrs:        blockstore.NewPointerTable(),
		documents:   documents,
		collections: collections,
		indexes:     idxMgr,
		jrn:         jrn,
		txns:        txn.NewManager(cfg.TransactionTimeout, dlog.Component(log, "txn")),
		docLocks:    rwlock.NewKeyLocks[int64](),
		collLocks:   rwlock.NewKeyLocks[int64](),
	}
	e.maint = maintenance.New(e, e, e, dlog.Component(log, "maintenance"))

	if err := e.recoverJournal(); err != nil {
		return nil, newErr(CategoryStorage, op, err)
	}
	return e, nil
}

// Close flushes both snapshot files, drains the index manager's async
// queue, and closes every block store and the journal.
func (e *Engine) Close() error {
	var firstErr error
	e.closeOnce.Do(func() {
		record := func(err error) {
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		record(e.documents.Save())
		record(e.documents.Close())
		record(e.collections.store.Save())
		record(e.collections.store.Close())
		record(e.indexes.Close())
		record(e.jrn.Close())
		for _, b := range e.blocks {
			record(b.Close())
		}
		e.pool.Close()
	})
	return firstErr
}

// blockPointerOffset maps a zero-based blockstore.PointerTable entry id
// onto a docstore.Document.BlockPointer, where 0 is reserved to mean
// "no block storage used".
const blockPointerOffset = 1

func (e *Engine) selectBlockStore(size int) (int, *blockstore.Store) {
	switch {
	case size <= blockstore.SmallBlockSize:
		return 0, e.blocks[0]
	case size <= blockstore.MediumBlockSize:
		return 1, e.blocks[1]
	default:
		return 2, e.blocks[2]
	}
}

func (e *Engine) writeBlocks(store *blockstore.Store, entryID, storeID int, data []byte) error {
	chunk := store.BlockSize()
	for offset := 0; offset < len(data); offset += chunk {
		end := offset + chunk
		if end > len(data) {
			end = len(data)
		}
		blockID, err := store.Allocate()
		if err != nil {
			return err
		}
		if err := store.Write(blockID, data[offset:end]); err != nil {
			return err
		}
		if err := e.ptrs.AddPointer(entryID, blockstore.Pointer{StoreID: storeID, BlockID: blockID}); err != nil {
			return err
		}
	}
	if len(data) == 0 {
		// zero-length payloads still need one allocated, empty block so a
		// later read finds an entry rather than an empty pointer list.
		blockID, err := store.Allocate()
		if err != nil {
			return err
		}
		return e.ptrs.AddPointer(entryID, blockstore.Pointer{StoreID: storeID, BlockID: blockID})
	}
	return nil
}

func (e *Engine) readBlocks(entryID int) ([]byte, error) {
	pointers, err := e.ptrs.GetPointers(entryID)
	if err != nil {
		return nil, err
	}
	var out []byte
	for _, p := range pointers {
		raw, err := e.blocks[p.StoreID].Read(p.BlockID)
		if err != nil {
			return nil, err
		}
		out = append(out, raw...)
	}
	return out, nil
}

func (e *Engine) freeBlocks(entryID int) error {
	pointers, err := e.ptrs.GetPointers(entryID)
	if err != nil {
		return err
	}
	for _, p := range pointers {
		if err := e.blocks[p.StoreID].Free(p.BlockID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) readDocumentData(doc docstore.Document) (any, error) {
	if doc.BlockPointer == 0 {
		return doc.InlineData, nil
	}
	raw, err := e.readBlocks(int(doc.BlockPointer) - blockPointerOffset)
	if err != nil {
		return nil, fmt.Errorf("read blocks: %w", err)
	}
	if int64(len(raw)) > doc.Size {
		raw = raw[:doc.Size]
	}
	if doc.ContentHash != "" && contentHash(raw) != doc.ContentHash {
		return nil, fmt.Errorf("content hash mismatch: block storage for this document is corrupted")
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document payload: %w", err)
	}
	return data, nil
}

func (e *Engine) indexName(collectionName, field string) string {
	return collectionName + "_" + field
}

func (e *Engine) wrapTxnErr(op string, err error) error {
	if errors.Is(err, txn.ErrDeadlock) {
		return newErr(CategoryTransaction, op, fmt.Errorf("%w: %v", ErrDeadlockDetected, err))
	}
	return newErr(CategoryTransaction, op, fmt.Errorf("%w: %v", ErrTransactionAborted, err))
}

// CreateCollection registers a named collection, optionally with a
// schema (enforced on every future AddDocument/UpdateDocument when
// enforceSchema is true), and creates one secondary index per schema
// field — a REF index for TypeRef fields when ref indexing is enabled,
// a keyed index otherwise.
func (e *Engine) CreateCollection(name string, fields map[string]schema.FieldDefinition, foreignKeys map[string]schema.ForeignKey, enforceSchema bool) (int64, error) {
	const op = "create_collection"
	if _, err := e.collections.GetByName(name); err == nil {
		return 0, newErr(CategoryAlreadyExists, op, fmt.Errorf("collection %q already exists", name))
	}

	var def *schema.Definition
	if fields != nil {
		def = schema.New(fields, foreignKeys)
	}
	now := time.Now().Unix()
	coll := Collection{
		Name:          name,
		Schema:        def,
		ForeignKeys:   foreignKeys,
		EnforceSchema: enforceSchema,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	id, err := e.collections.Create(coll)
	if err != nil {
		return 0, newErr(CategoryStorage, op, err)
	}

	if def != nil {
		for field, fd := range def.Fields {
			idxName := e.indexName(name, field)
			var createErr error
			if fd.Type == schema.TypeRef && e.cfg.IndexConfig.EnableRefIndexing {
				createErr = e.indexes.CreateRefIndex(idxName)
			} else {
				createErr = e.indexes.CreateIndex(idxName, false, nil)
			}
			if createErr != nil {
				e.log.Warn().Err(createErr).Str("index", idxName).Msg("failed to create field index")
			}
		}
	}
	return id, nil
}

// GetCollection returns the collection descriptor for id.
func (e *Engine) GetCollection(id int64) (Collection, error) {
	c, err := e.collections.Get(id)
	if err != nil {
		return Collection{}, newErr(CategoryNotFound, "get_collection", err)
	}
	return c, nil
}

// GetCollectionByName returns the collection descriptor registered
// under name.
func (e *Engine) GetCollectionByName(name string) (Collection, error) {
	c, err := e.collections.GetByName(name)
	if err != nil {
		return Collection{}, newErr(CategoryNotFound, "get_collection_by_name", err)
	}
	return c, nil
}

// ListCollections returns every registered collection.
func (e *Engine) ListCollections() ([]Collection, error) {
	cs, err := e.collections.List()
	if err != nil {
		return nil, newErr(CategoryStorage, "list_collections", err)
	}
	return cs, nil
}

func (e *Engine) indexFields(collectionID int64, docID int64, data map[string]any, insert bool) {
	coll, err := e.collections.Get(collectionID)
	if err != nil || coll.Schema == nil {
		return
	}
	for field := range coll.Schema.Fields {
		value, ok := data[field]
		if !ok {
			continue
		}
		idxName := e.indexName(coll.Name, field)
		key := fmt.Sprint(value)
		var idxErr error
		if insert {
			idxErr = e.indexes.Insert(idxName, key, docID)
		} else {
			idxErr = e.indexes.Delete(idxName, key)
		}
		if idxErr != nil {
			e.log.Debug().Err(idxErr).Str("index", idxName).Msg("index update skipped")
		}
	}
}

// AddDocument validates data against collectionID's schema (if
// enforced), persists it through the appropriately sized block store,
// updates secondary indexes, and logs the operation to the write-ahead
// journal before the transaction commits.
func (e *Engine) AddDocument(collectionID int64, data map[string]any) (int64, error) {
	const op = "add_document"
	coll, err := e.collections.Get(collectionID)
	if err != nil {
		return 0, newErr(CategoryNotFound, op, err)
	}
	if coll.EnforceSchema && coll.Schema != nil {
		if err := coll.Schema.Validate(data, e.lookup()); err != nil {
			return 0, newErr(CategoryValidation, op, err)
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return 0, newErr(CategoryStorage, op, err)
	}

	if err := e.jrn.LogOperation(op, journalPayload{CollectionID: collectionID, Data: data}); err != nil {
		e.log.Warn().Err(err).Msg("failed to append journal entry")
	}

	storeID, store := e.selectBlockStore(len(raw))
	entryID := e.ptrs.CreateEntry()
	if err := e.writeBlocks(store, entryID, storeID, raw); err != nil {
		return 0, newErr(CategoryStorage, op, err)
	}

	tx := e.txns.Begin()
	var docID int64
	lock := keyLocker{e.collLocks, collectionID}
	tx.AddOperation(
		txn.Operation{Type: txn.OpAdd, CollectionID: collectionID, Data: data},
		func() error {
			id, err := e.documents.Create(docstore.Document{
				CollectionID: collectionID,
				BlockPointer: int64(entryID + blockPointerOffset),
				Size:         int64(len(raw)),
				ContentHash:  contentHash(raw),
			})
			if err != nil {
				return err
			}
			docID = id
			e.indexFields(collectionID, docID, data, true)
			return nil
		},
		func() error {
			if docID != 0 {
				_ = e.documents.Delete(docID)
				e.indexFields(collectionID, docID, data, false)
			}
			return e.freeBlocks(entryID)
		},
		lock,
	)

	if err := e.txns.Run(context.Background(), tx); err != nil {
		return 0, e.wrapTxnErr(op, err)
	}
	return docID, nil
}

// GetDocument returns the stored document for id, resolving its body
// either from inline storage or through the block store chain.
func (e *Engine) GetDocument(id int64) (Document, error) {
	const op = "get_document"
	doc, err := e.documents.Get(id)
	if err != nil {
		return Document{}, newErr(CategoryNotFound, op, err)
	}
	data, err := e.readDocumentData(doc)
	if err != nil {
		return Document{}, newErr(CategoryStorage, op, err)
	}
	return Document{
		ID:           doc.ID,
		CollectionID: doc.CollectionID,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		Data:         data,
		BlockPointer: doc.BlockPointer,
		Size:         doc.Size,
	}, nil
}

// UpdateDocument replaces id's body with data, validating against its
// collection's schema when enforced. The previous block storage is
// only freed after the transaction commits, so a rollback can restore
// the original pointer without having to rewrite the old payload.
func (e *Engine) UpdateDocument(id int64, data map[string]any) error {
	const op = "update_document"
	existing, err := e.documents.Get(id)
	if err != nil {
		return newErr(CategoryNotFound, op, err)
	}
	oldData, err := e.readDocumentData(existing)
	if err != nil {
		return newErr(CategoryStorage, op, err)
	}

	coll, err := e.collections.Get(existing.CollectionID)
	if err == nil && coll.EnforceSchema && coll.Schema != nil {
		if err := coll.Schema.Validate(data, e.lookup()); err != nil {
			return newErr(CategoryValidation, op, err)
		}
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return newErr(CategoryStorage, op, err)
	}
	if err := e.jrn.LogOperation(op, journalPayload{CollectionID: existing.CollectionID, DocID: id, Data: data}); err != nil {
		e.log.Warn().Err(err).Msg("failed to append journal entry")
	}

	storeID, store := e.selectBlockStore(len(raw))
	newEntryID := e.ptrs.CreateEntry()
	if err := e.writeBlocks(store, newEntryID, storeID, raw); err != nil {
		return newErr(CategoryStorage, op, err)
	}

	tx := e.txns.Begin()
	lock := keyLocker{e.docLocks, id}
	oldMap, _ := oldData.(map[string]any)
	tx.AddOperation(
		txn.Operation{Type: txn.OpUpdate, CollectionID: existing.CollectionID, DocID: id, Data: data},
		func() error {
			if err := e.documents.Update(id, docstore.Document{
				CollectionID: existing.CollectionID,
				BlockPointer: int64(newEntryID + blockPointerOffset),
				Size:         int64(len(raw)),
				ContentHash:  contentHash(raw),
			}); err != nil {
				return err
			}
			if oldMap != nil {
				e.indexFields(existing.CollectionID, id, oldMap, false)
			}
			e.indexFields(existing.CollectionID, id, data, true)
			return nil
		},
		func() error {
			_ = e.documents.Update(id, existing)
			e.indexFields(existing.CollectionID, id, data, false)
			if oldMap != nil {
				e.indexFields(existing.CollectionID, id, oldMap, true)
			}
			return e.freeBlocks(newEntryID)
		},
		lock,
	)

	if err := e.txns.Run(context.Background(), tx); err != nil {
		return e.wrapTxnErr(op, err)
	}
	if existing.BlockPointer != 0 {
		if err := e.freeBlocks(int(existing.BlockPointer) - blockPointerOffset); err != nil {
			e.log.Warn().Err(err).Msg("failed to free superseded blocks")
		}
	}
	return nil
}

// DeleteDocument removes id, freeing its block storage (if any) and
// its index entries once the transaction commits.
func (e *Engine) DeleteDocument(id int64) error {
	const op = "delete_document"
	existing, err := e.documents.Get(id)
	if err != nil {
		return newErr(CategoryNotFound, op, err)
	}
	data, err := e.readDocumentData(existing)
	if err != nil {
		return newErr(CategoryStorage, op, err)
	}
	if err := e.jrn.LogOperation(op, journalPayload{CollectionID: existing.CollectionID, DocID: id}); err != nil {
		e.log.Warn().Err(err).Msg("failed to append journal entry")
	}

	tx := e.txns.Begin()
	lock := keyLocker{e.docLocks, id}
	tx.AddOperation(
		txn.Operation{Type: txn.OpDelete, CollectionID: existing.CollectionID, DocID: id},
		func() error {
			if err := e.documents.Delete(id); err != nil {
				return err
			}
			if m, ok := data.(map[string]any); ok {
				e.indexFields(existing.CollectionID, id, m, false)
			}
			return nil
		},
		func() error {
			if err := e.documents.CreateWithID(id, existing); err != nil {
				return err
			}
			if m, ok := data.(map[string]any); ok {
				e.indexFields(existing.CollectionID, id, m, true)
			}
			return nil
		},
		lock,
	)

	if err := e.txns.Run(context.Background(), tx); err != nil {
		return e.wrapTxnErr(op, err)
	}
	if existing.BlockPointer != 0 {
		if err := e.freeBlocks(int(existing.BlockPointer) - blockPointerOffset); err != nil {
			e.log.Warn().Err(err).Msg("failed to free document blocks")
		}
	}
	return nil
}

// QueryDocuments returns every document in collectionID for which
// filter returns true (filter receives the fully resolved Document,
// body included).
func (e *Engine) QueryDocuments(collectionID int64, filter func(Document) bool) ([]Document, error) {
	const op = "query_documents"
	docs, err := e.documents.ListByCollection(collectionID)
	if err != nil {
		return nil, newErr(CategoryQuery, op, err)
	}
	var result []Document
	for _, doc := range docs {
		data, err := e.readDocumentData(doc)
		if err != nil {
			return nil, newErr(CategoryQuery, op, err)
		}
		d := Document{
			ID:           doc.ID,
			CollectionID: doc.CollectionID,
			CreatedAt:    doc.CreatedAt,
			UpdatedAt:    doc.UpdatedAt,
			Data:         data,
			BlockPointer: doc.BlockPointer,
			Size:         doc.Size,
		}
		if filter == nil || filter(d) {
			result = append(result, d)
		}
	}
	return result, nil
}

// TextSearch runs a text-index query across the tokens in query (AND
// semantics), returning matching document ids.
func (e *Engine) TextSearch(indexName, query string) ([]int64, error) {
	ids, err := e.indexes.TextSearch(indexName, query)
	if err != nil {
		return nil, newErr(CategoryIndex, "text_search", err)
	}
	return ids, nil
}

// CreateTextIndex creates a named text index, for callers that want
// full-text search over a field the schema doesn't already index.
func (e *Engine) CreateTextIndex(name string) error {
	if err := e.indexes.CreateTextIndex(name); err != nil {
		return newErr(CategoryIndex, "create_text_index", err)
	}
	return nil
}

// IndexRegistry exposes the Prometheus registry backing index usage
// metrics, for wiring into an HTTP /metrics handler. Returns nil when
// usage-statistics tracking is disabled.
func (e *Engine) IndexRegistry() *prometheus.Registry {
	return e.indexes.Registry()
}

// IndexUsageStatistics returns per-index access counts and average
// query latency, when usage-statistics tracking is enabled.
func (e *Engine) IndexUsageStatistics() (map[string]index.UsageStatistic, error) {
	stats, err := e.indexes.UsageStatistics()
	if err != nil {
		return nil, newErr(CategoryIndex, "index_usage_statistics", err)
	}
	return stats, nil
}

// RunMaintenance runs the integrity-check / rebuild-indexes /
// compact-data pass.
func (e *Engine) RunMaintenance() error {
	if err := e.maint.RunMaintenance(); err != nil {
		return newErr(CategoryStorage, "run_maintenance", err)
	}
	return nil
}

// preparedStep is one operation's txn.Operation plus its apply/undo
// closures and the lock it needs, built before any lock is taken so a
// later operation's validation failure can't leave an earlier one's
// lock held with nothing to release it (AddOperation locks the moment
// it is called, so every preparedStep is only handed to AddOperation
// once the whole batch is known to be valid).
type preparedStep struct {
	op    txn.Operation
	apply func() error
	undo  func() error
	lock  sync.Locker
}

// AtomicTransactionExecute runs every operation in ops as one
// transaction: all apply, or the already-applied prefix is rolled back
// and no operation takes effect. Per-operation block I/O (writing a new
// body, reading the old one) happens before the transaction's steps are
// queued, exactly as the single-operation methods above do it, so the
// transaction itself only ever touches the already-durable block data
// and the in-memory document/index state.
func (e *Engine) AtomicTransactionExecute(ops []Operation) ([]OperationResult, error) {
	const op = "atomic_transaction_execute"
	results := make([]OperationResult, len(ops))
	steps := make([]preparedStep, 0, len(ops))
	var allocatedEntries []int

	fail := func(err error) ([]OperationResult, error) {
		for _, id := range allocatedEntries {
			if freeErr := e.freeBlocks(id); freeErr != nil {
				e.log.Warn().Err(freeErr).Msg("failed to free blocks for an abandoned transaction operation")
			}
		}
		return nil, err
	}

	for i, o := range ops {
		switch o.Type {
		case OpAdd:
			coll, err := e.collections.Get(o.CollectionID)
			if err != nil {
				return fail(newErr(CategoryNotFound, op, err))
			}
			if coll.EnforceSchema && coll.Schema != nil {
				if err := coll.Schema.Validate(o.Data, e.lookup()); err != nil {
					return fail(newErr(CategoryValidation, op, err))
				}
			}
			raw, err := json.Marshal(o.Data)
			if err != nil {
				return fail(newErr(CategoryStorage, op, err))
			}
			storeID, store := e.selectBlockStore(len(raw))
			entryID := e.ptrs.CreateEntry()
			if err := e.writeBlocks(store, entryID, storeID, raw); err != nil {
				return fail(newErr(CategoryStorage, op, err))
			}
			allocatedEntries = append(allocatedEntries, entryID)
			steps = append(steps, preparedStep{
				op: txn.Operation{Type: txn.OpAdd, CollectionID: o.CollectionID, Data: o.Data},
				apply: func() error {
					id, err := e.documents.Create(docstore.Document{
						CollectionID: o.CollectionID,
						BlockPointer: int64(entryID + blockPointerOffset),
						Size:         int64(len(raw)),
						ContentHash:  contentHash(raw),
					})
					if err != nil {
						return err
					}
					results[i] = OperationResult{Success: true, DocID: id}
					e.indexFields(o.CollectionID, id, o.Data, true)
					return nil
				},
				undo: func() error {
					if results[i].DocID != 0 {
						_ = e.documents.Delete(results[i].DocID)
						e.indexFields(o.CollectionID, results[i].DocID, o.Data, false)
					}
					return e.freeBlocks(entryID)
				},
				lock: keyLocker{e.collLocks, o.CollectionID},
			})

		case OpUpdate:
			existing, err := e.documents.Get(o.DocID)
			if err != nil {
				return fail(newErr(CategoryNotFound, op, err))
			}
			oldData, _ := e.readDocumentData(existing)
			raw, err := json.Marshal(o.Data)
			if err != nil {
				return fail(newErr(CategoryStorage, op, err))
			}
			storeID, store := e.selectBlockStore(len(raw))
			entryID := e.ptrs.CreateEntry()
			if err := e.writeBlocks(store, entryID, storeID, raw); err != nil {
				return fail(newErr(CategoryStorage, op, err))
			}
			allocatedEntries = append(allocatedEntries, entryID)
			oldMap, _ := oldData.(map[string]any)
			steps = append(steps, preparedStep{
				op: txn.Operation{Type: txn.OpUpdate, CollectionID: o.CollectionID, DocID: o.DocID, Data: o.Data},
				apply: func() error {
					if err := e.documents.Update(o.DocID, docstore.Document{
						CollectionID: existing.CollectionID,
						BlockPointer: int64(entryID + blockPointerOffset),
						Size:         int64(len(raw)),
						ContentHash:  contentHash(raw),
					}); err != nil {
						return err
					}
					if oldMap != nil {
						e.indexFields(existing.CollectionID, o.DocID, oldMap, false)
					}
					e.indexFields(existing.CollectionID, o.DocID, o.Data, true)
					results[i] = OperationResult{Success: true, DocID: o.DocID}
					return nil
				},
				undo: func() error {
					_ = e.documents.Update(o.DocID, existing)
					e.indexFields(existing.CollectionID, o.DocID, o.Data, false)
					if oldMap != nil {
						e.indexFields(existing.CollectionID, o.DocID, oldMap, true)
					}
					return e.freeBlocks(entryID)
				},
				lock: keyLocker{e.docLocks, o.DocID},
			})

		case OpDelete:
			existing, err := e.documents.Get(o.DocID)
			if err != nil {
				return fail(newErr(CategoryNotFound, op, err))
			}
			data, _ := e.readDocumentData(existing)
			steps = append(steps, preparedStep{
				op: txn.Operation{Type: txn.OpDelete, CollectionID: o.CollectionID, DocID: o.DocID},
				apply: func() error {
					if err := e.documents.Delete(o.DocID); err != nil {
						return err
					}
					if m, ok := data.(map[string]any); ok {
						e.indexFields(existing.CollectionID, o.DocID, m, false)
					}
					results[i] = OperationResult{Success: true, DocID: o.DocID}
					return nil
				},
				undo: func() error {
					if err := e.documents.CreateWithID(o.DocID, existing); err != nil {
						return err
					}
					if m, ok := data.(map[string]any); ok {
						e.indexFields(existing.CollectionID, o.DocID, m, true)
					}
					return nil
				},
				lock: keyLocker{e.docLocks, o.DocID},
			})

		default:
			return fail(newErr(CategoryValidation, op, fmt.Errorf("unknown operation type %d", o.Type)))
		}
	}

	if err := e.jrn.LogOperation(op, ops); err != nil {
		e.log.Warn().Err(err).Msg("failed to append journal entry")
	}

	tx := e.txns.Begin()
	for _, s := range steps {
		tx.AddOperation(s.op, s.apply, s.undo, s.lock)
	}
	if err := e.txns.Run(context.Background(), tx); err != nil {
		return nil, e.wrapTxnErr(op, err)
	}
	return results, nil
}

// engineLookup adapts Engine to schema.Lookup without handing the
// validator a pointer back into the full facade.
type engineLookup struct{ e *Engine }

func (e *Engine) lookup() schema.Lookup { return engineLookup{e} }

func (l engineLookup) GetDocument(id int64) (any, error) {
	doc, err := l.e.GetDocument(id)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

func (l engineLookup) GetDocumentByField(collection, field string, value any) (any, error) {
	coll, err := l.e.collections.GetByName(collection)
	if err != nil {
		return nil, err
	}
	docs, err := l.e.documents.ListByCollection(coll.ID)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		data, err := l.e.readDocumentData(d)
		if err != nil {
			continue
		}
		m, ok := data.(map[string]any)
		if !ok {
			continue
		}
		if fmt.Sprint(m[field]) == fmt.Sprint(value) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("no document in %q with %s = %v", collection, field, value)
}
