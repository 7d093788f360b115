// Package docstore is the in-memory document map backing the engine's
// document and collection facades: id->Document, a JSON snapshot file
// for durability, a background compression worker for oversized
// payloads, and the reader/writer plus per-document locking the
// concurrency model requires.
//
// The in-memory map holds a typed Document record, with InlineData
// carrying whatever JSON tree the caller chose to store inline rather
// than route through block storage.
package docstore

import (
	"bytes"
	"fmt"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zlib"
	"github.com/rs/zerolog"

	"github.com/ha1tch/doxstorr/internal/cache"
	"github.com/ha1tch/doxstorr/internal/rwlock"
)

// inlineCompressionThreshold is the serialized-size cutoff above which
// a document's inline data is queued for background compression.
const inlineCompressionThreshold = 4 * 1024

// Document is one stored document: its inline data (kept in the
// snapshot directly) or a pointer into the block store family (when the
// caller chose block-level persistence for it).
type Document struct {
	ID           int64  `json:"id"`
	CollectionID int64  `json:"collection_id"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	Compressed   bool   `json:"compressed"`
	InlineData   any    `json:"data,omitempty"`
	CompressedData []byte `json:"compressed_data,omitempty"`
	BlockPointer int64  `json:"block_pointer"` // 0 = no block storage used
	Size         int64  `json:"size"`
	ContentHash  string `json:"content_hash,omitempty"` // set only when BlockPointer != 0
}

// Store is the document map: create/read/update/delete by id, plus a
// read-through cache and a background compressor for large inline
// payloads.
type Store struct {
	snapshotPath string
	log          zerolog.Logger

	rw      *rwlock.RWLock
	keys    *rwlock.KeyLocks[int64]
	cacheMu sync.Mutex
	cache   *cache.Cache[int64, Document]

	mu     sync.Mutex // guards data + nextID
	data   map[int64]Document
	nextID int64

	compressQueue chan int64
	stopCompress  chan struct{}
}

// Open loads (or creates) the snapshot file at snapshotPath and starts
// the background compression worker.
func Open(snapshotPath string, cacheCapacity int, log zerolog.Logger) (*Store, error) {
	s := &Store{
		snapshotPath:  snapshotPath,
		log:           log,
		rw:            rwlock.New(),
		keys:          rwlock.NewKeyLocks[int64](),
		cache:         cache.New[int64, Document](cacheCapacity),
		data:          make(map[int64]Document),
		nextID:        1,
		compressQueue: make(chan int64, 256),
		stopCompress:  make(chan struct{}),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	go s.processCompressionQueue()
	return s, nil
}

func (s *Store) load() error {
	raw, err := os.ReadFile(s.snapshotPath)
	if os.IsNotExist(err) {
		s.log.Warn().Str("path", s.snapshotPath).Msg("snapshot file does not exist, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("docstore: read snapshot %s: %w", s.snapshotPath, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var docs map[int64]Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return fmt.Errorf("docstore: decode snapshot %s: %w", s.snapshotPath, err)
	}
	s.data = docs
	var max int64
	for id := range docs {
		if id > max {
			max = id
		}
	}
	s.nextID = max + 1
	s.log.Info().Str("path", s.snapshotPath).Int("count", len(docs)).Msg("snapshot loaded")
	return nil
}

// Save persists the full in-memory map to the snapshot file.
func (s *Store) Save() error {
	s.mu.Lock()
	raw, err := json.Marshal(s.data)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("docstore: encode snapshot: %w", err)
	}
	if err := os.WriteFile(s.snapshotPath, raw, 0o644); err != nil {
		return fmt.Errorf("docstore: write snapshot %s: %w", s.snapshotPath, err)
	}
	return nil
}

// Create inserts document under a freshly allocated id.
func (s *Store) Create(doc Document) (int64, error) {
	s.rw.AcquireWrite()
	defer s.rw.ReleaseWrite()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	return id, s.createWithID(id, doc)
}

// CreateWithID inserts document under a caller-chosen id, failing if
// that id is already present.
func (s *Store) CreateWithID(id int64, doc Document) error {
	s.rw.AcquireWrite()
	defer s.rw.ReleaseWrite()

	s.mu.Lock()
	_, exists := s.data[id]
	s.mu.Unlock()
	if exists {
		return fmt.Errorf("docstore: document %d already exists", id)
	}
	s.mu.Lock()
	if id >= s.nextID {
		s.nextID = id + 1
	}
	s.mu.Unlock()
	return s.createWithID(id, doc)
}

func (s *Store) createWithID(id int64, doc Document) error {
	now := time.Now().Unix()
	doc.ID = id
	doc.CreatedAt = now
	doc.UpdatedAt = now

	s.keys.Lock(id)
	defer s.keys.Unlock(id)

	s.mu.Lock()
	s.data[id] = doc
	s.mu.Unlock()

	s.cacheMu.Lock()
	s.cache.Put(id, doc)
	s.cacheMu.Unlock()

	s.maybeQueueCompression(id, doc)
	return nil
}

// Get returns the document for id, preferring the cache.
func (s *Store) Get(id int64) (Document, error) {
	s.rw.AcquireRead()
	defer s.rw.ReleaseRead()

	s.cacheMu.Lock()
	if doc, ok := s.cache.Get(id); ok {
		s.cacheMu.Unlock()
		return s.decompressed(doc)
	}
	s.cacheMu.Unlock()

	s.mu.Lock()
	doc, ok := s.data[id]
	s.mu.Unlock()
	if !ok {
		return Document{}, fmt.Errorf("docstore: document %d not found", id)
	}

	s.cacheMu.Lock()
	s.cache.Put(id, doc)
	s.cacheMu.Unlock()

	return s.decompressed(doc)
}

func (s *Store) decompressed(doc Document) (Document, error) {
	if !doc.Compressed {
		return doc, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(doc.CompressedData))
	if err != nil {
		return Document{}, fmt.Errorf("docstore: decompress document %d: %w", doc.ID, err)
	}
	defer r.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return Document{}, fmt.Errorf("docstore: decompress document %d: %w", doc.ID, err)
	}
	var data any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		return Document{}, fmt.Errorf("docstore: decode decompressed document %d: %w", doc.ID, err)
	}
	doc.InlineData = data
	doc.Compressed = false
	doc.CompressedData = nil
	return doc, nil
}

// Update merges fields of updated into the stored document: InlineData,
// BlockPointer, Size and ContentHash are always replaced by updated's
// values; CollectionID, if zero, is left unchanged.
func (s *Store) Update(id int64, updated Document) error {
	s.keys.Lock(id)
	defer s.keys.Unlock(id)

	s.rw.AcquireWrite()
	defer s.rw.ReleaseWrite()

	s.mu.Lock()
	existing, ok := s.data[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("docstore: document %d not found", id)
	}
	if updated.CollectionID != 0 {
		existing.CollectionID = updated.CollectionID
	}
	existing.InlineData = updated.InlineData
	existing.Compressed = false
	existing.CompressedData = nil
	existing.BlockPointer = updated.BlockPointer
	existing.Size = updated.Size
	existing.ContentHash = updated.ContentHash
	existing.UpdatedAt = time.Now().Unix()
	s.data[id] = existing
	s.mu.Unlock()

	s.cacheMu.Lock()
	s.cache.Put(id, existing)
	s.cacheMu.Unlock()

	s.maybeQueueCompression(id, existing)
	return nil
}

// Delete removes id from the store and invalidates its cache entry.
func (s *Store) Delete(id int64) error {
	s.keys.Lock(id)
	defer s.keys.Unlock(id)

	s.rw.AcquireWrite()
	defer s.rw.ReleaseWrite()

	s.mu.Lock()
	_, ok := s.data[id]
	if ok {
		delete(s.data, id)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("docstore: document %d not found", id)
	}

	s.cacheMu.Lock()
	s.cache.Invalidate(id)
	s.cacheMu.Unlock()
	return nil
}

// ListByCollection returns every document whose CollectionID matches.
func (s *Store) ListByCollection(collectionID int64) ([]Document, error) {
	s.rw.AcquireRead()
	defer s.rw.ReleaseRead()

	s.mu.Lock()
	defer s.mu.Unlock()
	var result []Document
	for _, doc := range s.data {
		if doc.CollectionID == collectionID {
			d, err := s.decompressed(doc)
			if err != nil {
				return nil, err
			}
			result = append(result, d)
		}
	}
	return result, nil
}

func (s *Store) maybeQueueCompression(id int64, doc Document) {
	if doc.Compressed || doc.BlockPointer != 0 {
		return
	}
	raw, err := json.Marshal(doc.InlineData)
	if err != nil || len(raw) <= inlineCompressionThreshold {
		return
	}
	select {
	case s.compressQueue <- id:
	default:
		s.log.Warn().Int64("doc_id", id).Msg("compression queue full, document left uncompressed")
	}
}

func (s *Store) processCompressionQueue() {
	for {
		select {
		case <-s.stopCompress:
			return
		case id := <-s.compressQueue:
			s.compressOne(id)
		}
	}
}

func (s *Store) compressOne(id int64) {
	s.keys.Lock(id)
	defer s.keys.Unlock(id)

	s.mu.Lock()
	doc, ok := s.data[id]
	s.mu.Unlock()
	if !ok || doc.Compressed || doc.BlockPointer != 0 {
		return
	}

	raw, err := json.Marshal(doc.InlineData)
	if err != nil {
		s.log.Error().Int64("doc_id", id).Err(err).Msg("failed to marshal document for compression")
		return
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		s.log.Error().Int64("doc_id", id).Err(err).Msg("failed to compress document")
		return
	}
	if err := w.Close(); err != nil {
		s.log.Error().Int64("doc_id", id).Err(err).Msg("failed to flush compressor")
		return
	}

	doc.CompressedData = buf.Bytes()
	doc.Compressed = true
	doc.InlineData = nil

	s.mu.Lock()
	s.data[id] = doc
	s.mu.Unlock()

	s.cacheMu.Lock()
	s.cache.Invalidate(id)
	s.cacheMu.Unlock()

	s.log.Debug().Int64("doc_id", id).Msg("document compressed")
}

// Close stops the compression worker.
func (s *Store) Close() error {
	close(s.stopCompress)
	return nil
}
