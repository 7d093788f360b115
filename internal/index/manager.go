// Package index implements the secondary index family: keyed indexes
// (optionally compound or partial), REF indexes, and text indexes, plus
// the async update queue and usage-statistics tracking.
//
// Index keys are stringified (fmt.Sprint) before reaching the
// underlying internal/btree.Tree: a document field may hold any JSON
// scalar, but internal/btree's Key constraint is a fixed set of
// ordered primitive kinds — a single string-keyed tree per index
// covers every JSON scalar without forcing
// index creation to pick a concrete numeric type up front.
package index

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ha1tch/doxstorr/internal/btree"
)

// Config controls which index features a Manager exposes.
type Config struct {
	EnableRefIndexing      bool
	EnableCompoundIndexes  bool
	EnablePartialIndexes   bool
	EnableTextSearch       bool
	EnableAsyncUpdates     bool
	EnableUsageStatistics  bool
	AsyncUpdateQueueSize   int
	TextSearchLanguage     string
}

// DefaultConfig returns sensible defaults for Config.
func DefaultConfig() Config {
	return Config{
		AsyncUpdateQueueSize: 1000,
		TextSearchLanguage:   "english",
	}
}

// FilterCondition gates which keys a partial index accepts.
type FilterCondition func(key string) bool

const treeOrder = 10

type keyedIndex struct {
	tree       *btree.Tree[string, int64]
	isCompound bool
	filter     FilterCondition

	mu            sync.Mutex
	accessCount   int64
	totalQueryDur time.Duration
}

type pendingUpdate struct {
	insert bool // true = insert, false = delete
	tree   *btree.Tree[string, int64]
	key    string
	value  int64
}

// Manager owns every index in the engine: keyed, ref, and text.
type Manager struct {
	config Config

	mu         sync.RWMutex
	indexes    map[string]*keyedIndex
	refIndexes map[string]*keyedIndex
	textIndex  map[string]map[string][]int64

	metrics *usageMetrics

	updateQueue chan pendingUpdate
	group       *errgroup.Group
	groupCtx    context.Context
	cancel      context.CancelFunc
}

var tokenizer = regexp.MustCompile(`\w+`)

func tokenize(text string) []string {
	return tokenizer.FindAllString(strings.ToLower(text), -1)
}

// NewManager constructs a Manager. Open must be called before any
// insert/delete goes through the async queue.
func NewManager(cfg Config) *Manager {
	if cfg.AsyncUpdateQueueSize <= 0 {
		cfg.AsyncUpdateQueueSize = 1000
	}
	return &Manager{
		config:     cfg,
		indexes:    make(map[string]*keyedIndex),
		refIndexes: make(map[string]*keyedIndex),
		textIndex:  make(map[string]map[string][]int64),
		metrics:    newUsageMetrics(cfg.EnableUsageStatistics),
	}
}

// Open starts the async update worker, if enabled.
func (m *Manager) Open() {
	if !m.config.EnableAsyncUpdates {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)
	m.cancel = cancel
	m.groupCtx = gctx
	m.group = group
	m.updateQueue = make(chan pendingUpdate, m.config.AsyncUpdateQueueSize)

	group.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case u, ok := <-m.updateQueue:
				if !ok {
					return nil
				}
				if u.insert {
					u.tree.Insert(u.key, u.value)
				} else {
					u.tree.Delete(u.key)
				}
			}
		}
	})
}

// Close drains the async update queue (rather than discarding it) and
// stops the worker, bounded by a shutdown window so a stuck worker
// cannot hang the engine's Close indefinitely.
func (m *Manager) Close() error {
	if m.group == nil {
		return nil
	}
	close(m.updateQueue)

	done := make(chan error, 1)
	go func() { done <- m.group.Wait() }()

	select {
	case err := <-done:
		m.cancel()
		return err
	case <-time.After(10 * time.Second):
		m.cancel()
		return fmt.Errorf("index: async update queue did not drain within shutdown window")
	}
}

// Clear empties every existing index's contents (trees reset, text
// postings discarded) without forgetting which indexes exist, so a
// maintenance rebuild pass can repopulate them from the document store
// without first having to recreate every index definition.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, idx := range m.indexes {
		m.indexes[name] = &keyedIndex{tree: btree.New[string, int64](treeOrder), isCompound: idx.isCompound, filter: idx.filter}
	}
	for name := range m.refIndexes {
		m.refIndexes[name] = &keyedIndex{tree: btree.New[string, int64](treeOrder)}
	}
	for name := range m.textIndex {
		m.textIndex[name] = make(map[string][]int64)
	}
}

// CreateIndex creates a keyed index named name.
func (m *Manager) CreateIndex(name string, compound bool, filter FilterCondition) error {
	if compound && !m.config.EnableCompoundIndexes {
		return fmt.Errorf("index: compound indexes are not enabled")
	}
	if filter != nil && !m.config.EnablePartialIndexes {
		return fmt.Errorf("index: partial indexes are not enabled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[name]; exists {
		return fmt.Errorf("index: index %q already exists", name)
	}
	m.indexes[name] = &keyedIndex{tree: btree.New[string, int64](treeOrder), isCompound: compound, filter: filter}
	return nil
}

// CreateRefIndex creates a REF index named name.
func (m *Manager) CreateRefIndex(name string) error {
	if !m.config.EnableRefIndexing {
		return fmt.Errorf("index: ref indexing is not enabled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.refIndexes[name]; exists {
		return fmt.Errorf("index: ref index %q already exists", name)
	}
	m.refIndexes[name] = &keyedIndex{tree: btree.New[string, int64](treeOrder)}
	return nil
}

// CreateTextIndex creates a text index named name.
func (m *Manager) CreateTextIndex(name string) error {
	if !m.config.EnableTextSearch {
		return fmt.Errorf("index: text search is not enabled")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.textIndex[name]; exists {
		return fmt.Errorf("index: text index %q already exists", name)
	}
	m.textIndex[name] = make(map[string][]int64)
	return nil
}

// Insert adds key->docID into the named index, dispatching through the
// async queue when enabled.
func (m *Manager) Insert(indexName string, key string, docID int64) error {
	m.mu.RLock()
	if idx, ok := m.indexes[indexName]; ok {
		m.mu.RUnlock()
		if idx.filter != nil && !idx.filter(key) {
			return nil
		}
		return m.insertOrQueue(idx.tree, key, docID)
	}
	if idx, ok := m.refIndexes[indexName]; ok {
		m.mu.RUnlock()
		return m.insertOrQueue(idx.tree, key, docID)
	}
	if _, ok := m.textIndex[indexName]; ok {
		m.mu.RUnlock()
		return m.insertText(indexName, key, docID)
	}
	m.mu.RUnlock()
	return fmt.Errorf("index: index %q not found", indexName)
}

func (m *Manager) insertOrQueue(tree *btree.Tree[string, int64], key string, docID int64) error {
	if m.config.EnableAsyncUpdates {
		select {
		case m.updateQueue <- pendingUpdate{insert: true, tree: tree, key: key, value: docID}:
			return nil
		default:
			return fmt.Errorf("index: async update queue is full")
		}
	}
	tree.Insert(key, docID)
	return nil
}

func (m *Manager) insertText(indexName, text string, docID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	postings := m.textIndex[indexName]
	for _, word := range tokenize(text) {
		postings[word] = append(postings[word], docID)
	}
	return nil
}

// Delete removes key from the named index.
func (m *Manager) Delete(indexName string, key string) error {
	m.mu.RLock()
	if idx, ok := m.indexes[indexName]; ok {
		m.mu.RUnlock()
		return m.deleteOrQueue(idx.tree, key)
	}
	if idx, ok := m.refIndexes[indexName]; ok {
		m.mu.RUnlock()
		return m.deleteOrQueue(idx.tree, key)
	}
	if _, ok := m.textIndex[indexName]; ok {
		m.mu.RUnlock()
		// text index deletion by key is not supported.
		return nil
	}
	m.mu.RUnlock()
	return fmt.Errorf("index: index %q not found", indexName)
}

func (m *Manager) deleteOrQueue(tree *btree.Tree[string, int64], key string) error {
	if m.config.EnableAsyncUpdates {
		select {
		case m.updateQueue <- pendingUpdate{insert: false, tree: tree, key: key}:
			return nil
		default:
			return fmt.Errorf("index: async update queue is full")
		}
	}
	tree.Delete(key)
	return nil
}

// Search looks up key in the named keyed or ref index, recording usage
// statistics when enabled.
func (m *Manager) Search(indexName, key string) (int64, bool, error) {
	start := time.Now()
	value, found, err := m.search(indexName, key)
	if err == nil && m.config.EnableUsageStatistics {
		m.recordUsage(indexName, time.Since(start))
	}
	return value, found, err
}

func (m *Manager) search(indexName, key string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx, ok := m.indexes[indexName]; ok {
		v, found := idx.tree.Search(key)
		return v, found, nil
	}
	if idx, ok := m.refIndexes[indexName]; ok {
		v, found := idx.tree.Search(key)
		return v, found, nil
	}
	return 0, false, fmt.Errorf("index: index %q not found", indexName)
}

func (m *Manager) recordUsage(indexName string, dur time.Duration) {
	m.mu.RLock()
	idx, ok := m.indexes[indexName]
	if !ok {
		idx, ok = m.refIndexes[indexName]
	}
	m.mu.RUnlock()
	if !ok {
		return
	}
	idx.mu.Lock()
	idx.accessCount++
	idx.totalQueryDur += dur
	idx.mu.Unlock()
	m.metrics.observe(indexName, dur)
}

// RangeQuery returns every (key, docID) pair in [startKey, endKey] for
// a keyed or ref index.
func (m *Manager) RangeQuery(indexName, startKey, endKey string) ([]btree.Pair[string, int64], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx, ok := m.indexes[indexName]; ok {
		return idx.tree.RangeQuery(startKey, endKey), nil
	}
	if idx, ok := m.refIndexes[indexName]; ok {
		return idx.tree.RangeQuery(startKey, endKey), nil
	}
	return nil, fmt.Errorf("index: index %q not found", indexName)
}

// TextSearch returns the doc ids matching every token in query (AND
// semantics across tokens), by intersecting each token's posting list.
func (m *Manager) TextSearch(indexName, query string) ([]int64, error) {
	if !m.config.EnableTextSearch {
		return nil, fmt.Errorf("index: text search is not enabled")
	}
	m.mu.RLock()
	postings, ok := m.textIndex[indexName]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("index: text index %q not found", indexName)
	}

	words := tokenize(query)
	if len(words) == 0 {
		return nil, nil
	}

	var sets []map[int64]struct{}
	m.mu.RLock()
	for _, word := range words {
		set := make(map[int64]struct{})
		for _, id := range postings[word] {
			set[id] = struct{}{}
		}
		sets = append(sets, set)
	}
	m.mu.RUnlock()

	result := sets[0]
	for _, s := range sets[1:] {
		next := make(map[int64]struct{})
		for id := range result {
			if _, ok := s[id]; ok {
				next[id] = struct{}{}
			}
		}
		result = next
	}

	ids := make([]int64, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	return ids, nil
}

// UsageStatistic is one index's access_count / avg_query_time pair.
type UsageStatistic struct {
	AccessCount   int64
	AvgQueryTime  time.Duration
}

// UsageStatistics returns per-index usage, or an error if usage
// statistics were not enabled in Config.
func (m *Manager) UsageStatistics() (map[string]UsageStatistic, error) {
	if !m.config.EnableUsageStatistics {
		return nil, fmt.Errorf("index: usage statistics are not enabled")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]UsageStatistic, len(m.indexes)+len(m.refIndexes))
	collect := func(name string, idx *keyedIndex) {
		idx.mu.Lock()
		defer idx.mu.Unlock()
		var avg time.Duration
		if idx.accessCount > 0 {
			avg = idx.totalQueryDur / time.Duration(idx.accessCount)
		}
		stats[name] = UsageStatistic{AccessCount: idx.accessCount, AvgQueryTime: avg}
	}
	for name, idx := range m.indexes {
		collect(name, idx)
	}
	for name, idx := range m.refIndexes {
		collect(name, idx)
	}
	return stats, nil
}
