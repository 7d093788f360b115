package doxstorr

import (
	"fmt"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/ha1tch/doxstorr/internal/docstore"
)

// collectionsBucket is the fixed CollectionID every Collection
// descriptor is filed under in the shared docstore.Store — collections
// are not documents in their own right, but docstore's map needs some
// key to group them for ListByCollection, and 0 is never a valid
// document collection id.
const collectionsBucket = 0

// collectionStore adapts internal/docstore.Store (built for Document
// records) into a name-addressable collection catalogue, reusing the
// same inline/compressed persistence path for collection descriptors.
type collectionStore struct {
	store *docstore.Store

	mu     sync.RWMutex
	byName map[string]int64
}

func newCollectionStore(store *docstore.Store) (*collectionStore, error) {
	cs := &collectionStore{store: store, byName: make(map[string]int64)}
	docs, err := store.ListByCollection(collectionsBucket)
	if err != nil {
		return nil, fmt.Errorf("collections: list existing: %w", err)
	}
	for _, d := range docs {
		c, err := decodeCollection(d)
		if err != nil {
			continue
		}
		cs.byName[c.Name] = c.ID
	}
	return cs, nil
}

func decodeCollection(doc docstore.Document) (Collection, error) {
	raw, err := json.Marshal(doc.InlineData)
	if err != nil {
		return Collection{}, fmt.Errorf("collections: encode: %w", err)
	}
	var c Collection
	if err := json.Unmarshal(raw, &c); err != nil {
		return Collection{}, fmt.Errorf("collections: decode: %w", err)
	}
	c.ID = doc.ID
	c.CreatedAt = doc.CreatedAt
	c.UpdatedAt = doc.UpdatedAt
	return c, nil
}

// Create inserts c under a freshly allocated id, failing if a
// collection with the same name already exists.
func (cs *collectionStore) Create(c Collection) (int64, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.byName[c.Name]; exists {
		return 0, fmt.Errorf("collections: %q already exists", c.Name)
	}
	id, err := cs.store.Create(docstore.Document{CollectionID: collectionsBucket, InlineData: c})
	if err != nil {
		return 0, err
	}
	cs.byName[c.Name] = id
	return id, nil
}

// Get returns the collection with the given id.
func (cs *collectionStore) Get(id int64) (Collection, error) {
	doc, err := cs.store.Get(id)
	if err != nil {
		return Collection{}, err
	}
	return decodeCollection(doc)
}

// GetByName returns the collection with the given name.
func (cs *collectionStore) GetByName(name string) (Collection, error) {
	cs.mu.RLock()
	id, ok := cs.byName[name]
	cs.mu.RUnlock()
	if !ok {
		return Collection{}, fmt.Errorf("collections: %q not found", name)
	}
	return cs.Get(id)
}

// Update replaces the stored descriptor for id with c, keeping the
// name index in sync if the name changed.
func (cs *collectionStore) Update(id int64, c Collection) error {
	existing, err := cs.Get(id)
	if err != nil {
		return err
	}
	if err := cs.store.Update(id, docstore.Document{CollectionID: collectionsBucket, InlineData: c}); err != nil {
		return err
	}
	if existing.Name != c.Name {
		cs.mu.Lock()
		delete(cs.byName, existing.Name)
		cs.byName[c.Name] = id
		cs.mu.Unlock()
	}
	return nil
}

// Delete removes the collection with the given id.
func (cs *collectionStore) Delete(id int64) error {
	existing, err := cs.Get(id)
	if err != nil {
		return err
	}
	if err := cs.store.Delete(id); err != nil {
		return err
	}
	cs.mu.Lock()
	delete(cs.byName, existing.Name)
	cs.mu.Unlock()
	return nil
}

// List returns every collection descriptor.
func (cs *collectionStore) List() ([]Collection, error) {
	docs, err := cs.store.ListByCollection(collectionsBucket)
	if err != nil {
		return nil, err
	}
	result := make([]Collection, 0, len(docs))
	for _, d := range docs {
		c, err := decodeCollection(d)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, nil
}
