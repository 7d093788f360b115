package docstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s, err := Open(path, 16, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := openTestStore(t)
	id, err := s.Create(Document{CollectionID: 1, InlineData: map[string]any{"name": "alice"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	doc, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data := doc.InlineData.(map[string]any)
	if data["name"] != "alice" {
		t.Fatalf("InlineData = %v, want name=alice", data)
	}
	if doc.CreatedAt == 0 || doc.UpdatedAt == 0 {
		t.Fatal("timestamps not set on create")
	}
}

func TestCreateWithIDRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateWithID(5, Document{CollectionID: 1}); err != nil {
		t.Fatalf("CreateWithID: %v", err)
	}
	if err := s.CreateWithID(5, Document{CollectionID: 1}); err == nil {
		t.Fatal("CreateWithID should fail on duplicate id")
	}
}

func TestGetMissingReturnsError(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(999); err == nil {
		t.Fatal("Get on missing id should fail")
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.Create(Document{CollectionID: 1, InlineData: map[string]any{"a": 1}})

	if err := s.Update(id, Document{InlineData: map[string]any{"a": 2}}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	doc, err := s.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.InlineData.(map[string]any)["a"] != 2 {
		t.Fatalf("InlineData not updated: %v", doc.InlineData)
	}
}

func TestDeleteRemovesDocument(t *testing.T) {
	s := openTestStore(t)
	id, _ := s.Create(Document{CollectionID: 1})
	if err := s.Delete(id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(id); err == nil {
		t.Fatal("Get after Delete should fail")
	}
}

func TestListByCollection(t *testing.T) {
	s := openTestStore(t)
	s.Create(Document{CollectionID: 1, InlineData: "a"})
	s.Create(Document{CollectionID: 2, InlineData: "b"})
	s.Create(Document{CollectionID: 1, InlineData: "c"})

	docs, err := s.ListByCollection(1)
	if err != nil {
		t.Fatalf("ListByCollection: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("ListByCollection(1) returned %d docs, want 2", len(docs))
	}
}

func TestSaveAndReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	s, err := Open(path, 16, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, _ := s.Create(Document{CollectionID: 1, InlineData: map[string]any{"x": float64(1)}})
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s.Close()

	s2, err := Open(path, 16, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	doc, err := s2.Get(id)
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	data := doc.InlineData.(map[string]any)
	if data["x"] != float64(1) {
		t.Fatalf("InlineData after reopen = %v", data)
	}
}

func TestLargeDocumentEventuallyCompressed(t *testing.T) {
	s := openTestStore(t)
	big := make(map[string]any)
	for i := 0; i < 1000; i++ {
		big[string(rune('a'+i%26))+string(rune(i))] = "padding-value-to-grow-the-payload-past-four-kibibytes"
	}
	id, err := s.Create(Document{CollectionID: 1, InlineData: big})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		doc := s.data[id]
		s.mu.Unlock()
		if doc.Compressed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("large document was never compressed by the background worker")
}
