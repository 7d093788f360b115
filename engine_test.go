package doxstorr

import (
	"path/filepath"
	"testing"

	"github.com/ha1tch/doxstorr/internal/schema"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(Config{DataDir: filepath.Join(t.TempDir(), "data")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestCreateCollectionRejectsDuplicateName(t *testing.T) {
	e := openTestEngine(t)
	if _, err := e.CreateCollection("widgets", nil, nil, false); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if _, err := e.CreateCollection("widgets", nil, nil, false); err == nil {
		t.Fatal("CreateCollection should reject a duplicate name")
	}
}

func TestAddGetUpdateDeleteDocument(t *testing.T) {
	e := openTestEngine(t)
	collID, err := e.CreateCollection("widgets", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	id, err := e.AddDocument(collID, map[string]any{"name": "sprocket", "qty": float64(3)})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	doc, err := e.GetDocument(id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	data := doc.Data.(map[string]any)
	if data["name"] != "sprocket" {
		t.Fatalf("GetDocument data = %v", data)
	}

	if err := e.UpdateDocument(id, map[string]any{"name": "widget", "qty": float64(4)}); err != nil {
		t.Fatalf("UpdateDocument: %v", err)
	}
	doc, err = e.GetDocument(id)
	if err != nil {
		t.Fatalf("GetDocument after update: %v", err)
	}
	if doc.Data.(map[string]any)["name"] != "widget" {
		t.Fatalf("document not updated: %v", doc.Data)
	}

	if err := e.DeleteDocument(id); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := e.GetDocument(id); err == nil {
		t.Fatal("GetDocument after delete should fail")
	}
}

func TestAddDocumentLargerThanSmallBlockRoundTripsThroughBlockStorage(t *testing.T) {
	e := openTestEngine(t)
	collID, _ := e.CreateCollection("blobs", nil, nil, false)

	big := make(map[string]any)
	for i := 0; i < 2000; i++ {
		big[string(rune('a'+i%26))+string(rune(i))] = "padding-value-to-exceed-four-kibibytes-of-json"
	}

	id, err := e.AddDocument(collID, big)
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	doc, err := e.GetDocument(id)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if doc.BlockPointer == 0 {
		t.Fatal("large document should have been persisted via block storage")
	}
	data := doc.Data.(map[string]any)
	if len(data) != len(big) {
		t.Fatalf("round-tripped document has %d fields, want %d", len(data), len(big))
	}
}

func TestAddDocumentValidatesSchema(t *testing.T) {
	e := openTestEngine(t)
	fields := map[string]schema.FieldDefinition{
		"name": {Type: schema.TypeString, Required: true},
	}
	collID, err := e.CreateCollection("people", fields, nil, true)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}

	if _, err := e.AddDocument(collID, map[string]any{}); err == nil {
		t.Fatal("AddDocument should fail schema validation when a required field is missing")
	}

	id, err := e.AddDocument(collID, map[string]any{"name": "ada"})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if id == 0 {
		t.Fatal("AddDocument returned zero id")
	}
}

func TestQueryDocumentsFiltersByPredicate(t *testing.T) {
	e := openTestEngine(t)
	collID, _ := e.CreateCollection("widgets", nil, nil, false)
	e.AddDocument(collID, map[string]any{"qty": float64(1)})
	e.AddDocument(collID, map[string]any{"qty": float64(5)})
	e.AddDocument(collID, map[string]any{"qty": float64(9)})

	docs, err := e.QueryDocuments(collID, func(d Document) bool {
		m := d.Data.(map[string]any)
		return m["qty"].(float64) >= 5
	})
	if err != nil {
		t.Fatalf("QueryDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("QueryDocuments returned %d docs, want 2", len(docs))
	}
}

func TestAtomicTransactionExecuteAppliesAllOrNothing(t *testing.T) {
	e := openTestEngine(t)
	collID, _ := e.CreateCollection("widgets", nil, nil, false)

	results, err := e.AtomicTransactionExecute([]Operation{
		{Type: OpAdd, CollectionID: collID, Data: map[string]any{"name": "a"}},
		{Type: OpAdd, CollectionID: collID, Data: map[string]any{"name": "b"}},
	})
	if err != nil {
		t.Fatalf("AtomicTransactionExecute: %v", err)
	}
	if len(results) != 2 || !results[0].Success || !results[1].Success {
		t.Fatalf("AtomicTransactionExecute results = %+v", results)
	}

	docs, err := e.QueryDocuments(collID, nil)
	if err != nil {
		t.Fatalf("QueryDocuments: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 documents after transaction, got %d", len(docs))
	}
}

func TestAtomicTransactionExecuteRollsBackOnUnknownCollection(t *testing.T) {
	e := openTestEngine(t)
	collID, _ := e.CreateCollection("widgets", nil, nil, false)

	_, err := e.AtomicTransactionExecute([]Operation{
		{Type: OpAdd, CollectionID: collID, Data: map[string]any{"name": "a"}},
		{Type: OpAdd, CollectionID: 999999, Data: map[string]any{"name": "b"}},
	})
	if err == nil {
		t.Fatal("AtomicTransactionExecute should fail when an operation targets an unknown collection")
	}
	docs, err := e.QueryDocuments(collID, nil)
	if err != nil {
		t.Fatalf("QueryDocuments: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected no documents after a failed transaction, got %d", len(docs))
	}
}

func TestContentHashDetectsCorruptedBlockPayload(t *testing.T) {
	e := openTestEngine(t)
	collID, _ := e.CreateCollection("widgets", nil, nil, false)

	id, err := e.AddDocument(collID, map[string]any{"name": "sprocket"})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}

	doc, err := e.documents.Get(id)
	if err != nil {
		t.Fatalf("documents.Get: %v", err)
	}
	entryID := int(doc.BlockPointer) - blockPointerOffset
	pointers, err := e.ptrs.GetPointers(entryID)
	if err != nil || len(pointers) == 0 {
		t.Fatalf("GetPointers: %v", err)
	}
	store := e.blocks[pointers[0].StoreID]
	if err := store.Write(pointers[0].BlockID, []byte("corrupted-payload-bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := e.GetDocument(id); err == nil {
		t.Fatal("GetDocument should fail after the underlying block is corrupted")
	}
}

func TestReopenPreservesDocumentsAndCollections(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	e, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	collID, err := e.CreateCollection("widgets", nil, nil, false)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	id, err := e.AddDocument(collID, map[string]any{"name": "sprocket"})
	if err != nil {
		t.Fatalf("AddDocument: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := Open(Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	doc, err := e2.GetDocument(id)
	if err != nil {
		t.Fatalf("GetDocument after reopen: %v", err)
	}
	if doc.Data.(map[string]any)["name"] != "sprocket" {
		t.Fatalf("document not preserved across reopen: %v", doc.Data)
	}
}
