package schema

import (
	"errors"
	"testing"
)

type fakeLookup struct {
	docs      map[int64]any
	byField   map[string]map[string]map[any]any
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		docs:    map[int64]any{},
		byField: map[string]map[string]map[any]any{},
	}
}

func (f *fakeLookup) GetDocument(id int64) (any, error) {
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeLookup) GetDocumentByField(collection, field string, value any) (any, error) {
	byField, ok := f.byField[collection]
	if !ok {
		return nil, errors.New("not found")
	}
	values, ok := byField[field]
	if !ok {
		return nil, errors.New("not found")
	}
	if d, ok := values[value]; ok {
		return d, nil
	}
	return nil, errors.New("not found")
}

func TestValidateRequiredFieldMissing(t *testing.T) {
	def := New(map[string]FieldDefinition{
		"name": {Type: TypeString, Required: true},
	}, nil)
	doc := map[string]any{}
	if err := def.Validate(doc, newFakeLookup()); err == nil {
		t.Fatal("Validate should fail when a required field is missing")
	}
}

func TestValidateFillsDefault(t *testing.T) {
	def := New(map[string]FieldDefinition{
		"status": {Type: TypeString, Default: "pending"},
	}, nil)
	doc := map[string]any{}
	if err := def.Validate(doc, newFakeLookup()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if doc["status"] != "pending" {
		t.Fatalf("status = %v, want default %q", doc["status"], "pending")
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	def := New(map[string]FieldDefinition{
		"age": {Type: TypeInteger},
	}, nil)
	doc := map[string]any{"age": "not a number"}
	if err := def.Validate(doc, newFakeLookup()); err == nil {
		t.Fatal("Validate should fail on type mismatch")
	}
}

func TestValidateRefFieldResolves(t *testing.T) {
	lookup := newFakeLookup()
	lookup.docs[7] = map[string]any{"id": float64(7)}

	def := New(map[string]FieldDefinition{
		"author": {Type: TypeRef, Ref: "users"},
	}, nil)
	doc := map[string]any{
		"author": map[string]any{"collection": "users", "id": float64(7)},
	}
	if err := def.Validate(doc, lookup); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRefFieldUnresolved(t *testing.T) {
	def := New(map[string]FieldDefinition{
		"author": {Type: TypeRef, Ref: "users"},
	}, nil)
	doc := map[string]any{
		"author": map[string]any{"collection": "users", "id": float64(999)},
	}
	if err := def.Validate(doc, newFakeLookup()); err == nil {
		t.Fatal("Validate should fail when the referenced document does not exist")
	}
}

func TestValidateForeignKey(t *testing.T) {
	lookup := newFakeLookup()
	lookup.byField["categories"] = map[string]map[any]any{
		"slug": {"electronics": map[string]any{"slug": "electronics"}},
	}

	def := New(map[string]FieldDefinition{}, map[string]ForeignKey{
		"category": {RefCollection: "categories", RefField: "slug"},
	})
	doc := map[string]any{"category": "electronics"}
	if err := def.Validate(doc, lookup); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	doc2 := map[string]any{"category": "unknown-category"}
	if err := def.Validate(doc2, lookup); err == nil {
		t.Fatal("Validate should fail for an unresolved foreign key")
	}
}
