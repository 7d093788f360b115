// Package schema implements optional per-collection document
// validation: required/default fields, primitive type checks, REF
// fields, and foreign-key constraints resolved against the document
// store through a narrow Lookup capability rather than a pointer back
// into the engine facade, which would otherwise create a facade/
// validator import cycle.
package schema

import "fmt"

// FieldType names one of the primitive shapes a field can require.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeFloat   FieldType = "float"
	TypeBoolean FieldType = "boolean"
	TypeList    FieldType = "list"
	TypeDict    FieldType = "dict"
	TypeRef     FieldType = "REF"
)

// FieldDefinition describes one field's validation rule.
type FieldDefinition struct {
	Type     FieldType
	Required bool
	Default  any
	Ref      string // referenced collection name, for TypeRef fields
}

// ForeignKey names a field that must resolve to a document in another
// collection, by matching RefField's value there.
type ForeignKey struct {
	RefCollection string
	RefField      string
}

// Definition is a named set of field rules plus foreign-key
// constraints for one collection.
type Definition struct {
	Fields      map[string]FieldDefinition
	ForeignKeys map[string]ForeignKey
}

// New builds a Definition, defaulting a nil ForeignKeys map to empty
// (create_schema's behavior when none is supplied).
func New(fields map[string]FieldDefinition, foreignKeys map[string]ForeignKey) *Definition {
	if foreignKeys == nil {
		foreignKeys = map[string]ForeignKey{}
	}
	return &Definition{Fields: fields, ForeignKeys: foreignKeys}
}

// Lookup is the narrow capability schema validation needs from the
// document store: resolve a document by id (for REF fields) or by a
// field's value within a named collection (for foreign keys).
type Lookup interface {
	GetDocument(id int64) (any, error)
	GetDocumentByField(collection, field string, value any) (any, error)
}

// Validate checks document against d's field rules and foreign keys,
// filling in defaults for missing optional fields in place. It reports
// the first rule violated, or nil if the document is valid.
func (d *Definition) Validate(document map[string]any, lookup Lookup) error {
	for name, def := range d.Fields {
		value, present := document[name]
		if !present {
			if def.Required {
				return fmt.Errorf("schema: required field %q missing", name)
			}
			if def.Default != nil {
				document[name] = def.Default
			}
			continue
		}
		if err := validateFieldType(value, def, lookup); err != nil {
			return fmt.Errorf("schema: field %q: %w", name, err)
		}
	}

	for name, fk := range d.ForeignKeys {
		value, present := document[name]
		if !present {
			continue
		}
		if err := validateForeignKey(value, fk, lookup); err != nil {
			return fmt.Errorf("schema: foreign key %q: %w", name, err)
		}
	}
	return nil
}

func validateFieldType(value any, def FieldDefinition, lookup Lookup) error {
	switch def.Type {
	case TypeRef:
		return validateRef(value, def.Ref, lookup)
	case TypeString:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case TypeInteger:
		switch value.(type) {
		case int, int64, float64:
		default:
			return fmt.Errorf("expected integer, got %T", value)
		}
	case TypeFloat:
		switch value.(type) {
		case int, int64, float32, float64:
		default:
			return fmt.Errorf("expected float, got %T", value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case TypeList:
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("expected list, got %T", value)
		}
	case TypeDict:
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected dict, got %T", value)
		}
	default:
		// unknown declared types are accepted
	}
	return nil
}

func validateRef(value any, refCollection string, lookup Lookup) error {
	ref, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("REF value must be an object with collection/id")
	}
	collection, _ := ref["collection"].(string)
	if collection != refCollection {
		return fmt.Errorf("REF collection %q does not match expected %q", collection, refCollection)
	}
	idRaw, present := ref["id"]
	if !present {
		return fmt.Errorf("REF value missing id")
	}
	id, ok := toInt64(idRaw)
	if !ok {
		return fmt.Errorf("REF id must be numeric, got %T", idRaw)
	}
	if _, err := lookup.GetDocument(id); err != nil {
		return fmt.Errorf("referenced document %d not found: %w", id, err)
	}
	return nil
}

func validateForeignKey(value any, fk ForeignKey, lookup Lookup) error {
	if _, err := lookup.GetDocumentByField(fk.RefCollection, fk.RefField, value); err != nil {
		return fmt.Errorf("no document in %q with %s = %v: %w", fk.RefCollection, fk.RefField, value, err)
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
