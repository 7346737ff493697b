package schema

// FieldType is the declared type of a field as reported by the grid API.
type FieldType string

// Field types the import pipeline understands. Anything else falls back to
// nullable text at mapping time.
const (
	TypeNumber       FieldType = "number"
	TypeCurrency     FieldType = "currency"
	TypePercent      FieldType = "percent"
	TypeRating       FieldType = "rating"
	TypeAutoNumber   FieldType = "autoNumber"
	TypeText         FieldType = "text"
	TypeLongText     FieldType = "longText"
	TypeEmail        FieldType = "email"
	TypeURL          FieldType = "url"
	TypePhone        FieldType = "phone"
	TypeDate         FieldType = "date"
	TypeDateTime     FieldType = "dateTime"
	TypeSingleSelect FieldType = "singleSelect"
	TypeMultiSelect  FieldType = "multiSelect"
	TypeLink         FieldType = "link"
	TypeFormula      FieldType = "formula"
	TypeRollup       FieldType = "rollup"
	TypeLookup       FieldType = "lookup"
)

// FieldDefinition describes one field of a source table.
type FieldDefinition struct {
	Name      string         `yaml:"name" json:"name"`
	Type      FieldType      `yaml:"type" json:"type"`
	Options   map[string]any `yaml:"options,omitempty" json:"options,omitempty"`
	TableName string         `yaml:"table,omitempty" json:"table,omitempty"`
}

// IntOption returns the named option as an int, or def when the option is
// absent or not numeric. JSON decoding delivers numbers as float64, YAML as
// int; both are accepted.
func (f FieldDefinition) IntOption(key string, def int) int {
	v, ok := f.Options[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// StringOption returns the named option as a string, or def when absent.
func (f FieldDefinition) StringOption(key, def string) string {
	v, ok := f.Options[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// StringsOption returns the named option as a string slice. Non-string
// elements are skipped.
func (f FieldDefinition) StringsOption(key string) []string {
	v, ok := f.Options[key]
	if !ok {
		return nil
	}
	switch vs := v.(type) {
	case []string:
		return vs
	case []any:
		out := make([]string, 0, len(vs))
		for _, e := range vs {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Table is one source table together with its field schema.
type Table struct {
	ID     string            `yaml:"id,omitempty" json:"id,omitempty"`
	Name   string            `yaml:"name" json:"name"`
	Fields []FieldDefinition `yaml:"fields" json:"fields"`
}

// Field returns the field with the given name, or nil.
func (t *Table) Field(name string) *FieldDefinition {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// RawRecord is a single record as delivered by the source, with field values
// left untyped.
type RawRecord struct {
	ID     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}
