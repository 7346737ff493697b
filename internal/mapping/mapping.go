package mapping

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gridport/gridport/internal/schema"
)

// ColumnDefinition describes one target column derived from a source field.
type ColumnDefinition struct {
	Name        string   `yaml:"name" json:"name"`
	StorageType string   `yaml:"storage_type" json:"storageType"`
	Nullable    bool     `yaml:"nullable" json:"nullable"`
	Constraints []string `yaml:"constraints,omitempty" json:"constraints,omitempty"`
	MappedBy    string   `yaml:"mapped_by" json:"mappedBy"`
	IsStaging   bool     `yaml:"is_staging,omitempty" json:"isStaging,omitempty"`
	SourceField string   `yaml:"source_field,omitempty" json:"sourceField,omitempty"`
}

// Category identifies which mapper variant claims a declared field type.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNumeric
	CategoryText
	CategoryTemporal
	CategorySelection
	CategoryLink
	CategoryComputed
)

// CategoryOf classifies a declared field type. Unrecognized types return
// CategoryUnknown, which the registry maps to the nullable-text fallback.
func CategoryOf(t schema.FieldType) Category {
	switch t {
	case schema.TypeNumber, schema.TypeCurrency, schema.TypePercent,
		schema.TypeRating, schema.TypeAutoNumber:
		return CategoryNumeric
	case schema.TypeText, schema.TypeLongText, schema.TypeEmail,
		schema.TypeURL, schema.TypePhone:
		return CategoryText
	case schema.TypeDate, schema.TypeDateTime:
		return CategoryTemporal
	case schema.TypeSingleSelect, schema.TypeMultiSelect:
		return CategorySelection
	case schema.TypeLink:
		return CategoryLink
	case schema.TypeFormula, schema.TypeRollup, schema.TypeLookup:
		return CategoryComputed
	default:
		return CategoryUnknown
	}
}

// String returns the category name as used in reports.
func (c Category) String() string {
	switch c {
	case CategoryNumeric:
		return "numeric"
	case CategoryText:
		return "text"
	case CategoryTemporal:
		return "temporal"
	case CategorySelection:
		return "selection"
	case CategoryLink:
		return "link"
	case CategoryComputed:
		return "computed"
	default:
		return "unknown"
	}
}

// MappingError reports a field no variant claimed. It never fails an import:
// the registry downgrades the field to nullable text and the field shows up
// in the coverage report as unsupported.
type MappingError struct {
	Table string
	Field string
	Type  schema.FieldType
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("table %s: field %q: unsupported type %q", e.Table, e.Field, e.Type)
}

// TransformError reports a single value a mapper could not coerce. The row
// pipeline nulls the field, counts the value as skipped and keeps the record.
type TransformError struct {
	Field  string
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}

var (
	invalidIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)
	underscoreRuns    = regexp.MustCompile(`_+`)
)

// SanitizeIdentifier converts a source field or table name into a safe SQL
// identifier: lowercase, [a-z0-9_] only, no leading digit, at most 63 bytes.
// The mapping is deterministic; collisions are resolved at plan level.
func SanitizeIdentifier(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = invalidIdentChars.ReplaceAllString(s, "_")
	s = underscoreRuns.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "field"
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "_" + s
	}
	if len(s) > 63 {
		s = s[:63]
	}
	return s
}
