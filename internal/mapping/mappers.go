package mapping

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gridport/gridport/internal/schema"
)

// Mapper converts fields of one category into column definitions and coerces
// raw record values into storable form.
type Mapper interface {
	// Name identifies the variant in ColumnDefinition.MappedBy.
	Name() string
	// CanHandle reports whether the variant claims the declared type.
	CanHandle(t schema.FieldType) bool
	// MapColumn derives the column for a field. Pure: the same field always
	// yields the same column, so plans can be re-derived after the fact.
	MapColumn(f schema.FieldDefinition) ColumnDefinition
	// TransformValue coerces a raw record value. Nil and the empty string
	// become nil; values the variant cannot coerce return a *TransformError.
	TransformValue(raw any, f schema.FieldDefinition) (any, error)
	// AdditionalDDL returns idempotent secondary statements for the field's
	// column under its final plan name, if any.
	AdditionalDDL(f schema.FieldDefinition, table, column string) []string
}

var (
	_ Mapper = NumericMapper{}
	_ Mapper = TextMapper{}
	_ Mapper = TemporalMapper{}
	_ Mapper = SelectionMapper{}
	_ Mapper = LinkMapper{}
	_ Mapper = ComputedMapper{}
)

// NumericMapper handles number, currency, percent, rating and autoNumber.
type NumericMapper struct{}

func (NumericMapper) Name() string { return "numeric" }

func (NumericMapper) CanHandle(t schema.FieldType) bool {
	return CategoryOf(t) == CategoryNumeric
}

func (NumericMapper) MapColumn(f schema.FieldDefinition) ColumnDefinition {
	col := ColumnDefinition{
		Name:        SanitizeIdentifier(f.Name),
		Nullable:    true,
		MappedBy:    "numeric",
		SourceField: f.Name,
	}
	switch f.Type {
	case schema.TypeCurrency:
		col.StorageType = "DECIMAL(15,2)"
	case schema.TypePercent:
		col.StorageType = "DECIMAL(5,4)"
		col.Constraints = []string{
			fmt.Sprintf("CHECK (%s >= 0 AND %s <= 1)", col.Name, col.Name),
		}
	case schema.TypeRating:
		max := f.IntOption("max", 5)
		col.StorageType = "INTEGER"
		col.Constraints = []string{
			fmt.Sprintf("CHECK (%s >= 1 AND %s <= %d)", col.Name, col.Name, max),
		}
	case schema.TypeAutoNumber:
		col.StorageType = "INTEGER"
	default:
		// number: zero declared precision stores whole values
		if p := f.IntOption("precision", 0); p > 0 {
			col.StorageType = fmt.Sprintf("DECIMAL(20,%d)", p)
		} else {
			col.StorageType = "INTEGER"
		}
	}
	return col
}

func (NumericMapper) TransformValue(raw any, f schema.FieldDefinition) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	n, ok := toFloat(raw)
	if !ok {
		return nil, &TransformError{Field: f.Name, Reason: fmt.Sprintf("not numeric: %v", raw)}
	}
	switch f.Type {
	case schema.TypePercent:
		// Sources disagree on percent scale; values above 1 are taken as
		// 0-100 and rescaled.
		if n > 1 {
			n = n / 100
		}
		if n < 0 || n > 1 {
			return nil, &TransformError{Field: f.Name, Reason: fmt.Sprintf("percent out of range: %v", raw)}
		}
		return n, nil
	case schema.TypeRating:
		r := int64(math.Round(n))
		max := int64(f.IntOption("max", 5))
		if r < 1 || r > max {
			return nil, &TransformError{Field: f.Name, Reason: fmt.Sprintf("rating out of range 1-%d: %v", max, raw)}
		}
		return r, nil
	case schema.TypeAutoNumber:
		return int64(math.Round(n)), nil
	case schema.TypeNumber:
		if f.IntOption("precision", 0) == 0 {
			return int64(math.Round(n)), nil
		}
		return n, nil
	default:
		return n, nil
	}
}

func (NumericMapper) AdditionalDDL(schema.FieldDefinition, string, string) []string { return nil }

// TextMapper handles text, longText, email, url and phone. It also defines
// the behavior behind the registry's unknown-type fallback.
type TextMapper struct{}

func (TextMapper) Name() string { return "text" }

func (TextMapper) CanHandle(t schema.FieldType) bool {
	return CategoryOf(t) == CategoryText
}

func (TextMapper) MapColumn(f schema.FieldDefinition) ColumnDefinition {
	return ColumnDefinition{
		Name:        SanitizeIdentifier(f.Name),
		StorageType: "TEXT",
		Nullable:    true,
		MappedBy:    "text",
		SourceField: f.Name,
	}
}

func (TextMapper) TransformValue(raw any, f schema.FieldDefinition) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	s, err := stringify(raw)
	if err != nil {
		return nil, &TransformError{Field: f.Name, Reason: err.Error()}
	}
	return s, nil
}

func (TextMapper) AdditionalDDL(schema.FieldDefinition, string, string) []string { return nil }

// temporal layouts tried in order; the grid API emits ISO 8601 but exported
// bases occasionally carry bare dates and space-separated timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// TemporalMapper handles date and dateTime.
type TemporalMapper struct{}

func (TemporalMapper) Name() string { return "temporal" }

func (TemporalMapper) CanHandle(t schema.FieldType) bool {
	return CategoryOf(t) == CategoryTemporal
}

func (TemporalMapper) MapColumn(f schema.FieldDefinition) ColumnDefinition {
	col := ColumnDefinition{
		Name:        SanitizeIdentifier(f.Name),
		Nullable:    true,
		MappedBy:    "temporal",
		SourceField: f.Name,
	}
	if f.Type == schema.TypeDate {
		col.StorageType = "DATE"
	} else {
		col.StorageType = "TIMESTAMPTZ"
	}
	return col
}

func (TemporalMapper) TransformValue(raw any, f schema.FieldDefinition) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	if t, ok := raw.(time.Time); ok {
		return t, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, &TransformError{Field: f.Name, Reason: fmt.Sprintf("not a timestamp: %v", raw)}
	}
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, &TransformError{Field: f.Name, Reason: fmt.Sprintf("unparseable timestamp %q", s)}
}

func (TemporalMapper) AdditionalDDL(schema.FieldDefinition, string, string) []string { return nil }

// SelectionMapper handles singleSelect and multiSelect. Multi-select values
// stage as text arrays so relationship analysis can resolve them later.
type SelectionMapper struct{}

func (SelectionMapper) Name() string { return "selection" }

func (SelectionMapper) CanHandle(t schema.FieldType) bool {
	return CategoryOf(t) == CategorySelection
}

func (SelectionMapper) MapColumn(f schema.FieldDefinition) ColumnDefinition {
	col := ColumnDefinition{
		Name:        SanitizeIdentifier(f.Name),
		Nullable:    true,
		MappedBy:    "selection",
		SourceField: f.Name,
	}
	if f.Type == schema.TypeMultiSelect {
		col.StorageType = "TEXT[]"
		col.IsStaging = true
		return col
	}
	col.StorageType = "TEXT"
	if choices := f.StringsOption("choices"); len(choices) > 0 {
		quoted := make([]string, len(choices))
		for i, c := range choices {
			quoted[i] = "'" + strings.ReplaceAll(c, "'", "''") + "'"
		}
		col.Constraints = []string{
			fmt.Sprintf("CHECK (%s IN (%s))", col.Name, strings.Join(quoted, ", ")),
		}
	}
	return col
}

func (SelectionMapper) TransformValue(raw any, f schema.FieldDefinition) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	if f.Type == schema.TypeMultiSelect {
		vals, err := toStringSlice(raw)
		if err != nil {
			return nil, &TransformError{Field: f.Name, Reason: err.Error()}
		}
		if len(vals) == 0 {
			return nil, nil
		}
		return vals, nil
	}
	s, err := stringify(raw)
	if err != nil {
		return nil, &TransformError{Field: f.Name, Reason: err.Error()}
	}
	if choices := f.StringsOption("choices"); len(choices) > 0 {
		known := false
		for _, c := range choices {
			if c == s {
				known = true
				break
			}
		}
		if !known {
			return nil, &TransformError{Field: f.Name, Reason: fmt.Sprintf("choice %q not declared", s)}
		}
	}
	return s, nil
}

func (SelectionMapper) AdditionalDDL(schema.FieldDefinition, string, string) []string { return nil }

// LinkMapper stages record-link arrays for relationship analysis. Its column
// never holds final data; materialized relationships replace it.
type LinkMapper struct{}

func (LinkMapper) Name() string { return "link" }

func (LinkMapper) CanHandle(t schema.FieldType) bool {
	return CategoryOf(t) == CategoryLink
}

func (LinkMapper) MapColumn(f schema.FieldDefinition) ColumnDefinition {
	return ColumnDefinition{
		Name:        SanitizeIdentifier(f.Name),
		StorageType: "TEXT[]",
		Nullable:    true,
		MappedBy:    "link",
		IsStaging:   true,
		SourceField: f.Name,
	}
}

func (LinkMapper) TransformValue(raw any, f schema.FieldDefinition) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	ids, err := toStringSlice(raw)
	if err != nil {
		return nil, &TransformError{Field: f.Name, Reason: err.Error()}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

func (LinkMapper) AdditionalDDL(f schema.FieldDefinition, table, column string) []string {
	name := "idx_" + table + "_" + column + "_gin"
	if len(name) > 63 {
		name = name[:63]
	}
	return []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (%s)", name, table, column),
	}
}

// ComputedMapper handles formula, rollup and lookup results. Computed values
// arrive display-formatted and untyped, so they store as text.
type ComputedMapper struct{}

func (ComputedMapper) Name() string { return "computed" }

func (ComputedMapper) CanHandle(t schema.FieldType) bool {
	return CategoryOf(t) == CategoryComputed
}

func (ComputedMapper) MapColumn(f schema.FieldDefinition) ColumnDefinition {
	return ColumnDefinition{
		Name:        SanitizeIdentifier(f.Name),
		StorageType: "TEXT",
		Nullable:    true,
		MappedBy:    "computed",
		SourceField: f.Name,
	}
}

func (ComputedMapper) TransformValue(raw any, f schema.FieldDefinition) (any, error) {
	if isEmpty(raw) {
		return nil, nil
	}
	s, err := stringify(raw)
	if err != nil {
		return nil, &TransformError{Field: f.Name, Reason: err.Error()}
	}
	return s, nil
}

func (ComputedMapper) AdditionalDDL(schema.FieldDefinition, string, string) []string { return nil }

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// stringify renders scalars directly and JSON-encodes anything structured.
func stringify(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case float64, float32, int, int64, bool, json.Number:
		return fmt.Sprint(s), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("not representable as text: %v", v)
		}
		return string(b), nil
	}
}

func toStringSlice(v any) ([]string, error) {
	switch vals := v.(type) {
	case []string:
		return vals, nil
	case []any:
		out := make([]string, 0, len(vals))
		for _, e := range vals {
			s, err := stringify(e)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return []string{vals}, nil
	default:
		return nil, fmt.Errorf("not an array: %v", v)
	}
}
