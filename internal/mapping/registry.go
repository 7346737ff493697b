package mapping

import (
	"fmt"
	"strings"

	"github.com/gridport/gridport/internal/schema"
)

// RecordIDColumn is the synthetic primary key present in every imported
// table. Source record ids key upserts and relationship backfill.
const RecordIDColumn = "record_id"

// Registry dispatches fields to the mapper variants. It is constructed once,
// holds no mutable state, and is passed explicitly to whatever needs it.
type Registry struct {
	numeric   Mapper
	text      Mapper
	temporal  Mapper
	selection Mapper
	link      Mapper
	computed  Mapper
}

// NewRegistry returns a registry with all six variants wired.
func NewRegistry() *Registry {
	return &Registry{
		numeric:   NumericMapper{},
		text:      TextMapper{},
		temporal:  TemporalMapper{},
		selection: SelectionMapper{},
		link:      LinkMapper{},
		computed:  ComputedMapper{},
	}
}

// mapperFor resolves the variant for a declared type, nil for unrecognized
// types. The switch is exhaustive over Category.
func (r *Registry) mapperFor(t schema.FieldType) Mapper {
	switch CategoryOf(t) {
	case CategoryNumeric:
		return r.numeric
	case CategoryText:
		return r.text
	case CategoryTemporal:
		return r.temporal
	case CategorySelection:
		return r.selection
	case CategoryLink:
		return r.link
	case CategoryComputed:
		return r.computed
	default:
		return nil
	}
}

// MapField derives the column for a field. Unrecognized declared types fall
// back to a nullable text column with MappedBy "fallback"; the bool reports
// whether a variant claimed the field. MapField never fails.
func (r *Registry) MapField(f schema.FieldDefinition) (ColumnDefinition, bool) {
	if m := r.mapperFor(f.Type); m != nil {
		return m.MapColumn(f), true
	}
	return ColumnDefinition{
		Name:        SanitizeIdentifier(f.Name),
		StorageType: "TEXT",
		Nullable:    true,
		MappedBy:    "fallback",
		SourceField: f.Name,
	}, false
}

// TransformValue coerces a raw value using the variant that claims the
// field. Fallback fields get text semantics.
func (r *Registry) TransformValue(raw any, f schema.FieldDefinition) (any, error) {
	if m := r.mapperFor(f.Type); m != nil {
		return m.TransformValue(raw, f)
	}
	return r.text.TransformValue(raw, f)
}

// FieldAnalysis partitions a table's fields by their import treatment.
type FieldAnalysis struct {
	LinkFields      []schema.FieldDefinition
	SelectFields    []schema.FieldDefinition
	ComputedFields  []schema.FieldDefinition
	StagingColumns  []ColumnDefinition
	StandardColumns []ColumnDefinition
}

// AnalyzeFields classifies fields ahead of planning: which ones need
// relationship staging, which carry select semantics, which are computed.
func (r *Registry) AnalyzeFields(fields []schema.FieldDefinition) FieldAnalysis {
	var a FieldAnalysis
	for _, f := range fields {
		col, _ := r.MapField(f)
		switch CategoryOf(f.Type) {
		case CategoryLink:
			a.LinkFields = append(a.LinkFields, f)
		case CategorySelection:
			a.SelectFields = append(a.SelectFields, f)
		case CategoryComputed:
			a.ComputedFields = append(a.ComputedFields, f)
		}
		if col.IsStaging {
			a.StagingColumns = append(a.StagingColumns, col)
		} else {
			a.StandardColumns = append(a.StandardColumns, col)
		}
	}
	return a
}

// PlannedColumn pairs a source field with its final planned column.
type PlannedColumn struct {
	Field  schema.FieldDefinition `yaml:"field" json:"field"`
	Column ColumnDefinition       `yaml:"column" json:"column"`
}

// TablePlan is the complete column plan for one table: the record id column
// first, then one column per source field in schema order.
type TablePlan struct {
	Table       string          `yaml:"table" json:"table"`
	Columns     []PlannedColumn `yaml:"columns" json:"columns"`
	Unsupported []string        `yaml:"unsupported,omitempty" json:"unsupported,omitempty"`
}

// StagingColumns returns the plan's staging columns in plan order.
func (p *TablePlan) StagingColumns() []PlannedColumn {
	var out []PlannedColumn
	for _, pc := range p.Columns {
		if pc.Column.IsStaging {
			out = append(out, pc)
		}
	}
	return out
}

// ColumnNames returns the plan's column names in plan order.
func (p *TablePlan) ColumnNames() []string {
	names := make([]string, len(p.Columns))
	for i, pc := range p.Columns {
		names[i] = pc.Column.Name
	}
	return names
}

// PlanTable builds the column plan for a table. Sanitized-name collisions
// dedupe deterministically in field order (_2, _3, ...); fields no variant
// claims are listed in Unsupported and mapped by the fallback.
func (r *Registry) PlanTable(table string, fields []schema.FieldDefinition) *TablePlan {
	plan := &TablePlan{Table: table}
	plan.Columns = append(plan.Columns, PlannedColumn{
		Column: ColumnDefinition{
			Name:        RecordIDColumn,
			StorageType: "TEXT",
			Nullable:    false,
			Constraints: []string{"PRIMARY KEY"},
			MappedBy:    "system",
		},
	})
	used := map[string]bool{RecordIDColumn: true}
	for _, f := range fields {
		col, supported := r.MapField(f)
		if !supported {
			plan.Unsupported = append(plan.Unsupported, f.Name)
		}
		final := dedupeName(col.Name, used)
		if final != col.Name {
			col = renameColumn(col, final)
		}
		plan.Columns = append(plan.Columns, PlannedColumn{Field: f, Column: col})
	}
	return plan
}

// AdditionalDDL collects the idempotent secondary statements for a planned
// table, keyed to final column names.
func (r *Registry) AdditionalDDL(plan *TablePlan) []string {
	var ddl []string
	for _, pc := range plan.Columns {
		m := r.mapperFor(pc.Field.Type)
		if m == nil {
			continue
		}
		ddl = append(ddl, m.AdditionalDDL(pc.Field, plan.Table, pc.Column.Name)...)
	}
	return ddl
}

// TypeCoverage counts fields of one declared type and how many a variant
// claimed.
type TypeCoverage struct {
	Count     int `yaml:"count" json:"count"`
	Supported int `yaml:"supported" json:"supported"`
}

// Coverage summarizes how much of a schema the variants handled. Unsupported
// fields still import, as nullable text.
type Coverage struct {
	Supported   int                               `yaml:"supported" json:"supported"`
	Unsupported int                               `yaml:"unsupported" json:"unsupported"`
	Percentage  float64                           `yaml:"percentage" json:"percentage"`
	ByType      map[schema.FieldType]TypeCoverage `yaml:"by_type" json:"byType"`
}

// CoverageFor computes variant coverage over a set of fields.
func (r *Registry) CoverageFor(fields []schema.FieldDefinition) Coverage {
	cov := Coverage{ByType: map[schema.FieldType]TypeCoverage{}}
	for _, f := range fields {
		tc := cov.ByType[f.Type]
		tc.Count++
		if r.mapperFor(f.Type) != nil {
			tc.Supported++
			cov.Supported++
		} else {
			cov.Unsupported++
		}
		cov.ByType[f.Type] = tc
	}
	if total := cov.Supported + cov.Unsupported; total > 0 {
		cov.Percentage = float64(cov.Supported) / float64(total) * 100
	}
	return cov
}

// dedupeName reserves name in used, suffixing _2, _3, ... on collision and
// keeping the result within the identifier length limit.
func dedupeName(name string, used map[string]bool) string {
	if !used[name] {
		used[name] = true
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		base := name
		if len(base)+len(suffix) > 63 {
			base = base[:63-len(suffix)]
		}
		cand := base + suffix
		if !used[cand] {
			used[cand] = true
			return cand
		}
	}
}

// renameColumn applies a plan-level rename, rewriting constraint text that
// embeds the old name. Generated constraints reference the column only after
// "(" or "AND ", which keeps quoted choice literals untouched.
func renameColumn(col ColumnDefinition, name string) ColumnDefinition {
	renamed := col
	renamed.Name = name
	if len(col.Constraints) > 0 {
		renamed.Constraints = make([]string, len(col.Constraints))
		for i, c := range col.Constraints {
			c = strings.ReplaceAll(c, "("+col.Name+" ", "("+name+" ")
			c = strings.ReplaceAll(c, "AND "+col.Name+" ", "AND "+name+" ")
			renamed.Constraints[i] = c
		}
	}
	return renamed
}
