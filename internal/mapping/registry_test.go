package mapping

import (
	"strings"
	"testing"

	"github.com/gridport/gridport/internal/schema"
)

func TestMapFieldFallback(t *testing.T) {
	reg := NewRegistry()
	f := schema.FieldDefinition{Name: "Scan Code", Type: schema.FieldType("barcode"), TableName: "items"}

	col, supported := reg.MapField(f)
	if supported {
		t.Error("barcode should not be claimed by any variant")
	}
	if col.StorageType != "TEXT" {
		t.Errorf("fallback StorageType = %q, want TEXT", col.StorageType)
	}
	if !col.Nullable {
		t.Error("fallback column must be nullable")
	}
	if col.MappedBy != "fallback" {
		t.Errorf("MappedBy = %q, want fallback", col.MappedBy)
	}
	if len(col.Constraints) != 0 {
		t.Errorf("fallback column should carry no constraints: %v", col.Constraints)
	}

	// Fallback values transform with text semantics
	got, err := reg.TransformValue("123-456", f)
	if err != nil || got != "123-456" {
		t.Errorf("fallback TransformValue = %v, %v", got, err)
	}
}

func TestPlanTable(t *testing.T) {
	reg := NewRegistry()
	fields := []schema.FieldDefinition{
		{Name: "Name", Type: schema.TypeText, TableName: "projects"},
		{Name: "Budget", Type: schema.TypeCurrency, TableName: "projects"},
		{Name: "Owner", Type: schema.TypeLink, TableName: "projects",
			Options: map[string]any{"linkedTable": "people"}},
		{Name: "Checkbox", Type: schema.FieldType("checkbox"), TableName: "projects"},
	}

	plan := reg.PlanTable("projects", fields)

	if len(plan.Columns) != 5 {
		t.Fatalf("expected 5 columns (record id + 4 fields), got %d", len(plan.Columns))
	}
	first := plan.Columns[0].Column
	if first.Name != RecordIDColumn || first.Nullable {
		t.Errorf("first column = %+v, want non-null %s", first, RecordIDColumn)
	}
	if first.MappedBy != "system" {
		t.Errorf("record id MappedBy = %q, want system", first.MappedBy)
	}
	if len(plan.Unsupported) != 1 || plan.Unsupported[0] != "Checkbox" {
		t.Errorf("Unsupported = %v, want [Checkbox]", plan.Unsupported)
	}

	staging := plan.StagingColumns()
	if len(staging) != 1 || staging[0].Column.Name != "owner" {
		t.Errorf("staging columns = %v, want [owner]", staging)
	}

	names := plan.ColumnNames()
	want := []string{"record_id", "name", "budget", "owner", "checkbox"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("column %d = %q, want %q", i, names[i], n)
		}
	}
}

func TestPlanTableDedupesCollisions(t *testing.T) {
	reg := NewRegistry()
	fields := []schema.FieldDefinition{
		{Name: "Total %", Type: schema.TypePercent},
		{Name: "total", Type: schema.TypeNumber},
		{Name: "Total!", Type: schema.TypeRating},
	}

	plan := reg.PlanTable("stats", fields)

	names := plan.ColumnNames()
	want := []string{"record_id", "total", "total_2", "total_3"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("column %d = %q, want %q (all: %v)", i, names[i], n, names)
		}
	}

	// Constraints must follow the renamed column
	rating := plan.Columns[3].Column
	if len(rating.Constraints) != 1 {
		t.Fatalf("rating constraints = %v", rating.Constraints)
	}
	if !strings.Contains(rating.Constraints[0], "total_3 >= 1") {
		t.Errorf("constraint not renamed: %s", rating.Constraints[0])
	}

	// Same input plans identically on a fresh registry
	again := NewRegistry().PlanTable("stats", fields)
	for i := range plan.Columns {
		if plan.Columns[i].Column.Name != again.Columns[i].Column.Name {
			t.Errorf("plan not deterministic at column %d", i)
		}
	}
}

func TestPlanTableFieldNamedRecordID(t *testing.T) {
	reg := NewRegistry()
	plan := reg.PlanTable("t", []schema.FieldDefinition{
		{Name: "Record ID", Type: schema.TypeText},
	})
	names := plan.ColumnNames()
	if names[0] != "record_id" || names[1] != "record_id_2" {
		t.Errorf("columns = %v, want [record_id record_id_2]", names)
	}
}

func TestAnalyzeFields(t *testing.T) {
	reg := NewRegistry()
	fields := []schema.FieldDefinition{
		{Name: "Name", Type: schema.TypeText},
		{Name: "Owner", Type: schema.TypeLink},
		{Name: "Tags", Type: schema.TypeMultiSelect},
		{Name: "Status", Type: schema.TypeSingleSelect},
		{Name: "Total", Type: schema.TypeRollup},
		{Name: "Due", Type: schema.TypeDate},
	}

	a := reg.AnalyzeFields(fields)

	if len(a.LinkFields) != 1 || a.LinkFields[0].Name != "Owner" {
		t.Errorf("LinkFields = %v", a.LinkFields)
	}
	if len(a.SelectFields) != 2 {
		t.Errorf("SelectFields = %d, want 2", len(a.SelectFields))
	}
	if len(a.ComputedFields) != 1 || a.ComputedFields[0].Name != "Total" {
		t.Errorf("ComputedFields = %v", a.ComputedFields)
	}
	// Owner and Tags stage; the rest are standard
	if len(a.StagingColumns) != 2 {
		t.Errorf("StagingColumns = %d, want 2", len(a.StagingColumns))
	}
	if len(a.StandardColumns) != 4 {
		t.Errorf("StandardColumns = %d, want 4", len(a.StandardColumns))
	}
}

func TestCoverage(t *testing.T) {
	reg := NewRegistry()
	fields := []schema.FieldDefinition{
		{Name: "a", Type: schema.TypeText},
		{Name: "b", Type: schema.TypeNumber},
		{Name: "c", Type: schema.FieldType("barcode")},
		{Name: "d", Type: schema.FieldType("barcode")},
	}

	cov := reg.CoverageFor(fields)

	if cov.Supported != 2 || cov.Unsupported != 2 {
		t.Errorf("coverage = %d/%d, want 2/2", cov.Supported, cov.Unsupported)
	}
	if cov.Percentage != 50 {
		t.Errorf("Percentage = %v, want 50", cov.Percentage)
	}
	bc := cov.ByType[schema.FieldType("barcode")]
	if bc.Count != 2 || bc.Supported != 0 {
		t.Errorf("barcode coverage = %+v", bc)
	}
	txt := cov.ByType[schema.TypeText]
	if txt.Count != 1 || txt.Supported != 1 {
		t.Errorf("text coverage = %+v", txt)
	}
}

func TestCoverageEmpty(t *testing.T) {
	cov := NewRegistry().CoverageFor(nil)
	if cov.Percentage != 0 || cov.Supported != 0 {
		t.Errorf("empty coverage = %+v", cov)
	}
}

func TestRegistryAdditionalDDL(t *testing.T) {
	reg := NewRegistry()
	plan := reg.PlanTable("projects", []schema.FieldDefinition{
		{Name: "Name", Type: schema.TypeText},
		{Name: "Owner", Type: schema.TypeLink},
		{Name: "Crew", Type: schema.TypeLink},
	})

	ddl := reg.AdditionalDDL(plan)
	if len(ddl) != 2 {
		t.Fatalf("expected 2 statements, got %d: %v", len(ddl), ddl)
	}
	for _, stmt := range ddl {
		if !strings.Contains(stmt, "IF NOT EXISTS") {
			t.Errorf("statement not idempotent: %s", stmt)
		}
	}
}
