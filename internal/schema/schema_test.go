package schema

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteAndLoadYAML(t *testing.T) {
	s := &Snapshot{
		BaseID:    "appX1",
		FetchedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		Tables: []Table{
			{
				Name: "projects",
				Fields: []FieldDefinition{
					{Name: "Name", Type: TypeText, TableName: "projects"},
					{Name: "Budget", Type: TypeCurrency, TableName: "projects"},
					{Name: "Owner", Type: TypeLink, TableName: "projects",
						Options: map[string]any{"linkedTable": "people"}},
				},
			},
			{
				Name: "people",
				Fields: []FieldDefinition{
					{Name: "Name", Type: TypeText, TableName: "people"},
					{Name: "Rating", Type: TypeRating, TableName: "people",
						Options: map[string]any{"max": 10}},
				},
			},
		},
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")

	if err := s.WriteYAML(path); err != nil {
		t.Fatalf("WriteYAML: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("schema file not created: %v", err)
	}

	loaded, err := LoadYAML(path)
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}

	if loaded.BaseID != "appX1" {
		t.Errorf("BaseID = %q, want %q", loaded.BaseID, "appX1")
	}
	if len(loaded.Tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(loaded.Tables))
	}
	if loaded.Tables[0].Name != "projects" {
		t.Errorf("first table = %q, want %q", loaded.Tables[0].Name, "projects")
	}
	if len(loaded.Tables[0].Fields) != 3 {
		t.Errorf("projects fields = %d, want 3", len(loaded.Tables[0].Fields))
	}
	owner := loaded.Tables[0].Field("Owner")
	if owner == nil {
		t.Fatal("Owner field should survive the round trip")
	}
	if owner.StringOption("linkedTable", "") != "people" {
		t.Errorf("linkedTable = %q, want %q", owner.StringOption("linkedTable", ""), "people")
	}
	rating := loaded.Tables[1].Field("Rating")
	if rating == nil {
		t.Fatal("Rating field should survive the round trip")
	}
	if got := rating.IntOption("max", 5); got != 10 {
		t.Errorf("rating max = %d, want 10", got)
	}
}

func TestLoadYAML_NotFound(t *testing.T) {
	_, err := LoadYAML("/nonexistent/path/schema.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestFieldOptions(t *testing.T) {
	f := FieldDefinition{
		Name: "Amount",
		Type: TypeNumber,
		Options: map[string]any{
			"precision": float64(2), // JSON decoding produces float64
			"symbol":    "$",
			"choices":   []any{"Todo", "Doing", "Done"},
			"weird":     struct{}{},
		},
	}

	if got := f.IntOption("precision", 0); got != 2 {
		t.Errorf("IntOption(precision) = %d, want 2", got)
	}
	if got := f.IntOption("missing", 7); got != 7 {
		t.Errorf("IntOption(missing) = %d, want default 7", got)
	}
	if got := f.IntOption("symbol", 3); got != 3 {
		t.Errorf("IntOption for non-numeric = %d, want default 3", got)
	}
	if got := f.StringOption("symbol", ""); got != "$" {
		t.Errorf("StringOption(symbol) = %q, want $", got)
	}
	if got := f.StringOption("weird", "dflt"); got != "dflt" {
		t.Errorf("StringOption(weird) = %q, want default", got)
	}
	choices := f.StringsOption("choices")
	if len(choices) != 3 || choices[0] != "Todo" {
		t.Errorf("StringsOption(choices) = %v, want [Todo Doing Done]", choices)
	}
	if f.StringsOption("missing") != nil {
		t.Error("StringsOption(missing) should be nil")
	}
}

func TestSummary(t *testing.T) {
	s := &Snapshot{
		Tables: []Table{
			{Name: "a", Fields: []FieldDefinition{{Name: "x", Type: TypeLink}, {Name: "y", Type: TypeText}}},
			{Name: "b", Fields: []FieldDefinition{{Name: "z", Type: TypeFormula}}},
		},
	}
	summary := s.Summary()
	if summary == "" {
		t.Error("summary should not be empty")
	}
}
