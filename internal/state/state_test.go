package state

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LastSessionID != "" || len(s.SelectedTables) != 0 {
		t.Errorf("fresh state not empty: %+v", s)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")

	s := New()
	s.LastSessionID = "sess-42"
	s.SelectedTables = []string{"Projects", "Tasks"}
	s.ReportPath = "/tmp/report.json"
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.LastSessionID != "sess-42" {
		t.Errorf("LastSessionID = %q", loaded.LastSessionID)
	}
	if len(loaded.SelectedTables) != 2 || loaded.SelectedTables[1] != "Tasks" {
		t.Errorf("SelectedTables = %v", loaded.SelectedTables)
	}
	if loaded.LastUpdated.IsZero() {
		t.Error("LastUpdated not stamped on save")
	}
}
