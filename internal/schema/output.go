package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Snapshot is a point-in-time copy of a base's field schema, persisted so
// plans and coverage can be inspected without hitting the source again.
type Snapshot struct {
	BaseID    string    `yaml:"base_id"`
	FetchedAt time.Time `yaml:"fetched_at"`
	Tables    []Table   `yaml:"tables"`
}

// LoadYAML reads a schema snapshot from a YAML file.
func LoadYAML(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema file: %w", err)
	}
	s := &Snapshot{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return s, nil
}

// WriteYAML writes the snapshot to a YAML file at the given path.
func (s *Snapshot) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling schema: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// ToYAML returns the snapshot as a YAML byte slice.
func (s *Snapshot) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// Table returns the table with the given name, or nil.
func (s *Snapshot) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// Summary returns a human-readable summary of the snapshot.
func (s *Snapshot) Summary() string {
	var totalFields int
	byType := map[FieldType]int{}
	for _, t := range s.Tables {
		totalFields += len(t.Fields)
		for _, f := range t.Fields {
			byType[f.Type]++
		}
	}

	return fmt.Sprintf(
		"Found %d tables, %d fields (%d link, %d multi-select, %d computed)",
		len(s.Tables), totalFields,
		byType[TypeLink], byType[TypeMultiSelect],
		byType[TypeFormula]+byType[TypeRollup]+byType[TypeLookup],
	)
}
