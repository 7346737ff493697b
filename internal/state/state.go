// Package state persists the CLI's working context between invocations:
// which session was last started, which tables were selected, where the
// last report landed.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gridport/gridport/internal/config"
)

const DefaultPath = "~/.gridport/state.yaml"

// State holds the CLI's working context.
type State struct {
	LastUpdated time.Time `yaml:"last_updated"`

	ConfigPath     string   `yaml:"config_path,omitempty"`
	LastSessionID  string   `yaml:"last_session_id,omitempty"`
	SelectedTables []string `yaml:"selected_tables,omitempty"`
	SchemaPath     string   `yaml:"schema_path,omitempty"`
	ReportPath     string   `yaml:"report_path,omitempty"`
}

// Load reads the state from disk. A missing file is a fresh state, not an
// error.
func Load(path string) (*State, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	s := &State{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	return s, nil
}

// Save writes the state to disk.
func (s *State) Save(path string) error {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	s.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// New creates a fresh state.
func New() *State {
	return &State{LastUpdated: time.Now()}
}
