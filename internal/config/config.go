package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gridport/gridport/internal/relationship"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.gridport/gridport.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version  int                     `yaml:"version"`
	Source   SourceConfig            `yaml:"source"`
	Storage  StorageConfig           `yaml:"storage"`
	Import   ImportConfig            `yaml:"import,omitempty"`
	Analysis relationship.Thresholds `yaml:"analysis,omitempty"`
	Server   ServerConfig            `yaml:"server,omitempty"`
	Logging  LogConfig               `yaml:"logging,omitempty"`
}

// SourceConfig defines the grid API base to import from.
type SourceConfig struct {
	BaseURL    string `yaml:"base_url"`
	BaseID     string `yaml:"base_id"`
	Token      string `yaml:"token"`
	PageSize   int    `yaml:"page_size,omitempty"`   // default 100, max 500
	MaxRetries int    `yaml:"max_retries,omitempty"` // default 4
}

// StorageConfig defines the PostgreSQL target connection.
type StorageConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Database       string `yaml:"database"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	SSL            bool   `yaml:"ssl,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"` // default 10, max 50
}

// ConnString returns the pgx connection URL for the target.
func (s StorageConfig) ConnString() string {
	ssl := "disable"
	if s.SSL {
		ssl = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.Username, s.Password, s.Host, s.Port, s.Database, ssl)
}

// ImportConfig defines import behavior defaults.
type ImportConfig struct {
	Mode        string `yaml:"mode,omitempty"` // insert, upsert, or sync
	DropStaging bool   `yaml:"drop_staging,omitempty"`
}

// ServerConfig defines the serve command's listener.
type ServerConfig struct {
	Port int `yaml:"port,omitempty"` // default 8240
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty"`          // debug, info, warn, error
	Directory     string `yaml:"directory,omitempty"`      // default ~/.gridport/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Source.PageSize == 0 {
		c.Source.PageSize = 100
	}
	if c.Source.PageSize > 500 {
		c.Source.PageSize = 500
	}
	if c.Source.MaxRetries == 0 {
		c.Source.MaxRetries = 4
	}
	if c.Storage.Port == 0 {
		c.Storage.Port = 5432
	}
	if c.Storage.MaxConnections == 0 {
		c.Storage.MaxConnections = 10
	}
	if c.Storage.MaxConnections > 50 {
		c.Storage.MaxConnections = 50
	}
	if c.Import.Mode == "" {
		c.Import.Mode = "upsert"
	}
	def := relationship.DefaultThresholds()
	if c.Analysis.OneToManyConfidence == 0 {
		c.Analysis.OneToManyConfidence = def.OneToManyConfidence
	}
	if c.Analysis.ManyToOneConfidence == 0 {
		c.Analysis.ManyToOneConfidence = def.ManyToOneConfidence
	}
	if c.Analysis.ManyToManyConfidence == 0 {
		c.Analysis.ManyToManyConfidence = def.ManyToManyConfidence
	}
	if c.Analysis.ReuseRatio == 0 {
		c.Analysis.ReuseRatio = def.ReuseRatio
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8240
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.gridport/logs/")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Source.Token, err = ResolveValue(c.Source.Token)
	if err != nil {
		return fmt.Errorf("source token: %w", err)
	}
	c.Storage.Password, err = ResolveValue(c.Storage.Password)
	if err != nil {
		return fmt.Errorf("storage password: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
