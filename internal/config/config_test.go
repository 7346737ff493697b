package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gridport.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `version: 1
source:
  base_url: https://api.example.com
  base_id: appXYZ123
  token: tok-plain
storage:
  host: localhost
  database: gridport
  username: gridport
  password: testpass
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Version != 1 {
		t.Errorf("expected version 1, got %d", cfg.Version)
	}
	if cfg.Source.BaseID != "appXYZ123" {
		t.Errorf("expected base id appXYZ123, got %s", cfg.Source.BaseID)
	}
	if cfg.Source.PageSize != 100 {
		t.Errorf("expected default page_size 100, got %d", cfg.Source.PageSize)
	}
	if cfg.Source.MaxRetries != 4 {
		t.Errorf("expected default max_retries 4, got %d", cfg.Source.MaxRetries)
	}
	if cfg.Storage.Port != 5432 {
		t.Errorf("expected default port 5432, got %d", cfg.Storage.Port)
	}
	if cfg.Storage.MaxConnections != 10 {
		t.Errorf("expected default max_connections 10, got %d", cfg.Storage.MaxConnections)
	}
	if cfg.Import.Mode != "upsert" {
		t.Errorf("expected default mode upsert, got %s", cfg.Import.Mode)
	}
	if cfg.Server.Port != 8240 {
		t.Errorf("expected default server port 8240, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadInvalidVersion(t *testing.T) {
	path := writeConfig(t, `version: 99
source:
  base_url: https://api.example.com
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid version")
	}
}

func TestAnalysisDefaults(t *testing.T) {
	path := writeConfig(t, `version: 1
source:
  base_url: https://api.example.com
  base_id: appXYZ123
  token: tok
storage:
  host: localhost
  database: gridport
  username: gridport
  password: p
analysis:
  reuse_ratio: 0.25
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Analysis.ReuseRatio != 0.25 {
		t.Errorf("explicit reuse_ratio overridden: %v", cfg.Analysis.ReuseRatio)
	}
	if cfg.Analysis.OneToManyConfidence != 0.95 {
		t.Errorf("expected default one_to_many_confidence 0.95, got %v", cfg.Analysis.OneToManyConfidence)
	}
	if cfg.Analysis.ManyToOneConfidence != 0.85 {
		t.Errorf("expected default many_to_one_confidence 0.85, got %v", cfg.Analysis.ManyToOneConfidence)
	}
}

func TestPageSizeCapped(t *testing.T) {
	path := writeConfig(t, `version: 1
source:
  base_url: https://api.example.com
  base_id: appXYZ123
  token: tok
  page_size: 9000
storage:
  host: localhost
  database: gridport
  username: gridport
  password: p
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.PageSize != 500 {
		t.Errorf("expected page_size capped at 500, got %d", cfg.Source.PageSize)
	}
}

func TestResolveEnvSecret(t *testing.T) {
	t.Setenv("TEST_SECRET", "mysecret")
	val, err := ResolveValue("${ENV:TEST_SECRET}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "mysecret" {
		t.Errorf("expected mysecret, got %s", val)
	}
}

func TestResolveEnvSecretInConfig(t *testing.T) {
	t.Setenv("GRID_TOKEN", "tok-from-env")
	path := writeConfig(t, `version: 1
source:
  base_url: https://api.example.com
  base_id: appXYZ123
  token: ${ENV:GRID_TOKEN}
storage:
  host: localhost
  database: gridport
  username: gridport
  password: p
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.Token != "tok-from-env" {
		t.Errorf("token not resolved: %q", cfg.Source.Token)
	}
}

func TestResolvePlainValue(t *testing.T) {
	val, err := ResolveValue("plaintext")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "plaintext" {
		t.Errorf("expected plaintext, got %s", val)
	}
}

func TestConnString(t *testing.T) {
	s := StorageConfig{
		Host:     "db.internal",
		Port:     5433,
		Database: "imports",
		Username: "app",
		Password: "pw",
	}
	want := "postgres://app:pw@db.internal:5433/imports?sslmode=disable"
	if got := s.ConnString(); got != want {
		t.Errorf("ConnString = %q, want %q", got, want)
	}

	s.SSL = true
	if got := s.ConnString(); got != "postgres://app:pw@db.internal:5433/imports?sslmode=require" {
		t.Errorf("ssl ConnString = %q", got)
	}
}
