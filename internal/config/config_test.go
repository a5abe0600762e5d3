package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Fatalf("expected memory driver default, got %s", cfg.Storage.Driver)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
}

func TestLoadYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte("server:\n  port: 9999\nlogging:\n  level: debug\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("READSPEED_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("expected yaml port 9999, got %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("expected yaml level debug, got %s", cfg.Logging.Level)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Fatalf("expected default host to survive overlay, got %s", cfg.Server.Host)
	}
}

func TestLoadEnvWinsOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("READSPEED_CONFIG", path)
	t.Setenv("SERVER_PORT", "7777")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Fatalf("expected env port 7777, got %d", cfg.Server.Port)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("READSPEED_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Fatalf("expected defaults, got driver %s", cfg.Storage.Driver)
	}
}

func TestValidateDriverRequirements(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = DriverPostgres
	if err := cfg.Validate(); err == nil {
		t.Fatal("postgres driver without DSN should fail validation")
	}
	cfg.Database.DSN = "postgres://localhost/readspeed"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid postgres config, got %v", err)
	}

	cfg = Default()
	cfg.Storage.Driver = DriverSupabase
	if err := cfg.Validate(); err == nil {
		t.Fatal("supabase driver without credentials should fail validation")
	}
	cfg.Supabase.URL = "https://project.supabase.co"
	cfg.Supabase.ServiceKey = "service-key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid supabase config, got %v", err)
	}

	cfg = Default()
	cfg.Storage.Driver = "cassandra"
	if err := cfg.Validate(); err == nil {
		t.Fatal("unknown driver should fail validation")
	}
}

func TestCSVHelpers(t *testing.T) {
	cfg := Default()
	cfg.Auth.AdminEmails = "Admin@Example.com, second@example.com ,"
	got := cfg.AdminEmailList()
	if len(got) != 2 {
		t.Fatalf("expected 2 admin emails, got %d", len(got))
	}
	if got[0] != "admin@example.com" {
		t.Fatalf("expected lower-cased email, got %s", got[0])
	}
	if list := cfg.AllowedOriginList(); list != nil {
		t.Fatalf("expected nil origins for empty config, got %v", list)
	}
}
