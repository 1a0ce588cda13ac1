package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	l, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := l.Config()
	if cfg.Server.Addr != ":8000" {
		t.Fatalf("server.addr = %q, want :8000", cfg.Server.Addr)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Fatalf("auth.token_ttl = %v", cfg.Auth.TokenTTL)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("database.driver = %q", cfg.Database.Driver)
	}
	if !cfg.UsingDevSecret() {
		t.Fatalf("expected dev secret by default")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := "server:\n  addr: \":9000\"\ndatabase:\n  driver: memory\ncache:\n  schema_ttl: 30s\n"
	if err := os.WriteFile(filepath.Join(root, "config", "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HITL_AUTH_JWT_SECRET", "s3cret")

	l, err := Load(root)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg := l.Config()
	if cfg.Server.Addr != ":9000" {
		t.Fatalf("server.addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Database.Driver != "memory" {
		t.Fatalf("database.driver = %q, want memory", cfg.Database.Driver)
	}
	if cfg.Cache.SchemaTTL != 30*time.Second {
		t.Fatalf("cache.schema_ttl = %v, want 30s", cfg.Cache.SchemaTTL)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("auth.jwt_secret = %q, want env value", cfg.Auth.JWTSecret)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	root := t.TempDir()
	t.Setenv("HITL_DATABASE_DRIVER", "postgres")
	if _, err := Load(root); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
