package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":50051" {
		t.Errorf("unexpected listen addresses %q %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.DefaultLinkTTL != 72*time.Hour {
		t.Errorf("expected default link ttl 72h, got %s", cfg.DefaultLinkTTL)
	}
	if cfg.ExtractCodeLength != 6 {
		t.Errorf("expected extract code length 6, got %d", cfg.ExtractCodeLength)
	}
	if !cfg.AutoMigrate {
		t.Error("expected auto migrate on by default")
	}
}

func TestLoadEnvOverridesDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("SUPPLY_TEST_UNUSED=1\nREQUEST_TIMEOUT=9s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Cleanup(func() { os.Unsetenv("SUPPLY_TEST_UNUSED") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("expected process env to win, got %s", cfg.RequestTimeout)
	}
	if os.Getenv("SUPPLY_TEST_UNUSED") != "1" {
		t.Error("expected dotenv values to be loaded")
	}
}

func TestLoadParseError(t *testing.T) {
	t.Setenv("AUDIT_WORKERS", "many")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestLoadRejectsInconsistentTTL(t *testing.T) {
	t.Setenv("DEFAULT_LINK_TTL", "48h")
	t.Setenv("MAX_LINK_TTL", "24h")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for max ttl below default")
	}
}

func TestNewLoggerLevel(t *testing.T) {
	if got := NewLogger("debug").GetLevel(); got != logrus.DebugLevel {
		t.Errorf("expected debug, got %s", got)
	}
	if got := NewLogger("nonsense").GetLevel(); got != logrus.InfoLevel {
		t.Errorf("expected fallback to info, got %s", got)
	}
}

func TestSetupTracingNoEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), "", "supply-share")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
