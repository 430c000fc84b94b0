package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}
	if cfg.Validator.Timeout != 5*time.Second || cfg.Validator.Concurrency != 15 {
		t.Fatalf("unexpected validator defaults: %+v", cfg.Validator)
	}
	if cfg.Sources.APITimeout != 15*time.Second || cfg.Sources.ScraperTimeout != 10*time.Second {
		t.Fatalf("unexpected source timeouts: %+v", cfg.Sources)
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Validator.Concurrency = 0
	cfg.Sources.APITimeout = 0
	cfg.LogLevel = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"validator.concurrency", "sources.api_timeout", "log_level"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadLayersFileAndEnvironment(t *testing.T) {
	orig := GetConfig()
	t.Cleanup(func() { _ = SetConfig(orig) })

	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := "validator:\n  concurrency: 30\nsources:\n  scraper_timeout: 3s\n  disabled:\n    - hidemy.name\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	t.Setenv("PROXY_UNIVERSE_VALIDATOR_TIMEOUT", "2s")

	cfg, err := Load(NewViper(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Validator.Concurrency != 30 {
		t.Fatalf("concurrency = %d, want 30", cfg.Validator.Concurrency)
	}
	if cfg.Validator.Timeout != 2*time.Second {
		t.Fatalf("timeout = %s, want 2s", cfg.Validator.Timeout)
	}
	if cfg.Sources.ScraperTimeout != 3*time.Second {
		t.Fatalf("scraper timeout = %s, want 3s", cfg.Sources.ScraperTimeout)
	}
	if cfg.Sources.APITimeout != 15*time.Second {
		t.Fatalf("api timeout = %s, want default 15s", cfg.Sources.APITimeout)
	}
	if !cfg.IsSourceDisabled("HideMy.Name") {
		t.Fatal("expected hidemy.name to be disabled")
	}
	if GetConfig().Validator.Concurrency != 30 {
		t.Fatal("Load did not store the active configuration")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing settings file")
	}
}
