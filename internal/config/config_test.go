package config

import (
	"os"
	"testing"
)

func TestDefaultsMatchDocumentedValues(t *testing.T) {
	d := Defaults()
	if d.Memory.SessionTTLSeconds != 600 {
		t.Fatalf("expected default session TTL 600, got %d", d.Memory.SessionTTLSeconds)
	}
	if d.Memory.StreamLoadLimit != 200 {
		t.Fatalf("expected default stream load limit 200, got %d", d.Memory.StreamLoadLimit)
	}
	if d.Memory.WindowTokens != 32000 {
		t.Fatalf("expected default window tokens 32000, got %d", d.Memory.WindowTokens)
	}
	if d.Memory.InsertBudgetTokens != 4000 {
		t.Fatalf("expected default insert budget 4000, got %d", d.Memory.InsertBudgetTokens)
	}
}

func TestLoadWithMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Memory.WindowTokens != 32000 {
		t.Fatalf("expected default window tokens, got %d", cfg.Memory.WindowTokens)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MEMORY_WINDOW_TOKENS", "1234")
	t.Setenv("POSTGRES_DSN", "postgres://env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Memory.WindowTokens != 1234 {
		t.Fatalf("expected env override to win, got %d", cfg.Memory.WindowTokens)
	}
	if cfg.Postgres.DSN != "postgres://env" {
		t.Fatalf("expected env DSN, got %q", cfg.Postgres.DSN)
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	yamlContent := "memory:\n  window_tokens: 9000\n  max_threads: 7\n"
	if err := os.WriteFile(path, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Memory.WindowTokens != 9000 {
		t.Fatalf("expected YAML value 9000, got %d", cfg.Memory.WindowTokens)
	}
	if cfg.Memory.MaxThreads != 7 {
		t.Fatalf("expected YAML value 7, got %d", cfg.Memory.MaxThreads)
	}
}
