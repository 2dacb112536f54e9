package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.Server.Port)
	}
	if cfg.JWT.AccessTokenMinutes != 15 || cfg.JWT.RefreshTokenDays != 14 {
		t.Errorf("unexpected default token lifetimes: %+v", cfg.JWT)
	}
	if cfg.Session.ConcurrentTurn != "serialize" {
		t.Errorf("expected serialize default, got %q", cfg.Session.ConcurrentTurn)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
engine:
  provider: anthropic
  stop_tokens:
    - "User:"
    - "Assistant:"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Engine.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %q", cfg.Engine.Provider)
	}
	if len(cfg.Engine.StopTokens) != 2 || cfg.Engine.StopTokens[0] != "User:" {
		t.Errorf("unexpected stop tokens: %v", cfg.Engine.StopTokens)
	}

	// Unset fields fall back to defaults.
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected default driver sqlite, got %q", cfg.Database.Driver)
	}
	if cfg.JWT.PrivateKeyPath != "signing-key.pem" {
		t.Errorf("expected default signing key path, got %q", cfg.JWT.PrivateKeyPath)
	}
	if cfg.Engine.Temperature != 0.6 {
		t.Errorf("expected default temperature 0.6, got %v", cfg.Engine.Temperature)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("ENGINE_PROVIDER", "openai")
	t.Setenv("ENGINE_STOP_TOKENS", "User:, System: ,")
	t.Setenv("JWT_ACCESS_MINUTES", "5")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %q", cfg.Server.Port)
	}
	if cfg.Engine.Provider != "openai" {
		t.Errorf("expected provider openai, got %q", cfg.Engine.Provider)
	}
	if len(cfg.Engine.StopTokens) != 2 || cfg.Engine.StopTokens[1] != "System:" {
		t.Errorf("unexpected stop tokens: %v", cfg.Engine.StopTokens)
	}
	if cfg.JWT.AccessTokenMinutes != 5 {
		t.Errorf("expected access minutes 5, got %d", cfg.JWT.AccessTokenMinutes)
	}
}
