package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CARBONLEDGER_TOKEN_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.Addr)
	}
	if cfg.TokenIssuer != "carbonledger" || cfg.TokenAudience != "carbonledger-web" {
		t.Fatalf("unexpected token defaults: %+v", cfg)
	}
	if cfg.SessionTTL != 12*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("CARBONLEDGER_TOKEN_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without token secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CARBONLEDGER_TOKEN_SECRET", "s3cret")
	t.Setenv("CARBONLEDGER_ADDR", ":9090")
	t.Setenv("CARBONLEDGER_SESSION_TTL", "30m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}

	t.Setenv("CARBONLEDGER_SESSION_TTL", "banana")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
