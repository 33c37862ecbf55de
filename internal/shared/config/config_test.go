package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "")
	t.Setenv("CACHE_STORE", "")
	t.Setenv("FANOUT_TIMEOUT_SECONDS", "")

	cfg := Load()
	if cfg.Env != "dev" {
		t.Fatalf("expected env dev, got %q", cfg.Env)
	}
	if cfg.CacheStore != "memory" {
		t.Fatalf("expected memory cache store, got %q", cfg.CacheStore)
	}
	if cfg.CacheTTL != 24*time.Hour {
		t.Fatalf("expected 24h cache ttl, got %s", cfg.CacheTTL)
	}
	if cfg.FanoutTimeout != 10*time.Second {
		t.Fatalf("expected 10s fanout timeout, got %s", cfg.FanoutTimeout)
	}
	if cfg.PipelineTimeout != time.Minute {
		t.Fatalf("expected 1m pipeline timeout, got %s", cfg.PipelineTimeout)
	}
	if cfg.ObjectStoreType != "none" {
		t.Fatalf("expected object store none, got %q", cfg.ObjectStoreType)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ENV", "prod")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("CACHE_STORE", "PG")
	t.Setenv("FANOUT_TIMEOUT_SECONDS", "3")
	t.Setenv("FANOUT_CONCURRENCY", "not-a-number")
	t.Setenv("AI_ESCALATION_ENABLED", "false")

	cfg := Load()
	if cfg.Env != "production" {
		t.Fatalf("expected env production, got %q", cfg.Env)
	}
	if cfg.CacheStore != "postgres" {
		t.Fatalf("expected postgres cache store, got %q", cfg.CacheStore)
	}
	if cfg.FanoutTimeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.FanoutTimeout)
	}
	if cfg.FanoutConcurrency != 4 {
		t.Fatalf("expected fallback concurrency 4, got %d", cfg.FanoutConcurrency)
	}
	if cfg.AIEscalationGlobal {
		t.Fatalf("expected ai escalation disabled")
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("DEFAULT_QUOTA_PLAN=Premium\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("DEFAULT_QUOTA_PLAN", "")
	os.Unsetenv("DEFAULT_QUOTA_PLAN")

	cfg := Load()
	if cfg.DefaultQuotaPlan != "premium" {
		t.Fatalf("expected premium plan from .env, got %q", cfg.DefaultQuotaPlan)
	}
}
