package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.PGMaxConns != 20 || cfg.PGMinConns != 2 {
		t.Errorf("pool sizing = %d/%d, want 20/2", cfg.PGMaxConns, cfg.PGMinConns)
	}
	if cfg.RateLimit != 100 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %d per %s, want 100 per 1m", cfg.RateLimit, cfg.RateLimitWindow)
	}
	if cfg.HotTTL != 90*24*time.Hour {
		t.Errorf("hot TTL = %s, want 2160h", cfg.HotTTL)
	}
	if cfg.ChainMaxRetries != 5 {
		t.Errorf("chain retries = %d, want 5", cfg.ChainMaxRetries)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PG_MAX_CONNS", "8")
	t.Setenv("RATE_LIMIT", "10")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "30")

	cfg := Load()
	if cfg.PGMaxConns != 8 {
		t.Errorf("PGMaxConns = %d, want 8", cfg.PGMaxConns)
	}
	if cfg.RateLimit != 10 || cfg.RateLimitWindow != 30*time.Second {
		t.Errorf("rate limit = %d per %s, want 10 per 30s", cfg.RateLimit, cfg.RateLimitWindow)
	}
}
