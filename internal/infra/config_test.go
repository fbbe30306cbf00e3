package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != 8080 {
		t.Fatalf("server.port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Audit.FlushInterval != 5*time.Second || cfg.Audit.FlushThreshold != 10 {
		t.Fatalf("audit defaults: %+v", cfg.Audit)
	}
	if cfg.Audit.RetentionDays != 90 {
		t.Fatalf("audit.retention_days = %d, want 90", cfg.Audit.RetentionDays)
	}
	if cfg.RateLimit.Window != time.Minute || cfg.RateLimit.MaxCount != 100 {
		t.Fatalf("ratelimit defaults: %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.StoreTimeout != 500*time.Millisecond {
		t.Fatalf("ratelimit.store_timeout = %v", cfg.RateLimit.StoreTimeout)
	}
}

func TestEnvOverridesDefaults(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("REDIS_ADDR", "redis-ha:6379")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("server.port = %d, want 9000 from ENV", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis-ha:6379" {
		t.Fatalf("redis.addr = %q", cfg.Redis.Addr)
	}
}

func TestKeyMaterialFromEnv(t *testing.T) {
	t.Setenv("AUTH_PUBLIC_KEY_DATA", "-----BEGIN PUBLIC KEY-----")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if string(cfg.Auth.PublicKey) != "-----BEGIN PUBLIC KEY-----" {
		t.Fatalf("auth.PublicKey = %q", cfg.Auth.PublicKey)
	}
}
