package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LISTEN_ADDR", "PORT", "ALLOWED_ORIGINS", "REDIS_URL", "DATABASE_URL",
		"RESULT_WEBHOOK_URL", "BOT_PROFILES_DIR", "MATCHMAKING_MAX_WAIT",
		"MATCHMAKING_SWEEP_INTERVAL", "ROOM_MIRROR_TTL", "DISCONNECT_POLICY",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ListenAddr != ":5000" || cfg.MatchmakingMaxWait != 5*time.Minute || cfg.DisconnectPolicy != DisconnectVacate {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("ALLOWED_ORIGINS", " a.example , ,b.example")
	t.Setenv("MATCHMAKING_MAX_WAIT", "90")
	t.Setenv("MATCHMAKING_SWEEP_INTERVAL", "15s")
	t.Setenv("DISCONNECT_POLICY", "Reserve")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Fatalf("listen=%q", cfg.ListenAddr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "b.example" {
		t.Fatalf("origins=%v", cfg.AllowedOrigins)
	}
	if cfg.MatchmakingMaxWait != 90*time.Second || cfg.MatchmakingSweepInterval != 15*time.Second {
		t.Fatalf("durations: %v %v", cfg.MatchmakingMaxWait, cfg.MatchmakingSweepInterval)
	}
	if cfg.DisconnectPolicy != DisconnectReserve {
		t.Fatalf("policy=%q", cfg.DisconnectPolicy)
	}
}

func TestInvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCONNECT_POLICY", "forever")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected policy error")
	}
	clearEnv(t)
	t.Setenv("MATCHMAKING_MAX_WAIT", "-3m")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected duration error")
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("REDIS_URL")
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("REDIS_URL=redis://localhost:6379/2\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("REDIS_URL") })
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisURL != "redis://localhost:6379/2" {
		t.Fatalf("redis url=%q", cfg.RedisURL)
	}
}
