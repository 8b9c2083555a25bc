package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DisconnectPolicy decides what a dropped connection does to the seats it holds.
type DisconnectPolicy string

const (
	DisconnectVacate  DisconnectPolicy = "vacate"
	DisconnectReserve DisconnectPolicy = "reserve"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string

	ResultWebhookURL string
	BotProfilesDir   string

	MatchmakingMaxWait       time.Duration
	MatchmakingSweepInterval time.Duration
	RoomMirrorTTL            time.Duration

	DisconnectPolicy DisconnectPolicy
}

// Load merges an optional .env file (see ENV_FILE) into the process env and reads the config.
// Variables already set in the environment win over the file.
func Load() (*AppConfig, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv reads the config from the process env only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:               ":5000",
		MatchmakingMaxWait:       5 * time.Minute,
		MatchmakingSweepInterval: time.Minute,
		RoomMirrorTTL:            24 * time.Hour,
		DisconnectPolicy:         DisconnectVacate,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	} else if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		cfg.ListenAddr = ":" + v
	}
	cfg.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.ResultWebhookURL = strings.TrimSpace(os.Getenv("RESULT_WEBHOOK_URL"))
	cfg.BotProfilesDir = strings.TrimSpace(os.Getenv("BOT_PROFILES_DIR"))

	var err error
	if cfg.MatchmakingMaxWait, err = durationEnv("MATCHMAKING_MAX_WAIT", cfg.MatchmakingMaxWait); err != nil {
		return nil, err
	}
	if cfg.MatchmakingSweepInterval, err = durationEnv("MATCHMAKING_SWEEP_INTERVAL", cfg.MatchmakingSweepInterval); err != nil {
		return nil, err
	}
	if cfg.RoomMirrorTTL, err = durationEnv("ROOM_MIRROR_TTL", cfg.RoomMirrorTTL); err != nil {
		return nil, err
	}

	switch v := DisconnectPolicy(strings.ToLower(strings.TrimSpace(os.Getenv("DISCONNECT_POLICY")))); v {
	case "":
	case DisconnectVacate, DisconnectReserve:
		cfg.DisconnectPolicy = v
	default:
		return nil, fmt.Errorf("DISCONNECT_POLICY must be vacate or reserve, got %q", v)
	}

	return cfg, nil
}

// durationEnv accepts Go durations ("90s", "5m") or bare seconds.
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
