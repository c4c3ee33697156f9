package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        int
	NatsURL     string
	NatsToken   string
	DatabaseURL string
	LogLevel    string
	APIToken    string

	EmbedURL   string
	EmbedKey   string
	EmbedModel string

	// Trust engine policy knobs.
	BaseTTLDays          int
	MaxTTLDays           int
	StrongPassExtendDays int
	StrongFailReduceDays int
	FailFloorDays        int
	DecayHoursPerIdleDay int
	AnomalyWindow        int
	DemotionPolicy       string // "l3-only" or "strict"
	LockWait             time.Duration
	SweepInterval        time.Duration
	SweepBatch           int
	SearchMinResults     int
}

func Load() Config {
	return Config{
		Port:        envInt("QAMEM_PORT", 8760),
		NatsURL:     envStr("NATS_URL", "nats://localhost:4222"),
		NatsToken:   envStr("NATS_TOKEN", ""),
		DatabaseURL: envStr("DATABASE_URL", ""),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		APIToken:    envStr("QAMEM_API_TOKEN", ""),

		EmbedURL:   envStr("EMBED_URL", "http://localhost:11434"),
		EmbedKey:   envStr("EMBED_API_KEY", ""),
		EmbedModel: envStr("EMBED_MODEL", "nomic-embed-text"),

		BaseTTLDays:          envInt("QAMEM_BASE_TTL_DAYS", 14),
		MaxTTLDays:           envInt("QAMEM_MAX_TTL_DAYS", 180),
		StrongPassExtendDays: envInt("QAMEM_STRONG_PASS_EXTEND_DAYS", 30),
		StrongFailReduceDays: envInt("QAMEM_STRONG_FAIL_REDUCE_DAYS", 30),
		FailFloorDays:        envInt("QAMEM_FAIL_FLOOR_DAYS", 7),
		DecayHoursPerIdleDay: envInt("QAMEM_DECAY_HOURS_PER_IDLE_DAY", 12),
		AnomalyWindow:        envInt("QAMEM_ANOMALY_WINDOW", 4),
		DemotionPolicy:       envStr("QAMEM_DEMOTION_POLICY", "l3-only"),
		LockWait:             envDur("QAMEM_LOCK_WAIT", 200*time.Millisecond),
		SweepInterval:        envDur("QAMEM_SWEEP_INTERVAL", time.Hour),
		SweepBatch:           envInt("QAMEM_SWEEP_BATCH", 200),
		SearchMinResults:     envInt("QAMEM_SEARCH_MIN_RESULTS", 3),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
