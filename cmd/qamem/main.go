package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/praxis-agents/qamem/internal/api"
	"github.com/praxis-agents/qamem/internal/config"
	"github.com/praxis-agents/qamem/internal/embed"
	"github.com/praxis-agents/qamem/internal/engine"
	"github.com/praxis-agents/qamem/internal/events"
	"github.com/praxis-agents/qamem/internal/qa"
	"github.com/praxis-agents/qamem/internal/relevance"
	"github.com/praxis-agents/qamem/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("qamem starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Embeddings + similarity search
	embedder := embed.NewClient(cfg.EmbedURL, cfg.EmbedKey, cfg.EmbedModel)
	scorer := relevance.NewPGScorer(db.Pool(), embedder)
	slog.Info("embedding client ready", "model", cfg.EmbedModel)

	// NATS
	bus, err := events.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer bus.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Trust engine
	eng := engine.New(db, bus, slog.Default(), engine.Options{
		TTL: qa.TTLPolicy{
			BaseTTL:          days(cfg.BaseTTLDays),
			MaxTTL:           days(cfg.MaxTTLDays),
			StrongPassExtend: days(cfg.StrongPassExtendDays),
			StrongFailReduce: days(cfg.StrongFailReduceDays),
			FailFloor:        days(cfg.FailFloorDays),
			MediumPassFloor:  days(cfg.BaseTTLDays),
			WeakPassFloor:    days(cfg.FailFloorDays),
			DecayPerIdleDay:  time.Duration(cfg.DecayHoursPerIdleDay) * time.Hour,
		},
		Guard:    qa.GuardPolicy{AnomalyWindow: cfg.AnomalyWindow},
		Demotion: qa.DemotionPolicy(cfg.DemotionPolicy),
		LockWait: cfg.LockWait,
	})

	// Background decay sweeper
	eng.StartSweeper(ctx, cfg.SweepInterval, cfg.SweepBatch)

	// Validation events pushed over the bus
	if err := bus.Subscribe(events.SubjectValidationSubmit, eng.HandleValidationSubmit); err != nil {
		slog.Error("failed to subscribe to validation events", "error", err)
		os.Exit(1)
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
		Engine:     eng,
		Scorer:     scorer,
		Index:      scorer,
		Entries:    db,
		Tasks:      db,
		MinResults: cfg.SearchMinResults,
		SweepBatch: cfg.SweepBatch,
	})
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce readiness
	if err := bus.Publish("qamem.service.ready", map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish ready signal", "error", err)
	}

	slog.Info("qamem ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("qamem stopped")
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
