package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/gcm-presence/internal/broker"
	"github.com/Guizzs26/gcm-presence/internal/config"
	"github.com/Guizzs26/gcm-presence/internal/db"
	"github.com/Guizzs26/gcm-presence/internal/service"
	"github.com/Guizzs26/gcm-presence/pkg/infra"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	if cfg.RabbitMQURL == "" {
		logger.Error("CRITICAL: RABBITMQ_URL environment variable is missing")
		os.Exit(1)
	}

	// Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("🔥 Auditor initializing...", "version", "1.0.0")

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("CRITICAL: Postgres connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("CRITICAL: failed to apply history schema", "error", err)
		os.Exit(1)
	}

	handler := service.NewAuditService(db.NewHistoryRepository(pool), logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, func() error {
		return pool.Ping(ctx)
	}, logger)

	connBackoff := infra.NewBackoff(1*time.Second, 60*time.Second, 2.0)

	for {
		select {
		case <-ctx.Done():
			logger.Info("🛑 Shutdown signal received")
			return
		default:
			// Tentativa de conexão (incluindo a primeira do boot)
			consumer, err := broker.NewAuditConsumer(cfg.RabbitMQURL, handler, logger)
			if err != nil {
				wait := connBackoff.Next()
				logger.Error("RabbitMQ connection failed, retrying...",
					"wait_duration", wait,
					"error", err,
				)

				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
					continue // Tenta novamente após o backoff
				}
			}

			// Sucesso: reseta o backoff
			connBackoff.Reset()
			logger.Info("✅ Connected to Broker. Recording presence history...")

			if err := consumer.Listen(ctx); err != nil {
				logger.Error("⚠️ Consumer connection lost", "error", err)
			}

			consumer.Close()
		}
	}
}
