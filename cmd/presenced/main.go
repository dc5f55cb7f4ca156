package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Guizzs26/gcm-presence/internal/auth"
	"github.com/Guizzs26/gcm-presence/internal/broker"
	"github.com/Guizzs26/gcm-presence/internal/catalog"
	"github.com/Guizzs26/gcm-presence/internal/clock"
	"github.com/Guizzs26/gcm-presence/internal/config"
	"github.com/Guizzs26/gcm-presence/internal/dashboard"
	"github.com/Guizzs26/gcm-presence/internal/db"
	"github.com/Guizzs26/gcm-presence/internal/httpapi"
	"github.com/Guizzs26/gcm-presence/internal/projection"
	"github.com/Guizzs26/gcm-presence/internal/reset"
	"github.com/Guizzs26/gcm-presence/internal/service"
	"github.com/Guizzs26/gcm-presence/internal/session"
	"github.com/Guizzs26/gcm-presence/internal/store"
	"github.com/Guizzs26/gcm-presence/pkg/infra"
)

func main() {
	cfg := config.Load()
	logger := infra.SetupLogger(cfg)
	slog.SetDefault(logger)
	defer infra.CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("FATAL: presenced stopped", "error", err)
		infra.CloseLogger()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return err
	}
	cal, err := clock.New(cfg.Timezone, nil)
	if err != nil {
		return err
	}
	policy, err := reset.ParsePolicy(cfg.StalenessPolicy)
	if err != nil {
		return err
	}

	logger.Info("🔧 Initializing presence service...",
		"backend", cfg.StoreBackend,
		"root", cfg.StoreRoot,
		"timezone", cfg.Timezone,
		"policy", policy,
		"interval", cfg.ResetInterval,
	)

	paths := store.NewPaths(cfg.StoreRoot)
	st, closeStore, err := db.OpenStore(ctx, cfg, paths, cal, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	dispatcher := broker.NewDispatcher(logger)
	brokerDone := make(chan struct{})
	var brokerStatus httpapi.BrokerStatus
	if cfg.RabbitMQURL != "" {
		brokerStatus = dispatcher
		go func() {
			defer close(brokerDone)
			dial := func() (broker.Link, error) {
				c, err := broker.NewRabbitMQClient(cfg.RabbitMQURL, logger)
				if err != nil {
					return nil, err
				}
				return c, nil
			}
			dispatcher.Run(ctx, dial, infra.NewBackoff(1*time.Second, 60*time.Second, 2.0))
		}()
	} else {
		close(brokerDone)
		logger.Warn("RABBITMQ_URL not set, presence events will not be fanned out")
	}

	proj := projection.New(logger)
	coord := reset.New(st, paths, cal, logger,
		reset.WithPolicy(policy),
		reset.WithInterval(cfg.ResetInterval),
		reset.WithNotifier(dispatcher),
	)
	sess := session.New(st, paths, proj, coord, logger)
	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Stop()

	gate := auth.NewGate(cfg.RegionPasswordHashes, cfg.AdminPasswordHash)
	// regiões sem senha ficam somente leitura
	for _, region := range cat.Regions {
		if !gate.HasRegion(region.ID) {
			logger.Warn("Region has no password configured, its presence writes will be refused", "region", region.ID)
		}
	}

	builder := dashboard.NewBuilder(cat, cal)
	router := httpapi.NewRouter(httpapi.Services{
		Presence:  service.NewPresenceService(st, proj, dispatcher, cat, cal, paths, logger),
		Records:   proj,
		Reset:     coord,
		Gate:      gate,
		Catalog:   cat,
		Dashboard: builder,
		Export:    dashboard.NewExporter(builder, logger),
		Broker:    brokerStatus,
	}, logger)

	go infra.StartObservabilityServer(ctx, cfg.MetricsPort, func() error {
		if coord.State() == reset.StateUnknown {
			return errors.New("reset state unknown")
		}
		return nil
	}, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("🚀 Presence API listening", "addr", cfg.HTTPAddr, "pid", os.Getpid())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("👋 Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	<-brokerDone

	logger.Info("✅ Shutdown complete")
	return nil
}
