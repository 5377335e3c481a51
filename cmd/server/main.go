package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/app"
	"github.com/pscheid92/livepoll/internal/broadcast"
	"github.com/pscheid92/livepoll/internal/metrics"
	"github.com/pscheid92/livepoll/internal/platform/config"
	"github.com/pscheid92/livepoll/internal/platform/logging"
	"github.com/pscheid92/livepoll/internal/platform/version"
	"github.com/pscheid92/livepoll/internal/poll"
	"github.com/pscheid92/livepoll/internal/server"
)

func runGracefulShutdown(cfg *config.Config, srv *server.Server, hub *broadcast.Hub) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Ends every listener session with a going-away close frame
		hub.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRegistry(cfg *config.Config) *poll.Registry {
	registry := poll.NewRegistry(poll.NewAllocator(0))
	if !cfg.SeedDemo {
		return registry
	}

	snap, err := poll.SeedDemo(registry)
	if err != nil {
		slog.Error("Failed to seed demo poll", "error", err)
		os.Exit(1)
	}
	slog.Info("Demo poll loaded", "poll_id", snap.ID, "options", len(snap.Options))
	return registry
}

func hubHealthCheck(hub *broadcast.Hub) server.HealthCheck {
	return server.HealthCheck{Name: "hub", Check: hub.Ping}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	reg := metrics.NewRegistry()

	registry := setupRegistry(cfg)
	hub := broadcast.NewHub(clock, cfg.SubscriberBuffer, metrics.NewHubMetrics(reg))
	appSvc := app.NewService(registry, hub, metrics.NewVoteMetrics(reg), clock)

	srv := server.NewServer(cfg, appSvc, registry, hub, reg, clock, []server.HealthCheck{hubHealthCheck(hub)})

	done := runGracefulShutdown(cfg, srv, hub)

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
