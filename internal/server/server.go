package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/livepoll/internal/domain"
	apperrors "github.com/pscheid92/livepoll/internal/errors"
	"github.com/pscheid92/livepoll/internal/listener"
	"github.com/pscheid92/livepoll/internal/metrics"
	"github.com/pscheid92/livepoll/internal/platform/config"
)

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app   domain.PollService
	polls domain.PollReader
	hub   listener.Subscriber

	upgrader     websocket.Upgrader
	limits       *ListenerLimits
	healthChecks []HealthCheck
	startTime    time.Time

	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics
	wsMetrics   *metrics.WebSocketMetrics
	errMetrics  *apperrors.Metrics
}

// NewServer wires routes and middleware. Collectors are registered on reg, which is also
// served under /metrics.
func NewServer(cfg *config.Config, app domain.PollService, polls domain.PollReader, hub listener.Subscriber, reg *prometheus.Registry, clock clockwork.Clock, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:   e,
		config: cfg,
		clock:  clock,
		app:    app,
		polls:  polls,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AllowedOrigins, cfg.IsDevelopment()),
		},
		limits:       NewListenerLimits(cfg.MaxListeners, cfg.MaxListenersPerIP, cfg.ListenerConnectRate, cfg.ListenerConnectBurst, clock),
		healthChecks: healthChecks,
		startTime:    clock.Now(),
		registry:     reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		wsMetrics:    metrics.NewWebSocketMetrics(reg),
		errMetrics:   apperrors.NewMetrics(reg),
	}

	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port, "env", s.config.AppEnv)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones. Upgraded listener
// connections are not tracked here; stopping the hub ends them.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
