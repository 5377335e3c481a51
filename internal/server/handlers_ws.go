package server

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/livepoll/internal/broadcast"
	apperrors "github.com/pscheid92/livepoll/internal/errors"
	"github.com/pscheid92/livepoll/internal/listener"
)

func (s *Server) registerListenerRoutes() {
	s.echo.GET("/ws", s.handleListenAll)
	s.echo.GET("/ws/polls/:id", s.handleListenPoll)
}

func (s *Server) handleListenAll(c echo.Context) error {
	return s.serveListener(c, broadcast.AllPolls())
}

// handleListenPoll rejects unknown polls before upgrading so clients get a plain 404.
func (s *Server) handleListenPoll(c echo.Context) error {
	id, err := pollIDParam(c)
	if err != nil {
		return err
	}
	if _, err := s.polls.Get(id); err != nil {
		return err
	}
	return s.serveListener(c, broadcast.OnePoll(id))
}

func (s *Server) serveListener(c echo.Context, filter broadcast.Filter) error {
	ip := c.RealIP()
	if reason, ok := s.limits.Acquire(ip); !ok {
		s.wsMetrics.ConnectionsTotal.WithLabelValues(string(reason)).Inc()
		return limitError(reason).WithContext("client_ip", ip)
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		s.wsMetrics.ConnectionsTotal.WithLabelValues("upgrade_failed").Inc()
		slog.Debug("WebSocket upgrade failed", "error", err, "client_ip", ip)
		return nil
	}
	s.wsMetrics.ConnectionsTotal.WithLabelValues("accepted").Inc()

	session := listener.NewSession(conn, s.hub, s.polls, filter, s.clock, s.wsMetrics)
	if err := session.Run(c.Request().Context()); err != nil {
		slog.Debug("Listener session failed", "session_id", session.ID().String(), "client_ip", ip, "error", err)
	}
	return nil
}

func limitError(reason LimitReason) *apperrors.Error {
	if reason == LimitReasonGlobal {
		return apperrors.UnavailableError("too many listeners")
	}
	return apperrors.RateLimitedError("too many listener connections").WithContext("reason", string(reason))
}
