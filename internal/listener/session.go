package listener

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/livepoll/internal/broadcast"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
	maxReadBytes  = 4096
)

// errClientClosed ends the session when the client goes away.
var errClientClosed = errors.New("client closed connection")

// Subscriber is the part of the hub a session needs.
type Subscriber interface {
	Subscribe(filter broadcast.Filter) (*broadcast.Subscription, error)
	Unsubscribe(sub *broadcast.Subscription)
}

// Session forwards snapshots to one websocket connection.
type Session struct {
	id      uuid.UUID
	conn    *websocket.Conn
	filter  broadcast.Filter
	hub     Subscriber
	polls   domain.PollReader
	clock   clockwork.Clock
	metrics *metrics.WebSocketMetrics

	// lastSent is only touched by the write loop.
	lastSent  map[domain.PollID]uint64
	closing   atomic.Bool
	closeOnce sync.Once
}

// NewSession prepares a session; m may be nil.
func NewSession(conn *websocket.Conn, hub Subscriber, polls domain.PollReader, filter broadcast.Filter, clock clockwork.Clock, m *metrics.WebSocketMetrics) *Session {
	return &Session{
		id:       uuid.New(),
		conn:     conn,
		filter:   filter,
		hub:      hub,
		polls:    polls,
		clock:    clock,
		metrics:  m,
		lastSent: make(map[domain.PollID]uint64),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

// Run blocks until the session ends and always closes the connection. A client-initiated
// close or a cancelled ctx returns nil.
func (s *Session) Run(ctx context.Context) error {
	start := s.clock.Now()
	log := slog.With("session_id", s.id.String(), "filter", s.filter.String())

	if s.metrics != nil {
		s.metrics.ActiveConnections.Inc()
		defer func() {
			s.metrics.ActiveConnections.Dec()
			s.metrics.ConnectionDuration.Observe(s.clock.Since(start).Seconds())
		}()
	}

	sub, err := s.hub.Subscribe(s.filter)
	if err != nil {
		s.shutdown(websocket.CloseTryAgainLater, "server unavailable")
		return fmt.Errorf("subscribe: %w", err)
	}
	defer s.hub.Unsubscribe(sub)

	log.Debug("Listener connected")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.readPump()
	})
	g.Go(func() error {
		return s.writePump(gctx, sub)
	})
	err = g.Wait()

	switch {
	case err == nil, errors.Is(err, errClientClosed), errors.Is(err, context.Canceled):
		log.Debug("Listener disconnected", "duration", s.clock.Since(start))
		return nil
	default:
		log.Info("Listener session ended", "error", err, "duration", s.clock.Since(start))
		return err
	}
}

// readPump discards client frames and returns once the connection is gone.
func (s *Session) readPump() error {
	s.conn.SetReadLimit(maxReadBytes)
	s.updateReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.updateReadDeadline()
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if s.closing.Load() {
				return nil
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return fmt.Errorf("read: %w", err)
			}
			return errClientClosed
		}
	}
}

// writePump owns every data write on the connection.
func (s *Session) writePump(ctx context.Context, sub *broadcast.Subscription) error {
	ticker := s.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	if err := s.sendInitialState(); err != nil {
		s.shutdown(websocket.CloseInternalServerErr, "initial state failed")
		return err
	}

	for {
		select {
		case snapshot, ok := <-sub.C():
			if !ok {
				return s.subscriptionEnded(sub.Err())
			}
			if err := s.send(snapshot); err != nil {
				s.shutdown(websocket.CloseAbnormalClosure, "")
				return err
			}
		case <-ticker.Chan():
			s.updateWriteDeadline()
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if s.metrics != nil {
					s.metrics.PingFailures.Inc()
				}
				s.shutdown(websocket.CloseAbnormalClosure, "")
				return fmt.Errorf("ping: %w", err)
			}
		case <-ctx.Done():
			s.shutdown(websocket.CloseGoingAway, "session ended")
			return ctx.Err()
		}
	}
}

func (s *Session) sendInitialState() error {
	if s.filter.PollID == 0 {
		for _, snapshot := range s.polls.List() {
			if err := s.send(snapshot); err != nil {
				return err
			}
		}
		return nil
	}

	snapshot, err := s.polls.Get(s.filter.PollID)
	if err != nil {
		return fmt.Errorf("initial state: %w", err)
	}
	return s.send(snapshot)
}

// send writes a snapshot unless a newer revision of the same poll already went out.
func (s *Session) send(snapshot domain.Snapshot) error {
	if snapshot.Revision <= s.lastSent[snapshot.ID] {
		return nil
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	s.updateWriteDeadline()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}

	s.lastSent[snapshot.ID] = snapshot.Revision
	if s.metrics != nil {
		s.metrics.MessagesSent.Inc()
	}
	return nil
}

func (s *Session) subscriptionEnded(reason error) error {
	switch {
	case errors.Is(reason, broadcast.ErrSlowSubscriber):
		s.shutdown(websocket.CloseTryAgainLater, "too slow, reconnect")
		return reason
	case errors.Is(reason, broadcast.ErrHubStopped):
		s.shutdown(websocket.CloseGoingAway, "server shutting down")
		return nil
	default:
		s.shutdown(websocket.CloseNormalClosure, "")
		return nil
	}
}

// shutdown sends a close frame (best effort) and closes the connection, which also unblocks readPump.
func (s *Session) shutdown(code int, reason string) {
	s.closeOnce.Do(func() {
		s.closing.Store(true)
		if code != websocket.CloseAbnormalClosure {
			msg := websocket.FormatCloseMessage(code, reason)
			_ = s.conn.WriteControl(websocket.CloseMessage, msg, s.clock.Now().Add(writeDeadline))
		}
		_ = s.conn.Close()
	})
}

func (s *Session) updateWriteDeadline() {
	_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
}

func (s *Session) updateReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}
