package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/livepoll/internal/domain"
	"github.com/pscheid92/livepoll/internal/metrics"
)

const (
	// DefaultQueueSize is the per-subscriber buffer used when none is configured.
	DefaultQueueSize = 16

	commandTimeout = 5 * time.Second
	stopTimeout    = 10 * time.Second
)

var (
	ErrSlowSubscriber = errors.New("subscriber queue overflowed")
	ErrHubStopped     = errors.New("hub stopped")
)

// hubCmd is the command interface for the Hub actor.
type hubCmd interface{ isHubCmd() }

type baseHubCmd struct{}

func (baseHubCmd) isHubCmd() {}

type subscribeCmd struct {
	baseHubCmd
	filter Filter
	reply  chan *Subscription
}

type unsubscribeCmd struct {
	baseHubCmd
	sub *Subscription
}

type countCmd struct {
	baseHubCmd
	reply chan int
}

type stopCmd struct {
	baseHubCmd
}

// Hub fans poll snapshots out to subscribers. It implements domain.SnapshotPublisher.
type Hub struct {
	cmdCh     chan hubCmd
	wakeCh    chan struct{}
	done      chan struct{}
	clock     clockwork.Clock
	metrics   *metrics.HubMetrics
	queueSize int
	stopOnce  sync.Once

	// mailbox, shared with publishers
	mu       sync.Mutex
	pending  map[domain.PollID]domain.Snapshot
	accepted map[domain.PollID]uint64
	stopped  bool

	// owned by the run goroutine
	subscribers map[uint64]*Subscription
	nextID      uint64
}

// NewHub starts a hub. queueSize <= 0 selects DefaultQueueSize; a nil m registers
// metrics on a private registry.
func NewHub(clock clockwork.Clock, queueSize int, m *metrics.HubMetrics) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if m == nil {
		m = metrics.NewHubMetrics(prometheus.NewRegistry())
	}

	h := &Hub{
		cmdCh:       make(chan hubCmd, 256),
		wakeCh:      make(chan struct{}, 1),
		done:        make(chan struct{}),
		clock:       clock,
		metrics:     m,
		queueSize:   queueSize,
		pending:     make(map[domain.PollID]domain.Snapshot),
		accepted:    make(map[domain.PollID]uint64),
		subscribers: make(map[uint64]*Subscription),
	}
	go h.run()
	return h
}

// Publish hands a snapshot to the hub without blocking. If a newer revision of the same poll
// is already known, the snapshot is dropped; if an older one is still waiting, it is replaced.
func (h *Hub) Publish(snapshot domain.Snapshot) {
	h.metrics.SnapshotsPublished.Inc()

	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	if snapshot.Revision <= h.accepted[snapshot.ID] {
		h.mu.Unlock()
		h.metrics.SnapshotsCoalesced.Inc()
		return
	}
	h.accepted[snapshot.ID] = snapshot.Revision
	_, replaced := h.pending[snapshot.ID]
	h.pending[snapshot.ID] = snapshot
	h.mu.Unlock()

	if replaced {
		h.metrics.SnapshotsCoalesced.Inc()
	}

	select {
	case h.wakeCh <- struct{}{}:
	default:
	}
}

// Subscribe registers a new subscriber for snapshots matching filter.
func (h *Hub) Subscribe(filter Filter) (*Subscription, error) {
	reply := make(chan *Subscription, 1)
	if err := h.send(subscribeCmd{filter: filter, reply: reply}); err != nil {
		return nil, err
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case sub := <-reply:
		return sub, nil
	case <-h.done:
		return nil, ErrHubStopped
	case <-timer.Chan():
		return nil, fmt.Errorf("subscribe command timed out after %v", commandTimeout)
	}
}

// Unsubscribe ends a subscription. Unknown or already-ended subscriptions are ignored.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	_ = h.send(unsubscribeCmd{sub: sub})
}

// SubscriberCount returns the number of live subscriptions: 0 once stopped, -1 if the hub
// is not responding.
func (h *Hub) SubscriberCount() int {
	reply := make(chan int, 1)
	if err := h.send(countCmd{reply: reply}); err != nil {
		return 0
	}

	timer := h.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case n := <-reply:
		return n
	case <-h.done:
		return 0
	case <-timer.Chan():
		slog.Warn("SubscriberCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Ping reports whether the hub goroutine still processes commands.
func (h *Hub) Ping(ctx context.Context) error {
	reply := make(chan int, 1)
	if err := h.send(countCmd{reply: reply}); err != nil {
		return err
	}

	select {
	case <-reply:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop ends every subscription with ErrHubStopped and waits for the hub goroutine to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		h.mu.Unlock()

		_ = h.send(stopCmd{})

		timer := h.clock.NewTimer(stopTimeout)
		defer timer.Stop()

		select {
		case <-h.done:
			slog.Info("Hub stopped gracefully")
		case <-timer.Chan():
			slog.Warn("Hub stop timeout exceeded", "timeout", stopTimeout)
		}
	})
}

func (h *Hub) send(cmd hubCmd) error {
	select {
	case h.cmdCh <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

func (h *Hub) run() {
	defer close(h.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Hub panic recovered", "panic", r)
			h.endAll(ErrHubStopped)
		}
	}()

	for {
		select {
		case cmd := <-h.cmdCh:
			switch c := cmd.(type) {
			case subscribeCmd:
				c.reply <- h.handleSubscribe(c.filter)
			case unsubscribeCmd:
				h.remove(c.sub, nil)
			case countCmd:
				c.reply <- len(h.subscribers)
			case stopCmd:
				h.drain()
				slog.Info("Hub shutting down", "subscribers", len(h.subscribers))
				h.endAll(ErrHubStopped)
				return
			default:
				slog.Warn("Hub received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-h.wakeCh:
			h.drain()
		}
	}
}

func (h *Hub) handleSubscribe(filter Filter) *Subscription {
	h.nextID++
	sub := &Subscription{
		id:     h.nextID,
		filter: filter,
		hub:    h,
		ch:     make(chan domain.Snapshot, h.queueSize),
	}
	h.subscribers[sub.id] = sub
	h.metrics.Subscribers.Set(float64(len(h.subscribers)))

	slog.Debug("Subscriber added", "subscription", sub.id, "filter", filter.String(), "total", len(h.subscribers))
	return sub
}

// drain swaps out the mailbox and delivers each waiting snapshot, lowest poll ID first.
func (h *Hub) drain() {
	h.mu.Lock()
	batch := h.pending
	h.pending = make(map[domain.PollID]domain.Snapshot, len(batch))
	h.mu.Unlock()

	for _, id := range slices.Sorted(maps.Keys(batch)) {
		h.fanout(batch[id])
	}
}

func (h *Hub) fanout(snapshot domain.Snapshot) {
	start := h.clock.Now()

	var slow []*Subscription
	for _, sub := range h.subscribers {
		if !sub.filter.Matches(snapshot.ID) {
			continue
		}
		select {
		case sub.ch <- snapshot:
			h.metrics.Deliveries.Inc()
		default:
			slow = append(slow, sub)
		}
	}

	for _, sub := range slow {
		slog.Warn("Evicting slow subscriber", "subscription", sub.id, "filter", sub.filter.String(), "poll_id", snapshot.ID)
		h.metrics.SlowEvictions.Inc()
		h.remove(sub, ErrSlowSubscriber)
	}

	h.metrics.FanoutDuration.Observe(h.clock.Since(start).Seconds())
}

func (h *Hub) remove(sub *Subscription, reason error) {
	if cur, ok := h.subscribers[sub.id]; !ok || cur != sub {
		return
	}
	delete(h.subscribers, sub.id)
	sub.end(reason)
	h.metrics.Subscribers.Set(float64(len(h.subscribers)))
}

func (h *Hub) endAll(reason error) {
	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		sub.end(reason)
	}
	h.metrics.Subscribers.Set(0)
}

var _ domain.SnapshotPublisher = (*Hub)(nil)
