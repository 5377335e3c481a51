package broadcast

import (
	"fmt"
	"sync"

	"github.com/pscheid92/livepoll/internal/domain"
)

// Filter selects which polls a subscription receives. The zero value matches every poll.
type Filter struct {
	PollID domain.PollID
}

// AllPolls matches snapshots of every poll.
func AllPolls() Filter { return Filter{} }

// OnePoll matches snapshots of a single poll.
func OnePoll(id domain.PollID) Filter { return Filter{PollID: id} }

func (f Filter) Matches(id domain.PollID) bool {
	return f.PollID == 0 || f.PollID == id
}

func (f Filter) String() string {
	if f.PollID == 0 {
		return "all"
	}
	return fmt.Sprintf("poll:%d", f.PollID)
}

// Subscription is one consumer's view of the hub. Snapshots arrive on C in publish order
// per poll. C is closed when the subscription ends; Err then reports why.
type Subscription struct {
	id     uint64
	filter Filter
	hub    *Hub
	ch     chan domain.Snapshot

	mu  sync.Mutex
	err error
}

// C returns the delivery channel.
func (s *Subscription) C() <-chan domain.Snapshot { return s.ch }

func (s *Subscription) Filter() Filter { return s.filter }

// Err returns nil while the subscription is live or after a normal Close,
// ErrSlowSubscriber after an eviction and ErrHubStopped after hub shutdown.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// end is only called from the hub goroutine.
func (s *Subscription) end(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
}
