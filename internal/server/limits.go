package server

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleExpiry      = 10 * time.Minute
)

// LimitReason describes why a listener connection was rejected.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

type ipEntry struct {
	active   int
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ListenerLimits caps concurrent listener connections globally and per client IP, and
// throttles how fast one IP may open new ones.
type ListenerLimits struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	maxTotal  int
	maxPerIP  int
	rate      rate.Limit
	burst     int
	total     int
	ips       map[string]*ipEntry
	cleanupAt time.Time
}

func NewListenerLimits(maxTotal, maxPerIP int, connectsPerSecond float64, burst int, clock clockwork.Clock) *ListenerLimits {
	return &ListenerLimits{
		clock:     clock,
		maxTotal:  maxTotal,
		maxPerIP:  maxPerIP,
		rate:      rate.Limit(connectsPerSecond),
		burst:     burst,
		ips:       make(map[string]*ipEntry),
		cleanupAt: clock.Now().Add(limiterCleanupInterval),
	}
}

// Acquire reserves a slot for ip. On success the caller must Release it.
func (l *ListenerLimits) Acquire(ip string) (LimitReason, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(limiterCleanupInterval)
	}

	entry, ok := l.ips[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.ips[ip] = entry
	}
	entry.lastSeen = now

	// Rate first so that rejected floods still spend tokens
	if !entry.limiter.AllowN(now, 1) {
		return LimitReasonRate, false
	}
	if l.total >= l.maxTotal {
		return LimitReasonGlobal, false
	}
	if entry.active >= l.maxPerIP {
		return LimitReasonPerIP, false
	}

	l.total++
	entry.active++
	return "", true
}

func (l *ListenerLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.ips[ip]
	if !ok || entry.active == 0 {
		return
	}
	entry.active--
	l.total--
	entry.lastSeen = l.clock.Now()
}

// Current returns the number of held slots.
func (l *ListenerLimits) Current() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Count returns the number of slots held by ip.
func (l *ListenerLimits) Count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.ips[ip]; ok {
		return entry.active
	}
	return 0
}

// cleanup drops idle IPs with no open connections. Must be called with mu held.
func (l *ListenerLimits) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdleExpiry)
	for ip, entry := range l.ips {
		if entry.active == 0 && entry.lastSeen.Before(cutoff) {
			delete(l.ips, ip)
		}
	}
}

func (l *ListenerLimits) trackedIPs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ips)
}
