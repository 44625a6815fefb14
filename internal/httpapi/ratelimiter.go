package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most limit events per key within window.
// Each client key gets its own window so one busy viewer cannot starve the rest.
type SlidingWindowLimiter struct {
	window time.Duration
	limit  int
	now    func() time.Time

	mu      sync.Mutex
	clients map[string][]time.Time
	sweeps  int
}

// NewSlidingWindowLimiter constructs a limiter allowing up to limit events per key per window.
// A non-positive window or limit disables limiting.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if window <= 0 || limit <= 0 {
		return &SlidingWindowLimiter{window: window, limit: limit}
	}
	if timeSource == nil {
		timeSource = time.Now
	}
	return &SlidingWindowLimiter{
		window:  window,
		limit:   limit,
		now:     timeSource,
		clients: make(map[string][]time.Time),
	}
}

// Allow reports whether the client identified by key may proceed.
func (l *SlidingWindowLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 || l.window <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := prune(l.clients[key], cutoff)
	if len(kept) >= l.limit {
		l.clients[key] = kept
		return false
	}
	l.clients[key] = append(kept, now)

	//1.- Every so often drop keys whose windows have fully expired.
	if l.sweeps++; l.sweeps >= 256 {
		l.sweeps = 0
		for client, events := range l.clients {
			if len(prune(events, cutoff)) == 0 {
				delete(l.clients, client)
			}
		}
	}
	return true
}

// Clients returns the number of keys currently tracked.
func (l *SlidingWindowLimiter) Clients() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func prune(events []time.Time, cutoff time.Time) []time.Time {
	kept := events[:0]
	for _, ts := range events {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}

// clientKey identifies the caller by remote host, ignoring the port.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
