package gateway

import (
	"context"
	"net"
	"sync"
	"time"
)

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxHosts = 10000
)

// authRateLimiter blocks a host after too many failed auth attempts inside a
// sliding window. Both the WebSocket handshake and REST bearer auth count.
type authRateLimiter struct {
	window   time.Duration
	maxFails int
	maxHosts int
	now      func() time.Time

	mu       sync.Mutex
	failures map[string][]time.Time
}

func newAuthRateLimiter() *authRateLimiter {
	return &authRateLimiter{
		window:   authRateWindow,
		maxFails: authRateMaxFails,
		maxHosts: authRateMaxHosts,
		now:      time.Now,
		failures: make(map[string][]time.Time),
	}
}

// run prunes expired entries every minute until ctx is done.
func (l *authRateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *authRateLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	for host := range l.failures {
		l.recentLocked(host, cutoff)
	}
}

// recentLocked drops failures at or before cutoff and returns what is left.
func (l *authRateLimiter) recentLocked(host string, cutoff time.Time) []time.Time {
	times := l.failures[host]
	i := 0
	for i < len(times) && !times[i].After(cutoff) {
		i++
	}
	times = times[i:]
	if len(times) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = times
	return times
}

func (l *authRateLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recentLocked(remoteHost(remoteAddr), l.now().Add(-l.window))) < l.maxFails
}

func (l *authRateLimiter) recordFailure(remoteAddr string) {
	host := remoteHost(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.failures[host]; !ok && len(l.failures) >= l.maxHosts {
		l.evictOldestLocked()
	}
	l.failures[host] = append(l.failures[host], l.now())
}

// evictOldestLocked forgets the host whose first recorded failure is oldest.
func (l *authRateLimiter) evictOldestLocked() {
	var (
		oldest string
		at     time.Time
	)
	for host, times := range l.failures {
		if len(times) > 0 && (oldest == "" || times[0].Before(at)) {
			oldest, at = host, times[0]
		}
	}
	if oldest != "" {
		delete(l.failures, oldest)
	}
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}
