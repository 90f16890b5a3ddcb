package console

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Login limiter defaults.
const (
	loginMaxFailures = 5
	loginWindow      = 15 * time.Minute
	loginLockout     = 15 * time.Minute
)

// LoginLimiter counts failed logins per client IP over a sliding window and
// locks the IP out once the limit is reached.
type LoginLimiter struct {
	mu       sync.Mutex
	limit    int
	window   time.Duration
	lockout  time.Duration
	failures map[string][]time.Time
	locked   map[string]time.Time
	now      func() time.Time
}

// NewLoginLimiter creates a limiter. If limit <= 0, no IP is ever locked out.
func NewLoginLimiter(limit int, window, lockout time.Duration) *LoginLimiter {
	if window <= 0 {
		window = loginWindow
	}
	if lockout <= 0 {
		lockout = loginLockout
	}
	return &LoginLimiter{
		limit:    limit,
		window:   window,
		lockout:  lockout,
		failures: make(map[string][]time.Time),
		locked:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// Check reports whether ip may attempt a login, and if not, how long until it may.
func (l *LoginLimiter) Check(ip string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.locked[ip]
	if !ok {
		return true, 0
	}
	now := l.now()
	if now.Before(until) {
		return false, until.Sub(now)
	}
	delete(l.locked, ip)
	delete(l.failures, ip)
	return true, 0
}

// RecordFailure counts a failed attempt. It returns the lockout duration when
// this failure triggered one, otherwise zero.
func (l *LoginLimiter) RecordFailure(ip string) time.Duration {
	if l.limit <= 0 {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	// Prune old timestamps
	timestamps := l.failures[ip]
	pruned := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	pruned = append(pruned, now)

	if len(pruned) >= l.limit {
		l.locked[ip] = now.Add(l.lockout)
		delete(l.failures, ip)
		return l.lockout
	}
	l.failures[ip] = pruned
	return 0
}

// RecordSuccess clears the failure history of ip.
func (l *LoginLimiter) RecordSuccess(ip string) {
	l.mu.Lock()
	delete(l.failures, ip)
	delete(l.locked, ip)
	l.mu.Unlock()
}

// clientIP returns the remote IP. X-Forwarded-For is ignored; the console is
// expected to be reached directly.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
