package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pointercrate/demonlist/internal/config"
)

// RateLimits configures the write endpoints' limiters. An n-per-window
// limit refills one token every window/n and allows bursts of n.
type RateLimits struct {
	AddDemonInterval       time.Duration
	SubmissionsPerIP       int
	SubmissionIPWindow     time.Duration
	SubmissionsGlobal      int
	SubmissionGlobalWindow time.Duration
}

// DefaultRateLimits returns the production limits.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		AddDemonInterval:       time.Minute,
		SubmissionsPerIP:       3,
		SubmissionIPWindow:     20 * time.Minute,
		SubmissionsGlobal:      20,
		SubmissionGlobalWindow: time.Hour,
	}
}

// RateLimitsFromConfig reads the limits from cfg.
func RateLimitsFromConfig(cfg *config.Config) RateLimits {
	return RateLimits{
		AddDemonInterval:       cfg.AddDemonInterval,
		SubmissionsPerIP:       cfg.SubmissionsPerIP,
		SubmissionIPWindow:     cfg.SubmissionIPWindow,
		SubmissionsGlobal:      cfg.SubmissionsGlobal,
		SubmissionGlobalWindow: cfg.SubmissionGlobalWindow,
	}
}

// limiter is a token bucket read against an injectable clock. A zero
// window or count disables it.
type limiter struct {
	lim *rate.Limiter
	now func() time.Time
}

func newLimiter(window time.Duration, n int, now func() time.Time) *limiter {
	if window <= 0 || n <= 0 {
		return &limiter{now: now}
	}
	return &limiter{lim: rate.NewLimiter(rate.Every(window/time.Duration(n)), n), now: now}
}

func (l *limiter) allow() bool {
	if l.lim == nil {
		return true
	}
	return l.lim.AllowN(l.now(), 1)
}

// keyedLimiter keeps one bucket per client address. Buckets idle for a
// full window are full again and get dropped on the next sweep.
type keyedLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	n         int
	now       func() time.Time
	buckets   map[string]*keyedBucket
	lastSweep time.Time
}

type keyedBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newKeyedLimiter(window time.Duration, n int, now func() time.Time) *keyedLimiter {
	return &keyedLimiter{
		window:  window,
		n:       n,
		now:     now,
		buckets: make(map[string]*keyedBucket),
	}
}

func (k *keyedLimiter) allow(key string) bool {
	if k.window <= 0 || k.n <= 0 {
		return true
	}
	now := k.now()

	k.mu.Lock()
	defer k.mu.Unlock()

	if now.Sub(k.lastSweep) >= k.window {
		for key, b := range k.buckets {
			if now.Sub(b.lastSeen) >= k.window {
				delete(k.buckets, key)
			}
		}
		k.lastSweep = now
	}

	b, ok := k.buckets[key]
	if !ok {
		b = &keyedBucket{lim: rate.NewLimiter(rate.Every(k.window/time.Duration(k.n)), k.n)}
		k.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}

func (k *keyedLimiter) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}

// clientIP returns the host part of the peer address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
