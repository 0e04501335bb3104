// Package ratelimit implements the per-domain politeness spacing described
// in spec.md §4.1 (C1). It is adapted from the teacher's per-identity
// token-bucket map in api/middleware/ratelimit.go, keyed by domain instead
// of API key and using golang.org/x/time/rate's blocking Wait instead of
// the teacher's non-blocking Allow() check, since a crawler needs to pace
// itself rather than reject a caller.
package ratelimit

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter enforces a minimum spacing between successive requests to the
// same domain, and honors Retry-After on 429 responses. Safe for
// concurrent use; per-domain waits serialize so that no two requests to
// the same domain depart less than MinDelay apart (spec.md §4.1, §8.3).
type Limiter struct {
	mu            sync.Mutex
	limiters      map[string]*rate.Limiter
	lastSeen      map[string]time.Time
	minDelay      time.Duration
	maxRetryAfter time.Duration

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// New creates a Limiter with the given minimum per-domain spacing and
// Retry-After cap. Each domain gets its own single-token rate.Limiter
// ticking once every minDelay, mirroring the teacher's per-identity
// rate.Limiter map. A background goroutine evicts domain entries unseen
// for entryTTL every 5 minutes, mirroring the teacher's limiter eviction
// loop.
func New(minDelay, maxRetryAfter, entryTTL time.Duration) *Limiter {
	l := &Limiter{
		limiters:      make(map[string]*rate.Limiter),
		lastSeen:      make(map[string]time.Time),
		minDelay:      minDelay,
		maxRetryAfter: maxRetryAfter,
		stopCleanup:   make(chan struct{}),
	}
	go l.cleanupLoop(entryTTL)
	return l
}

// Close stops the background eviction goroutine.
func (l *Limiter) Close() {
	l.cleanupOnce.Do(func() { close(l.stopCleanup) })
}

func (l *Limiter) cleanupLoop(entryTTL time.Duration) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCleanup:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-entryTTL)
			l.mu.Lock()
			for domain, seen := range l.lastSeen {
				if seen.Before(cutoff) {
					delete(l.lastSeen, domain)
					delete(l.limiters, domain)
				}
			}
			l.mu.Unlock()
		}
	}
}

// limiterFor returns the rate.Limiter for domain, creating one (with a
// single-token burst refilling every minDelay) on first use.
func (l *Limiter) limiterFor(domain string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[domain]
	if !ok {
		lim = rate.NewLimiter(rate.Every(l.minDelay), 1)
		l.limiters[domain] = lim
	}
	l.lastSeen[domain] = time.Now()
	return lim
}

// WaitForDomain derives the domain from rawURL and blocks until the
// domain's rate.Limiter admits a new request, per spec.md §4.1. Respects
// ctx cancellation.
func (l *Limiter) WaitForDomain(ctx context.Context, rawURL string) error {
	domain := DomainOf(rawURL)
	return l.limiterFor(domain).Wait(ctx)
}

// HandleRetryAfter parses an HTTP Retry-After header value (either a
// delta-seconds integer or an RFC 1123 date), clamps the resulting wait to
// MaxRetryAfter, and sleeps for it. Returns the duration actually waited.
func (l *Limiter) HandleRetryAfter(ctx context.Context, value string) (time.Duration, error) {
	wait := parseRetryAfter(value)
	if wait <= 0 {
		return 0, nil
	}
	if wait > l.maxRetryAfter {
		wait = l.maxRetryAfter
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(wait):
	}
	return wait, nil
}

// parseRetryAfter supports both the numeric-seconds and HTTP-date forms
// of the Retry-After header (RFC 7231 §7.1.3).
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		d := time.Until(t)
		if d < 0 {
			return 0
		}
		return d
	}
	return 0
}

// DomainOf extracts the host (without port) from a URL for use as a rate
// limiter bucket key.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Hostname()
}
