// Package ratelimit implements the adaptive per-(collector, endpoint) token
// bucket from SPEC_FULL.md §5 (C1). It wraps golang.org/x/time/rate's
// Limiter — the idiomatic stdlib-family token bucket primitive — with the
// adaptive pacing rules the spec requires (429 backoff, X-RateLimit-*
// pacing, streak-based ramp up) and persists its state to the cache the way
// the teacher persists rate-limiter/breaker state across restarts.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"mastertrade/internal/cache"
	"mastertrade/internal/obs/logger"
)

// Stats are the cumulative counters reported by Stats().
type Stats struct {
	CurrentRate   float64
	Acquired      int64
	Throttled429  int64
	SuccessStreak int
}

// Limiter adapts its rate to upstream feedback for a single (collector,
// endpoint) pair.
type Limiter struct {
	mu           sync.Mutex
	collector    string
	endpoint     string
	limiter      *rate.Limiter
	maxRate      float64
	backoffMult  float64
	maxBackoff   time.Duration
	successStreak int
	stats        Stats
	cache        cache.Cache
}

// Config configures a Limiter's initial and ceiling rate.
type Config struct {
	Collector         string
	Endpoint          string
	InitialPerSecond  float64
	MaxPerSecond      float64
	BackoffMultiplier float64 // e.g. 2.0 halves the rate on a 429
	MaxBackoff        time.Duration
}

// New creates a Limiter, restoring the persisted rate from cache if
// present under ratelimit:{collector}:{endpoint}.
func New(cfg Config, c cache.Cache) *Limiter {
	if cfg.BackoffMultiplier <= 0 {
		cfg.BackoffMultiplier = 2.0
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}
	l := &Limiter{
		collector:   cfg.Collector,
		endpoint:    cfg.Endpoint,
		maxRate:     cfg.MaxPerSecond,
		backoffMult: cfg.BackoffMultiplier,
		maxBackoff:  cfg.MaxBackoff,
		cache:       c,
	}
	initial := cfg.InitialPerSecond
	if c != nil {
		if persisted, ok := l.loadPersisted(); ok {
			initial = persisted
		}
	}
	l.limiter = rate.NewLimiter(rate.Limit(initial), burstFor(initial))
	l.stats.CurrentRate = initial
	return l
}

func burstFor(r float64) int {
	b := int(r)
	if b < 1 {
		b = 1
	}
	return b
}

func (l *Limiter) cacheKey() string {
	return "ratelimit:" + l.collector + ":" + l.endpoint
}

func (l *Limiter) loadPersisted() (float64, bool) {
	v, ok := l.cache.Get(l.cacheKey())
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func (l *Limiter) persist() {
	if l.cache == nil {
		return
	}
	l.cache.SetTTL(l.cacheKey(), l.stats.CurrentRate, 24*time.Hour)
}

// Acquire blocks until a slot is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.stats.Acquired++
	l.mu.Unlock()
	return l.limiter.Wait(ctx)
}

// ObserveResponse adapts the rate from an upstream HTTP response. retryAfter
// is the parsed Retry-After header (0 if absent); remaining/resetIn come
// from X-RateLimit-Remaining / X-RateLimit-Reset when present (resetIn <= 0
// means absent).
func (l *Limiter) ObserveResponse(statusCode int, retryAfter time.Duration, remaining int, resetIn time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch {
	case statusCode == 429:
		l.stats.Throttled429++
		l.successStreak = 0
		newRate := l.stats.CurrentRate / l.backoffMult
		if newRate < 0.01 {
			newRate = 0.01
		}
		l.setRateLocked(newRate)
		sleep := retryAfter
		if sleep > l.maxBackoff {
			sleep = l.maxBackoff
		}
		if sleep > 0 {
			l.limiter.SetLimit(0)
			time.AfterFunc(sleep, func() {
				l.mu.Lock()
				defer l.mu.Unlock()
				l.limiter.SetLimit(rate.Limit(l.stats.CurrentRate))
			})
		}
	case remaining > 0 && resetIn > 0:
		// Pace remaining acquisitions to exhaust the budget over the reset
		// window rather than bursting it immediately.
		paced := float64(remaining) / resetIn.Seconds()
		l.setRateLocked(paced)
	case statusCode >= 200 && statusCode < 300:
		l.successStreak++
		if l.successStreak >= 50 {
			l.successStreak = 0
			newRate := l.stats.CurrentRate * 1.1
			if l.maxRate > 0 && newRate > l.maxRate {
				newRate = l.maxRate
			}
			l.setRateLocked(newRate)
		}
	}
	l.stats.SuccessStreak = l.successStreak
	l.persist()
}

// SetRate overrides the current rate directly, for an operator-issued
// Control API adjustment.
func (l *Limiter) SetRate(r float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setRateLocked(r)
	l.persist()
}

func (l *Limiter) setRateLocked(r float64) {
	l.stats.CurrentRate = r
	l.limiter.SetLimit(rate.Limit(r))
	l.limiter.SetBurst(burstFor(r))
	logRateChange(l.collector, l.endpoint, r)
}

// Stats returns a snapshot of the limiter's counters.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// logRateChange emits a debug line; kept as a named helper so call sites
// read cleanly when instrumented.
func logRateChange(collector, endpoint string, rate float64) {
	logger.Debugf("ratelimit: %s/%s now %.3f req/s", collector, endpoint, rate)
}
