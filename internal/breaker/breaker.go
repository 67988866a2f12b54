// Package breaker implements the three-state circuit breaker from
// SPEC_FULL.md §5 (C1). One Breaker is owned exclusively by its collector's
// task; cache persistence makes its state durable across restarts, the way
// the teacher's collectors persist rate-limit state.
package breaker

import (
	"math"
	"sync"
	"time"

	"mastertrade/internal/cache"
	"mastertrade/internal/domain"
	"mastertrade/internal/errs"
	"mastertrade/internal/obs/logger"
)

// Config tunes a breaker's thresholds, all defaulted per SPEC_FULL §5.
type Config struct {
	FailureThreshold        int
	TimeoutSeconds          time.Duration
	HalfOpenSuccessThreshold int
	HalfOpenMaxCalls        int
	MaxTimeout              time.Duration
}

func (c *Config) setDefaults() {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 300 * time.Second
	}
	if c.HalfOpenSuccessThreshold <= 0 {
		c.HalfOpenSuccessThreshold = 2
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 3
	}
	if c.MaxTimeout <= 0 {
		c.MaxTimeout = time.Hour
	}
}

// callRecord is used for the trailing-1000-call health score.
type callRecord struct {
	ok bool
}

// Breaker guards a single collector's upstream dependency.
type Breaker struct {
	mu                sync.Mutex
	name              string
	cfg               Config
	state             domain.BreakerState
	consecutiveFails  int
	halfOpenCalls     int
	halfOpenSuccesses int
	recoveryAttempts  int
	nextAttemptAt     time.Time
	history           []callRecord // ring buffer, capped at 1000
	cache             cache.Cache
}

// New creates a Breaker for the named collector, restoring persisted state
// from cache when present.
func New(name string, cfg Config, c cache.Cache) *Breaker {
	cfg.setDefaults()
	b := &Breaker{
		name:  name,
		cfg:   cfg,
		state: domain.BreakerClosed,
		cache: c,
	}
	if c != nil {
		if v, ok := c.Get(b.cacheKey()); ok {
			if s, ok := v.(domain.BreakerState); ok {
				b.state = s
			}
		}
	}
	return b
}

func (b *Breaker) cacheKey() string { return "breaker:" + b.name }

func (b *Breaker) persist() {
	if b.cache != nil {
		b.cache.SetTTL(b.cacheKey(), b.state, 24*time.Hour)
	}
}

// Acquire checks whether a call may proceed, transitioning open->half_open
// when the timeout has elapsed. Returns errs.CircuitOpen if the call must be
// rejected.
func (b *Breaker) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == domain.BreakerOpen {
		if time.Now().Before(b.nextAttemptAt) {
			return errs.Wrap(errs.CircuitOpen, errCircuitOpen(b.name))
		}
		b.state = domain.BreakerHalfOpen
		b.halfOpenCalls = 0
		b.halfOpenSuccesses = 0
		logger.Infof("breaker %s: open -> half_open", b.name)
		b.persist()
	}

	if b.state == domain.BreakerHalfOpen && b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
		// Exhausted the half-open trial budget without reaching the
		// success threshold; treat as still effectively open.
		return errs.Wrap(errs.CircuitOpen, errCircuitOpen(b.name))
	}
	if b.state == domain.BreakerHalfOpen {
		b.halfOpenCalls++
	}
	return nil
}

// RecordResult updates the breaker after a call completes.
func (b *Breaker) RecordResult(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recordHistory(ok)

	if ok {
		switch b.state {
		case domain.BreakerHalfOpen:
			b.halfOpenSuccesses++
			if b.halfOpenSuccesses >= b.cfg.HalfOpenSuccessThreshold {
				b.state = domain.BreakerClosed
				b.consecutiveFails = 0
				b.recoveryAttempts = 0
				logger.Infof("breaker %s: half_open -> closed", b.name)
			}
		case domain.BreakerClosed:
			b.consecutiveFails = 0
		}
		b.persist()
		return
	}

	// Failure.
	switch b.state {
	case domain.BreakerHalfOpen:
		b.openLocked()
	case domain.BreakerClosed:
		b.consecutiveFails++
		if b.consecutiveFails >= b.cfg.FailureThreshold {
			b.openLocked()
		}
	}
	b.persist()
}

func (b *Breaker) openLocked() {
	b.state = domain.BreakerOpen
	timeout := time.Duration(float64(b.cfg.TimeoutSeconds) * math.Pow(1.5, float64(b.recoveryAttempts)))
	if timeout > b.cfg.MaxTimeout {
		timeout = b.cfg.MaxTimeout
	}
	b.nextAttemptAt = time.Now().Add(timeout)
	b.recoveryAttempts++
	logger.Warnf("breaker %s: -> open, next attempt at %s", b.name, b.nextAttemptAt.Format(time.RFC3339))
}

func (b *Breaker) recordHistory(ok bool) {
	b.history = append(b.history, callRecord{ok: ok})
	if len(b.history) > 1000 {
		b.history = b.history[len(b.history)-1000:]
	}
}

// State returns the current breaker state.
func (b *Breaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// HealthScore is successes / (successes+failures) over the last 1000 calls.
func (b *Breaker) HealthScore() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.history) == 0 {
		return 1.0
	}
	successes := 0
	for _, r := range b.history {
		if r.ok {
			successes++
		}
	}
	return float64(successes) / float64(len(b.history))
}

// ForceOpen manually opens the breaker; every manual control call is logged
// with the acting operator and reason.
func (b *Breaker) ForceOpen(actor, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openLocked()
	logger.WithFields(map[string]interface{}{"actor": actor, "reason": reason}).Warnf("breaker %s: force_open", b.name)
}

// ForceClose manually closes the breaker.
func (b *Breaker) ForceClose(actor, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = domain.BreakerClosed
	b.consecutiveFails = 0
	b.recoveryAttempts = 0
	b.persist()
	logger.WithFields(map[string]interface{}{"actor": actor, "reason": reason}).Infof("breaker %s: force_close", b.name)
}

// Reset clears all counters and returns the breaker to closed.
func (b *Breaker) Reset(actor, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = domain.BreakerClosed
	b.consecutiveFails = 0
	b.recoveryAttempts = 0
	b.halfOpenCalls = 0
	b.halfOpenSuccesses = 0
	b.history = nil
	b.persist()
	logger.WithFields(map[string]interface{}{"actor": actor, "reason": reason}).Infof("breaker %s: reset", b.name)
}

type circuitOpenErr struct{ name string }

func (e *circuitOpenErr) Error() string { return "circuit open for " + e.name }

func errCircuitOpen(name string) error { return &circuitOpenErr{name: name} }
