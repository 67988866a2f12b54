// Package collector is the C2 ingestion framework: a polymorphic Collector
// interface plus a Registry that owns one goroutine per collector instance,
// the same map+mutex+goroutine-per-entity shape as the teacher's
// manager.TraderManager.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mastertrade/internal/breaker"
	"mastertrade/internal/domain"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/ratelimit"
	"mastertrade/internal/store"
)

// Collector is the capability set every ingestion source implements
// (SPEC_FULL §5: "on-chain, social, exchange, macro, DeFi"). A given
// instance may implement scheduled polling, a streaming subscription, or
// both; Start is responsible for running whichever loop(s) it supports
// until ctx is cancelled.
type Collector interface {
	Name() string
	SourceKind() domain.SourceKind
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	PollOnce(ctx context.Context) error
	Backfill(ctx context.Context, from, to time.Time) error
	HealthCheck(ctx context.Context) domain.HealthRecord
}

// Base bundles the rate limiter, breaker, and health bookkeeping every
// concrete collector composes, mirroring how trader/*.go in the teacher
// pack wraps a raw exchange HTTP client with shared cross-cutting state.
type Base struct {
	CollectorName string
	Kind          domain.SourceKind
	Limiter       *ratelimit.Limiter
	Breaker       *breaker.Breaker
	Store         *store.CollectorStore

	mu    sync.Mutex
	stats domain.CollectorStats
}

func (b *Base) Name() string                 { return b.CollectorName }
func (b *Base) SourceKind() domain.SourceKind { return b.Kind }

// BreakerRef exposes the collector's circuit breaker for the Control API's
// reset-breaker and health endpoints.
func (b *Base) BreakerRef() *breaker.Breaker { return b.Breaker }

// LimiterRef exposes the collector's rate limiter for the Control API's
// set-rate-limit endpoint.
func (b *Base) LimiterRef() *ratelimit.Limiter { return b.Limiter }

// Controllable is implemented by any Collector composing Base, letting the
// Control API reach into breaker/limiter state without knowing the
// concrete collector type.
type Controllable interface {
	BreakerRef() *breaker.Breaker
	LimiterRef() *ratelimit.Limiter
}

// Guard runs fn under the breaker and rate limiter: it checks the breaker is
// closed (or half-open with budget), waits for a token, invokes fn, and
// feeds the result back into both. Concrete collectors call this once per
// upstream HTTP request inside PollOnce.
func (b *Base) Guard(ctx context.Context, fn func(ctx context.Context) (statusCode int, retryAfter time.Duration, remaining int, resetIn time.Duration, err error)) error {
	if err := b.Breaker.Acquire(); err != nil {
		return err
	}
	if err := b.Limiter.Acquire(ctx); err != nil {
		return err
	}
	status, retryAfter, remaining, resetIn, err := fn(ctx)
	b.Limiter.ObserveResponse(status, retryAfter, remaining, resetIn)

	b.mu.Lock()
	b.stats.TotalRequests++
	if err != nil {
		b.stats.TotalErrors++
		b.stats.LastError = err.Error()
		b.stats.LastErrorAt = time.Now().UTC()
	}
	b.mu.Unlock()

	b.Breaker.RecordResult(err == nil)
	return err
}

// RecordRecords increments the lifetime record counter, called once per
// normalized upstream record successfully stored+published.
func (b *Base) RecordRecords(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.TotalRecords += int64(n)
}

// Stats returns a snapshot of lifetime counters.
func (b *Base) Stats() domain.CollectorStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Health builds a domain.HealthRecord from the current breaker state for
// the given cycle outcome.
func (b *Base) Health(latency time.Duration, records int, errMsg string) domain.HealthRecord {
	status := domain.HealthHealthy
	switch {
	case b.Breaker.State() == domain.BreakerOpen:
		status = domain.HealthCircuitOpen
	case errMsg != "":
		status = domain.HealthDegraded
	}
	return domain.HealthRecord{
		Collector:        b.CollectorName,
		Status:           status,
		LatencyMS:        latency.Milliseconds(),
		RecordsCollected: records,
		ErrorMessage:     errMsg,
		At:               time.Now().UTC(),
	}
}

// Registry owns the goroutine lifecycle for every registered collector.
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]Collector
	cancels    map[string]context.CancelFunc
	loadErrors map[string]error
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		collectors: make(map[string]Collector),
		cancels:    make(map[string]context.CancelFunc),
		loadErrors: make(map[string]error),
	}
}

// Register adds a collector without starting it.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collectors[c.Name()] = c
}

// StartAll launches one goroutine per registered collector, logging and
// recording (rather than propagating) any individual Start error so one
// misconfigured collector never prevents the others from running.
func (r *Registry) StartAll(parent context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, c := range r.collectors {
		ctx, cancel := context.WithCancel(parent)
		r.cancels[name] = cancel
		go func(name string, c Collector) {
			if err := c.Start(ctx); err != nil {
				r.mu.Lock()
				r.loadErrors[name] = err
				r.mu.Unlock()
				logger.WithFields(map[string]any{"collector": name, "error": err}).Error("collector exited")
			}
		}(name, c)
	}
}

// StopAll cancels every collector's context and calls Stop with a bounded
// grace period, the same pattern as main.go's traderManager.StopAll().
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, cancel := range r.cancels {
		cancel()
		if c, ok := r.collectors[name]; ok {
			stopCtx, done := context.WithTimeout(ctx, 5*time.Second)
			if err := c.Stop(stopCtx); err != nil {
				logger.Warnf("collector %s: stop: %v", name, err)
			}
			done()
		}
	}
}

// LoadErrors returns the collectors whose Start loop has exited with an
// error, for the Control API's /collectors health surface.
func (r *Registry) LoadErrors() map[string]error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]error, len(r.loadErrors))
	for k, v := range r.loadErrors {
		out[k] = v
	}
	return out
}

// All returns every registered collector, for HealthCheck sweeps.
func (r *Registry) All() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Collector, 0, len(r.collectors))
	for _, c := range r.collectors {
		out = append(out, c)
	}
	return out
}

// Get returns a registered collector by name, for the Control API's
// per-collector operations.
func (r *Registry) Get(name string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[name]
	return c, ok
}

// Disable cancels a single collector's running goroutine without
// unregistering it, so Enable can relaunch it later.
func (r *Registry) Disable(ctx context.Context, name string) error {
	r.mu.Lock()
	cancel, running := r.cancels[name]
	c, ok := r.collectors[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("collector: unknown collector %q", name)
	}
	if running {
		cancel()
		stopCtx, done := context.WithTimeout(ctx, 5*time.Second)
		defer done()
		if err := c.Stop(stopCtx); err != nil {
			logger.Warnf("collector %s: stop: %v", name, err)
		}
	}
	r.mu.Lock()
	delete(r.cancels, name)
	r.mu.Unlock()
	return nil
}

// Enable (re)launches a registered collector's Start loop.
func (r *Registry) Enable(parent context.Context, name string) error {
	r.mu.Lock()
	c, ok := r.collectors[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("collector: unknown collector %q", name)
	}
	if _, running := r.cancels[name]; running {
		r.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancels[name] = cancel
	r.mu.Unlock()
	go func() {
		if err := c.Start(ctx); err != nil {
			r.mu.Lock()
			r.loadErrors[name] = err
			r.mu.Unlock()
			logger.WithFields(map[string]any{"collector": name, "error": err}).Error("collector exited")
		}
	}()
	return nil
}
