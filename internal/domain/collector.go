// Package domain holds the pure value types from SPEC_FULL.md §4. These are
// storage-agnostic; internal/store carries the GORM-tagged row types that
// persist them.
package domain

import "time"

// SourceKind classifies a collector's upstream data family.
type SourceKind string

const (
	SourceOnChain  SourceKind = "onchain"
	SourceSocial   SourceKind = "social"
	SourceMarket   SourceKind = "market"
	SourceMacro    SourceKind = "macro"
	SourceExchange SourceKind = "exchange"
	SourceDeFi     SourceKind = "defi"
)

// BreakerState is one of the three circuit breaker states.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// HealthStatus is the per-cycle health record a collector emits.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthDegraded    HealthStatus = "degraded"
	HealthFailed      HealthStatus = "failed"
	HealthCircuitOpen HealthStatus = "circuit_open"
)

// CollectorStats accumulates lifetime counters for a collector instance.
type CollectorStats struct {
	TotalRequests int64
	TotalErrors   int64
	TotalRecords  int64
	LastError     string
	LastErrorAt   time.Time
}

// RateLimitConfig configures a collector's adaptive token bucket.
type RateLimitConfig struct {
	MaxPerSecond     float64
	BackoffMultiplier float64
	MaxBackoff       time.Duration
}

// CollectorState is one per collector instance (SPEC_FULL §4).
type CollectorState struct {
	Name              string
	SourceKind        SourceKind
	Enabled           bool
	RateLimit         RateLimitConfig
	BreakerState      BreakerState
	ConsecutiveFails  int
	HalfOpenSuccesses int
	NextAttemptAt     time.Time
	LastOKAt          time.Time
	Stats             CollectorStats
}

// HealthRecord is the per-cycle health emission from SPEC_FULL §4.2.
type HealthRecord struct {
	Collector        string
	Status           HealthStatus
	LatencyMS        int64
	RecordsCollected int
	ErrorMessage     string
	At               time.Time
}
