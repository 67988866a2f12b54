package store

import (
	"time"

	"gorm.io/gorm"

	"mastertrade/internal/domain"
)

// collectorStateRow is the gorm row for domain.CollectorState, flattening
// the nested RateLimitConfig/CollectorStats into columns the way the
// teacher's store rows flatten nested config (store/strategy.go's
// StrategyConfig-in-column pattern).
type collectorStateRow struct {
	Name              string `gorm:"column:name;primaryKey"`
	SourceKind        string `gorm:"column:source_kind;index"`
	Enabled           bool   `gorm:"column:enabled"`
	RateMaxPerSecond  float64 `gorm:"column:rate_max_per_second"`
	RateBackoffMult   float64 `gorm:"column:rate_backoff_mult"`
	RateMaxBackoffMS  int64   `gorm:"column:rate_max_backoff_ms"`
	BreakerState      string `gorm:"column:breaker_state"`
	ConsecutiveFails  int    `gorm:"column:consecutive_fails"`
	HalfOpenSuccesses int    `gorm:"column:half_open_successes"`
	NextAttemptAt     int64  `gorm:"column:next_attempt_at"`
	LastOKAt          int64  `gorm:"column:last_ok_at"`
	TotalRequests     int64  `gorm:"column:total_requests"`
	TotalErrors       int64  `gorm:"column:total_errors"`
	TotalRecords      int64  `gorm:"column:total_records"`
	LastError         string `gorm:"column:last_error"`
	LastErrorAt       int64  `gorm:"column:last_error_at"`
}

func (collectorStateRow) TableName() string { return "collector_states" }

// healthRecordRow is one append-only health emission (domain.HealthRecord).
type healthRecordRow struct {
	ID               uint   `gorm:"column:id;primaryKey;autoIncrement"`
	Collector        string `gorm:"column:collector;index"`
	Status           string `gorm:"column:status"`
	LatencyMS        int64  `gorm:"column:latency_ms"`
	RecordsCollected int    `gorm:"column:records_collected"`
	ErrorMessage     string `gorm:"column:error_message"`
	At               int64  `gorm:"column:at;index"`
}

func (healthRecordRow) TableName() string { return "collector_health_records" }

// CollectorStore persists collector state and health history (SPEC_FULL §5,
// C4).
type CollectorStore struct{ db *gorm.DB }

func toCollectorRow(s domain.CollectorState) collectorStateRow {
	return collectorStateRow{
		Name:              s.Name,
		SourceKind:        string(s.SourceKind),
		Enabled:           s.Enabled,
		RateMaxPerSecond:  s.RateLimit.MaxPerSecond,
		RateBackoffMult:   s.RateLimit.BackoffMultiplier,
		RateMaxBackoffMS:  s.RateLimit.MaxBackoff.Milliseconds(),
		BreakerState:      string(s.BreakerState),
		ConsecutiveFails:  s.ConsecutiveFails,
		HalfOpenSuccesses: s.HalfOpenSuccesses,
		NextAttemptAt:     unixMillis(s.NextAttemptAt),
		LastOKAt:          unixMillis(s.LastOKAt),
		TotalRequests:     s.Stats.TotalRequests,
		TotalErrors:       s.Stats.TotalErrors,
		TotalRecords:      s.Stats.TotalRecords,
		LastError:         s.Stats.LastError,
		LastErrorAt:       unixMillis(s.Stats.LastErrorAt),
	}
}

func fromCollectorRow(r collectorStateRow) domain.CollectorState {
	return domain.CollectorState{
		Name:              r.Name,
		SourceKind:        domain.SourceKind(r.SourceKind),
		Enabled:           r.Enabled,
		RateLimit: domain.RateLimitConfig{
			MaxPerSecond:      r.RateMaxPerSecond,
			BackoffMultiplier: r.RateBackoffMult,
			MaxBackoff:        time.Duration(r.RateMaxBackoffMS) * time.Millisecond,
		},
		BreakerState:      domain.BreakerState(r.BreakerState),
		ConsecutiveFails:  r.ConsecutiveFails,
		HalfOpenSuccesses: r.HalfOpenSuccesses,
		NextAttemptAt:     millisToTime(r.NextAttemptAt),
		LastOKAt:          millisToTime(r.LastOKAt),
		Stats: domain.CollectorStats{
			TotalRequests: r.TotalRequests,
			TotalErrors:   r.TotalErrors,
			TotalRecords:  r.TotalRecords,
			LastError:     r.LastError,
			LastErrorAt:   millisToTime(r.LastErrorAt),
		},
	}
}

// Upsert writes the full collector state, creating it on first sight.
func (s *CollectorStore) Upsert(state domain.CollectorState) error {
	row := toCollectorRow(state)
	return s.db.Save(&row).Error
}

// Get returns the collector state by name.
func (s *CollectorStore) Get(name string) (domain.CollectorState, bool) {
	var row collectorStateRow
	if err := s.db.Where("name = ?", name).First(&row).Error; err != nil {
		return domain.CollectorState{}, false
	}
	return fromCollectorRow(row), true
}

// All returns every registered collector's state.
func (s *CollectorStore) All() ([]domain.CollectorState, error) {
	var rows []collectorStateRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.CollectorState, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromCollectorRow(r))
	}
	return out, nil
}

// RecordHealth appends one health emission.
func (s *CollectorStore) RecordHealth(h domain.HealthRecord) error {
	row := healthRecordRow{
		Collector:        h.Collector,
		Status:           string(h.Status),
		LatencyMS:        h.LatencyMS,
		RecordsCollected: h.RecordsCollected,
		ErrorMessage:     h.ErrorMessage,
		At:               unixMillis(h.At),
	}
	return s.db.Create(&row).Error
}

// RecentHealth returns the last `limit` health records for a collector,
// newest first.
func (s *CollectorStore) RecentHealth(collector string, limit int) ([]domain.HealthRecord, error) {
	var rows []healthRecordRow
	if err := s.db.Where("collector = ?", collector).Order("at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.HealthRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.HealthRecord{
			Collector:        r.Collector,
			Status:           domain.HealthStatus(r.Status),
			LatencyMS:        r.LatencyMS,
			RecordsCollected: r.RecordsCollected,
			ErrorMessage:     r.ErrorMessage,
			At:               millisToTime(r.At),
		})
	}
	return out, nil
}

func unixMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
