package store

import "gorm.io/gorm"

// activationLogRow backs strategy_activation_log (SPEC_FULL §5, C6 step 5):
// one row per activation-loop run recording the full before/after diff.
type activationLogRow struct {
	ID          uint    `gorm:"column:id;primaryKey;autoIncrement"`
	RunAt       int64   `gorm:"column:run_at;index"`
	ActivatedID string  `gorm:"column:activated_id;index"`
	DeactivatedID string `gorm:"column:deactivated_id;index"`
	OverallScore float64 `gorm:"column:overall_score"`
	GoalFactor   float64 `gorm:"column:goal_factor"`
	Reason       string  `gorm:"column:reason"`
}

func (activationLogRow) TableName() string { return "strategy_activation_log" }

// ActivationLogEntry is one activated or deactivated strategy from a single
// activation-loop run.
type ActivationLogEntry struct {
	RunAt        int64
	ActivatedID  string
	DeactivatedID string
	OverallScore float64
	GoalFactor   float64
	Reason       string
}

// ActivationLogStore persists the activation loop's audit trail.
type ActivationLogStore struct{ db *gorm.DB }

func (s *Store) ActivationLog() *ActivationLogStore {
	return &ActivationLogStore{db: s.db}
}

// Record appends one log entry.
func (s *ActivationLogStore) Record(e ActivationLogEntry) error {
	row := activationLogRow{RunAt: e.RunAt, ActivatedID: e.ActivatedID, DeactivatedID: e.DeactivatedID, OverallScore: e.OverallScore, GoalFactor: e.GoalFactor, Reason: e.Reason}
	return s.db.Create(&row).Error
}

// Recent returns the last `limit` activation-log entries, newest first.
func (s *ActivationLogStore) Recent(limit int) ([]ActivationLogEntry, error) {
	var rows []activationLogRow
	if err := s.db.Order("run_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]ActivationLogEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, ActivationLogEntry{RunAt: r.RunAt, ActivatedID: r.ActivatedID, DeactivatedID: r.DeactivatedID, OverallScore: r.OverallScore, GoalFactor: r.GoalFactor, Reason: r.Reason})
	}
	return out, nil
}
