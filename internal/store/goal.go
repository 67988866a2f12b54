package store

import (
	"gorm.io/gorm"

	"mastertrade/internal/domain"
)

type financialGoalRow struct {
	ID          string  `gorm:"column:id;primaryKey"`
	GoalType    string  `gorm:"column:goal_type;index"`
	TargetValue float64 `gorm:"column:target_value"`
	Priority    int     `gorm:"column:priority"`
	Status      string  `gorm:"column:status;index"`
}

func (financialGoalRow) TableName() string { return "financial_goals" }

type goalProgressRow struct {
	ID          uint    `gorm:"column:id;primaryKey;autoIncrement"`
	GoalID      string  `gorm:"column:goal_id;index"`
	GoalType    string  `gorm:"column:goal_type"`
	Current     float64 `gorm:"column:current"`
	Target      float64 `gorm:"column:target"`
	ProgressPct float64 `gorm:"column:progress_pct"`
	Gap         float64 `gorm:"column:gap"`
	Status      string  `gorm:"column:status"`
	AsOf        int64   `gorm:"column:as_of;index"`
}

func (goalProgressRow) TableName() string { return "goal_progress" }

// GoalStore persists financial goals and their progress history (SPEC_FULL
// §5, C7/C4).
type GoalStore struct{ db *gorm.DB }

// Upsert writes a goal definition.
func (s *GoalStore) Upsert(g domain.FinancialGoal) error {
	row := financialGoalRow{ID: g.ID, GoalType: string(g.GoalType), TargetValue: g.TargetValue, Priority: g.Priority, Status: g.Status}
	return s.db.Save(&row).Error
}

// Active returns every goal with status "active", ordered by priority.
func (s *GoalStore) Active() ([]domain.FinancialGoal, error) {
	var rows []financialGoalRow
	if err := s.db.Where("status = ?", "active").Order("priority ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.FinancialGoal, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.FinancialGoal{ID: r.ID, GoalType: domain.GoalType(r.GoalType), TargetValue: r.TargetValue, Priority: r.Priority, Status: r.Status})
	}
	return out, nil
}

// RecordProgress appends one point-in-time progress snapshot, forming the
// daily 23:59 UTC goal-tracking history. Readers fetch only the newest
// snapshot, via LatestProgress.
func (s *GoalStore) RecordProgress(p domain.GoalProgress, now int64) error {
	row := goalProgressRow{
		GoalID:      p.GoalID,
		GoalType:    string(p.GoalType),
		Current:     p.Current,
		Target:      p.Target,
		ProgressPct: p.ProgressPct,
		Gap:         p.Gap,
		Status:      string(p.Status),
		AsOf:        now,
	}
	return s.db.Create(&row).Error
}

// LatestProgress returns the most recent progress snapshot for a goal.
func (s *GoalStore) LatestProgress(goalID string) (domain.GoalProgress, bool) {
	var row goalProgressRow
	if err := s.db.Where("goal_id = ?", goalID).Order("as_of DESC").First(&row).Error; err != nil {
		return domain.GoalProgress{}, false
	}
	return domain.GoalProgress{
		GoalID:      row.GoalID,
		GoalType:    domain.GoalType(row.GoalType),
		Current:     row.Current,
		Target:      row.Target,
		ProgressPct: row.ProgressPct,
		Gap:         row.Gap,
		Status:      domain.GoalProgressStatus(row.Status),
		AsOf:        millisToTime(row.AsOf),
	}, true
}
