package store

import (
	"time"

	"gorm.io/gorm"

	"mastertrade/internal/domain"
)

// strategyRow is the gorm row for domain.Strategy. Parameters and the
// condition lists are stored as JSON columns via gorm's serializer tag, the
// same nested-JSON-in-column idiom the teacher uses for StrategyConfig.
type strategyRow struct {
	ID               string             `gorm:"column:id;primaryKey"`
	Name             string             `gorm:"column:name"`
	Type             string             `gorm:"column:type;index"`
	Symbol           string             `gorm:"column:symbol;index"`
	Interval         string             `gorm:"column:interval"`
	Parameters       map[string]float64 `gorm:"column:parameters;serializer:json"`
	EntryConditions  []string           `gorm:"column:entry_conditions;serializer:json"`
	ExitConditions   []string           `gorm:"column:exit_conditions;serializer:json"`
	StopLossPct      float64            `gorm:"column:stop_loss_pct"`
	TakeProfitPct    float64            `gorm:"column:take_profit_pct"`
	PositionSizePct  float64            `gorm:"column:position_size_pct"`
	Status           string             `gorm:"column:status;index"`
	Version          int                `gorm:"column:version"`
	ParentStrategyID string             `gorm:"column:parent_strategy_id;index"`
	Generation       int                `gorm:"column:generation"`
	CreatedAt        int64              `gorm:"column:created_at"`
	UpdatedAt        int64              `gorm:"column:updated_at;index"`
}

func (strategyRow) TableName() string { return "strategies" }

func toStrategyRow(s domain.Strategy) strategyRow {
	return strategyRow{
		ID:               s.ID,
		Name:             s.Name,
		Type:             s.Type,
		Symbol:           s.Symbol,
		Interval:         s.Interval,
		Parameters:       s.Parameters,
		EntryConditions:  s.EntryConditions,
		ExitConditions:   s.ExitConditions,
		StopLossPct:      s.RiskParams.StopLossPct,
		TakeProfitPct:    s.RiskParams.TakeProfitPct,
		PositionSizePct:  s.RiskParams.PositionSizePct,
		Status:           string(s.Status),
		Version:          s.Version,
		ParentStrategyID: s.ParentStrategyID,
		Generation:       s.Generation,
		CreatedAt:        unixMillis(s.CreatedAt),
		UpdatedAt:        unixMillis(s.UpdatedAt),
	}
}

func fromStrategyRow(r strategyRow) domain.Strategy {
	return domain.Strategy{
		ID:               r.ID,
		Name:             r.Name,
		Type:             r.Type,
		Symbol:           r.Symbol,
		Interval:         r.Interval,
		Parameters:       r.Parameters,
		EntryConditions:  r.EntryConditions,
		ExitConditions:   r.ExitConditions,
		RiskParams: domain.RiskParams{
			StopLossPct:     r.StopLossPct,
			TakeProfitPct:   r.TakeProfitPct,
			PositionSizePct: r.PositionSizePct,
		},
		Status:           domain.StrategyStatus(r.Status),
		Version:          r.Version,
		ParentStrategyID: r.ParentStrategyID,
		Generation:       r.Generation,
		CreatedAt:        millisToTime(r.CreatedAt),
		UpdatedAt:        millisToTime(r.UpdatedAt),
	}
}

// StrategyStore persists strategies through their lifecycle (SPEC_FULL §5,
// C6/C4).
type StrategyStore struct{ db *gorm.DB }

// Create inserts a new strategy.
func (s *StrategyStore) Create(st domain.Strategy) error {
	row := toStrategyRow(st)
	return s.db.Create(&row).Error
}

// Get returns a strategy by ID.
func (s *StrategyStore) Get(id string) (domain.Strategy, bool) {
	var row strategyRow
	if err := s.db.Where("id = ?", id).First(&row).Error; err != nil {
		return domain.Strategy{}, false
	}
	return fromStrategyRow(row), true
}

// ByStatus returns every strategy currently in the given status.
func (s *StrategyStore) ByStatus(status domain.StrategyStatus) ([]domain.Strategy, error) {
	var rows []strategyRow
	if err := s.db.Where("status = ?", string(status)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Strategy, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromStrategyRow(r))
	}
	return out, nil
}

// UpdateStatus transitions a strategy's status, validated by the caller via
// domain.CanTransition before this is called.
func (s *StrategyStore) UpdateStatus(id string, status domain.StrategyStatus, now time.Time) error {
	return s.db.Model(&strategyRow{}).Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "updated_at": unixMillis(now)}).Error
}

// Active returns every strategy currently in the active status, the set the
// execution component is allowed to route orders for.
func (s *StrategyStore) Active() ([]domain.Strategy, error) {
	return s.ByStatus(domain.StrategyActive)
}
