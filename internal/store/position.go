package store

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mastertrade/internal/domain"
)

// positionRow is the gorm row for domain.Position, unique per
// (strategy_id, symbol, environment) per the domain invariant.
type positionRow struct {
	StrategyID       string           `gorm:"column:strategy_id;primaryKey;uniqueIndex:idx_position_key"`
	Symbol           string           `gorm:"column:symbol;primaryKey;uniqueIndex:idx_position_key"`
	Environment      string           `gorm:"column:environment;primaryKey;uniqueIndex:idx_position_key"`
	Quantity         decimal.Decimal  `gorm:"column:quantity;type:string"`
	EntryPrice       decimal.Decimal  `gorm:"column:entry_price;type:string"`
	CurrentPrice     decimal.Decimal  `gorm:"column:current_price;type:string"`
	StopLoss         *decimal.Decimal `gorm:"column:stop_loss;type:string"`
	TakeProfit       *decimal.Decimal `gorm:"column:take_profit;type:string"`
	UnrealizedPnL    decimal.Decimal  `gorm:"column:unrealized_pnl;type:string"`
	UnrealizedPnLPct float64          `gorm:"column:unrealized_pnl_pct"`
	OpenedAt         int64            `gorm:"column:opened_at"`
}

func (positionRow) TableName() string { return "positions" }

func toPositionRow(p domain.Position) positionRow {
	return positionRow{
		StrategyID:       p.StrategyID,
		Symbol:           p.Symbol,
		Environment:      string(p.Environment),
		Quantity:         p.Quantity,
		EntryPrice:       p.EntryPrice,
		CurrentPrice:     p.CurrentPrice,
		StopLoss:         p.StopLoss,
		TakeProfit:       p.TakeProfit,
		UnrealizedPnL:    p.UnrealizedPnL,
		UnrealizedPnLPct: p.UnrealizedPnLPct,
		OpenedAt:         unixMillis(p.OpenedAt),
	}
}

func fromPositionRow(r positionRow) domain.Position {
	return domain.Position{
		StrategyID:       r.StrategyID,
		Symbol:           r.Symbol,
		Environment:      domain.Environment(r.Environment),
		Quantity:         r.Quantity,
		EntryPrice:       r.EntryPrice,
		CurrentPrice:     r.CurrentPrice,
		StopLoss:         r.StopLoss,
		TakeProfit:       r.TakeProfit,
		UnrealizedPnL:    r.UnrealizedPnL,
		UnrealizedPnLPct: r.UnrealizedPnLPct,
		OpenedAt:         millisToTime(r.OpenedAt),
	}
}

// PositionStore persists open positions (SPEC_FULL §5, C8/C4).
type PositionStore struct{ db *gorm.DB }

// Upsert writes a position, keyed by (strategy_id, symbol, environment).
func (s *PositionStore) Upsert(p domain.Position) error {
	row := toPositionRow(p)
	return s.db.Save(&row).Error
}

// Get returns a position by its composite key.
func (s *PositionStore) Get(strategyID, symbol string, env domain.Environment) (domain.Position, bool) {
	var row positionRow
	if err := s.db.Where("strategy_id = ? AND symbol = ? AND environment = ?", strategyID, symbol, string(env)).First(&row).Error; err != nil {
		return domain.Position{}, false
	}
	return fromPositionRow(row), true
}

// Delete removes a position once it goes flat (quantity reaches zero), the
// same delete-on-flat convention the teacher's trader position tracking
// uses rather than keeping zero-quantity rows around.
func (s *PositionStore) Delete(strategyID, symbol string, env domain.Environment) error {
	return s.db.Where("strategy_id = ? AND symbol = ? AND environment = ?", strategyID, symbol, string(env)).Delete(&positionRow{}).Error
}

// ByStrategy returns every open position for a strategy.
func (s *PositionStore) ByStrategy(strategyID string) ([]domain.Position, error) {
	var rows []positionRow
	if err := s.db.Where("strategy_id = ?", strategyID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromPositionRow(r))
	}
	return out, nil
}

// All returns every open position across all strategies, used by the risk
// gate's portfolio-wide drawdown and exposure checks.
func (s *PositionStore) All() ([]domain.Position, error) {
	var rows []positionRow
	if err := s.db.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromPositionRow(r))
	}
	return out, nil
}
