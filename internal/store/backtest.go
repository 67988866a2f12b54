package store

import (
	"gorm.io/gorm"

	"mastertrade/internal/domain"
)

// backtestResultRow is the gorm row for domain.BacktestResult, flattening
// BacktestMetrics into columns and keeping the larger series as JSON, the
// same split the teacher applies to small scalar fields vs. nested blobs.
type backtestResultRow struct {
	ID             uint                    `gorm:"column:id;primaryKey;autoIncrement"`
	StrategyID     string                  `gorm:"column:strategy_id;index"`
	WindowStart    int64                   `gorm:"column:window_start"`
	WindowEnd      int64                   `gorm:"column:window_end"`
	Seed           int64                   `gorm:"column:seed"`
	TotalReturn    float64                 `gorm:"column:total_return"`
	CAGR           float64                 `gorm:"column:cagr"`
	Sharpe         float64                 `gorm:"column:sharpe"`
	Sortino        float64                 `gorm:"column:sortino"`
	MaxDrawdown    float64                 `gorm:"column:max_drawdown"`
	WinRate        float64                 `gorm:"column:win_rate"`
	ProfitFactor   float64                 `gorm:"column:profit_factor"`
	TradeCount     int                     `gorm:"column:trade_count"`
	WinningTrades  int                     `gorm:"column:winning_trades"`
	LosingTrades   int                     `gorm:"column:losing_trades"`
	MonthlyReturns []domain.MonthlyReturn  `gorm:"column:monthly_returns;serializer:json"`
	TradeLog       []domain.TradeLogEntry  `gorm:"column:trade_log;serializer:json"`
	ArchivedReason string                  `gorm:"column:archived_reason"`
	CreatedAt      int64                   `gorm:"column:created_at;index"`
}

func (backtestResultRow) TableName() string { return "backtest_results" }

// BacktestStore persists backtest runs (SPEC_FULL §5, C6/C4).
type BacktestStore struct{ db *gorm.DB }

// Save inserts one backtest result, createdAtUnixMilli stamping when the
// run was recorded (the result itself carries its own window bounds).
func (s *BacktestStore) Save(r domain.BacktestResult, createdAtUnixMilli int64) error {
	row := backtestResultRow{
		StrategyID:     r.StrategyID,
		WindowStart:    unixMillis(r.WindowStart),
		WindowEnd:      unixMillis(r.WindowEnd),
		Seed:           r.Seed,
		TotalReturn:    r.Metrics.TotalReturn,
		CAGR:           r.Metrics.CAGR,
		Sharpe:         r.Metrics.Sharpe,
		Sortino:        r.Metrics.Sortino,
		MaxDrawdown:    r.Metrics.MaxDrawdown,
		WinRate:        r.Metrics.WinRate,
		ProfitFactor:   r.Metrics.ProfitFactor,
		TradeCount:     r.Metrics.TradeCount,
		WinningTrades:  r.Metrics.WinningTrades,
		LosingTrades:   r.Metrics.LosingTrades,
		MonthlyReturns: r.MonthlyReturns,
		TradeLog:       r.TradeLog,
		ArchivedReason: r.ArchivedReason,
		CreatedAt:      createdAtUnixMilli,
	}
	return s.db.Create(&row).Error
}

// Latest returns the most recent backtest result for a strategy.
func (s *BacktestStore) Latest(strategyID string) (domain.BacktestResult, bool) {
	var row backtestResultRow
	if err := s.db.Where("strategy_id = ?", strategyID).Order("created_at DESC").First(&row).Error; err != nil {
		return domain.BacktestResult{}, false
	}
	return fromBacktestRow(row), true
}

func fromBacktestRow(r backtestResultRow) domain.BacktestResult {
	return domain.BacktestResult{
		StrategyID:  r.StrategyID,
		WindowStart: millisToTime(r.WindowStart),
		WindowEnd:   millisToTime(r.WindowEnd),
		Seed:        r.Seed,
		Metrics: domain.BacktestMetrics{
			TotalReturn:   r.TotalReturn,
			CAGR:          r.CAGR,
			Sharpe:        r.Sharpe,
			Sortino:       r.Sortino,
			MaxDrawdown:   r.MaxDrawdown,
			WinRate:       r.WinRate,
			ProfitFactor:  r.ProfitFactor,
			TradeCount:    r.TradeCount,
			WinningTrades: r.WinningTrades,
			LosingTrades:  r.LosingTrades,
		},
		MonthlyReturns: r.MonthlyReturns,
		TradeLog:       r.TradeLog,
		ArchivedReason: r.ArchivedReason,
	}
}
