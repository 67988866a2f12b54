package domain

import "time"

// StrategyStatus is a point in the strategy lifecycle (SPEC_FULL §4).
type StrategyStatus string

const (
	StrategyDraft      StrategyStatus = "draft"
	StrategyBacktested StrategyStatus = "backtested"
	StrategyPaper      StrategyStatus = "paper"
	StrategyActive     StrategyStatus = "active"
	StrategyPaused     StrategyStatus = "paused"
	StrategyArchived   StrategyStatus = "archived"
)

// validStrategyTransitions enumerates the allowed status edges, per the
// invariant "no transition skips backtested" and "active<->paused allowed".
var validStrategyTransitions = map[StrategyStatus][]StrategyStatus{
	StrategyDraft:      {StrategyBacktested, StrategyArchived},
	StrategyBacktested: {StrategyPaper, StrategyArchived},
	StrategyPaper:      {StrategyActive, StrategyArchived},
	StrategyActive:     {StrategyPaused, StrategyArchived},
	StrategyPaused:     {StrategyActive, StrategyArchived},
	StrategyArchived:   {},
}

// CanTransition reports whether from->to is a legal strategy status edge.
func CanTransition(from, to StrategyStatus) bool {
	for _, allowed := range validStrategyTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RiskParams are the per-strategy risk knobs consumed by the risk gate.
type RiskParams struct {
	StopLossPct      float64
	TakeProfitPct    float64
	PositionSizePct  float64
}

// Strategy is a parameterized decision rule (SPEC_FULL §4).
type Strategy struct {
	ID                string
	Name              string
	Type              string
	Symbol            string
	Interval          string
	Parameters        map[string]float64
	EntryConditions   []string
	ExitConditions    []string
	RiskParams        RiskParams
	Status            StrategyStatus
	Version           int
	ParentStrategyID  string
	Generation        int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BacktestMetrics is the full metric set from SPEC_FULL §4 (BacktestResult).
type BacktestMetrics struct {
	TotalReturn   float64
	CAGR          float64
	Sharpe        float64
	Sortino       float64
	MaxDrawdown   float64
	WinRate       float64
	ProfitFactor  float64
	TradeCount    int
	WinningTrades int
	LosingTrades  int
}

// Valid reports the WinningTrades+LosingTrades=TradeCount invariant.
func (m BacktestMetrics) Valid() bool {
	return m.WinningTrades+m.LosingTrades == m.TradeCount
}

// MonthlyReturn is one entry of a backtest's monthly return series.
type MonthlyReturn struct {
	Month       string // "2026-01"
	ReturnPct   float64
}

// TradeLogEntry is one simulated trade from a backtest run.
type TradeLogEntry struct {
	OpenedAt  time.Time
	ClosedAt  time.Time
	Side      string
	EntryPx   float64
	ExitPx    float64
	PnL       float64
}

// BacktestResult is one per (strategy, time window) (SPEC_FULL §4).
type BacktestResult struct {
	StrategyID      string
	WindowStart     time.Time
	WindowEnd       time.Time
	Seed            int64
	Metrics         BacktestMetrics
	MonthlyReturns  []MonthlyReturn
	TradeLog        []TradeLogEntry
	ArchivedReason  string
}
