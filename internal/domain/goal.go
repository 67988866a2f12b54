package domain

import "time"

// GoalType distinguishes the three financial goal kinds (SPEC_FULL §4).
type GoalType string

const (
	GoalMonthlyReturnPct   GoalType = "monthly_return_pct"
	GoalMonthlyProfitUSD   GoalType = "monthly_profit_usd"
	GoalPortfolioTargetUSD GoalType = "portfolio_target_usd"
)

// GoalProgressStatus classifies how a goal is tracking against its target.
type GoalProgressStatus string

const (
	GoalBehind   GoalProgressStatus = "behind"
	GoalOnTrack  GoalProgressStatus = "on_track"
	GoalAhead    GoalProgressStatus = "ahead"
	GoalAchieved GoalProgressStatus = "achieved"
)

// FinancialGoal is a target the risk gate tracks progress against.
type FinancialGoal struct {
	ID         string
	GoalType   GoalType
	TargetValue float64
	Priority   int
	Status     string // "active" | "inactive"
}

// GoalProgress is a point-in-time snapshot of a goal's tracking state.
type GoalProgress struct {
	GoalID      string
	GoalType    GoalType
	Current     float64
	Target      float64
	ProgressPct float64
	Gap         float64
	Status      GoalProgressStatus
	AsOf        time.Time
}

// Stance is the discrete policy regime derived from multi-goal progress.
type Stance string

const (
	StanceAggressive         Stance = "aggressive"
	StanceModerateAggressive Stance = "moderate_aggressive"
	StanceBalanced           Stance = "balanced"
	StanceSlightConservative Stance = "slight_conservative"
	StanceConservative       Stance = "conservative"
)
