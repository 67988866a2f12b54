package risk

import (
	"context"
	"encoding/json"
	"time"

	"mastertrade/internal/domain"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
)

// PortfolioValuer supplies the figures GoalTracker needs to compute
// progress without owning the execution/position bookkeeping itself.
type PortfolioValuer interface {
	MonthToDateRealizedPnL() (float64, error)
	CurrentPortfolioValue() (float64, error)
}

// GoalTracker runs the daily 23:59 UTC goal-tracking sub-task from
// SPEC_FULL §4.7: for each active FinancialGoal, compute current progress
// and persist a GoalProgress snapshot, emitting goal.status_change on
// transitions.
type GoalTracker struct {
	goals    *store.GoalStore
	valuer   PortfolioValuer
	fabric   fabric.Publisher
}

func NewGoalTracker(goals *store.GoalStore, valuer PortfolioValuer, pub fabric.Publisher) *GoalTracker {
	return &GoalTracker{goals: goals, valuer: valuer, fabric: pub}
}

// RunDaily evaluates every active goal and persists its progress snapshot.
func (t *GoalTracker) RunDaily(now time.Time) error {
	active, err := t.goals.Active()
	if err != nil {
		return err
	}
	mtdPnL, err := t.valuer.MonthToDateRealizedPnL()
	if err != nil {
		logger.Warnf("risk: goal tracker: month-to-date PnL unavailable: %v", err)
	}
	portfolioValue, err := t.valuer.CurrentPortfolioValue()
	if err != nil {
		logger.Warnf("risk: goal tracker: portfolio value unavailable: %v", err)
	}

	for _, g := range active {
		var current float64
		switch g.GoalType {
		case domain.GoalMonthlyProfitUSD, domain.GoalMonthlyReturnPct:
			current = mtdPnL
		case domain.GoalPortfolioTargetUSD:
			current = portfolioValue
		}

		progressPct := 0.0
		if g.TargetValue != 0 {
			progressPct = current / g.TargetValue
		}
		status := statusFor(progressPct)

		previous, hadPrevious := t.goals.LatestProgress(g.ID)

		progress := domain.GoalProgress{
			GoalID:      g.ID,
			GoalType:    g.GoalType,
			Current:     current,
			Target:      g.TargetValue,
			ProgressPct: progressPct,
			Gap:         g.TargetValue - current,
			Status:      status,
			AsOf:        now,
		}
		if err := t.goals.RecordProgress(progress, now.UnixMilli()); err != nil {
			logger.Errorf("risk: goal tracker: record progress for %s: %v", g.ID, err)
			continue
		}

		if hadPrevious && previous.Status != status {
			t.publishStatusChange(now, g.ID, previous.Status, status)
		}
	}
	return nil
}

func statusFor(progressPct float64) domain.GoalProgressStatus {
	switch {
	case progressPct >= 1.0:
		return domain.GoalAchieved
	case progressPct >= 0.85:
		return domain.GoalOnTrack
	case progressPct >= 0.70:
		return domain.GoalBehind
	default:
		return domain.GoalBehind
	}
}

func (t *GoalTracker) publishStatusChange(now time.Time, goalID string, from, to domain.GoalProgressStatus) {
	if t.fabric == nil {
		return
	}
	data, _ := json.Marshal(map[string]string{"goal_id": goalID, "from": string(from), "to": string(to)})
	msg := domain.RawMessage{
		Type:       domain.MsgSystemNotification,
		Timestamp:  now,
		Source:     "risk-gate",
		Data:       data,
		RoutingKey: "goal.status_change",
		Persistent: true,
	}
	if err := t.fabric.Publish(context.Background(), "mastertrade.trading", "goal.status_change", msg); err != nil {
		logger.Warnf("risk: goal tracker: publish status change for %s: %v", goalID, err)
	}
}

// GoalFactorSource adapts GoalTracker's latest progress snapshots into the
// scalar consumed by the strategy activation loop (strategy.GoalFactorSource).
type GoalFactorSource struct {
	goals *store.GoalStore
}

func NewGoalFactorSource(goals *store.GoalStore) *GoalFactorSource {
	return &GoalFactorSource{goals: goals}
}

// AdjustmentFactor reads the latest progress for the monthly-return and
// monthly-income goals and returns their combined GoalAdjustmentFactor.
func (s *GoalFactorSource) AdjustmentFactor() (float64, error) {
	active, err := s.goals.Active()
	if err != nil {
		return 0, err
	}
	var returnProgress, incomeProgress, portfolioValue float64
	returnProgress, incomeProgress = 1.0, 1.0 // default to "on track" if no goal of that type exists
	for _, g := range active {
		progress, ok := s.goals.LatestProgress(g.ID)
		if !ok {
			continue
		}
		switch g.GoalType {
		case domain.GoalMonthlyReturnPct:
			returnProgress = progress.ProgressPct
		case domain.GoalMonthlyProfitUSD:
			incomeProgress = progress.ProgressPct
		case domain.GoalPortfolioTargetUSD:
			portfolioValue = progress.Current
		}
	}
	return GoalAdjustmentFactor(returnProgress, incomeProgress, portfolioValue), nil
}
