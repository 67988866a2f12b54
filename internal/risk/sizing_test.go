package risk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"mastertrade/internal/domain"
)

func TestGoalAdjustmentFactorBands(t *testing.T) {
	require.Equal(t, 1.3, GoalAdjustmentFactor(0.5, 0.5, 0))  // behind/behind
	require.Equal(t, 1.0, GoalAdjustmentFactor(0.9, 0.9, 0))  // on track/on track
	require.Equal(t, 0.8, GoalAdjustmentFactor(1.2, 1.2, 0))  // well ahead/well ahead
}

func TestGoalAdjustmentFactorPreservationMode(t *testing.T) {
	factor := GoalAdjustmentFactor(1.0, 1.0, 0.95*portfolioTargetEUR)
	require.GreaterOrEqual(t, factor, 0.5)
	require.LessOrEqual(t, factor, 0.7)
}

func TestSizePositionRejectsOverSymbolCap(t *testing.T) {
	st := domain.Strategy{ID: "s1", RiskParams: domain.RiskParams{PositionSizePct: 0.10}}
	pf := Portfolio{
		TotalValue:       100_000,
		ExposureBySymbol: map[string]float64{"BTCUSDT": 10_000},
	}
	decision := SizePosition(st, "BTCUSDT", 50_000, 1.0, pf)
	require.False(t, decision.Approved)
}

func TestSizePositionApprovesWithinCaps(t *testing.T) {
	st := domain.Strategy{ID: "s1", RiskParams: domain.RiskParams{PositionSizePct: 0.05}}
	pf := Portfolio{TotalValue: 100_000, ExposureBySymbol: map[string]float64{}, ExposureByStrategy: map[string]float64{}}
	decision := SizePosition(st, "BTCUSDT", 50_000, 1.0, pf)
	require.True(t, decision.Approved)
	require.True(t, decision.Quantity.IsPositive())
}

func TestStanceForThresholds(t *testing.T) {
	require.Equal(t, domain.StanceAggressive, StanceFor(1.25))
	require.Equal(t, domain.StanceBalanced, StanceFor(1.0))
	require.Equal(t, domain.StanceConservative, StanceFor(0.6))
}
