package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"mastertrade/internal/domain"
)

// Per-symbol, per-strategy and correlated-cluster exposure caps, per
// SPEC_FULL §4.7's "portfolio constraints".
const (
	perSymbolCapPct         = 0.15
	perStrategyCapPct       = 0.15
	correlatedClusterCapPct = 0.40
)

// Portfolio is the sizing snapshot passed into SizePosition: total value
// plus current exposure by symbol/strategy/cluster, enough to evaluate the
// portfolio constraints without a live round-trip per candidate check.
type Portfolio struct {
	TotalValue          float64
	ExposureBySymbol    map[string]float64
	ExposureByStrategy  map[string]float64
	ExposureByCluster   map[string]float64
	ClusterOf           map[string]string // symbol -> correlated cluster id
}

// SizeDecision is the result of a size_position evaluation.
type SizeDecision struct {
	Approved bool
	Quantity decimal.Decimal
	Reason   string
}

// progressBand classifies a single goal's percent-to-target into its
// adjustment multiplier, per SPEC_FULL §4.7's monthly-return/income table.
func progressBand(progressPct float64) float64 {
	switch {
	case progressPct < 0.70:
		return 1.3 // behind
	case progressPct < 0.85:
		return 1.15 // at risk
	case progressPct <= 1.00:
		return 1.0 // on track
	case progressPct <= 1.10:
		return 0.9 // ahead
	default:
		return 0.8 // well ahead
	}
}

// GoalAdjustmentFactor computes the [0.5, 1.3] scalar from SPEC_FULL §4.7:
// the average of the monthly-return and monthly-income progress bands,
// overridden into preservation mode (0.5-0.7) once the portfolio value
// progress toward the €1M milestone exceeds 90%.
func GoalAdjustmentFactor(returnProgressPct, incomeProgressPct, portfolioValue float64) float64 {
	if portfolioValue > protectiveModeThreshold*portfolioTargetEUR {
		// Preservation mode: scale linearly from 0.7 at the 90% threshold
		// down to 0.5 as the portfolio approaches or exceeds the target.
		over := (portfolioValue - protectiveModeThreshold*portfolioTargetEUR) / (0.1 * portfolioTargetEUR)
		if over > 1 {
			over = 1
		}
		return 0.7 - 0.2*over
	}
	factor := (progressBand(returnProgressPct) + progressBand(incomeProgressPct)) / 2
	if factor < 0.5 {
		factor = 0.5
	}
	if factor > 1.3 {
		factor = 1.3
	}
	return factor
}

// SizePosition implements `size_position` from SPEC_FULL §4.7: base sizing
// from the strategy's position_size_pct scaled by the goal adjustment
// factor, then gated by portfolio exposure constraints.
func SizePosition(st domain.Strategy, symbol string, lastPrice float64, goalFactor float64, pf Portfolio) SizeDecision {
	if lastPrice <= 0 {
		return SizeDecision{Reason: "invalid last price"}
	}

	baseSizePct := st.RiskParams.PositionSizePct * goalFactor
	notional := pf.TotalValue * baseSizePct

	symbolExposure := pf.ExposureBySymbol[symbol] + notional
	if pf.TotalValue > 0 && symbolExposure/pf.TotalValue > perSymbolCapPct {
		return SizeDecision{Reason: fmt.Sprintf("per-symbol cap exceeded: %.2f%% > %.2f%%", 100*symbolExposure/pf.TotalValue, 100*perSymbolCapPct)}
	}

	strategyExposure := pf.ExposureByStrategy[st.ID] + notional
	if pf.TotalValue > 0 && strategyExposure/pf.TotalValue > perStrategyCapPct {
		return SizeDecision{Reason: fmt.Sprintf("per-strategy cap exceeded: %.2f%% > %.2f%%", 100*strategyExposure/pf.TotalValue, 100*perStrategyCapPct)}
	}

	if cluster, ok := pf.ClusterOf[symbol]; ok {
		clusterExposure := pf.ExposureByCluster[cluster] + notional
		if pf.TotalValue > 0 && clusterExposure/pf.TotalValue > correlatedClusterCapPct {
			return SizeDecision{Reason: fmt.Sprintf("correlated-cluster cap exceeded: %.2f%% > %.2f%%", 100*clusterExposure/pf.TotalValue, 100*correlatedClusterCapPct)}
		}
	}

	qty := decimal.NewFromFloat(notional / lastPrice)
	return SizeDecision{Approved: true, Quantity: qty, Reason: "approved"}
}

// StanceFor derives the discrete policy stance from the combined goal
// adjustment factor, per SPEC_FULL §4.7's "strategy adjustment" matrix.
func StanceFor(factor float64) domain.Stance {
	switch {
	case factor >= 1.2:
		return domain.StanceAggressive
	case factor >= 1.05:
		return domain.StanceModerateAggressive
	case factor >= 0.95:
		return domain.StanceBalanced
	case factor >= 0.8:
		return domain.StanceSlightConservative
	default:
		return domain.StanceConservative
	}
}
