package strategy

import "mastertrade/internal/domain"

// template is a parameterized strategy family the generation loop sweeps
// over, per SPEC_FULL §5 (C6 generation loop): "momentum, mean-reversion,
// breakout, BTC-correlation, MACD, hybrid".
type template struct {
	Type            string
	EntryConditions []string
	ExitConditions  []string
	ParamGrid       map[string][]float64
}

var templates = []template{
	{
		Type:            "momentum",
		EntryConditions: []string{"rsi14 > 55", "ema20 > ema50"},
		ExitConditions:  []string{"rsi14 < 45"},
		ParamGrid: map[string][]float64{
			"rsi_period": {7, 14, 21},
			"ema_fast":   {10, 20},
		},
	},
	{
		Type:            "mean_reversion",
		EntryConditions: []string{"price < boll_lower"},
		ExitConditions:  []string{"price > boll_middle"},
		ParamGrid: map[string][]float64{
			"boll_period": {14, 20, 30},
			"boll_stddev": {1.5, 2, 2.5},
		},
	},
	{
		Type:            "breakout",
		EntryConditions: []string{"price > donchian_high"},
		ExitConditions:  []string{"price < donchian_mid"},
		ParamGrid: map[string][]float64{
			"donchian_period": {20, 55},
		},
	},
	{
		Type:            "btc_correlation",
		EntryConditions: []string{"btc_trend_up", "corr_30d > 0.6"},
		ExitConditions:  []string{"corr_30d < 0.3"},
		ParamGrid: map[string][]float64{
			"corr_window": {14, 30},
		},
	},
	{
		Type:            "macd",
		EntryConditions: []string{"macd_hist crosses_above 0"},
		ExitConditions:  []string{"macd_hist crosses_below 0"},
		ParamGrid: map[string][]float64{
			"macd_fast": {8, 12},
			"macd_slow": {21, 26},
		},
	},
	{
		Type:            "hybrid",
		EntryConditions: []string{"rsi14 > 55", "macd_hist > 0"},
		ExitConditions:  []string{"rsi14 < 45", "macd_hist < 0"},
		ParamGrid: map[string][]float64{
			"rsi_period": {14},
			"macd_fast":  {12},
		},
	},
}

// sweep expands a template's parameter grid into candidate parameter sets
// via the cartesian product of its axes.
func sweep(t template) []map[string]float64 {
	keys := make([]string, 0, len(t.ParamGrid))
	for k := range t.ParamGrid {
		keys = append(keys, k)
	}
	var out []map[string]float64
	var rec func(i int, acc map[string]float64)
	rec = func(i int, acc map[string]float64) {
		if i == len(keys) {
			clone := make(map[string]float64, len(acc))
			for k, v := range acc {
				clone[k] = v
			}
			out = append(out, clone)
			return
		}
		for _, v := range t.ParamGrid[keys[i]] {
			acc[keys[i]] = v
			rec(i+1, acc)
		}
	}
	rec(0, map[string]float64{})
	return out
}

func defaultRiskParams() domain.RiskParams {
	return domain.RiskParams{StopLossPct: 0.02, TakeProfitPct: 0.04, PositionSizePct: 0.05}
}
