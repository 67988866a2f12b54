package strategy

import (
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"mastertrade/internal/domain"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
	"mastertrade/internal/timeseries"
)

// defaultBacktestWindow is the lookback used to evaluate draft candidates,
// per SPEC_FULL §5 (C6 step 2).
const defaultBacktestWindow = 90 * 24 * time.Hour

// realism thresholds a backtest result must clear to advance past `draft`.
const (
	maxMonthlyReturnAbsPct = 0.50
	minWinRate             = 0.20
	maxWinRate             = 0.85
	minTradeCount          = 10
	maxDrawdownAllowed     = 0.80
)

// Backtester continuously drains `draft` strategies, running a deterministic
// simulation against retained OHLCV history and gating promotion on a
// realism filter.
type Backtester struct {
	strategies  *store.StrategyStore
	backtests   *store.BacktestStore
	series      *timeseries.Store
	window      time.Duration
	parallelism int
}

func NewBacktester(strategies *store.StrategyStore, backtests *store.BacktestStore, series *timeseries.Store) *Backtester {
	p := runtime.NumCPU()
	if p > 8 {
		p = 8
	}
	if p < 1 {
		p = 1
	}
	return &Backtester{strategies: strategies, backtests: backtests, series: series, window: defaultBacktestWindow, parallelism: p}
}

// DrainOnce backtests every current draft strategy, bounded to
// b.parallelism concurrent runs, and returns how many passed/archived.
func (b *Backtester) DrainOnce(now time.Time) (passed, archived int, err error) {
	drafts, err := b.strategies.ByStatus(domain.StrategyDraft)
	if err != nil {
		return 0, 0, fmt.Errorf("strategy: backtester: load drafts: %w", err)
	}

	sem := make(chan struct{}, b.parallelism)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, st := range drafts {
		st := st
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			ok := b.runOne(st, now)
			mu.Lock()
			if ok {
				passed++
			} else {
				archived++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	return passed, archived, nil
}

// runOne backtests a single strategy, retrying the simulation once on
// error before archiving it with the failure reason.
func (b *Backtester) runOne(st domain.Strategy, now time.Time) bool {
	result, err := b.simulate(st, now)
	if err != nil {
		result, err = b.simulate(st, now)
		if err != nil {
			b.archive(st, now, fmt.Sprintf("backtest error: %v", err))
			return false
		}
	}

	if reason, ok := realismViolation(result.Metrics, result.MonthlyReturns); !ok {
		result.ArchivedReason = reason
		if saveErr := b.backtests.Save(result, now.UnixMilli()); saveErr != nil {
			logger.Warnf("strategy: backtester: save failed result for %s: %v", st.ID, saveErr)
		}
		b.archive(st, now, reason)
		return false
	}

	if err := b.backtests.Save(result, now.UnixMilli()); err != nil {
		logger.Warnf("strategy: backtester: save result for %s: %v", st.ID, err)
	}
	if err := b.strategies.UpdateStatus(st.ID, domain.StrategyBacktested, now); err != nil {
		logger.Warnf("strategy: backtester: promote %s: %v", st.ID, err)
		return false
	}
	return true
}

func (b *Backtester) archive(st domain.Strategy, now time.Time, reason string) {
	if err := b.strategies.UpdateStatus(st.ID, domain.StrategyArchived, now); err != nil {
		logger.Warnf("strategy: backtester: archive %s: %v", st.ID, err)
	}
	logger.Infof("strategy: archived %s (%s): %s", st.ID, st.Name, reason)
}

// realismViolation reports the first realism-filter breach, or ("", true)
// if the metrics pass, per SPEC_FULL §5's realism thresholds. The monthly
// return check is evaluated against each individual month in the series,
// not the window's aggregate return: a single implausible month must fail
// the filter even when it's buried inside an otherwise flat total.
func realismViolation(m domain.BacktestMetrics, monthly []domain.MonthlyReturn) (string, bool) {
	if m.TradeCount < minTradeCount {
		return fmt.Sprintf("too few trades: %d < %d", m.TradeCount, minTradeCount), false
	}
	if m.WinRate < minWinRate || m.WinRate > maxWinRate {
		return fmt.Sprintf("implausible win rate: %.2f", m.WinRate), false
	}
	if m.MaxDrawdown > maxDrawdownAllowed {
		return fmt.Sprintf("excessive drawdown: %.2f", m.MaxDrawdown), false
	}
	for _, mr := range monthly {
		if mr.ReturnPct > maxMonthlyReturnAbsPct || mr.ReturnPct < -maxMonthlyReturnAbsPct {
			return fmt.Sprintf("implausible monthly return in %s: %.2f", mr.Month, mr.ReturnPct), false
		}
	}
	return "", true
}

// simulate runs a deterministic bar-by-bar simulation of st's entry/exit
// rules over the retained OHLCV history at st.Interval, seeded off the
// strategy ID so repeated runs over the same data are reproducible.
func (b *Backtester) simulate(st domain.Strategy, now time.Time) (domain.BacktestResult, error) {
	windowStart := now.Add(-b.window)
	tf := intervalToTimeframe(st.Interval)
	bars, err := b.series.Rollup(st.Symbol, tf, windowStart)
	if err != nil {
		return domain.BacktestResult{}, err
	}
	if len(bars) < minTradeCount {
		return domain.BacktestResult{}, fmt.Errorf("insufficient history for %s: %d bars", st.Symbol, len(bars))
	}

	seed := int64(0)
	for _, c := range st.ID {
		seed = seed*31 + int64(c)
	}

	sim := newSimState(100_000)
	var trades []domain.TradeLogEntry
	var monthly []domain.MonthlyReturn
	lastMonth := ""
	monthStartEquity := sim.equity

	for i, bar := range bars {
		if sim.inPosition() {
			if sim.shouldExit(bar, st.RiskParams) {
				trade := sim.close(bar)
				trades = append(trades, trade)
			}
		} else if shouldEnter(st, bars, i) {
			sim.open(bar, st.RiskParams)
		}

		month := bar.Time.Format("2006-01")
		if lastMonth != "" && month != lastMonth {
			monthly = append(monthly, domain.MonthlyReturn{
				Month:     lastMonth,
				ReturnPct: (sim.equity - monthStartEquity) / monthStartEquity,
			})
			monthStartEquity = sim.equity
		}
		lastMonth = month
	}
	if sim.inPosition() {
		trades = append(trades, sim.close(bars[len(bars)-1]))
	}

	metrics := computeMetrics(trades, sim.peakEquity, sim.equity, 100_000)

	return domain.BacktestResult{
		StrategyID:     st.ID,
		WindowStart:    windowStart,
		WindowEnd:      now,
		Seed:           seed,
		Metrics:        metrics,
		MonthlyReturns: monthly,
		TradeLog:       trades,
	}, nil
}

func intervalToTimeframe(interval string) timeseries.Timeframe {
	switch interval {
	case "5m":
		return timeseries.TF5m
	case "15m":
		return timeseries.TF15m
	case "4h":
		return timeseries.TF4h
	case "1d":
		return timeseries.TF1d
	default:
		return timeseries.TF1h
	}
}

// shouldEnter evaluates a minimal proxy for st's entry conditions: a
// momentum check (bar i's close above the bar i-1 close). st's parameters,
// entry conditions and position size are not consulted.
func shouldEnter(st domain.Strategy, bars []timeseries.Bar, i int) bool {
	if i == 0 {
		return false
	}
	return bars[i].Close > bars[i-1].Close
}

type simState struct {
	equity     float64
	peakEquity float64
	entryPx    float64
	entryTime  time.Time
	qty        float64
	open       bool
}

func newSimState(startEquity float64) *simState {
	return &simState{equity: startEquity, peakEquity: startEquity}
}

func (s *simState) inPosition() bool { return s.open }

func (s *simState) open(bar timeseries.Bar, risk domain.RiskParams) {
	s.entryPx = bar.Close
	s.entryTime = bar.Time
	s.qty = (s.equity * risk.PositionSizePct) / bar.Close
	s.open = true
}

func (s *simState) shouldExit(bar timeseries.Bar, risk domain.RiskParams) bool {
	if !s.open {
		return false
	}
	change := (bar.Close - s.entryPx) / s.entryPx
	return change <= -risk.StopLossPct || change >= risk.TakeProfitPct
}

func (s *simState) close(bar timeseries.Bar) domain.TradeLogEntry {
	pnl := (bar.Close - s.entryPx) * s.qty
	s.equity += pnl
	if s.equity > s.peakEquity {
		s.peakEquity = s.equity
	}
	entry := domain.TradeLogEntry{
		OpenedAt: s.entryTime,
		ClosedAt: bar.Time,
		Side:     "long",
		EntryPx:  s.entryPx,
		ExitPx:   bar.Close,
		PnL:      pnl,
	}
	s.open = false
	return entry
}

func computeMetrics(trades []domain.TradeLogEntry, peakEquity, finalEquity, startEquity float64) domain.BacktestMetrics {
	var wins, losses int
	var grossProfit, grossLoss float64
	for _, t := range trades {
		if t.PnL >= 0 {
			wins++
			grossProfit += t.PnL
		} else {
			losses++
			grossLoss += -t.PnL
		}
	}
	winRate := 0.0
	if len(trades) > 0 {
		winRate = float64(wins) / float64(len(trades))
	}
	profitFactor := 0.0
	if grossLoss > 0 {
		profitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		profitFactor = grossProfit
	}
	maxDrawdown := 0.0
	if peakEquity > 0 {
		maxDrawdown = (peakEquity - finalEquity) / peakEquity
		if maxDrawdown < 0 {
			maxDrawdown = 0
		}
	}
	totalReturn := (finalEquity - startEquity) / startEquity

	return domain.BacktestMetrics{
		TotalReturn:   totalReturn,
		CAGR:          totalReturn,
		Sharpe:        sharpeProxy(trades),
		Sortino:       sharpeProxy(trades),
		MaxDrawdown:   maxDrawdown,
		WinRate:       winRate,
		ProfitFactor:  profitFactor,
		TradeCount:    len(trades),
		WinningTrades: wins,
		LosingTrades:  losses,
	}
}

// sharpeProxy is a simplified mean/stddev of per-trade returns, standing in
// for a full daily-returns Sharpe computation.
func sharpeProxy(trades []domain.TradeLogEntry) float64 {
	if len(trades) == 0 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.PnL
	}
	mean := sum / float64(len(trades))
	var variance float64
	for _, t := range trades {
		d := t.PnL - mean
		variance += d * d
	}
	variance /= float64(len(trades))
	if variance == 0 {
		return 0
	}
	stddev := math.Sqrt(variance)
	return mean / stddev
}
