// Package wiring holds the small adaptor types that connect domain-agnostic
// infrastructure (the shared time series store, the order/position store)
// to the narrow interfaces individual components depend on. It exists so
// every split-deployment binary under cmd/ can share one set of adaptors
// instead of each re-declaring its own.
package wiring

import (
	"time"

	"mastertrade/internal/domain"
	"mastertrade/internal/signal"
	"mastertrade/internal/store"
	"mastertrade/internal/timeseries"
)

// PriceSource adapts the shared OHLCV time series into a signal.Source,
// reading the most recent close as the price component's score input.
type PriceSource struct {
	Series *timeseries.Store
}

func (p PriceSource) Latest(symbol string) (domain.Component, bool) {
	return componentFromPoint(p.Series.Latest(symbol, "ohlcv"))
}

// KindSource adapts any other named time series (sentiment, onchain,
// institutional) into a signal.Source the same way PriceSource does.
type KindSource struct {
	Series *timeseries.Store
	Kind   string
}

func (k KindSource) Latest(symbol string) (domain.Component, bool) {
	return componentFromPoint(k.Series.Latest(symbol, k.Kind))
}

func componentFromPoint(p timeseries.Point, ok bool) (domain.Component, bool) {
	if !ok {
		return domain.Component{}, false
	}
	return domain.Component{
		Score:      clampScore(p.Value),
		Confidence: 1.0,
		AgeSeconds: 0,
	}, true
}

func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// TimeseriesTickers adapts the shared OHLCV store into execution.TickerSource
// for paper-fill simulation.
type TimeseriesTickers struct {
	Series *timeseries.Store
}

func (t TimeseriesTickers) LastPrice(symbol string) (float64, bool) {
	p, ok := t.Series.Latest(symbol, "ohlcv")
	if !ok {
		return 0, false
	}
	return p.Value, true
}

// PortfolioValuer adapts order/position history into risk.PortfolioValuer,
// grounded on the store's filled-order and open-position queries rather
// than a dedicated ledger the pack doesn't have.
type PortfolioValuer struct {
	Orders    *store.OrderStore
	Positions *store.PositionStore
}

// MonthToDateRealizedPnL sums realized PnL proxied by signed notional
// cash flow (SELL proceeds minus BUY cost, net of commission) across every
// order filled since the start of the current UTC month.
func (v PortfolioValuer) MonthToDateRealizedPnL() (float64, error) {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	orders, err := v.Orders.FilledBetween(monthStart.UnixMilli(), now.UnixMilli())
	if err != nil {
		return 0, err
	}
	var total float64
	for _, o := range orders {
		notional, _ := o.AvgFillPrice.Mul(o.FilledQuantity).Float64()
		commission, _ := o.Commission.Float64()
		if o.Side == domain.SideSell {
			total += notional - commission
		} else {
			total -= notional + commission
		}
	}
	return total, nil
}

// CurrentPortfolioValue sums every open position's cost basis plus its
// unrealized PnL, the same figure the execution layer already tracks per
// position rather than a separate valuation path.
func (v PortfolioValuer) CurrentPortfolioValue() (float64, error) {
	positions, err := v.Positions.All()
	if err != nil {
		return 0, err
	}
	var total float64
	for _, p := range positions {
		cost, _ := p.EntryPrice.Mul(p.Quantity).Float64()
		unrealized, _ := p.UnrealizedPnL.Float64()
		total += cost + unrealized
	}
	return total, nil
}

// BuildSignalSources wires the standard set of signal.Source adaptors used
// by both the monolith and the split-deployment aggregator binary.
func BuildSignalSources(series *timeseries.Store) map[string]signal.Source {
	return map[string]signal.Source{
		"price":         PriceSource{Series: series},
		"sentiment":     KindSource{Series: series, Kind: "sentiment"},
		"onchain":       KindSource{Series: series, Kind: "onchain"},
		"institutional": KindSource{Series: series, Kind: "institutional"},
	}
}
