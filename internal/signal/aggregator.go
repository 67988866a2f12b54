// Package signal implements the C5 multi-source signal aggregator:
// weighted fusion with time-decay exclusion, weight renormalization, and
// BUY/SELL/HOLD classification, publishing onto the fabric and buffering
// into the cache sorted set the Control API reads back from.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mastertrade/internal/cache"
	"mastertrade/internal/domain"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
)

// baseWeights are the component weights from SPEC_FULL §5 before any
// time-decay exclusion.
var baseWeights = map[string]float64{
	"price":         0.35,
	"sentiment":     0.25,
	"onchain":       0.20,
	"institutional": 0.20,
}

const (
	maxComponentAge = 60 * time.Minute
	bufferCap       = 1000
	bufferTTL       = 24 * time.Hour
	bufferKey       = "signals:recent"
)

// Source supplies the latest component reading for a symbol. Callers wire
// one Source per component (price/sentiment/onchain/institutional), each
// backed by internal/timeseries.
type Source interface {
	Latest(symbol string) (domain.Component, bool)
}

// Aggregator runs the 60s fusion cycle for a fixed symbol set.
type Aggregator struct {
	symbols []string
	sources map[string]Source
	fabric  fabric.Publisher
	cache   cache.Cache
}

// New builds an Aggregator. sources keys must be a subset of
// {"price","sentiment","onchain","institutional"}.
func New(symbols []string, sources map[string]Source, f fabric.Publisher, c cache.Cache) *Aggregator {
	return &Aggregator{symbols: symbols, sources: sources, fabric: f, cache: c}
}

// Run ticks every 60 seconds until ctx is cancelled, fusing and publishing
// one MarketSignal per tracked symbol each cycle.
func (a *Aggregator) Run(ctx context.Context) error {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, symbol := range a.symbols {
				if err := a.cycle(ctx, symbol, time.Now().UTC()); err != nil {
					logger.Warnf("signal: cycle for %s: %v", symbol, err)
				}
			}
		}
	}
}

// cycle computes, classifies, and (if eligible) publishes+buffers one
// MarketSignal for symbol at `now`.
func (a *Aggregator) cycle(ctx context.Context, symbol string, now time.Time) error {
	sig, publish := a.Fuse(symbol, now)
	if !publish {
		return nil
	}
	return a.publishAndBuffer(ctx, sig)
}

// Fuse gathers fresh component signals for symbol, applies time-decay
// exclusion and weight renormalization, fuses and classifies. The second
// return value is false when fewer than two components are fresh — per the
// spec's "missing sources never fabricate a signal" rule, in which case the
// signal is HOLD/confidence=0 and must not be published.
func (a *Aggregator) Fuse(symbol string, now time.Time) (domain.MarketSignal, bool) {
	fresh := make(map[string]domain.Component)
	for name, src := range a.sources {
		c, ok := src.Latest(symbol)
		if !ok {
			continue
		}
		age := time.Duration(c.AgeSeconds) * time.Second
		if age > maxComponentAge {
			continue
		}
		fresh[name] = c
	}

	sig := domain.MarketSignal{Symbol: symbol, Timestamp: now, Components: fresh}

	if len(fresh) < 2 {
		sig.Confidence = 0
		sig.FusedScore = 0
		sig.Action = domain.ActionHold
		sig.Strength = domain.StrengthWeak
		return sig, false
	}

	weights := renormalize(fresh)
	sig.WeightsUsed = weights

	var fusedScore, fusedConfidence float64
	for name, c := range fresh {
		w := weights[name]
		fusedScore += w * c.Score
		fusedConfidence += w * c.Confidence
	}
	sig.FusedScore = fusedScore
	sig.Confidence = fusedConfidence
	sig.Classify()
	return sig, true
}

// renormalize redistributes the excluded components' weight among the
// remaining ones proportionally to their original base weights, per
// SPEC_FULL §5 step 3's "graceful degradation" rule.
func renormalize(fresh map[string]domain.Component) map[string]float64 {
	var total float64
	for name := range fresh {
		total += baseWeights[name]
	}
	out := make(map[string]float64, len(fresh))
	if total == 0 {
		// No recognized component names carried a positive base weight;
		// split evenly rather than divide by zero.
		for name := range fresh {
			out[name] = 1.0 / float64(len(fresh))
		}
		return out
	}
	for name := range fresh {
		out[name] = baseWeights[name] / total
	}
	return out
}

func (a *Aggregator) publishAndBuffer(ctx context.Context, sig domain.MarketSignal) error {
	body, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("signal: marshal: %w", err)
	}

	routingKey := "signal." + sig.Symbol
	msg := domain.RawMessage{Type: domain.MsgTradingSignal, Timestamp: sig.Timestamp, Source: "signal-aggregator", Data: body}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.fabric.Publish(pubCtx, "mastertrade.trading", routingKey, msg); err != nil {
		return err
	}
	if sig.Strength == domain.StrengthStrong {
		strongMsg := msg
		if err := a.fabric.Publish(pubCtx, "mastertrade.trading", routingKey+".strong", strongMsg); err != nil {
			logger.Warnf("signal: publish strong variant for %s: %v", sig.Symbol, err)
		}
	}

	a.cache.ZAdd(bufferKey, string(body), float64(sig.Timestamp.UnixMilli()))
	a.cache.ZTrimToMax(bufferKey, bufferCap)
	a.cache.SetTTL(bufferKey+":marker", true, bufferTTL)
	return nil
}
