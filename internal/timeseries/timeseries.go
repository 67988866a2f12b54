// Package timeseries is the hot-path OHLCV/sentiment/flow/indicator
// accessor from SPEC_FULL.md §5 (part of C4): each series is writable only
// by its owning collector and exposes continuous-aggregate-style rollups
// materialized on read, the same {5m,15m,1h,4h,1d} multi-timeframe shape
// the teacher's market.TimeframeSeriesData carries per symbol.
package timeseries

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Timeframe is a rollup bucket width.
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var timeframeDurations = map[Timeframe]time.Duration{
	TF5m:  5 * time.Minute,
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// Bar is one OHLCV bar, matching the teacher's market.KlineBar field set.
type Bar struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Point is a single scalar observation (sentiment score, on-chain metric,
// exchange flow, or a precomputed indicator value).
type Point struct {
	Time  time.Time
	Value float64
}

type seriesKey struct {
	Symbol string
	Kind   string // "ohlcv", "sentiment", "flow", "indicator:<name>"
}

// Store is an in-memory, append-only time series accessor. A collector
// writes raw ticks for the symbols it owns; readers request either raw
// points or a rolled-up OHLCV view at any Timeframe, materialized on read
// from the finest-grained series retained.
type Store struct {
	mu        sync.RWMutex
	raw       map[seriesKey][]Point
	ohlcv     map[string][]Bar // keyed by symbol, finest-grained (tick) bars
	retention time.Duration
	owners    map[string]string // symbol|kind -> collector name that owns writes
}

// New returns a Store retaining raw points/bars for `retention` (e.g. 7
// days), beyond which old data is pruned on write.
func New(retention time.Duration) *Store {
	return &Store{
		raw:       make(map[seriesKey][]Point),
		ohlcv:     make(map[string][]Bar),
		owners:    make(map[string]string),
		retention: retention,
	}
}

// RegisterOwner declares that only `collector` may write points for
// (symbol, kind), enforced by WritePoint/WriteBar.
func (s *Store) RegisterOwner(symbol, kind, collector string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners[symbol+"|"+kind] = collector
}

func (s *Store) checkOwner(symbol, kind, writer string) error {
	owner, ok := s.owners[symbol+"|"+kind]
	if ok && owner != writer {
		return fmt.Errorf("timeseries: %s is owned by %s, got write from %s", symbol+"/"+kind, owner, writer)
	}
	return nil
}

// WritePoint appends a scalar observation. writer must match the
// registered owner for (symbol, kind), if one was registered.
func (s *Store) WritePoint(writer, symbol, kind string, p Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(symbol, kind, writer); err != nil {
		return err
	}
	key := seriesKey{Symbol: symbol, Kind: kind}
	s.raw[key] = append(s.raw[key], p)
	s.pruneLocked(key)
	return nil
}

// WriteBar appends a raw tick-level OHLCV bar for symbol.
func (s *Store) WriteBar(writer, symbol string, b Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOwner(symbol, "ohlcv", writer); err != nil {
		return err
	}
	s.ohlcv[symbol] = append(s.ohlcv[symbol], b)
	cutoff := time.Now().Add(-s.retention)
	bars := s.ohlcv[symbol]
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(cutoff) })
	s.ohlcv[symbol] = bars[i:]
	return nil
}

func (s *Store) pruneLocked(key seriesKey) {
	cutoff := time.Now().Add(-s.retention)
	pts := s.raw[key]
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Time.After(cutoff) })
	s.raw[key] = pts[i:]
}

// Points returns the raw points for (symbol, kind) within [since, now].
func (s *Store) Points(symbol, kind string, since time.Time) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Point
	for _, p := range s.raw[seriesKey{Symbol: symbol, Kind: kind}] {
		if !p.Time.Before(since) {
			out = append(out, p)
		}
	}
	return out
}

// Rollup materializes OHLCV bars at tf for symbol over [since, now) by
// aggregating the retained tick-level bars. This mirrors a continuous
// aggregate: the rollup is computed on read, never stored.
func (s *Store) Rollup(symbol string, tf Timeframe, since time.Time) ([]Bar, error) {
	width, ok := timeframeDurations[tf]
	if !ok {
		return nil, fmt.Errorf("timeseries: unknown timeframe %q", tf)
	}
	s.mu.RLock()
	ticks := append([]Bar(nil), s.ohlcv[symbol]...)
	s.mu.RUnlock()

	buckets := make(map[int64]*Bar)
	var order []int64
	for _, t := range ticks {
		if t.Time.Before(since) {
			continue
		}
		bucketStart := t.Time.Truncate(width).Unix()
		b, ok := buckets[bucketStart]
		if !ok {
			nb := Bar{Time: time.Unix(bucketStart, 0).UTC(), Open: t.Open, High: t.High, Low: t.Low, Close: t.Close, Volume: t.Volume}
			buckets[bucketStart] = &nb
			order = append(order, bucketStart)
			continue
		}
		if t.High > b.High {
			b.High = t.High
		}
		if t.Low < b.Low {
			b.Low = t.Low
		}
		b.Close = t.Close
		b.Volume += t.Volume
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]Bar, 0, len(order))
	for _, k := range order {
		out = append(out, *buckets[k])
	}
	return out, nil
}

// Latest returns the most recent raw point for (symbol, kind), if any.
func (s *Store) Latest(symbol, kind string) (Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pts := s.raw[seriesKey{Symbol: symbol, Kind: kind}]
	if len(pts) == 0 {
		return Point{}, false
	}
	return pts[len(pts)-1], true
}
