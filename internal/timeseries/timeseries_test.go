package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRollupAggregatesTicksIntoBars(t *testing.T) {
	s := New(24 * time.Hour)
	// Bars must lie inside the 24h retention window, which WriteBar prunes
	// against the wall clock; the hour boundary keeps the 5m buckets aligned.
	base := time.Now().UTC().Truncate(time.Hour)
	bars := []Bar{
		{Time: base, Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
		{Time: base.Add(time.Minute), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 5},
		{Time: base.Add(6 * time.Minute), Open: 101, High: 103, Low: 100.8, Close: 102, Volume: 7},
	}
	for _, b := range bars {
		require.NoError(t, s.WriteBar("exchange-collector", "BTC-USD", b))
	}

	rolled, err := s.Rollup("BTC-USD", TF5m, base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, rolled, 2)
	require.Equal(t, 100.0, rolled[0].Open)
	require.Equal(t, 102.0, rolled[0].High)
	require.Equal(t, 99.0, rolled[0].Low)
	require.Equal(t, 101.0, rolled[0].Close)
	require.Equal(t, 15.0, rolled[0].Volume)
}

func TestOwnerEnforcement(t *testing.T) {
	s := New(time.Hour)
	s.RegisterOwner("BTC-USD", "ohlcv", "exchange-collector")

	err := s.WriteBar("rogue-collector", "BTC-USD", Bar{Time: time.Now()})
	require.Error(t, err)

	err = s.WriteBar("exchange-collector", "BTC-USD", Bar{Time: time.Now()})
	require.NoError(t, err)
}

func TestPointsFiltersBySince(t *testing.T) {
	s := New(time.Hour)
	now := time.Now()
	require.NoError(t, s.WritePoint("sentiment-collector", "BTC-USD", "sentiment", Point{Time: now.Add(-30 * time.Minute), Value: 0.2}))
	require.NoError(t, s.WritePoint("sentiment-collector", "BTC-USD", "sentiment", Point{Time: now, Value: 0.8}))

	pts := s.Points("BTC-USD", "sentiment", now.Add(-time.Minute))
	require.Len(t, pts, 1)
	require.Equal(t, 0.8, pts[0].Value)
}
