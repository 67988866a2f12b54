package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mastertrade/internal/cache"
	"mastertrade/internal/domain"
)

type fakeSource struct {
	component domain.Component
	present   bool
}

func (f fakeSource) Latest(symbol string) (domain.Component, bool) { return f.component, f.present }

func TestFuseSignalThresholdGating(t *testing.T) {
	// E1: price +0.8/0.9, sentiment +0.4/0.7, onchain +0.2/0.8, flow absent (stale).
	sources := map[string]Source{
		"price":         fakeSource{component: domain.Component{Score: 0.8, Confidence: 0.9, AgeSeconds: 30}, present: true},
		"sentiment":     fakeSource{component: domain.Component{Score: 0.4, Confidence: 0.7, AgeSeconds: 60}, present: true},
		"onchain":       fakeSource{component: domain.Component{Score: 0.2, Confidence: 0.8, AgeSeconds: 120}, present: true},
		"institutional": fakeSource{component: domain.Component{Score: 0.1, Confidence: 0.5, AgeSeconds: 4000}, present: true},
	}
	a := New([]string{"BTC-USD"}, sources, nil, nil)

	sig, publish := a.Fuse("BTC-USD", time.Now())
	require.True(t, publish)
	require.InDelta(t, 0.4375, sig.WeightsUsed["price"], 1e-4)
	require.InDelta(t, 0.3125, sig.WeightsUsed["sentiment"], 1e-4)
	require.InDelta(t, 0.25, sig.WeightsUsed["onchain"], 1e-4)
	require.NotContains(t, sig.WeightsUsed, "institutional")
	require.InDelta(t, 0.525, sig.FusedScore, 1e-3)
	require.InDelta(t, 0.81, sig.Confidence, 0.01)
	require.Equal(t, domain.ActionBuy, sig.Action)
	require.Equal(t, domain.StrengthStrong, sig.Strength)
}

func TestFuseConflictCollapsesToHold(t *testing.T) {
	// E2: price -0.6/0.85, sentiment +0.5/0.7, onchain 0/0.6, flow +0.1/0.5 — all fresh.
	sources := map[string]Source{
		"price":         fakeSource{component: domain.Component{Score: -0.6, Confidence: 0.85, AgeSeconds: 10}, present: true},
		"sentiment":     fakeSource{component: domain.Component{Score: 0.5, Confidence: 0.7, AgeSeconds: 10}, present: true},
		"onchain":       fakeSource{component: domain.Component{Score: 0, Confidence: 0.6, AgeSeconds: 10}, present: true},
		"institutional": fakeSource{component: domain.Component{Score: 0.1, Confidence: 0.5, AgeSeconds: 10}, present: true},
	}
	a := New([]string{"BTC-USD"}, sources, nil, nil)

	sig, publish := a.Fuse("BTC-USD", time.Now())
	require.True(t, publish)
	require.InDelta(t, -0.065, sig.FusedScore, 1e-3)
	require.InDelta(t, 0.69, sig.Confidence, 0.01)
	require.Equal(t, domain.ActionHold, sig.Action)
	require.Equal(t, domain.StrengthModerate, sig.Strength)
}

func TestFuseSkipsPublishWhenFewerThanTwoFresh(t *testing.T) {
	sources := map[string]Source{
		"price": fakeSource{component: domain.Component{Score: 0.9, Confidence: 0.9, AgeSeconds: 10}, present: true},
	}
	a := New([]string{"BTC-USD"}, sources, nil, nil)

	sig, publish := a.Fuse("BTC-USD", time.Now())
	require.False(t, publish)
	require.Equal(t, 0.0, sig.Confidence)
	require.Equal(t, domain.ActionHold, sig.Action)
}

func TestFuseExcludesStaleComponents(t *testing.T) {
	sources := map[string]Source{
		"price":     fakeSource{component: domain.Component{Score: 0.9, Confidence: 0.9, AgeSeconds: 10}, present: true},
		"sentiment": fakeSource{component: domain.Component{Score: 0.9, Confidence: 0.9, AgeSeconds: 4000}, present: true},
		"onchain":   fakeSource{present: false},
	}
	a := New([]string{"BTC-USD"}, sources, nil, nil)

	_, publish := a.Fuse("BTC-USD", time.Now())
	require.False(t, publish, "only one component is fresh, so the cycle must skip publish")
}

func TestPublishAndBufferWritesSortedSet(t *testing.T) {
	c := cache.NewInMemory()
	a := &Aggregator{cache: c, fabric: noopPublisher{}}
	sig := domain.MarketSignal{Symbol: "BTC-USD", Timestamp: time.Now(), Action: domain.ActionBuy, Strength: domain.StrengthStrong}

	require.NoError(t, a.publishAndBuffer(contextBackground(), sig))
	require.Equal(t, 1, c.ZCard(bufferKey))
}
