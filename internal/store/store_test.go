package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"mastertrade/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return s
}

func TestCollectorUpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	state := domain.CollectorState{
		Name:         "coinank",
		SourceKind:   domain.SourceOnChain,
		Enabled:      true,
		BreakerState: domain.BreakerClosed,
		RateLimit:    domain.RateLimitConfig{MaxPerSecond: 5, BackoffMultiplier: 0.5, MaxBackoff: 30 * time.Second},
	}
	require.NoError(t, s.Collector().Upsert(state))

	got, ok := s.Collector().Get("coinank")
	require.True(t, ok)
	require.Equal(t, domain.SourceOnChain, got.SourceKind)
	require.Equal(t, 5.0, got.RateLimit.MaxPerSecond)
	require.Equal(t, 30*time.Second, got.RateLimit.MaxBackoff)
}

func TestCollectorRecentHealth(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Collector().RecordHealth(domain.HealthRecord{
			Collector: "coinank", Status: domain.HealthHealthy, LatencyMS: int64(100 + i), At: now.Add(time.Duration(i) * time.Second),
		}))
	}
	records, err := s.Collector().RecentHealth("coinank", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestStrategyLifecyclePersistence(t *testing.T) {
	s := openTestStore(t)
	st := domain.Strategy{
		ID: "strat-1", Name: "mean-reversion", Symbol: "BTC-USD", Status: domain.StrategyDraft,
		Parameters: map[string]float64{"lookback": 14}, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Strategy().Create(st))

	got, ok := s.Strategy().Get("strat-1")
	require.True(t, ok)
	require.Equal(t, domain.StrategyDraft, got.Status)
	require.Equal(t, 14.0, got.Parameters["lookback"])

	require.NoError(t, s.Strategy().UpdateStatus("strat-1", domain.StrategyBacktested, time.Now().UTC()))
	got, ok = s.Strategy().Get("strat-1")
	require.True(t, ok)
	require.Equal(t, domain.StrategyBacktested, got.Status)
}

func TestOrderIdempotencyKeyDedup(t *testing.T) {
	s := openTestStore(t)
	o := domain.Order{
		ID: "order-1", StrategyID: "strat-1", Symbol: "BTC-USD", Side: domain.SideBuy, OrderType: domain.OrderMarket,
		Quantity: decimal.NewFromFloat(0.01), Environment: domain.EnvPaper, Status: domain.OrderPending,
		IdempotencyKey: "idem-1", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Order().Create(o))

	dup := o
	dup.ID = "order-2"
	err := s.Order().Create(dup)
	require.Error(t, err, "duplicate idempotency key must be rejected by the unique index")

	found, ok := s.Order().ByIdempotencyKey("idem-1")
	require.True(t, ok)
	require.Equal(t, "order-1", found.ID)
}

func TestOrderStatusAdvance(t *testing.T) {
	s := openTestStore(t)
	o := domain.Order{
		ID: "order-1", StrategyID: "strat-1", Symbol: "BTC-USD", Side: domain.SideBuy, OrderType: domain.OrderMarket,
		Quantity: decimal.NewFromFloat(1), Environment: domain.EnvPaper, Status: domain.OrderPending,
		IdempotencyKey: "idem-order-1", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Order().Create(o))

	require.NoError(t, s.Order().UpdateStatus("order-1", domain.OrderFilled, decimal.NewFromFloat(1), decimal.NewFromFloat(50000), decimal.Zero, time.Now().UnixMilli()))
	got, ok := s.Order().Get("order-1")
	require.True(t, ok)
	require.Equal(t, domain.OrderFilled, got.Status)
	require.True(t, got.FilledQuantity.Equal(decimal.NewFromFloat(1)))
}

func TestPositionUpsertAndDeleteOnFlat(t *testing.T) {
	s := openTestStore(t)
	p := domain.Position{
		StrategyID: "strat-1", Symbol: "BTC-USD", Environment: domain.EnvPaper,
		Quantity: decimal.NewFromFloat(1), EntryPrice: decimal.NewFromFloat(50000), CurrentPrice: decimal.NewFromFloat(51000),
		OpenedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Position().Upsert(p))

	got, ok := s.Position().Get("strat-1", "BTC-USD", domain.EnvPaper)
	require.True(t, ok)
	require.True(t, got.Quantity.Equal(decimal.NewFromFloat(1)))

	require.NoError(t, s.Position().Delete("strat-1", "BTC-USD", domain.EnvPaper))
	_, ok = s.Position().Get("strat-1", "BTC-USD", domain.EnvPaper)
	require.False(t, ok)
}

func TestSchedulerLeaseExclusivity(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UnixMilli()
	ok, err := s.Scheduler().TryAcquire("strategy_generation", "orchestrator-a", now, now+60_000)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Scheduler().TryAcquire("strategy_generation", "orchestrator-b", now, now+60_000)
	require.NoError(t, err)
	require.False(t, ok, "a second replica must not acquire a live lease")

	expired := now + 120_000
	ok, err = s.Scheduler().TryAcquire("strategy_generation", "orchestrator-b", expired, expired+60_000)
	require.NoError(t, err)
	require.True(t, ok, "a replica may take over once the lease has expired")
}

func TestSystemConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	_, ok := s.GetSystemConfig("max_active_strategies")
	require.False(t, ok)

	require.NoError(t, s.SetSystemConfig("max_active_strategies", "25", time.Now().UnixMilli()))
	v, ok := s.GetSystemConfig("max_active_strategies")
	require.True(t, ok)
	require.Equal(t, "25", v)
}
