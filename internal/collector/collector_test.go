package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mastertrade/internal/breaker"
	"mastertrade/internal/cache"
	"mastertrade/internal/domain"
	"mastertrade/internal/ratelimit"
)

func newTestBase(t *testing.T) *Base {
	t.Helper()
	c := cache.NewInMemory()
	return &Base{
		CollectorName: "test-collector",
		Kind:          domain.SourceOnChain,
		Limiter: ratelimit.New(ratelimit.Config{
			Collector: "test-collector", Endpoint: "poll", InitialPerSecond: 1000, MaxPerSecond: 1000,
		}, c),
		Breaker: breaker.New("test-collector", breaker.Config{FailureThreshold: 2}, c),
	}
}

func TestGuardCountsNetworkFailuresAgainstBreaker(t *testing.T) {
	b := newTestBase(t)
	failing := func(ctx context.Context) (int, time.Duration, int, time.Duration, error) {
		return 0, 0, 0, 0, errors.New("dial tcp: connection refused")
	}

	require.Error(t, b.Guard(context.Background(), failing))
	require.Error(t, b.Guard(context.Background(), failing))
	require.Equal(t, domain.BreakerOpen, b.Breaker.State())
}

func TestGuard4xxDoesNotCountAgainstBreaker(t *testing.T) {
	b := newTestBase(t)
	permanentClientErr := func(ctx context.Context) (int, time.Duration, int, time.Duration, error) {
		return 404, 0, 0, 0, nil // 4xx surfaced as a clean (non-error) status, not a Guard error
	}
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Guard(context.Background(), permanentClientErr))
	}
	require.Equal(t, domain.BreakerClosed, b.Breaker.State())
}

type fakeCollector struct {
	name    string
	started chan struct{}
	stopped chan struct{}
}

func newFakeCollector(name string) *fakeCollector {
	return &fakeCollector{name: name, started: make(chan struct{}, 1), stopped: make(chan struct{}, 1)}
}

func (f *fakeCollector) Name() string                 { return f.name }
func (f *fakeCollector) SourceKind() domain.SourceKind { return domain.SourceMarket }
func (f *fakeCollector) Start(ctx context.Context) error {
	f.started <- struct{}{}
	<-ctx.Done()
	return nil
}
func (f *fakeCollector) Stop(context.Context) error {
	f.stopped <- struct{}{}
	return nil
}
func (f *fakeCollector) PollOnce(context.Context) error { return nil }
func (f *fakeCollector) Backfill(context.Context, time.Time, time.Time) error { return nil }
func (f *fakeCollector) HealthCheck(context.Context) domain.HealthRecord {
	return domain.HealthRecord{Collector: f.name, Status: domain.HealthHealthy}
}

func TestRegistryStartAllAndStopAll(t *testing.T) {
	r := NewRegistry()
	c1 := newFakeCollector("c1")
	c2 := newFakeCollector("c2")
	r.Register(c1)
	r.Register(c2)

	r.StartAll(context.Background())

	select {
	case <-c1.started:
	case <-time.After(time.Second):
		t.Fatal("c1 never started")
	}
	select {
	case <-c2.started:
	case <-time.After(time.Second):
		t.Fatal("c2 never started")
	}

	r.StopAll(context.Background())

	select {
	case <-c1.stopped:
	case <-time.After(time.Second):
		t.Fatal("c1 never stopped")
	}
	select {
	case <-c2.stopped:
	case <-time.After(time.Second):
		t.Fatal("c2 never stopped")
	}

	require.Len(t, r.All(), 2)
}
