package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mastertrade/internal/cache"
	"mastertrade/internal/domain"
	"mastertrade/internal/errs"
)

// TestBreakerOpensThenHalfOpens is the literal E3 scenario from spec.md §8:
// five consecutive failures open the breaker; after the timeout the next two
// successes close it again.
func TestBreakerOpensThenHalfOpens(t *testing.T) {
	c := cache.NewInMemory()
	b := New("collector-x", Config{
		FailureThreshold:         5,
		TimeoutSeconds:           50 * time.Millisecond,
		HalfOpenSuccessThreshold: 2,
		HalfOpenMaxCalls:         3,
	}, c)

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Acquire())
		b.RecordResult(false)
	}
	assert.Equal(t, domain.BreakerOpen, b.State())

	err := b.Acquire()
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.CircuitOpen)

	time.Sleep(60 * time.Millisecond)

	require.NoError(t, b.Acquire())
	b.RecordResult(true)
	assert.Equal(t, domain.BreakerHalfOpen, b.State())

	require.NoError(t, b.Acquire())
	b.RecordResult(true)
	assert.Equal(t, domain.BreakerClosed, b.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := New("collector-y", Config{FailureThreshold: 2, TimeoutSeconds: 20 * time.Millisecond}, nil)
	require.NoError(t, b.Acquire())
	b.RecordResult(false)
	require.NoError(t, b.Acquire())
	b.RecordResult(false)
	assert.Equal(t, domain.BreakerOpen, b.State())

	time.Sleep(25 * time.Millisecond)
	require.NoError(t, b.Acquire())
	b.RecordResult(false)
	assert.Equal(t, domain.BreakerOpen, b.State())
}

func TestForceOpenAndReset(t *testing.T) {
	b := New("collector-z", Config{}, nil)
	b.ForceOpen("operator-1", "manual maintenance")
	assert.Equal(t, domain.BreakerOpen, b.State())
	b.Reset("operator-1", "maintenance done")
	assert.Equal(t, domain.BreakerClosed, b.State())
}
