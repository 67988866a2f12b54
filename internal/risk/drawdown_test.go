package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDrawdownEscalation is the literal E5 scenario from spec.md §9:
// peak=100, current=92 -> drawdown 8%, normal limit 5%, ratio 1.6 ->
// [PAUSE_NEW, REDUCE_POSITIONS]; current=89 -> ratio 2.2 -> [CLOSE_ALL].
func TestDrawdownEscalation(t *testing.T) {
	tracker := NewDrawdownTracker(nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Establish the peak at 100.
	tracker.CheckDrawdown("p1", 100, now)

	result := tracker.CheckDrawdown("p1", 92, now)
	require.InDelta(t, 0.08, result.Drawdown, 0.001)
	require.Equal(t, normalDrawdownLimit, result.Limit)
	require.Equal(t, []Action{ActionPauseNew, ActionReducePositions}, result.Actions)

	result = tracker.CheckDrawdown("p1", 89, now)
	require.InDelta(t, 0.11, result.Drawdown, 0.001)
	require.Equal(t, []Action{ActionCloseAll}, result.Actions)
}

func TestDrawdownResetsAtMonthBoundary(t *testing.T) {
	tracker := NewDrawdownTracker(nil)
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tracker.CheckDrawdown("p1", 100, jan)
	result := tracker.CheckDrawdown("p1", 80, jan)
	require.NotEmpty(t, result.Actions)

	// A new month resets the peak to the current value, clearing the
	// breach even though the portfolio never recovered.
	result = tracker.CheckDrawdown("p1", 80, feb)
	require.Empty(t, result.Actions)
}

func TestDrawdownProtectiveModeTightensLimit(t *testing.T) {
	tracker := NewDrawdownTracker(nil)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	peak := 0.95 * portfolioTargetEUR
	tracker.CheckDrawdown("p1", peak, now)
	result := tracker.CheckDrawdown("p1", peak*0.97, now)
	require.Equal(t, protectiveDrawdownLimit, result.Limit)
	require.NotEmpty(t, result.Actions)
}
