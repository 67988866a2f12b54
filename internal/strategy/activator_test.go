package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mastertrade/internal/domain"
	"mastertrade/internal/store"
)

type recordingPublisher struct {
	published []string
}

func (p *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, msg domain.RawMessage) error {
	p.published = append(p.published, routingKey)
	return nil
}

type fixedGoalFactor struct{ factor float64 }

func (f fixedGoalFactor) AdjustmentFactor() (float64, error) { return f.factor, nil }

func newActivatorTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(dir + "/activator_test.db")
	require.NoError(t, err)
	return s
}

// seedStrategy inserts a strategy at the given status with a RiskParams
// tuned so overallScore() produces a known ordering: higher takeProfit and
// lower stopLoss score higher.
func seedStrategy(t *testing.T, strategies *store.StrategyStore, id string, status domain.StrategyStatus, takeProfit, stopLoss float64) {
	t.Helper()
	now := time.Now().UTC()
	err := strategies.Create(domain.Strategy{
		ID:       id,
		Name:     id,
		Type:     "momentum",
		Symbol:   "BTCUSDT",
		Interval: "1h",
		RiskParams: domain.RiskParams{
			StopLossPct:     stopLoss,
			TakeProfitPct:   takeProfit,
			PositionSizePct: 0.05,
		},
		Status:    status,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	})
	require.NoError(t, err)
}

// TestActivationCapDiffsAndRanks is the literal E4 scenario from spec.md §9:
// MAX_ACTIVE_STRATEGIES=3, active={A,B,C}, new ranking puts {D,E,A} on top,
// so {B,C} deactivate and {D,E} enter paper, then — once the 24h stability
// window has passed — promote to active, leaving {D,E,A} active with an
// audit row written at each step. D and E never skip paper: the first Run
// can only ever move a backtested strategy to paper (domain.CanTransition
// forbids backtested->active directly).
func TestActivationCapDiffsAndRanks(t *testing.T) {
	s := newActivatorTestStore(t)
	strategies := s.Strategy()
	activations := s.ActivationLog()

	// A, B, C start active with modest scores; D, E are backtested
	// candidates scored to rank above everything else, and A is tuned to
	// remain in the top 3 post-ranking.
	seedStrategy(t, strategies, "A", domain.StrategyActive, 0.20, 0.02)
	seedStrategy(t, strategies, "B", domain.StrategyActive, 0.05, 0.02)
	seedStrategy(t, strategies, "C", domain.StrategyActive, 0.04, 0.02)
	seedStrategy(t, strategies, "D", domain.StrategyBacktested, 0.30, 0.01)
	seedStrategy(t, strategies, "E", domain.StrategyBacktested, 0.28, 0.01)

	pub := &recordingPublisher{}
	activator := NewActivator(strategies, activations, fixedGoalFactor{factor: 1.0}, pub, 3)

	t0 := time.Now().UTC()
	require.NoError(t, activator.Run(t0))

	active, err := strategies.Active()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "A", active[0].ID)

	paper, err := strategies.ByStatus(domain.StrategyPaper)
	require.NoError(t, err)
	paperIDs := map[string]bool{}
	for _, st := range paper {
		paperIDs[st.ID] = true
	}
	require.True(t, paperIDs["D"])
	require.True(t, paperIDs["E"])

	paused, err := strategies.ByStatus(domain.StrategyPaused)
	require.NoError(t, err)
	pausedIDs := map[string]bool{}
	for _, st := range paused {
		pausedIDs[st.ID] = true
	}
	require.True(t, pausedIDs["B"])
	require.True(t, pausedIDs["C"])

	require.Contains(t, pub.published, "strategy.paper")
	require.Contains(t, pub.published, "strategy.paused")

	// 24h later the stability window clears and D, E (still ranked in the
	// top 3, now in paper) promote to active.
	require.NoError(t, activator.Run(t0.Add(24*time.Hour)))

	active, err = strategies.Active()
	require.NoError(t, err)
	require.Len(t, active, 3)

	activeIDs := map[string]bool{}
	for _, st := range active {
		activeIDs[st.ID] = true
	}
	require.True(t, activeIDs["D"])
	require.True(t, activeIDs["E"])
	require.True(t, activeIDs["A"])

	entries, err := activations.Recent(10)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	require.Contains(t, pub.published, "strategy.activated")
}

// TestActivationStabilityRuleBlocksRapidFlip asserts the 24h-unless->15%
// stability rule: a strategy that just flipped cannot flip again within
// 24h unless its score moved by more than 15%.
func TestActivationStabilityRuleBlocksRapidFlip(t *testing.T) {
	s := newActivatorTestStore(t)
	strategies := s.Strategy()
	activations := s.ActivationLog()

	seedStrategy(t, strategies, "A", domain.StrategyActive, 0.20, 0.02)
	seedStrategy(t, strategies, "B", domain.StrategyBacktested, 0.30, 0.01)

	pub := &recordingPublisher{}
	activator := NewActivator(strategies, activations, fixedGoalFactor{factor: 1.0}, pub, 1)

	// B outranks A, so the first run pauses A and moves B into paper; both
	// flips are recorded at t0.
	t0 := time.Now().UTC()
	require.NoError(t, activator.Run(t0))

	active, err := strategies.Active()
	require.NoError(t, err)
	require.Len(t, active, 0)
	b, ok := strategies.Get("B")
	require.True(t, ok)
	require.Equal(t, domain.StrategyPaper, b.Status)

	// One hour later B still ranks first with an unchanged score (0% move),
	// so the stability rule blocks its paper->active flip.
	require.NoError(t, activator.Run(t0.Add(time.Hour)))

	active, err = strategies.Active()
	require.NoError(t, err)
	require.Len(t, active, 0)

	// Once 24h have passed the flip is allowed.
	require.NoError(t, activator.Run(t0.Add(24*time.Hour)))

	active, err = strategies.Active()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "B", active[0].ID)
}
