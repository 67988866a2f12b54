package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"mastertrade/internal/domain"
	"mastertrade/internal/fabric"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
)

// GoalFactorSource supplies the goal-based adjustment factor consumed by
// activation ranking (SPEC_FULL §4.7's "strategy adjustment factor").
// Activation never blocks on a failure here: goalFactorFallback applies
// instead, with a logged warning.
type GoalFactorSource interface {
	AdjustmentFactor() (float64, error)
}

const goalFactorFallback = 1.0

// Activator runs the every-4h (and post-backtest) ranking/selection loop,
// enforcing MAX_ACTIVE_STRATEGIES and the 24h stability rule.
type Activator struct {
	strategies  *store.StrategyStore
	activations *store.ActivationLogStore
	goalFactor  GoalFactorSource
	fabric      fabric.Publisher
	maxActive   int

	mu           sync.Mutex
	lastFlipAt   map[string]time.Time
	lastScoreAt  map[string]float64
}

func NewActivator(strategies *store.StrategyStore, activations *store.ActivationLogStore, goalFactor GoalFactorSource, pub fabric.Publisher, maxActive int) *Activator {
	return &Activator{
		strategies:  strategies,
		activations: activations,
		goalFactor:  goalFactor,
		fabric:      pub,
		maxActive:   maxActive,
		lastFlipAt:  make(map[string]time.Time),
		lastScoreAt: make(map[string]float64),
	}
}

// scored pairs a strategy with its computed overall score.
type scored struct {
	strategy domain.Strategy
	overall  float64
}

// Run executes one activation-loop cycle: score every non-archived
// strategy, rank, diff against the current active set under the 24h
// stability rule, transition statuses, and log the result.
func (a *Activator) Run(now time.Time) error {
	candidates, err := a.eligibleStrategies()
	if err != nil {
		return fmt.Errorf("strategy: activator: load candidates: %w", err)
	}

	goalFactor, err := a.goalFactor.AdjustmentFactor()
	if err != nil {
		goalFactor = goalFactorFallback
		logger.Warnf("strategy: activator: goal factor unavailable, falling back to %.1f: %v", goalFactorFallback, err)
	}

	ranked := make([]scored, 0, len(candidates))
	for _, st := range candidates {
		overall := overallScore(st) * goalFactor
		ranked = append(ranked, scored{strategy: st, overall: overall})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].overall > ranked[j].overall })

	currentActive, err := a.strategies.Active()
	if err != nil {
		return fmt.Errorf("strategy: activator: load active set: %w", err)
	}
	currentIDs := make(map[string]bool, len(currentActive))
	for _, st := range currentActive {
		currentIDs[st.ID] = true
	}

	target := make(map[string]scored)
	for i := 0; i < len(ranked) && i < a.maxActive; i++ {
		target[ranked[i].strategy.ID] = ranked[i]
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var toActivate, toDeactivate []scored
	for id, s := range target {
		if !currentIDs[id] && a.allowFlip(id, s.overall, now) {
			toActivate = append(toActivate, s)
		}
	}
	for _, st := range currentActive {
		if _, stillTarget := target[st.ID]; !stillTarget {
			overall := overallScore(st) * goalFactor
			if a.allowFlip(st.ID, overall, now) {
				toDeactivate = append(toDeactivate, scored{strategy: st, overall: overall})
			}
		}
	}

	for _, s := range toDeactivate {
		if err := a.strategies.UpdateStatus(s.strategy.ID, domain.StrategyPaused, now); err != nil {
			logger.Errorf("strategy: activator: deactivate %s: %v", s.strategy.ID, err)
			continue
		}
		a.recordFlip(s.strategy.ID, s.overall, now)
		a.publish(now, "strategy.paused", s.strategy.ID)
		a.log(now, "", s.strategy.ID, s.overall, goalFactor, "ranked below cutoff")
	}
	for _, s := range toActivate {
		// A strategy must pass through paper before it can go active
		// (domain.CanTransition forbids backtested->active directly); only a
		// strategy already in paper or paused is eligible to flip straight to
		// active. The stability rule's 24h-unless->15%-move gate (allowFlip,
		// keyed off the paper-entry flip recorded below) is what gives every
		// newly-papered strategy its dwell time before it can rank its way
		// into this branch on a later run.
		switch s.strategy.Status {
		case domain.StrategyBacktested:
			if err := a.strategies.UpdateStatus(s.strategy.ID, domain.StrategyPaper, now); err != nil {
				logger.Errorf("strategy: activator: paper %s: %v", s.strategy.ID, err)
				continue
			}
			a.recordFlip(s.strategy.ID, s.overall, now)
			a.publish(now, "strategy.paper", s.strategy.ID)
			a.log(now, s.strategy.ID, "", s.overall, goalFactor, "ranked above cutoff, entering paper")
		case domain.StrategyPaper, domain.StrategyPaused:
			if err := a.strategies.UpdateStatus(s.strategy.ID, domain.StrategyActive, now); err != nil {
				logger.Errorf("strategy: activator: activate %s: %v", s.strategy.ID, err)
				continue
			}
			a.recordFlip(s.strategy.ID, s.overall, now)
			a.publish(now, "strategy.activated", s.strategy.ID)
			a.log(now, s.strategy.ID, "", s.overall, goalFactor, "ranked above cutoff")
		default:
			logger.Warnf("strategy: activator: %s ranked above cutoff from unexpected status %s, skipping", s.strategy.ID, s.strategy.Status)
		}
	}
	return nil
}

// ActivateSkippingPaper is the audited escape hatch for deployments that
// want to move a strategy backtested->paper->active in one call (two
// successive status updates, not wrapped in a transaction),
// resolving spec.md's open question in favor of the default three-step
// path with this as an explicit opt-in (see SPEC_FULL §10).
func (a *Activator) ActivateSkippingPaper(strategyID string, now time.Time, operator string) error {
	st, ok := a.strategies.Get(strategyID)
	if !ok {
		return fmt.Errorf("strategy: activator: unknown strategy %s", strategyID)
	}
	if st.Status != domain.StrategyBacktested {
		return fmt.Errorf("strategy: activator: %s is %s, not backtested", strategyID, st.Status)
	}
	if err := a.strategies.UpdateStatus(strategyID, domain.StrategyPaper, now); err != nil {
		return err
	}
	if err := a.strategies.UpdateStatus(strategyID, domain.StrategyActive, now); err != nil {
		return err
	}
	a.publish(now, "strategy.activated", strategyID)
	a.log(now, strategyID, "", 0, 0, fmt.Sprintf("paper phase skipped by operator %s", operator))
	return nil
}

// allowFlip enforces the 24h-unless->15%-move stability rule. Must be
// called with a.mu held.
func (a *Activator) allowFlip(id string, newScore float64, now time.Time) bool {
	last, seen := a.lastFlipAt[id]
	if !seen {
		return true
	}
	if now.Sub(last) >= 24*time.Hour {
		return true
	}
	prevScore := a.lastScoreAt[id]
	if prevScore == 0 {
		return true
	}
	move := (newScore - prevScore) / prevScore
	if move < 0 {
		move = -move
	}
	return move > 0.15
}

func (a *Activator) recordFlip(id string, score float64, now time.Time) {
	a.lastFlipAt[id] = now
	a.lastScoreAt[id] = score
}

func (a *Activator) publish(now time.Time, routingKey, strategyID string) {
	if a.fabric == nil {
		return
	}
	data, _ := json.Marshal(map[string]string{"strategy_id": strategyID})
	msg := domain.RawMessage{
		Type:       domain.MsgSystemNotification,
		Timestamp:  now,
		Source:     "strategy-orchestrator",
		Data:       data,
		RoutingKey: routingKey,
		Persistent: true,
	}
	if err := a.fabric.Publish(context.Background(), "mastertrade.trading", routingKey, msg); err != nil {
		logger.Warnf("strategy: activator: publish %s for %s: %v", routingKey, strategyID, err)
	}
}

func (a *Activator) log(now time.Time, activatedID, deactivatedID string, overall, goalFactor float64, reason string) {
	entry := store.ActivationLogEntry{
		RunAt:         now.UnixMilli(),
		ActivatedID:   activatedID,
		DeactivatedID: deactivatedID,
		OverallScore:  overall,
		GoalFactor:    goalFactor,
		Reason:        reason,
	}
	if err := a.activations.Record(entry); err != nil {
		logger.Warnf("strategy: activator: record activation log: %v", err)
	}
}

// eligibleStrategies returns every non-archived strategy in backtested,
// paper, active, or paused status — the population the activation loop
// ranks over.
func (a *Activator) eligibleStrategies() ([]domain.Strategy, error) {
	var out []domain.Strategy
	for _, status := range []domain.StrategyStatus{domain.StrategyBacktested, domain.StrategyPaper, domain.StrategyActive, domain.StrategyPaused} {
		batch, err := a.strategies.ByStatus(status)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

// overallScore computes the weighted composite, per SPEC_FULL §5:
// overall = 0.50*performance + 0.25*backtest + 0.15*market_alignment + 0.10*risk_score.
// performance/backtest/market_alignment/risk_score are each proxied from
// available strategy fields until a dedicated scoring pipeline is wired in;
// each term is clamped to [0,1].
func overallScore(st domain.Strategy) float64 {
	performance := clamp01(0.5 + st.RiskParams.TakeProfitPct*2)
	backtestScore := clamp01(0.5)
	marketAlignment := clamp01(0.5)
	riskScore := clamp01(1 - st.RiskParams.StopLossPct*10)
	return 0.50*performance + 0.25*backtestScore + 0.15*marketAlignment + 0.10*riskScore
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
