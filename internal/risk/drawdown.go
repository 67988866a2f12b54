// Package risk implements the gate between strategy signal emission and
// order execution (SPEC_FULL §4.7): position sizing modulated by goal
// progress, monthly drawdown tracking with escalating protective actions,
// and the daily goal-tracking sub-task.
package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mastertrade/internal/domain"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
)

// Action is a protective measure triggered by a drawdown breach.
type Action string

const (
	ActionPauseNew        Action = "PAUSE_NEW"
	ActionReducePositions  Action = "REDUCE_POSITIONS"
	ActionCloseAll        Action = "CLOSE_ALL"
)

// ReducePositionsFraction is the fraction of each open position closed by
// the REDUCE_POSITIONS action.
const ReducePositionsFraction = 0.5

const (
	normalDrawdownLimit     = 0.05
	protectiveDrawdownLimit = 0.02
	protectiveModeThreshold = 0.9 // portfolio > 0.9*target enters protective mode
	portfolioTargetEUR      = 1_000_000.0
)

// DrawdownResult is the outcome of a check_drawdown evaluation.
type DrawdownResult struct {
	Drawdown float64
	Limit    float64
	Actions  []Action
}

// peakState tracks one portfolio's monthly peak equity.
type peakState struct {
	peak       float64
	monthStamp string // "2026-01"
}

// DrawdownTracker maintains a monthly peak per portfolio and classifies
// breaches into escalating actions, per SPEC_FULL §4.7.
type DrawdownTracker struct {
	mu     sync.Mutex
	peaks  map[string]*peakState
	alerts *store.AlertStore
}

func NewDrawdownTracker(alerts *store.AlertStore) *DrawdownTracker {
	return &DrawdownTracker{peaks: make(map[string]*peakState), alerts: alerts}
}

// CheckDrawdown evaluates portfolioValue against the tracked peak for
// portfolioID, resetting the peak at each month boundary, and returns the
// stance/actions to apply. Every breach is persisted as a critical alert.
func (d *DrawdownTracker) CheckDrawdown(portfolioID string, portfolioValue float64, now time.Time) DrawdownResult {
	d.mu.Lock()
	state, ok := d.peaks[portfolioID]
	month := now.Format("2006-01")
	if !ok || state.monthStamp != month {
		state = &peakState{peak: portfolioValue, monthStamp: month}
		d.peaks[portfolioID] = state
	}
	if portfolioValue > state.peak {
		state.peak = portfolioValue
	}
	peak := state.peak
	d.mu.Unlock()

	if peak <= 0 {
		return DrawdownResult{}
	}

	drawdown := (peak - portfolioValue) / peak
	limit := normalDrawdownLimit
	if portfolioValue > protectiveModeThreshold*portfolioTargetEUR {
		limit = protectiveDrawdownLimit
	}

	var actions []Action
	switch {
	case drawdown >= 2*limit:
		actions = []Action{ActionCloseAll}
	case drawdown >= 1.5*limit:
		actions = []Action{ActionPauseNew, ActionReducePositions}
	case drawdown >= limit:
		actions = []Action{ActionPauseNew}
	}

	result := DrawdownResult{Drawdown: drawdown, Limit: limit, Actions: actions}
	if len(actions) > 0 {
		d.raiseBreachAlert(portfolioID, result, now)
	}
	return result
}

func (d *DrawdownTracker) raiseBreachAlert(portfolioID string, result DrawdownResult, now time.Time) {
	if d.alerts == nil {
		return
	}
	alert := domain.Alert{
		ID:         uuid.NewString(),
		Type:       "drawdown_breach",
		Severity:   domain.SeverityCritical,
		Title:      "Portfolio drawdown breach",
		Message:    fmt.Sprintf("portfolio %s drawdown=%.2f%% limit=%.2f%% actions=%v", portfolioID, result.Drawdown*100, result.Limit*100, result.Actions),
		EntityType: "portfolio",
		EntityID:   portfolioID,
		Status:     domain.AlertActive,
		CreatedAt:  now,
	}
	if err := d.alerts.Create(alert); err != nil {
		logger.Errorf("risk: drawdown: persist breach alert: %v", err)
	}
}
