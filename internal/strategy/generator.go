package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"mastertrade/internal/domain"
	"mastertrade/internal/obs/logger"
	"mastertrade/internal/store"
)

// candidateTarget is ~500 candidates per generation cycle, per SPEC_FULL §5.
const candidateTarget = 500

// Generator produces candidate strategies each generation cycle, mixing
// genetic crossover from a seed pool of past backtested strategies,
// systematic parameter sweeps, and ML-suggested configurations.
type Generator struct {
	strategies *store.StrategyStore
	symbols    []string
	intervals  []string
	predictor  Predictor
}

// Predictor supplies ML-suggested strategy configurations; a nil Predictor
// simply contributes zero candidates from that source, per SPEC_FULL §5's
// "mix of" language (none of the three sources is individually required).
type Predictor interface {
	Suggest(n int) ([]domain.Strategy, error)
}

func NewGenerator(strategies *store.StrategyStore, symbols, intervals []string, predictor Predictor) *Generator {
	return &Generator{strategies: strategies, symbols: symbols, intervals: intervals, predictor: predictor}
}

// Generate produces one cycle's worth of draft candidates: parameter sweeps
// over the known templates, genetic crossover from the best prior
// `backtested` strategies, and (if configured) ML-suggested configs.
func (g *Generator) Generate() (int, error) {
	seedPool, err := g.strategies.ByStatus(domain.StrategyBacktested)
	if err != nil {
		return 0, fmt.Errorf("strategy: generate: load seed pool: %w", err)
	}

	candidates := g.sweepCandidates()
	candidates = append(candidates, g.crossoverCandidates(seedPool)...)

	if g.predictor != nil {
		suggested, err := g.predictor.Suggest(candidateTarget - len(candidates))
		if err != nil {
			logger.Warnf("strategy: predictor suggest failed, continuing without ML candidates: %v", err)
		} else {
			candidates = append(candidates, suggested...)
		}
	}

	if len(candidates) > candidateTarget {
		candidates = candidates[:candidateTarget]
	}

	written := 0
	for _, c := range candidates {
		if err := g.strategies.Create(c); err != nil {
			logger.Warnf("strategy: generate: persist candidate %s: %v", c.ID, err)
			continue
		}
		written++
	}
	return written, nil
}

func (g *Generator) sweepCandidates() []domain.Strategy {
	now := time.Now().UTC()
	var out []domain.Strategy
	for _, tmpl := range templates {
		for _, params := range sweep(tmpl) {
			for _, symbol := range g.symbols {
				for _, interval := range g.intervals {
					out = append(out, domain.Strategy{
						ID:              uuid.NewString(),
						Name:            fmt.Sprintf("%s-%s-%s", tmpl.Type, symbol, interval),
						Type:            tmpl.Type,
						Symbol:          symbol,
						Interval:        interval,
						Parameters:      params,
						EntryConditions: tmpl.EntryConditions,
						ExitConditions:  tmpl.ExitConditions,
						RiskParams:      defaultRiskParams(),
						Status:          domain.StrategyDraft,
						Version:         1,
						Generation:      0,
						CreatedAt:       now,
						UpdatedAt:       now,
					})
				}
			}
		}
	}
	return out
}

// crossoverCandidates breeds new candidates from pairs of the seed pool by
// averaging their numeric parameters (crossover), incrementing Generation
// from the parents' max. No mutation step is applied.
func (g *Generator) crossoverCandidates(seedPool []domain.Strategy) []domain.Strategy {
	now := time.Now().UTC()
	var out []domain.Strategy
	for i := 0; i+1 < len(seedPool); i += 2 {
		parentA, parentB := seedPool[i], seedPool[i+1]
		if parentA.Type != parentB.Type {
			continue
		}
		child := domain.Strategy{
			ID:               uuid.NewString(),
			Name:             parentA.Type + "-cross-" + parentA.Symbol,
			Type:             parentA.Type,
			Symbol:           parentA.Symbol,
			Interval:         parentA.Interval,
			Parameters:       crossoverParams(parentA.Parameters, parentB.Parameters),
			EntryConditions:  parentA.EntryConditions,
			ExitConditions:   parentA.ExitConditions,
			RiskParams:       defaultRiskParams(),
			Status:           domain.StrategyDraft,
			Version:          1,
			ParentStrategyID: parentA.ID,
			Generation:       maxInt(parentA.Generation, parentB.Generation) + 1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		out = append(out, child)
	}
	return out
}

func crossoverParams(a, b map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(a))
	for k, va := range a {
		if vb, ok := b[k]; ok {
			out[k] = (va + vb) / 2
		} else {
			out[k] = va
		}
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
