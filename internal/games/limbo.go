package games

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// LimboGame pays the chosen target multiplier when the drawn multiplier reaches it.
type LimboGame struct {
	rules Rules
}

func (g *LimboGame) Spec() GameSpec {
	return GameSpec{
		ID:          "limbo",
		Name:        "Limbo",
		MetricLabel: "multiplier",
		Family:      FamilyThreshold,
	}
}

func (g *LimboGame) parse(params map[string]any) (target, p float64, err error) {
	target, err = requireFloat(params, "target")
	if err != nil {
		return 0, 0, err
	}
	if target < 1 {
		return 0, 0, errs.Invalid("limbo target must be at least 1, got %v", target)
	}
	// Results are shown with 2 decimals, so targets are too.
	if math.Abs(target*100-math.Round(target*100)) > 1e-6 {
		return 0, 0, errs.Invalid("limbo target must have at most 2 decimal places, got %v", target)
	}

	p = g.rules.HouseEdge / target
	if _, err := g.rules.winMultiplier(p); err != nil {
		return 0, 0, err
	}
	return target, p, nil
}

func (g *LimboGame) Validate(params map[string]any) error {
	_, _, err := g.parse(params)
	return err
}

// Resolve wins iff u >= 1-p, which is the same event as E/(1-u) >= target.
func (g *LimboGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	target, p, err := g.parse(params)
	if err != nil {
		return Outcome{}, err
	}

	u := stream.NextFloat()
	result := floor2(g.rules.HouseEdge / (1 - u))
	if result < 1 {
		result = 1
	}

	won := u >= 1-p
	multiplier := 0.0
	if won {
		multiplier = target
		result = max(result, target)
	}

	return newOutcome(wager, multiplier, result, map[string]any{
		"result":          result,
		"target":          target,
		"win":             won,
		"win_probability": p,
	}), nil
}
