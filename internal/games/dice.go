package games

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// DiceGame is a higher/lower roll over [0, 100).
type DiceGame struct {
	rules Rules
}

// Spec returns metadata about the Dice game
func (g *DiceGame) Spec() GameSpec {
	return GameSpec{
		ID:          "dice",
		Name:        "Dice",
		MetricLabel: "roll",
		Family:      FamilyThreshold,
	}
}

type diceBet struct {
	target     float64
	direction  string
	p          float64
	multiplier float64
}

func (g *DiceGame) parse(params map[string]any) (diceBet, error) {
	target, err := requireFloat(params, "target")
	if err != nil {
		return diceBet{}, err
	}
	if target <= 0 || target >= 100 {
		return diceBet{}, errs.Invalid("dice target must be in (0, 100), got %v", target)
	}

	direction, err := choiceParam(params, "direction", "under", "over", "under")
	if err != nil {
		return diceBet{}, err
	}

	p := target / 100
	if direction == "over" {
		p = (100 - target) / 100
	}

	m, err := g.rules.winMultiplier(p)
	if err != nil {
		return diceBet{}, err
	}
	return diceBet{target: target, direction: direction, p: p, multiplier: m}, nil
}

// Validate checks target and direction.
func (g *DiceGame) Validate(params map[string]any) error {
	_, err := g.parse(params)
	return err
}

// Resolve rolls u×100 and compares it with the target.
func (g *DiceGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	bet, err := g.parse(params)
	if err != nil {
		return Outcome{}, err
	}

	roll := stream.NextFloat() * 100

	won := roll < bet.target
	if bet.direction == "over" {
		won = roll > bet.target
	}

	multiplier := 0.0
	if won {
		multiplier = bet.multiplier
	}

	// Display value only; the comparison above uses the raw roll.
	shown := math.Floor(roll*100) / 100

	return newOutcome(wager, multiplier, shown, map[string]any{
		"roll":            shown,
		"target":          bet.target,
		"direction":       bet.direction,
		"win":             won,
		"win_probability": bet.p,
		"win_multiplier":  bet.multiplier,
	}), nil
}
