package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

// CoinflipGame is an even-odds call on one draw.
type CoinflipGame struct {
	rules Rules
}

func (g *CoinflipGame) Spec() GameSpec {
	return GameSpec{
		ID:          "coinflip",
		Name:        "Coinflip",
		MetricLabel: "side",
		Family:      FamilyThreshold,
	}
}

func (g *CoinflipGame) Validate(params map[string]any) error {
	_, err := choiceParam(params, "side", "", "heads", "tails")
	return err
}

// Resolve lands heads iff u < 0.5. The metric is 0 for heads and 1 for tails.
func (g *CoinflipGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	side, err := choiceParam(params, "side", "", "heads", "tails")
	if err != nil {
		return Outcome{}, err
	}
	winMultiplier, err := g.rules.winMultiplier(0.5)
	if err != nil {
		return Outcome{}, err
	}

	landed, metric := "tails", 1.0
	if stream.NextFloat() < 0.5 {
		landed, metric = "heads", 0
	}

	multiplier := 0.0
	if landed == side {
		multiplier = winMultiplier
	}

	return newOutcome(wager, multiplier, metric, map[string]any{
		"side":   side,
		"landed": landed,
		"win":    landed == side,
	}), nil
}
