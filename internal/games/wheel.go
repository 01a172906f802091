package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// WheelGame spins a wheel of equally weighted segments.
type WheelGame struct{}

// Wheel segment multipliers.
// Keys: segments (10, 20, 30, 40, 50) → risk (low, medium, high) → []multiplier
var wheelPayouts = map[int]map[string][]float64{
	10: {
		"low":    {1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0},
		"medium": {0, 1.9, 0, 1.5, 0, 2, 0, 1.5, 0, 3},
		"high":   {0, 0, 0, 0, 0, 0, 0, 0, 0, 9.9},
	},
	20: {
		"low": {
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
		},
		"medium": {
			1.5, 0, 2, 0, 2, 0, 2, 0, 1.5, 0,
			3, 0, 1.8, 0, 2, 0, 2, 0, 2, 0,
		},
		"high": {
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 19.8,
		},
	},
	30: {
		"low": {
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
		},
		"medium": {
			1.5, 0, 1.5, 0, 2, 0, 1.5, 0, 2, 0,
			2, 0, 1.5, 0, 3, 0, 1.5, 0, 2, 0,
			2, 0, 1.7, 0, 4, 0, 1.5, 0, 2, 0,
		},
		"high": {
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 29.7,
		},
	},
	40: {
		"low": {
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
		},
		"medium": {
			2, 0, 3, 0, 2, 0, 1.5, 0, 3, 0,
			1.5, 0, 1.5, 0, 2, 0, 1.5, 0, 3, 0,
			1.5, 0, 2, 0, 2, 0, 1.6, 0, 2, 0,
			1.5, 0, 3, 0, 1.5, 0, 2, 0, 1.5, 0,
		},
		"high": {
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 39.6,
		},
	},
	50: {
		"low": {
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
			1.5, 1.2, 1.2, 1.2, 0, 1.2, 1.2, 1.2, 1.2, 0,
		},
		"medium": {
			2, 0, 1.5, 0, 2, 0, 1.5, 0, 3, 0,
			1.5, 0, 1.5, 0, 2, 0, 1.5, 0, 3, 0,
			1.5, 0, 2, 0, 1.5, 0, 2, 0, 2, 0,
			1.5, 0, 3, 0, 1.5, 0, 2, 0, 1.5, 0,
			1.5, 0, 5, 0, 1.5, 0, 2, 0, 1.5, 0,
		},
		"high": {
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
			0, 0, 0, 0, 0, 0, 0, 0, 0, 49.5,
		},
	},
}

func (g *WheelGame) Spec() GameSpec {
	return GameSpec{
		ID:          "wheel",
		Name:        "Wheel",
		MetricLabel: "multiplier",
		Family:      FamilyPaytable,
	}
}

func (g *WheelGame) table(params map[string]any) (Paytable, int, string, error) {
	segments, err := intParam(params, "segments", 10)
	if err != nil {
		return nil, 0, "", err
	}
	risks, ok := wheelPayouts[segments]
	if !ok {
		return nil, 0, "", errs.Invalid("wheel segments must be one of 10, 20, 30, 40, 50; got %d", segments)
	}

	risk, err := choiceParam(params, "risk", "low", "low", "medium", "high")
	if err != nil {
		return nil, 0, "", err
	}
	return uniformTable(risks[risk]), segments, risk, nil
}

func (g *WheelGame) Validate(params map[string]any) error {
	_, _, _, err := g.table(params)
	return err
}

func (g *WheelGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	table, segments, risk, err := g.table(params)
	if err != nil {
		return Outcome{}, err
	}

	index := table.Select(stream.NextFloat())
	multiplier := table[index].Multiplier

	return newOutcome(wager, multiplier, multiplier, map[string]any{
		"segments": segments,
		"risk":     risk,
		"index":    index,
	}), nil
}
