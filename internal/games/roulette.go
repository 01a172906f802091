package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

const roulettePockets = 37

var rouletteRed = map[int]bool{
	1: true, 3: true, 5: true, 7: true, 9: true,
	12: true, 14: true, 16: true, 18: true, 19: true,
	21: true, 23: true, 25: true, 27: true, 30: true,
	32: true, 34: true, 36: true,
}

// RouletteGame is single-zero roulette. The paytable is built from the bet:
// 37 equally weighted pockets, each paying the bet's multiplier or nothing.
type RouletteGame struct{}

func (g *RouletteGame) Spec() GameSpec {
	return GameSpec{
		ID:          "roulette",
		Name:        "Roulette",
		MetricLabel: "pocket",
		Family:      FamilyPaytable,
	}
}

func rouletteColor(pocket int) string {
	switch {
	case pocket == 0:
		return "green"
	case rouletteRed[pocket]:
		return "red"
	default:
		return "black"
	}
}

func (g *RouletteGame) table(params map[string]any) (string, Paytable, error) {
	bet, err := choiceParam(params, "bet", "", "straight", "red", "black", "even", "odd", "low", "high", "dozen")
	if err != nil {
		return "", nil, err
	}

	var (
		wins       func(pocket int) bool
		multiplier float64
	)
	switch bet {
	case "straight":
		number, err := intParam(params, "number", -1)
		if err != nil {
			return "", nil, err
		}
		if number < 0 || number > 36 {
			return "", nil, errs.Invalid("straight bet number must be 0..36, got %d", number)
		}
		wins, multiplier = func(p int) bool { return p == number }, 36
	case "red", "black":
		wins, multiplier = func(p int) bool { return rouletteColor(p) == bet }, 2
	case "even":
		wins, multiplier = func(p int) bool { return p != 0 && p%2 == 0 }, 2
	case "odd":
		wins, multiplier = func(p int) bool { return p%2 == 1 }, 2
	case "low":
		wins, multiplier = func(p int) bool { return p >= 1 && p <= 18 }, 2
	case "high":
		wins, multiplier = func(p int) bool { return p >= 19 }, 2
	case "dozen":
		dozen, err := intParam(params, "dozen", 0)
		if err != nil {
			return "", nil, err
		}
		if dozen < 1 || dozen > 3 {
			return "", nil, errs.Invalid("dozen must be 1, 2 or 3, got %d", dozen)
		}
		lo, hi := (dozen-1)*12+1, dozen*12
		wins, multiplier = func(p int) bool { return p >= lo && p <= hi }, 3
	}

	table := make(Paytable, roulettePockets)
	for pocket := range table {
		table[pocket] = Bucket{Weight: 1}
		if wins(pocket) {
			table[pocket].Multiplier = multiplier
		}
	}
	return bet, table, nil
}

func (g *RouletteGame) Validate(params map[string]any) error {
	_, _, err := g.table(params)
	return err
}

func (g *RouletteGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	bet, table, err := g.table(params)
	if err != nil {
		return Outcome{}, err
	}

	pocket := table.Select(stream.NextFloat())
	multiplier := table[pocket].Multiplier

	return newOutcome(wager, multiplier, float64(pocket), map[string]any{
		"bet":    bet,
		"pocket": pocket,
		"color":  rouletteColor(pocket),
		"win":    multiplier > 0,
	}), nil
}
