package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// PlinkoGame drops a ball through rows of pegs into a bucket.
//
// One draw selects the bucket with binomial weights C(rows, k). The path
// shown to the player is a uniformly chosen path ending in that bucket.
type PlinkoGame struct{}

func (g *PlinkoGame) Spec() GameSpec {
	return GameSpec{
		ID:          "plinko",
		Name:        "Plinko",
		MetricLabel: "multiplier",
		Family:      FamilyPaytable,
	}
}

func (g *PlinkoGame) table(params map[string]any) (Paytable, int, string, error) {
	rows, err := intParam(params, "rows", 16)
	if err != nil {
		return nil, 0, "", err
	}
	risks, ok := plinkoPayouts[rows]
	if !ok {
		return nil, 0, "", errs.Invalid("plinko rows must be one of 8, 12, 16; got %d", rows)
	}

	risk, err := choiceParam(params, "risk", "medium", "low", "medium", "high")
	if err != nil {
		return nil, 0, "", err
	}

	multipliers := risks[risk]
	table := make(Paytable, len(multipliers))
	for k, m := range multipliers {
		table[k] = Bucket{Multiplier: m, Weight: binomial(rows, k)}
	}
	return table, rows, risk, nil
}

func (g *PlinkoGame) Validate(params map[string]any) error {
	_, _, _, err := g.table(params)
	return err
}

func (g *PlinkoGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	table, rows, risk, err := g.table(params)
	if err != nil {
		return Outcome{}, err
	}

	bucket := table.Select(stream.NextFloat())
	multiplier := table[bucket].Multiplier

	// Each row goes right with probability rightsLeft/rowsLeft, which makes
	// every path into the bucket equally likely.
	directions := make([]string, rows)
	rights := bucket
	for i := range directions {
		rowsLeft := rows - i
		directions[i] = "left"
		if stream.NextFloat() < float64(rights)/float64(rowsLeft) {
			directions[i] = "right"
			rights--
		}
	}

	return newOutcome(wager, multiplier, multiplier, map[string]any{
		"rows":       rows,
		"risk":       risk,
		"bucket":     bucket,
		"directions": directions,
	}), nil
}

func binomial(n, k int) float64 {
	if k < 0 || k > n {
		return 0
	}
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}
