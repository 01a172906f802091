package games

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

type towerDifficulty struct {
	width int
	bombs int
}

var towerDifficulties = map[string]towerDifficulty{
	"easy":   {width: 4, bombs: 1},
	"medium": {width: 3, bombs: 1},
	"hard":   {width: 2, bombs: 1},
	"expert": {width: 3, bombs: 2},
	"master": {width: 4, bombs: 3},
}

const towerMaxLevels = 8

// TowerGame climbs levels, each an independent row of tiles with a fixed bomb count.
type TowerGame struct{}

func (g *TowerGame) Spec() GameSpec {
	return GameSpec{
		ID:          "tower",
		Name:        "Tower",
		MetricLabel: "levels_cleared",
		Family:      FamilyElimination,
	}
}

type towerBet struct {
	difficulty string
	towerDifficulty
	levels  int
	columns []int
}

func (g *TowerGame) parse(params map[string]any) (towerBet, error) {
	difficulty, err := choiceParam(params, "difficulty", "easy", "easy", "medium", "hard", "expert", "master")
	if err != nil {
		return towerBet{}, err
	}
	d := towerDifficulties[difficulty]

	levels, err := intParam(params, "levels", 1)
	if err != nil {
		return towerBet{}, err
	}
	if levels < 1 || levels > towerMaxLevels {
		return towerBet{}, errs.Invalid("levels must be between 1 and %d, got %d", towerMaxLevels, levels)
	}

	columns, given, err := intSliceParam(params, "columns")
	if err != nil {
		return towerBet{}, err
	}
	if !given {
		columns = make([]int, levels)
	}
	if len(columns) != levels {
		return towerBet{}, errs.Invalid("columns must list one column per level, got %d for %d levels", len(columns), levels)
	}
	for _, c := range columns {
		if c < 0 || c >= d.width {
			return towerBet{}, errs.Invalid("column %d out of range for width %d", c, d.width)
		}
	}

	return towerBet{difficulty: difficulty, towerDifficulty: d, levels: levels, columns: columns}, nil
}

func (g *TowerGame) Validate(params map[string]any) error {
	_, err := g.parse(params)
	return err
}

// TowerMultiplier is (width/(width-bombs))^k.
func TowerMultiplier(width, bombs, k int) float64 {
	return math.Pow(float64(width)/float64(width-bombs), float64(k))
}

func (g *TowerGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	bet, err := g.parse(params)
	if err != nil {
		return Outcome{}, err
	}

	cleared := 0
	failed := false
	for range bet.columns {
		if stream.NextFloat() < float64(bet.bombs)/float64(bet.width) {
			failed = true
			break
		}
		cleared++
	}

	// Lay out bombs on every visited level for display.
	played := cleared
	if failed {
		played++
	}
	rows := make([][]bool, played)
	for lvl := 0; lvl < played; lvl++ {
		picked := bet.columns[lvl]
		bombRow := make([]bool, bet.width)
		need := bet.bombs
		if lvl == cleared && failed {
			bombRow[picked] = true
			need--
		}
		pool := make([]int, 0, bet.width-1)
		for c := 0; c < bet.width; c++ {
			if c != picked {
				pool = append(pool, c)
			}
		}
		for ; need > 0; need-- {
			idx := stream.NextInt(len(pool))
			bombRow[pool[idx]] = true
			pool = append(pool[:idx], pool[idx+1:]...)
		}
		rows[lvl] = bombRow
	}

	multiplier := 0.0
	if !failed {
		multiplier = TowerMultiplier(bet.width, bet.bombs, bet.levels)
	}

	return newOutcome(wager, multiplier, float64(cleared), map[string]any{
		"difficulty":     bet.difficulty,
		"levels":         bet.levels,
		"columns":        bet.columns,
		"levels_cleared": cleared,
		"bombs":          rows,
		"win":            !failed,
	}), nil
}
