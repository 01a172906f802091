package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// MinesGame reveals a fixed number of tiles on a grid hiding a fixed number of mines.
//
// Each pick consumes one draw and is a mine iff u < remainingMines/remainingTiles,
// so the grid always holds exactly the configured mine count. Once the run stops,
// the mines not yet found are placed among the unrevealed tiles with further draws.
type MinesGame struct{}

const (
	minesDefaultGrid = 25
	minesMinGrid     = 4
	minesMaxGrid     = 49
)

func (g *MinesGame) Spec() GameSpec {
	return GameSpec{
		ID:          "mines",
		Name:        "Mines",
		MetricLabel: "safe_picks",
		Family:      FamilyElimination,
	}
}

type minesBet struct {
	grid  int
	mines int
	tiles []int
}

func (g *MinesGame) parse(params map[string]any) (minesBet, error) {
	grid, err := intParam(params, "grid", minesDefaultGrid)
	if err != nil {
		return minesBet{}, err
	}
	if grid < minesMinGrid || grid > minesMaxGrid {
		return minesBet{}, errs.Invalid("mines grid must be between %d and %d, got %d", minesMinGrid, minesMaxGrid, grid)
	}

	mines, err := intParam(params, "mines", 3)
	if err != nil {
		return minesBet{}, err
	}
	if mines < 1 || mines > grid-1 {
		return minesBet{}, errs.Invalid("mines must be between 1 and %d, got %d", grid-1, mines)
	}

	picks, err := intParam(params, "picks", 1)
	if err != nil {
		return minesBet{}, err
	}
	if picks < 1 || picks > grid-mines {
		return minesBet{}, errs.Invalid("picks must be between 1 and %d, got %d", grid-mines, picks)
	}

	tiles, given, err := intSliceParam(params, "tiles")
	if err != nil {
		return minesBet{}, err
	}
	if !given {
		tiles = make([]int, picks)
		for i := range tiles {
			tiles[i] = i
		}
	}
	if len(tiles) != picks {
		return minesBet{}, errs.Invalid("tiles must list exactly %d tiles, got %d", picks, len(tiles))
	}
	seen := make(map[int]bool, len(tiles))
	for _, t := range tiles {
		if t < 0 || t >= grid || seen[t] {
			return minesBet{}, errs.Invalid("tile %d is out of range or repeated", t)
		}
		seen[t] = true
	}

	return minesBet{grid: grid, mines: mines, tiles: tiles}, nil
}

func (g *MinesGame) Validate(params map[string]any) error {
	_, err := g.parse(params)
	return err
}

// MinesMultiplier is ∏_{i<k} (n-i)/(n-i-mines), the fair payout after k safe picks.
func MinesMultiplier(n, mines, k int) float64 {
	m := 1.0
	for i := 0; i < k; i++ {
		m *= float64(n-i) / float64(n-i-mines)
	}
	return m
}

func (g *MinesGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	bet, err := g.parse(params)
	if err != nil {
		return Outcome{}, err
	}

	mineAt := make(map[int]bool, bet.mines)
	revealed := make(map[int]bool, len(bet.tiles))
	remaining := bet.mines
	safe := 0
	hit := -1

	for i, tile := range bet.tiles {
		revealed[tile] = true
		u := stream.NextFloat()
		if u < float64(remaining)/float64(bet.grid-i) {
			mineAt[tile] = true
			remaining--
			hit = tile
			break
		}
		safe++
	}

	// Place the rest of the mines among unrevealed tiles.
	pool := make([]int, 0, bet.grid)
	for t := 0; t < bet.grid; t++ {
		if !revealed[t] {
			pool = append(pool, t)
		}
	}
	for ; remaining > 0; remaining-- {
		idx := stream.NextInt(len(pool))
		mineAt[pool[idx]] = true
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	positions := make([]int, 0, bet.mines)
	for t := 0; t < bet.grid; t++ {
		if mineAt[t] {
			positions = append(positions, t)
		}
	}

	steps := make([]float64, len(bet.tiles))
	for k := range steps {
		steps[k] = MinesMultiplier(bet.grid, bet.mines, k+1)
	}

	multiplier := 0.0
	if hit < 0 {
		multiplier = steps[len(steps)-1]
	}

	payload := map[string]any{
		"grid":             bet.grid,
		"mines":            bet.mines,
		"tiles":            bet.tiles,
		"safe_picks":       safe,
		"mine_positions":   positions,
		"step_multipliers": steps,
		"win":              hit < 0,
	}
	if hit >= 0 {
		payload["hit_tile"] = hit
	}

	return newOutcome(wager, multiplier, float64(safe), payload), nil
}
