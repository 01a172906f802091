package games

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// chickenSurvival is the chance of crossing one lane.
var chickenSurvival = map[string]float64{
	"easy":   0.86,
	"medium": 0.62,
	"hard":   0.30,
}

const chickenMaxLanes = 9

// ChickenGame crosses lanes one at a time and cashes out after the chosen lane.
// Lane i is survived iff u < p, one draw per lane.
type ChickenGame struct {
	rules Rules
}

func (g *ChickenGame) Spec() GameSpec {
	return GameSpec{
		ID:          "chicken",
		Name:        "Chicken",
		MetricLabel: "lanes_crossed",
		Family:      FamilyElimination,
	}
}

type chickenBet struct {
	difficulty string
	p          float64
	lanes      int
}

func (g *ChickenGame) parse(params map[string]any) (chickenBet, error) {
	difficulty, err := choiceParam(params, "difficulty", "easy", "easy", "medium", "hard")
	if err != nil {
		return chickenBet{}, err
	}
	lanes, err := intParam(params, "lanes", 1)
	if err != nil {
		return chickenBet{}, err
	}
	if lanes < 1 || lanes > chickenMaxLanes {
		return chickenBet{}, errs.Invalid("lanes must be between 1 and %d, got %d", chickenMaxLanes, lanes)
	}
	return chickenBet{difficulty: difficulty, p: chickenSurvival[difficulty], lanes: lanes}, nil
}

func (g *ChickenGame) Validate(params map[string]any) error {
	_, err := g.parse(params)
	return err
}

// ChickenMultiplier is E/p^k, so a full run returns E of the wager on average.
func ChickenMultiplier(edge, p float64, k int) float64 {
	return edge / math.Pow(p, float64(k))
}

func (g *ChickenGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	bet, err := g.parse(params)
	if err != nil {
		return Outcome{}, err
	}

	crossed := 0
	for crossed < bet.lanes && stream.NextFloat() < bet.p {
		crossed++
	}
	win := crossed == bet.lanes

	multiplier := 0.0
	if win {
		multiplier = ChickenMultiplier(g.rules.HouseEdge, bet.p, bet.lanes)
	}

	return newOutcome(wager, multiplier, float64(crossed), map[string]any{
		"difficulty":    bet.difficulty,
		"lanes":         bet.lanes,
		"lanes_crossed": crossed,
		"win":           win,
	}), nil
}
