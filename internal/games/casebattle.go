package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

const caseBattleMaxRounds = 5

// CaseBattleGame opens the same case for the player and a house bot each round.
// The higher item total wins 2E and a draw returns E, so the game keeps the house edge
// whatever the case.
type CaseBattleGame struct {
	rules Rules
}

func (g *CaseBattleGame) Spec() GameSpec {
	return GameSpec{
		ID:          "case_battle",
		Name:        "Case Battle",
		MetricLabel: "player_total",
		Family:      FamilyPaytable,
	}
}

type caseBattle struct {
	name   string
	table  Paytable
	rounds int
}

func (g *CaseBattleGame) parse(params map[string]any) (caseBattle, error) {
	name, table, err := (&CaseGame{}).table(params)
	if err != nil {
		return caseBattle{}, err
	}
	rounds, err := intParam(params, "rounds", 1)
	if err != nil {
		return caseBattle{}, err
	}
	if rounds < 1 || rounds > caseBattleMaxRounds {
		return caseBattle{}, errs.Invalid("rounds must be between 1 and %d, got %d", caseBattleMaxRounds, rounds)
	}
	return caseBattle{name: name, table: table, rounds: rounds}, nil
}

func (g *CaseBattleGame) Validate(params map[string]any) error {
	_, err := g.parse(params)
	return err
}

// Resolve draws the player's item then the bot's, round by round.
func (g *CaseBattleGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	b, err := g.parse(params)
	if err != nil {
		return Outcome{}, err
	}

	playerItems := make([]string, 0, b.rounds)
	botItems := make([]string, 0, b.rounds)
	playerTotal, botTotal := decimal.Zero, decimal.Zero
	for i := 0; i < b.rounds; i++ {
		mine := b.table[b.table.Select(stream.NextFloat())]
		theirs := b.table[b.table.Select(stream.NextFloat())]
		playerItems = append(playerItems, mine.Label)
		botItems = append(botItems, theirs.Label)
		playerTotal = playerTotal.Add(decimal.NewFromFloat(mine.Multiplier))
		botTotal = botTotal.Add(decimal.NewFromFloat(theirs.Multiplier))
	}

	result, multiplier := "lose", 0.0
	switch playerTotal.Cmp(botTotal) {
	case 1:
		result, multiplier = "win", 2*g.rules.HouseEdge
	case 0:
		result, multiplier = "draw", g.rules.HouseEdge
	}

	return newOutcome(wager, multiplier, playerTotal.InexactFloat64(), map[string]any{
		"case":         b.name,
		"rounds":       b.rounds,
		"player_items": playerItems,
		"bot_items":    botItems,
		"player_total": playerTotal.String(),
		"bot_total":    botTotal.String(),
		"result":       result,
		"win":          result == "win",
	}), nil
}
