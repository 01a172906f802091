package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

// baccaratPayouts are the classic punto banco prices. Player and banker bets push on a tie.
var baccaratPayouts = map[string]float64{
	"player":      2,
	"banker":      1.95,
	"tie":         9,
	"player_pair": 12,
	"banker_pair": 12,
}

// BaccaratGame deals one punto banco coup from an infinite deck.
type BaccaratGame struct{}

func (g *BaccaratGame) Spec() GameSpec {
	return GameSpec{
		ID:          "baccarat",
		Name:        "Baccarat",
		MetricLabel: "winner",
		Family:      FamilyCards,
	}
}

func (g *BaccaratGame) Validate(params map[string]any) error {
	_, err := g.bet(params)
	return err
}

func (g *BaccaratGame) bet(params map[string]any) (string, error) {
	return choiceParam(params, "bet", "", "player", "banker", "tie", "player_pair", "banker_pair")
}

type baccaratCoup struct {
	player, banker           []Card
	playerScore, bankerScore int
}

func (c baccaratCoup) winner() string {
	switch {
	case c.playerScore > c.bankerScore:
		return "player"
	case c.bankerScore > c.playerScore:
		return "banker"
	default:
		return "tie"
	}
}

// dealBaccarat deals player, banker, player, banker, then applies the third-card rules.
// Third cards are only drawn when a hand takes one.
func dealBaccarat(next func() Card) baccaratCoup {
	p1, b1, p2, b2 := next(), next(), next(), next()
	c := baccaratCoup{player: []Card{p1, p2}, banker: []Card{b1, b2}}
	c.playerScore = baccaratScore(c.player)
	c.bankerScore = baccaratScore(c.banker)

	if c.playerScore >= 8 || c.bankerScore >= 8 {
		return c
	}

	bankerDraws := c.bankerScore <= 5
	if c.playerScore <= 5 {
		third := next()
		c.player = append(c.player, third)
		c.playerScore = baccaratScore(c.player)
		bankerDraws = bankerShouldDraw(c.bankerScore, third.baccaratValue())
	}
	if bankerDraws {
		c.banker = append(c.banker, next())
		c.bankerScore = baccaratScore(c.banker)
	}
	return c
}

func baccaratScore(cards []Card) int {
	total := 0
	for _, c := range cards {
		total += c.baccaratValue()
	}
	return total % 10
}

// bankerShouldDraw is the banker's tableau once the player has taken a third card.
func bankerShouldDraw(bankerScore, playerThird int) bool {
	switch bankerScore {
	case 0, 1, 2:
		return true
	case 3:
		return playerThird != 8
	case 4:
		return playerThird >= 2 && playerThird <= 7
	case 5:
		return playerThird >= 4 && playerThird <= 7
	case 6:
		return playerThird == 6 || playerThird == 7
	default:
		return false
	}
}

// baccaratMultiplier settles bet against a finished coup.
func baccaratMultiplier(bet string, c baccaratCoup) float64 {
	winner := c.winner()
	switch bet {
	case "player", "banker":
		if winner == bet {
			return baccaratPayouts[bet]
		}
		if winner == "tie" {
			return 1
		}
	case "tie":
		if winner == "tie" {
			return baccaratPayouts[bet]
		}
	case "player_pair":
		if c.player[0].Rank == c.player[1].Rank {
			return baccaratPayouts[bet]
		}
	case "banker_pair":
		if c.banker[0].Rank == c.banker[1].Rank {
			return baccaratPayouts[bet]
		}
	}
	return 0
}

// Resolve reports the winner as the metric: 0 player, 1 banker, 2 tie.
func (g *BaccaratGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	bet, err := g.bet(params)
	if err != nil {
		return Outcome{}, err
	}

	coup := dealBaccarat(streamDeck(stream))
	winner := coup.winner()
	metric := map[string]float64{"player": 0, "banker": 1, "tie": 2}[winner]
	multiplier := baccaratMultiplier(bet, coup)

	return newOutcome(wager, multiplier, metric, map[string]any{
		"bet":          bet,
		"player_cards": cardStrings(coup.player),
		"banker_cards": cardStrings(coup.banker),
		"player_score": coup.playerScore,
		"banker_score": coup.bankerScore,
		"winner":       winner,
		"win":          multiplier > 1,
	}), nil
}
