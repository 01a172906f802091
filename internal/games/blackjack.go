package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

const (
	blackjackDealerStands = 17
	blackjackNatural      = 2.5
)

// BlackjackGame plays one hand automatically from an infinite deck. The player
// hits until reaching stand_on; the dealer stands on every 17.
type BlackjackGame struct{}

func (g *BlackjackGame) Spec() GameSpec {
	return GameSpec{
		ID:          "blackjack",
		Name:        "Blackjack",
		MetricLabel: "player_total",
		Family:      FamilyCards,
	}
}

func (g *BlackjackGame) standOn(params map[string]any) (int, error) {
	standOn, err := intParam(params, "stand_on", blackjackDealerStands)
	if err != nil {
		return 0, err
	}
	if standOn < 12 || standOn > 21 {
		return 0, errs.Invalid("stand_on must be between 12 and 21, got %d", standOn)
	}
	return standOn, nil
}

func (g *BlackjackGame) Validate(params map[string]any) error {
	_, err := g.standOn(params)
	return err
}

type blackjackHand struct {
	player, dealer []Card
	result         string
	multiplier     float64
}

// playBlackjack deals player, dealer, player, dealer and plays both hands out.
// A natural on either side ends the hand at once.
func playBlackjack(next func() Card, standOn int) blackjackHand {
	p1, d1, p2, d2 := next(), next(), next(), next()
	h := blackjackHand{player: []Card{p1, p2}, dealer: []Card{d1, d2}}

	playerNatural := blackjackTotal(h.player) == 21
	dealerNatural := blackjackTotal(h.dealer) == 21
	switch {
	case playerNatural && dealerNatural:
		h.result, h.multiplier = "push", 1
		return h
	case playerNatural:
		h.result, h.multiplier = "blackjack", blackjackNatural
		return h
	case dealerNatural:
		h.result = "lose"
		return h
	}

	for blackjackTotal(h.player) < standOn {
		h.player = append(h.player, next())
	}
	player := blackjackTotal(h.player)
	if player > 21 {
		h.result = "bust"
		return h
	}

	for blackjackTotal(h.dealer) < blackjackDealerStands {
		h.dealer = append(h.dealer, next())
	}
	dealer := blackjackTotal(h.dealer)

	switch {
	case dealer > 21 || player > dealer:
		h.result, h.multiplier = "win", 2
	case player == dealer:
		h.result, h.multiplier = "push", 1
	default:
		h.result = "lose"
	}
	return h
}

func (g *BlackjackGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	standOn, err := g.standOn(params)
	if err != nil {
		return Outcome{}, err
	}

	h := playBlackjack(streamDeck(stream), standOn)
	player := blackjackTotal(h.player)

	return newOutcome(wager, h.multiplier, float64(player), map[string]any{
		"stand_on":     standOn,
		"player_cards": cardStrings(h.player),
		"dealer_cards": cardStrings(h.dealer),
		"player_total": player,
		"dealer_total": blackjackTotal(h.dealer),
		"result":       h.result,
		"win":          h.multiplier > 1,
	}), nil
}
