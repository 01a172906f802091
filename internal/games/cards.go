package games

import (
	"math"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

const deckSize = 52

// Suits and ranks in deck index order: ♦2, ♥2, ♠2, ♣2, ♦3, ...
var (
	cardSuits = [4]string{"♦", "♥", "♠", "♣"}
	cardRanks = [13]string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
)

// Card is one draw from an infinite deck. Rank indexes cardRanks, Suit indexes cardSuits.
type Card struct {
	Rank int
	Suit int
}

func (c Card) String() string { return cardSuits[c.Suit] + cardRanks[c.Rank] }

func (c Card) ace() bool { return c.Rank == len(cardRanks)-1 }

// cardAt maps a draw to deck index floor(u·52).
func cardAt(u float64) Card {
	i := min(max(int(math.Floor(u*deckSize)), 0), deckSize-1)
	return Card{Rank: i / len(cardSuits), Suit: i % len(cardSuits)}
}

// streamDeck draws every card from the stream, one float each.
func streamDeck(stream *engine.Stream) func() Card {
	return func() Card { return cardAt(stream.NextFloat()) }
}

// baccaratValue: A=1, 2-9 face value, 10 and court cards 0.
func (c Card) baccaratValue() int {
	switch {
	case c.ace():
		return 1
	case c.Rank <= 7:
		return c.Rank + 2
	default:
		return 0
	}
}

// blackjackValue counts an ace as 11; blackjackTotal softens it when needed.
func (c Card) blackjackValue() int {
	switch {
	case c.ace():
		return 11
	case c.Rank >= 8:
		return 10
	default:
		return c.Rank + 2
	}
}

func blackjackTotal(cards []Card) int {
	total, aces := 0, 0
	for _, c := range cards {
		total += c.blackjackValue()
		if c.ace() {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

func cardStrings(cards []Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.String()
	}
	return out
}
