package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

var slotSymbols = []string{"seven", "bar", "bell", "lemon", "cherry"}

// slotsTable pays three of a kind; the last bucket is any losing line.
var slotsTable = Paytable{
	{Label: "seven", Multiplier: 25, Weight: 10},
	{Label: "bar", Multiplier: 5, Weight: 40},
	{Label: "bell", Multiplier: 3, Weight: 60},
	{Label: "lemon", Multiplier: 1.5, Weight: 120},
	{Label: "cherry", Multiplier: 1, Weight: 180},
	{Label: "none", Multiplier: 0, Weight: 590},
}

// SlotsGame is a three-reel slot driven by a fixed paytable.
type SlotsGame struct{}

func (g *SlotsGame) Spec() GameSpec {
	return GameSpec{
		ID:          "slots",
		Name:        "Slots",
		MetricLabel: "multiplier",
		Family:      FamilyPaytable,
	}
}

func (g *SlotsGame) Validate(map[string]any) error {
	return slotsTable.validate("slots")
}

func (g *SlotsGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	bucket := slotsTable[slotsTable.Select(stream.NextFloat())]

	var reels []string
	if bucket.Multiplier > 0 {
		reels = []string{bucket.Label, bucket.Label, bucket.Label}
	} else {
		// Losing line: the third reel always differs from the first.
		a := stream.NextInt(len(slotSymbols))
		b := stream.NextInt(len(slotSymbols))
		c := stream.NextInt(len(slotSymbols) - 1)
		if c >= a {
			c++
		}
		reels = []string{slotSymbols[a], slotSymbols[b], slotSymbols[c]}
	}

	return newOutcome(wager, bucket.Multiplier, bucket.Multiplier, map[string]any{
		"reels": reels,
		"line":  bucket.Label,
	}), nil
}
