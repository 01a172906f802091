package games

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

const (
	diceSumMinDice = 1
	diceSumMaxDice = 5
	diceFaces      = 6
)

// DiceSumGame bets on the total of several six-sided dice.
//
// One draw picks the total by inverse CDF over the exact sum distribution, a
// second picks which face combination with that total is shown.
type DiceSumGame struct {
	rules Rules
}

func (g *DiceSumGame) Spec() GameSpec {
	return GameSpec{
		ID:          "dice_sum",
		Name:        "Dice Sum",
		MetricLabel: "sum",
		Family:      FamilyThreshold,
	}
}

type diceSumBet struct {
	dice       int
	target     int
	mode       string
	counts     []int // counts[s] = number of face tuples summing to s
	total      int
	p          float64
	multiplier float64
}

func (b diceSumBet) wins(sum int) bool {
	switch b.mode {
	case "over":
		return sum > b.target
	case "under":
		return sum < b.target
	default:
		return sum == b.target
	}
}

func (g *DiceSumGame) parse(params map[string]any) (diceSumBet, error) {
	dice, err := intParam(params, "dice", 2)
	if err != nil {
		return diceSumBet{}, err
	}
	if dice < diceSumMinDice || dice > diceSumMaxDice {
		return diceSumBet{}, errs.Invalid("dice must be between %d and %d, got %d", diceSumMinDice, diceSumMaxDice, dice)
	}

	target, err := intParam(params, "target", 0)
	if err != nil {
		return diceSumBet{}, err
	}
	if target < dice || target > dice*diceFaces {
		return diceSumBet{}, errs.Invalid("target %d unreachable with %d dice", target, dice)
	}

	mode, err := choiceParam(params, "mode", "exact", "exact", "over", "under")
	if err != nil {
		return diceSumBet{}, err
	}

	bet := diceSumBet{dice: dice, target: target, mode: mode}
	bet.counts, bet.total = sumDistribution(dice)

	winning := 0
	for s, c := range bet.counts {
		if c > 0 && bet.wins(s) {
			winning += c
		}
	}
	bet.p = float64(winning) / float64(bet.total)

	bet.multiplier, err = g.rules.winMultiplier(bet.p)
	if err != nil {
		return diceSumBet{}, err
	}
	return bet, nil
}

func (g *DiceSumGame) Validate(params map[string]any) error {
	_, err := g.parse(params)
	return err
}

func (g *DiceSumGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	bet, err := g.parse(params)
	if err != nil {
		return Outcome{}, err
	}

	scaled := stream.NextFloat() * float64(bet.total)
	sum, cum := bet.dice, 0
	for s, c := range bet.counts {
		cum += c
		if c > 0 && scaled < float64(cum) {
			sum = s
			break
		}
	}

	faces := nthTupleWithSum(bet.dice, sum, stream.NextInt(bet.counts[sum]))

	won := bet.wins(sum)
	multiplier := 0.0
	if won {
		multiplier = bet.multiplier
	}

	return newOutcome(wager, multiplier, float64(sum), map[string]any{
		"faces":           faces,
		"sum":             sum,
		"target":          bet.target,
		"mode":            bet.mode,
		"win":             won,
		"win_probability": bet.p,
	}), nil
}

// sumDistribution counts face tuples per total for n dice.
func sumDistribution(n int) ([]int, int) {
	counts := []int{1}
	for d := 0; d < n; d++ {
		next := make([]int, len(counts)+diceFaces)
		for s, c := range counts {
			if c == 0 {
				continue
			}
			for f := 1; f <= diceFaces; f++ {
				next[s+f] += c
			}
		}
		counts = next
	}

	total := 1
	for d := 0; d < n; d++ {
		total *= diceFaces
	}
	return counts, total
}

// nthTupleWithSum returns the idx-th face tuple, in lexicographic order, whose faces add up to sum.
func nthTupleWithSum(n, sum, idx int) []int {
	faces := make([]int, n)
	var walk func(pos, remaining int) bool
	walk = func(pos, remaining int) bool {
		if pos == n {
			if remaining != 0 {
				return false
			}
			if idx == 0 {
				return true
			}
			idx--
			return false
		}
		for f := 1; f <= diceFaces; f++ {
			left := n - pos - 1
			if remaining-f < left || remaining-f > left*diceFaces {
				continue
			}
			faces[pos] = f
			if walk(pos+1, remaining-f) {
				return true
			}
		}
		return false
	}
	walk(0, sum)
	return faces
}
