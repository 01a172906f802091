package games

import "github.com/MJE43/pf-bet-engine/internal/errs"

// Bucket is one discrete outcome of a static paytable.
type Bucket struct {
	Label      string  `json:"label,omitempty"`
	Multiplier float64 `json:"multiplier"`
	Weight     float64 `json:"weight"`
}

// Paytable is an ordered set of weighted buckets.
type Paytable []Bucket

// TotalWeight sums every bucket weight.
func (t Paytable) TotalWeight() float64 {
	total := 0.0
	for _, b := range t {
		total += b.Weight
	}
	return total
}

// Select returns the first bucket index i with u·total < cumulative weight through i.
// The strict comparison means a draw on a boundary belongs to the next bucket.
func (t Paytable) Select(u float64) int {
	scaled := u * t.TotalWeight()
	cum := 0.0
	for i, b := range t {
		cum += b.Weight
		if scaled < cum {
			return i
		}
	}
	return len(t) - 1
}

// ExpectedMultiplier is Σ multiplier·weight / total.
func (t Paytable) ExpectedMultiplier() float64 {
	total := t.TotalWeight()
	if total == 0 {
		return 0
	}
	ev := 0.0
	for _, b := range t {
		ev += b.Multiplier * b.Weight
	}
	return ev / total
}

func (t Paytable) validate(name string) error {
	if len(t) == 0 {
		return errs.Invalid("%s paytable is empty", name)
	}
	for i, b := range t {
		if b.Weight < 0 || b.Multiplier < 0 {
			return errs.Invalid("%s bucket %d has a negative weight or multiplier", name, i)
		}
	}
	if t.TotalWeight() <= 0 {
		return errs.Invalid("%s paytable has no weight", name)
	}
	return nil
}

func uniformTable(multipliers []float64) Paytable {
	t := make(Paytable, len(multipliers))
	for i, m := range multipliers {
		t[i] = Bucket{Multiplier: m, Weight: 1}
	}
	return t
}
