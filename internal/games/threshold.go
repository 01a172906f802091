package games

import (
	"math"

	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// winMultiplier returns HouseEdge/p for a threshold bet with win probability p.
// p must lie in (MinWinProbability, 1) and the resulting multiplier must be at least 1.
func (r Rules) winMultiplier(p float64) (float64, error) {
	if math.IsNaN(p) || p <= r.MinWinProbability || p >= 1 {
		return 0, errs.Invalid("win probability %.6f outside (%g, 1)", p, r.MinWinProbability)
	}
	m := r.HouseEdge / p
	if m < 1 {
		return 0, errs.Invalid("win probability %.4f leaves no winning payout", p)
	}
	return m, nil
}
