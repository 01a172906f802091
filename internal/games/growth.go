package games

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// MinCashout is the lowest accepted cash-out target for growth games.
const MinCashout = 1.01

// Curve is the public multiplier curve m(t) = e^(Rate·t), t in seconds.
type Curve struct {
	Rate float64
}

// At returns the curve value after elapsed.
func (c Curve) At(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	return math.Exp(c.Rate * elapsed.Seconds())
}

// Floor returns the curve value after elapsed floored to 2 decimals, the
// multiplier paid on a manual cash-out.
func (c Curve) Floor(elapsed time.Duration) float64 {
	return floor2(c.At(elapsed))
}

// TimeTo returns when the curve reaches m, rounded up to the next nanosecond.
func (c Curve) TimeTo(m float64) time.Duration {
	if m <= 1 {
		return 0
	}
	return time.Duration(math.Ceil(math.Log(m) / c.Rate * float64(time.Second)))
}

// Breakpoint maps a draw to the multiplier at which a growth round ends:
// floor2(edge/(1-u)), at least 1.00 and at most limit.
func Breakpoint(u, edge, limit float64) float64 {
	bp := floor2(edge / (1 - u))
	if bp < 1 {
		bp = 1
	}
	if bp > limit {
		bp = limit
	}
	return bp
}

// GrowthGame resolves a multiplier that climbs along a curve until a hidden breakpoint.
type GrowthGame struct {
	spec  GameSpec
	rules Rules
	curve Curve
	// cashoutRequired is false for round-based crash, where the target is set at join time.
	cashoutRequired bool
}

// NewCrashGame returns the round-based crash resolver. POST /bet rejects it;
// rounds use it to derive the breakpoint and /verify replays it.
func NewCrashGame(rules Rules) *GrowthGame {
	return &GrowthGame{
		spec: GameSpec{
			ID:          "crash",
			Name:        "Crash",
			MetricLabel: "crash_point",
			Family:      FamilyGrowth,
			RoundBased:  true,
		},
		rules: rules,
		curve: Curve{Rate: rules.CrashGrowthRate},
	}
}

// NewBloxRunGame returns the single-shot 1.08^t growth game.
func NewBloxRunGame(rules Rules) *GrowthGame {
	return &GrowthGame{
		spec: GameSpec{
			ID:          "blox_run",
			Name:        "Blox Run",
			MetricLabel: "breakpoint",
			Family:      FamilyGrowth,
		},
		rules:           rules,
		curve:           Curve{Rate: math.Log(1.08)},
		cashoutRequired: true,
	}
}

func (g *GrowthGame) Spec() GameSpec { return g.spec }

// Curve returns the public growth curve.
func (g *GrowthGame) Curve() Curve { return g.curve }

// Limit is the largest breakpoint, the curve value at the configured maximum duration.
func (g *GrowthGame) Limit() float64 {
	return floor2(g.curve.At(g.rules.MaxGrowthDuration))
}

// BreakpointFor draws the breakpoint from the stream.
func (g *GrowthGame) BreakpointFor(stream *engine.Stream) float64 {
	return Breakpoint(stream.NextFloat(), g.rules.HouseEdge, g.Limit())
}

// ValidateCashout checks a cash-out target against the accepted range.
func (g *GrowthGame) ValidateCashout(target float64) error {
	if math.IsNaN(target) || target < MinCashout {
		return errs.Invalid("cashout must be at least %.2f, got %v", MinCashout, target)
	}
	if limit := g.Limit(); target > limit {
		return errs.Invalid("cashout must be at most %.2f, got %v", limit, target)
	}
	return nil
}

func (g *GrowthGame) cashout(params map[string]any) (float64, bool, error) {
	target, ok, err := floatParam(params, "cashout")
	if err != nil {
		return 0, false, err
	}
	if !ok {
		if g.cashoutRequired {
			return 0, false, errs.Invalid("cashout is required")
		}
		return 0, false, nil
	}
	if err := g.ValidateCashout(target); err != nil {
		return 0, false, err
	}
	return target, true, nil
}

func (g *GrowthGame) Validate(params map[string]any) error {
	_, _, err := g.cashout(params)
	return err
}

// Resolve draws the breakpoint. With a cashout target the bet wins iff the
// target is reached before the breakpoint.
func (g *GrowthGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	target, hasTarget, err := g.cashout(params)
	if err != nil {
		return Outcome{}, err
	}

	bp := g.BreakpointFor(stream)

	payload := map[string]any{
		"breakpoint": bp,
		"crash_time": g.curve.TimeTo(bp).Seconds(),
		"rate":       g.curve.Rate,
	}

	multiplier := 0.0
	if hasTarget {
		won := target <= bp
		payload["cashout"] = target
		payload["win"] = won
		if won {
			multiplier = target
		}
	}

	return newOutcome(wager, multiplier, bp, payload), nil
}
