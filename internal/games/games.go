package games

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

// Family groups resolvers that share a payout model.
type Family string

const (
	FamilyThreshold   Family = "threshold_roll"
	FamilyElimination Family = "sequential_elimination"
	FamilyGrowth      Family = "continuous_growth"
	FamilyPaytable    Family = "static_paytable"
	FamilyCards       Family = "card_deal"
)

// PayoutPrecision is the number of decimal places kept on payouts. Extra
// precision is truncated in the house's favour.
const PayoutPrecision = 8

// GameSpec describes a resolver to callers.
type GameSpec struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MetricLabel string `json:"metric_label"`
	Family      Family `json:"family"`
	// RoundBased games are played through a shared round rather than POST /bet.
	RoundBased bool `json:"round_based,omitempty"`
}

// Outcome is the result of one resolution.
type Outcome struct {
	Multiplier float64         `json:"multiplier"`
	Payout     decimal.Decimal `json:"payout"`
	Metric     float64         `json:"metric"`
	Payload    map[string]any  `json:"payload"`
}

// Resolver maps an RNG stream, a wager and game parameters to an outcome.
// Implementations must not touch anything outside their arguments.
type Resolver interface {
	Spec() GameSpec
	Validate(params map[string]any) error
	Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error)
}

// Rules are the economic constants shared by every resolver.
type Rules struct {
	HouseEdge         float64
	MinWinProbability float64
	// MaxGrowthDuration caps continuous-growth breakpoints at the curve value reached at this elapsed time.
	MaxGrowthDuration time.Duration
	CrashGrowthRate   float64
}

// DefaultRules is a 1% edge with the crash curve e^(0.06t) capped at two minutes.
func DefaultRules() Rules {
	return Rules{
		HouseEdge:         0.99,
		MinWinProbability: 0.0001,
		MaxGrowthDuration: 120 * time.Second,
		CrashGrowthRate:   0.06,
	}
}

// Registry holds every resolver keyed by game id.
type Registry struct {
	rules     Rules
	resolvers map[string]Resolver
}

// NewRegistry builds the full catalog for the given rules.
func NewRegistry(rules Rules) *Registry {
	r := &Registry{rules: rules, resolvers: make(map[string]Resolver)}
	for _, res := range []Resolver{
		&DiceGame{rules: rules},
		&LimboGame{rules: rules},
		&CoinflipGame{rules: rules},
		&DiceSumGame{rules: rules},
		&MinesGame{},
		&TowerGame{},
		&ChickenGame{rules: rules},
		NewCrashGame(rules),
		NewBloxRunGame(rules),
		&WheelGame{},
		&PlinkoGame{},
		&SlotsGame{},
		&CaseGame{},
		&CaseBattleGame{rules: rules},
		&RouletteGame{},
		&BaccaratGame{},
		&BlackjackGame{},
	} {
		r.resolvers[res.Spec().ID] = res
	}
	return r
}

// Get returns the resolver for a game id.
func (r *Registry) Get(id string) (Resolver, bool) {
	res, ok := r.resolvers[id]
	return res, ok
}

// Specs lists all games sorted by id.
func (r *Registry) Specs() []GameSpec {
	out := make([]GameSpec, 0, len(r.resolvers))
	for _, res := range r.resolvers {
		out = append(out, res.Spec())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rules returns the rules the registry was built with.
func (r *Registry) Rules() Rules { return r.rules }

// PayoutFor returns wager × multiplier truncated to PayoutPrecision places.
func PayoutFor(wager decimal.Decimal, multiplier float64) decimal.Decimal {
	if multiplier <= 0 {
		return decimal.Zero
	}
	return wager.Mul(decimal.NewFromFloat(multiplier)).Truncate(PayoutPrecision)
}

func newOutcome(wager decimal.Decimal, multiplier, metric float64, payload map[string]any) Outcome {
	return Outcome{
		Multiplier: multiplier,
		Payout:     PayoutFor(wager, multiplier),
		Metric:     metric,
		Payload:    payload,
	}
}

// floor2 floors to two decimals. The epsilon absorbs binary representation error so 1.98 stays 1.98.
func floor2(x float64) float64 {
	return math.Floor(x*100+1e-9) / 100
}
