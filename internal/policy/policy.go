package policy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/config"
	"github.com/MJE43/pf-bet-engine/internal/games"
	"github.com/MJE43/pf-bet-engine/internal/logger"
)

// AnyRank matches every account rank.
const AnyRank = "*"

// Rule is a named bonus expression applied to settled bets of one rank.
type Rule struct {
	Name     string
	Rank     string
	Expr     string
	MaxBonus decimal.Decimal // zero means uncapped
}

// Input is what a rule expression can see. Expressions read the variables
// wager, payout, multiplier, game, rank and win.
type Input struct {
	Game       string
	Rank       string
	Wager      decimal.Decimal
	Payout     decimal.Decimal
	Multiplier float64
}

// Bonus is a positive credit produced by one rule.
type Bonus struct {
	Policy string          `json:"policy"`
	Amount decimal.Decimal `json:"amount"`
}

type compiledRule struct {
	Rule
	program *goja.Program
}

// Engine evaluates adjustment rules after settlement. It never sees seeds or
// RNG state, so it cannot influence outcomes.
type Engine struct {
	rules   []compiledRule
	timeout time.Duration
	log     *slog.Logger
}

// New compiles every rule up front so syntax errors surface at startup.
func New(rules []Rule, timeout time.Duration) (*Engine, error) {
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}

	e := &Engine{timeout: timeout, log: logger.With("component", "policy")}
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate policy rule %q", r.Name)
		}
		seen[r.Name] = true

		prog, err := goja.Compile(r.Name, r.Expr, true)
		if err != nil {
			return nil, fmt.Errorf("compile policy rule %q: %w", r.Name, err)
		}
		e.rules = append(e.rules, compiledRule{Rule: r, program: prog})
	}
	return e, nil
}

// FromConfig builds an Engine from the policy section of the config.
func FromConfig(cfg config.PolicyConfig) (*Engine, error) {
	rules := make([]Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rule := Rule{Name: r.Name, Rank: r.Rank, Expr: r.Expr}
		if r.MaxBonus != "" {
			max, err := decimal.NewFromString(r.MaxBonus)
			if err != nil {
				return nil, fmt.Errorf("policy rule %q max_bonus: %w", r.Name, err)
			}
			rule.MaxBonus = max
		}
		rules = append(rules, rule)
	}
	return New(rules, cfg.EvalTimeout)
}

// Rules returns the configured rules in evaluation order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.Rule
	}
	return out
}

// Evaluate runs every rule matching in.Rank and returns the non-zero bonuses.
// A failing rule is logged and skipped; it never blocks the others.
func (e *Engine) Evaluate(ctx context.Context, in Input) []Bonus {
	var out []Bonus
	for _, r := range e.rules {
		if r.Rank != AnyRank && !strings.EqualFold(r.Rank, in.Rank) {
			continue
		}
		if ctx.Err() != nil {
			return out
		}

		amount, err := e.run(r, in)
		if err != nil {
			e.log.Warn("Policy rule failed", "rule", r.Name, "game", in.Game, "error", err)
			continue
		}
		if amount.IsPositive() {
			out = append(out, Bonus{Policy: r.Name, Amount: amount})
		}
	}
	return out
}

func (e *Engine) run(r compiledRule, in Input) (decimal.Decimal, error) {
	rt := newSandbox()
	rt.Set("wager", in.Wager.InexactFloat64())
	rt.Set("payout", in.Payout.InexactFloat64())
	rt.Set("multiplier", in.Multiplier)
	rt.Set("game", in.Game)
	rt.Set("rank", in.Rank)
	rt.Set("win", in.Payout.IsPositive())

	v, err := runWithTimeout(rt, e.timeout, func() (goja.Value, error) {
		return rt.RunProgram(r.program)
	})
	if err != nil {
		return decimal.Zero, err
	}
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return decimal.Zero, nil
	}

	f := v.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("rule %q returned %v", r.Name, v)
	}
	if f <= 0 {
		return decimal.Zero, nil
	}

	amount := decimal.NewFromFloat(f).Truncate(games.PayoutPrecision)
	if r.MaxBonus.IsPositive() && amount.GreaterThan(r.MaxBonus) {
		amount = r.MaxBonus
	}
	return amount, nil
}
