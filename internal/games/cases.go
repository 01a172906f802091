package games

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// caseTables price every item as a multiple of the case cost.
var caseTables = map[string]Paytable{
	"starter": {
		{Label: "common", Multiplier: 0.4, Weight: 600},
		{Label: "uncommon", Multiplier: 1, Weight: 250},
		{Label: "rare", Multiplier: 2, Weight: 100},
		{Label: "epic", Multiplier: 5, Weight: 40},
		{Label: "legendary", Multiplier: 10, Weight: 10},
	},
	"elite": {
		{Label: "dud", Multiplier: 0, Weight: 20},
		{Label: "common", Multiplier: 0.2, Weight: 700},
		{Label: "rare", Multiplier: 2, Weight: 200},
		{Label: "epic", Multiplier: 5, Weight: 70},
		{Label: "legendary", Multiplier: 10, Weight: 10},
	},
	"legend": {
		{Label: "dud", Multiplier: 0, Weight: 568},
		{Label: "rare", Multiplier: 1, Weight: 300},
		{Label: "epic", Multiplier: 3, Weight: 100},
		{Label: "mythic", Multiplier: 10, Weight: 30},
		{Label: "legendary", Multiplier: 45, Weight: 2},
	},
}

// CaseGame opens a case and awards one weighted item.
type CaseGame struct{}

func (g *CaseGame) Spec() GameSpec {
	return GameSpec{
		ID:          "case",
		Name:        "Case Opening",
		MetricLabel: "multiplier",
		Family:      FamilyPaytable,
	}
}

func caseNames() []string {
	names := make([]string, 0, len(caseTables))
	for name := range caseTables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (g *CaseGame) table(params map[string]any) (string, Paytable, error) {
	name, err := choiceParam(params, "case", "starter", caseNames()...)
	if err != nil {
		return "", nil, err
	}
	table := caseTables[name]
	if err := table.validate(name); err != nil {
		return "", nil, errs.Invariant("case table %s: %v", name, err)
	}
	return name, table, nil
}

func (g *CaseGame) Validate(params map[string]any) error {
	_, _, err := g.table(params)
	return err
}

func (g *CaseGame) Resolve(stream *engine.Stream, wager decimal.Decimal, params map[string]any) (Outcome, error) {
	name, table, err := g.table(params)
	if err != nil {
		return Outcome{}, err
	}

	item := table[table.Select(stream.NextFloat())]

	return newOutcome(wager, item.Multiplier, item.Multiplier, map[string]any{
		"case": name,
		"item": item.Label,
	}), nil
}
