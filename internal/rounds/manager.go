package rounds

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// Manager routes round operations to the table that owns the round.
type Manager struct {
	tables map[string]*Table
}

func NewManager(tables ...*Table) *Manager {
	m := &Manager{tables: make(map[string]*Table, len(tables))}
	for _, t := range tables {
		m.tables[t.ID()] = t
	}
	return m
}

// Table returns the table with the given id, or not_found.
func (m *Manager) Table(id string) (*Table, error) {
	t, ok := m.tables[id]
	if !ok {
		return nil, errs.New(errs.CodeNotFound, "table %s not found", id)
	}
	return t, nil
}

// Tables returns the table ids in sorted order.
func (m *Manager) Tables() []string {
	ids := make([]string, 0, len(m.tables))
	for id := range m.tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// owner finds the table whose current or recent round is roundID.
func (m *Manager) owner(roundID string) (*Table, error) {
	for _, t := range m.tables {
		if _, ok := t.Round(roundID); ok {
			return t, nil
		}
	}
	return nil, errs.New(errs.CodeNotFound, "round %s not found", roundID)
}

func (m *Manager) Join(ctx context.Context, table, userID string, wager decimal.Decimal, autoCashout *float64) (ParticipantView, RoundView, error) {
	t, err := m.Table(table)
	if err != nil {
		return ParticipantView{}, RoundView{}, err
	}
	return t.Join(ctx, userID, wager, autoCashout)
}

// Cashout cashes out on the table that owns roundID. A zero now uses the table clock.
func (m *Manager) Cashout(ctx context.Context, roundID, userID string, now time.Time) (CashoutResult, error) {
	t, err := m.owner(roundID)
	if err != nil {
		return CashoutResult{}, err
	}
	if now.IsZero() {
		now = t.opts.Clock()
	}
	return t.Cashout(ctx, roundID, userID, now)
}

func (m *Manager) SetAutoCashout(roundID, userID string, target *float64) error {
	t, err := m.owner(roundID)
	if err != nil {
		return err
	}
	return t.SetAutoCashout(roundID, userID, target)
}

// Round looks a round up across all tables.
func (m *Manager) Round(roundID string) (RoundView, error) {
	t, err := m.owner(roundID)
	if err != nil {
		return RoundView{}, err
	}
	v, _ := t.Round(roundID)
	return v, nil
}

// Run drives every table until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range m.tables {
		g.Go(func() error { return t.Run(ctx) })
	}
	return g.Wait()
}
