package rounds

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/games"
	"github.com/MJE43/pf-bet-engine/internal/ledger"
	"github.com/MJE43/pf-bet-engine/internal/seeds"
	"github.com/MJE43/pf-bet-engine/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	table  *Table
	ledger *ledger.Ledger
	seeds  *seeds.Manager
	clock  *fakeClock
	t0     time.Time
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "rounds.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sm, err := seeds.Open(seeds.Options{InMemory: true, NonceCeiling: 1000, Pending: st})
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })

	l := ledger.New(st, ledger.Options{MinWager: decimal.RequireFromString("0.01")})
	clock := &fakeClock{now: t0}

	tbl := NewTable(games.NewCrashGame(games.DefaultRules()), l, sm, nil, Options{
		Table:         "crash",
		BettingWindow: 10 * time.Second,
		CooldownDelay: 3 * time.Second,
		ClientSeed:    "house-client",
		Clock:         clock.Now,
	})

	for _, user := range []string{"alice", "bob", "carol"} {
		_, err := l.Credit(ctx, user, decimal.NewFromInt(1000), "test funding", "test")
		require.NoError(t, err)
	}
	return &fixture{table: tbl, ledger: l, seeds: sm, clock: clock, t0: t0}
}

// fixBreakpoint pins the breakpoint of the next round.
func (f *fixture) fixBreakpoint(bp float64) {
	f.table.drawBreakpoint = func(*engine.Stream) float64 { return bp }
}

func (f *fixture) open(t *testing.T) RoundView {
	t.Helper()
	v, err := f.table.Open(context.Background(), f.clock.Now())
	require.NoError(t, err)
	return v
}

func (f *fixture) balance(t *testing.T, user string) string {
	t.Helper()
	acct, err := f.ledger.Balance(context.Background(), user)
	require.NoError(t, err)
	return acct.Balance.String()
}

func (f *fixture) timeTo(v RoundView, m float64) time.Time {
	return v.StartsAt.Add(f.table.game.Curve().TimeTo(m))
}

func float(v float64) *float64 { return &v }

// flakyWallet fails ledger writes for one user.
type flakyWallet struct {
	*ledger.Ledger
	user       string
	failVoid   bool
	settleTry  int
	settleLock sync.Mutex
}

func (w *flakyWallet) Settle(ctx context.Context, h ledger.WagerHandle, multiplier float64, payout decimal.Decimal, result json.RawMessage) (ledger.Settlement, error) {
	if h.UserID == w.user {
		w.settleLock.Lock()
		w.settleTry++
		w.settleLock.Unlock()
		return ledger.Settlement{}, errors.New("transient store error")
	}
	return w.Ledger.Settle(ctx, h, multiplier, payout, result)
}

func (w *flakyWallet) Void(ctx context.Context, h ledger.WagerHandle, reason string) (ledger.Settlement, error) {
	if w.failVoid && h.UserID == w.user {
		return ledger.Settlement{}, errors.New("transient store error")
	}
	return w.Ledger.Void(ctx, h, reason)
}

func TestJoinOnlyWhileAccepting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.open(t)
	assert.Equal(t, PhaseAccepting, v.Phase)
	assert.Nil(t, v.Breakpoint)
	assert.Len(t, v.ServerSeedHash, 64)

	_, _, err := f.table.Join(ctx, "alice", decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	assert.Equal(t, "990", f.balance(t, "alice"))

	_, _, err = f.table.Join(ctx, "alice", decimal.NewFromInt(10), nil)
	assert.ErrorIs(t, err, errs.ErrInvalidParameters)

	_, _, err = f.table.Join(ctx, "bob", decimal.NewFromInt(10), float(0.5))
	assert.ErrorIs(t, err, errs.ErrInvalidParameters)

	f.clock.Set(v.StartsAt)
	_, _, err = f.table.Join(ctx, "bob", decimal.NewFromInt(10), nil)
	assert.ErrorIs(t, err, errs.ErrRoundClosed)
	assert.Equal(t, "1000", f.balance(t, "bob"))
}

func TestManualCashoutBeforeBreakpoint(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fixBreakpoint(3)
	v := f.open(t)

	_, _, err := f.table.Join(ctx, "alice", decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	_, err = f.table.Cashout(ctx, v.ID, "alice", f.clock.Now())
	assert.ErrorIs(t, err, errs.ErrInvalidParameters, "cannot cash out before the round starts")

	require.NoError(t, f.table.Tick(ctx, v.StartsAt))
	cur, _ := f.table.Current()
	assert.Equal(t, PhaseActive, cur.Phase)

	at := f.timeTo(v, 2).Add(time.Millisecond)
	res, err := f.table.Cashout(ctx, v.ID, "alice", at)
	require.NoError(t, err)
	assert.Equal(t, 2.0, res.Multiplier)
	assert.Equal(t, "200", res.Payout.String())
	assert.Equal(t, "1100", res.Balance.String())

	_, err = f.table.Cashout(ctx, v.ID, "alice", at.Add(time.Second))
	assert.ErrorIs(t, err, errs.ErrInvalidParameters)

	require.NoError(t, f.table.Tick(ctx, f.timeTo(v, 3)))
	resolved, ok := f.table.Round(v.ID)
	require.True(t, ok)
	assert.Equal(t, PhaseResolved, resolved.Phase)
	require.NotNil(t, resolved.Breakpoint)
	assert.Equal(t, 3.0, *resolved.Breakpoint)
	assert.Equal(t, "1100", f.balance(t, "alice"))
}

func TestCashoutAfterCrashIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fixBreakpoint(1.5)
	v := f.open(t)

	p, _, err := f.table.Join(ctx, "alice", decimal.NewFromInt(100), nil)
	require.NoError(t, err)
	require.NoError(t, f.table.Tick(ctx, v.StartsAt))

	// No tick has observed the crash yet.
	late := f.timeTo(v, 1.5).Add(time.Second)
	_, err = f.table.Cashout(ctx, v.ID, "alice", late)
	assert.ErrorIs(t, err, errs.ErrRoundAlreadyResolved)

	require.NoError(t, f.table.Tick(ctx, late))
	_, err = f.table.Cashout(ctx, v.ID, "alice", late)
	assert.ErrorIs(t, err, errs.ErrRoundAlreadyResolved)

	bet, err := f.ledger.Bet(ctx, p.BetID)
	require.NoError(t, err)
	assert.Equal(t, store.BetSettled, bet.Status)
	require.NotNil(t, bet.Multiplier)
	assert.Equal(t, 0.0, *bet.Multiplier)
	assert.Equal(t, "900", f.balance(t, "alice"))
}

func TestAutoCashoutPaysExactTarget(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fixBreakpoint(5)
	v := f.open(t)

	_, _, err := f.table.Join(ctx, "alice", decimal.NewFromInt(100), float(2))
	require.NoError(t, err)
	_, _, err = f.table.Join(ctx, "bob", decimal.NewFromInt(100), float(7))
	require.NoError(t, err)
	_, _, err = f.table.Join(ctx, "carol", decimal.NewFromInt(100), nil)
	require.NoError(t, err)

	require.NoError(t, f.table.Tick(ctx, v.StartsAt))
	// The tick lands past the target; the payout still uses the target.
	require.NoError(t, f.table.Tick(ctx, f.timeTo(v, 2).Add(300*time.Millisecond)))
	assert.Equal(t, "1100", f.balance(t, "alice"))

	require.NoError(t, f.table.Tick(ctx, f.timeTo(v, 5)))
	resolved, _ := f.table.Round(v.ID)
	assert.Equal(t, PhaseResolved, resolved.Phase)

	assert.Equal(t, "1100", f.balance(t, "alice"))
	assert.Equal(t, "900", f.balance(t, "bob"))
	assert.Equal(t, "900", f.balance(t, "carol"))

	byUser := map[string]ParticipantView{}
	for _, p := range resolved.Participants {
		byUser[p.UserID] = p
	}
	require.NotNil(t, byUser["alice"].CashedOutAt)
	assert.Equal(t, 2.0, *byUser["alice"].CashedOutAt)
	assert.Nil(t, byUser["bob"].CashedOutAt)
	require.NotNil(t, byUser["carol"].Payout)
	assert.True(t, byUser["carol"].Payout.IsZero())
}

func TestSetAutoCashoutWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fixBreakpoint(10)
	v := f.open(t)

	_, _, err := f.table.Join(ctx, "alice", decimal.NewFromInt(50), float(3))
	require.NoError(t, err)

	assert.ErrorIs(t, f.table.SetAutoCashout(v.ID, "alice", float(1)), errs.ErrInvalidParameters)
	assert.ErrorIs(t, f.table.SetAutoCashout(v.ID, "bob", float(2)), errs.ErrNotFound)
	assert.ErrorIs(t, f.table.SetAutoCashout("nope", "alice", nil), errs.ErrNotFound)
	require.NoError(t, f.table.SetAutoCashout(v.ID, "alice", nil))

	f.clock.Set(v.StartsAt)
	require.NoError(t, f.table.Tick(ctx, v.StartsAt))
	assert.ErrorIs(t, f.table.SetAutoCashout(v.ID, "alice", float(2)), errs.ErrRoundClosed)

	// The withdrawn instruction never fires.
	require.NoError(t, f.table.Tick(ctx, f.timeTo(v, 10)))
	assert.Equal(t, "950", f.balance(t, "alice"))
}

func TestShutdownVoidsOpenRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.open(t)

	p, _, err := f.table.Join(ctx, "alice", decimal.NewFromInt(250), nil)
	require.NoError(t, err)
	assert.Equal(t, "750", f.balance(t, "alice"))

	require.NoError(t, f.table.Shutdown(ctx))
	assert.Equal(t, "1000", f.balance(t, "alice"))

	bet, err := f.ledger.Bet(ctx, p.BetID)
	require.NoError(t, err)
	assert.Equal(t, store.BetVoided, bet.Status)

	view, ok := f.table.Round(v.ID)
	require.True(t, ok)
	assert.True(t, view.Voided)
	assert.Nil(t, view.Breakpoint)

	_, _, err = f.table.Join(ctx, "bob", decimal.NewFromInt(1), nil)
	assert.ErrorIs(t, err, errs.ErrRoundClosed)
	require.NoError(t, f.table.Shutdown(ctx))
}

func TestBreakpointReplaysFromRevealedSeed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	v := f.open(t)

	_, _, err := f.table.Join(ctx, "alice", decimal.NewFromInt(10), nil)
	require.NoError(t, err)

	// Past the longest possible round, so one tick starts and resolves it.
	end := v.StartsAt.Add(3 * time.Minute)
	require.NoError(t, f.table.Tick(ctx, end))

	resolved, _ := f.table.Round(v.ID)
	require.Equal(t, PhaseResolved, resolved.Phase)
	require.NotNil(t, resolved.Breakpoint)

	seed, err := f.seeds.Fairness(ctx, v.SeedID)
	require.NoError(t, err)
	require.NotNil(t, seed.ServerSeed)
	assert.True(t, engine.VerifyCommitment(*seed.ServerSeed, v.ServerSeedHash))

	replayed := games.NewCrashGame(games.DefaultRules()).BreakpointFor(engine.NewStream(*seed.ServerSeed, v.ClientSeed, v.Nonce))
	assert.Equal(t, replayed, *resolved.Breakpoint)

	// Cooldown, then a fresh commitment.
	require.NoError(t, f.table.Tick(ctx, end.Add(time.Second)))
	cur, _ := f.table.Current()
	assert.Equal(t, v.ID, cur.ID)

	require.NoError(t, f.table.Tick(ctx, end.Add(3*time.Second)))
	next, _ := f.table.Current()
	assert.NotEqual(t, v.ID, next.ID)
	assert.NotEqual(t, v.SeedID, next.SeedID)
	assert.Equal(t, v.Nonce+1, next.Nonce)
	assert.Equal(t, PhaseAccepting, next.Phase)
}

func TestManagerRoutesByRound(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fixBreakpoint(4)
	m := NewManager(f.table)
	assert.Equal(t, []string{"crash"}, m.Tables())

	v := f.open(t)
	_, _, err := m.Join(ctx, "crash", "bob", decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	_, _, err = m.Join(ctx, "missing", "bob", decimal.NewFromInt(10), nil)
	assert.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, f.table.Tick(ctx, v.StartsAt))
	res, err := m.Cashout(ctx, v.ID, "bob", f.timeTo(v, 1.5).Add(time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1.5, res.Multiplier)

	_, err = m.Cashout(ctx, "unknown-round", "bob", time.Now())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	got, err := m.Round(v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.ID, got.ID)
}

func TestFailedSettlementIsVoided(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	wallet := &flakyWallet{Ledger: f.ledger, user: "bob"}
	f.table.wallet = wallet
	f.fixBreakpoint(1.5)
	v := f.open(t)

	_, _, err := f.table.Join(ctx, "alice", decimal.NewFromInt(10), nil)
	require.NoError(t, err)
	bob, _, err := f.table.Join(ctx, "bob", decimal.NewFromInt(10), nil)
	require.NoError(t, err)

	require.NoError(t, f.table.Tick(ctx, f.timeTo(v, 1.5)))
	assert.Equal(t, settleRetries+1, wallet.settleTry)

	bet, err := f.ledger.Bet(ctx, bob.BetID)
	require.NoError(t, err)
	assert.Equal(t, store.BetVoided, bet.Status)
	assert.Equal(t, "1000", f.balance(t, "bob"))
	assert.Equal(t, "990", f.balance(t, "alice"))

	resolved, ok := f.table.Round(v.ID)
	require.True(t, ok)
	assert.Equal(t, PhaseResolved, resolved.Phase)
	for _, p := range resolved.Participants {
		assert.Equal(t, p.UserID == "bob", p.Voided, p.UserID)
	}

	seed, err := f.seeds.Fairness(ctx, v.SeedID)
	require.NoError(t, err)
	assert.Equal(t, seeds.StatusRevealed, seed.Status)
}

func TestSeedStaysHiddenWhileBetPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.table.wallet = &flakyWallet{Ledger: f.ledger, user: "bob", failVoid: true}
	f.fixBreakpoint(1.5)
	v := f.open(t)

	bob, _, err := f.table.Join(ctx, "bob", decimal.NewFromInt(10), nil)
	require.NoError(t, err)

	assert.Error(t, f.table.Tick(ctx, f.timeTo(v, 1.5)))

	bet, err := f.ledger.Bet(ctx, bob.BetID)
	require.NoError(t, err)
	assert.Equal(t, store.BetPending, bet.Status)

	seed, err := f.seeds.Fairness(ctx, v.SeedID)
	require.NoError(t, err)
	assert.Equal(t, seeds.StatusRetired, seed.Status)
	assert.Nil(t, seed.ServerSeed)

	// The next round must not reuse the withheld seed.
	require.NoError(t, f.table.Tick(ctx, f.timeTo(v, 1.5).Add(5*time.Second)))
	next, _ := f.table.Current()
	assert.NotEqual(t, v.SeedID, next.SeedID)

	voided, err := f.ledger.RecoverPending(ctx)
	require.NoError(t, err)
	require.Len(t, voided, 1)
	assert.Equal(t, "1000", f.balance(t, "bob"))

	seed, err = f.seeds.Fairness(ctx, v.SeedID)
	require.NoError(t, err)
	assert.Equal(t, seeds.StatusRevealed, seed.Status)
	require.NotNil(t, seed.ServerSeed)
}
