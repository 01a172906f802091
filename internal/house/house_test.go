package house

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/events"
	"github.com/MJE43/pf-bet-engine/internal/games"
	"github.com/MJE43/pf-bet-engine/internal/ledger"
	"github.com/MJE43/pf-bet-engine/internal/policy"
	"github.com/MJE43/pf-bet-engine/internal/seeds"
	"github.com/MJE43/pf-bet-engine/internal/signing"
	"github.com/MJE43/pf-bet-engine/internal/store"
)

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.got = append(r.got, e)
	r.mu.Unlock()
}

// panicky wraps the registry with a resolver that always fails.
type panicky struct{ *games.Registry }

type boomGame struct{}

func (boomGame) Spec() games.GameSpec {
	return games.GameSpec{ID: "boom", Name: "Boom", Family: games.FamilyThreshold}
}
func (boomGame) Validate(map[string]any) error { return nil }
func (boomGame) Resolve(*engine.Stream, decimal.Decimal, map[string]any) (games.Outcome, error) {
	panic("index out of range")
}

func (p panicky) Get(id string) (games.Resolver, bool) {
	if id == "boom" {
		return boomGame{}, true
	}
	return p.Registry.Get(id)
}

// rejectingLedger refuses every settlement as an invariant violation.
type rejectingLedger struct{ *ledger.Ledger }

func (rejectingLedger) Settle(context.Context, ledger.WagerHandle, float64, decimal.Decimal, json.RawMessage) (ledger.Settlement, error) {
	return ledger.Settlement{}, errs.Invariant("balance would be inconsistent")
}

type fixture struct {
	svc    *Service
	store  *store.Store
	signer *signing.Signer
	events *recorder
}

func newFixture(t *testing.T, catalog Catalog, rules ...policy.Rule) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "house.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sm, err := seeds.Open(seeds.Options{InMemory: true, NonceCeiling: 1000, Pending: st})
	require.NoError(t, err)
	t.Cleanup(func() { sm.Close() })

	pe, err := policy.New(rules, 0)
	require.NoError(t, err)

	if catalog == nil {
		catalog = games.NewRegistry(games.DefaultRules())
	}
	signer := signing.NewSigner([]byte("test-signing-key-0123456789abcde"))
	rec := &recorder{}

	l := ledger.New(st, ledger.Options{
		MinWager: decimal.RequireFromString("0.01"),
		MaxWager: decimal.NewFromInt(100000),
	})
	_, err = l.Credit(ctx, "alice", decimal.NewFromInt(1000), "test funding", "test")
	require.NoError(t, err)

	svc := New(Deps{
		Games:  catalog,
		Store:  st,
		Ledger: l,
		Seeds:  sm,
		Policy: pe,
		Signer: signer,
		Events: rec,
	})
	return &fixture{svc: svc, store: st, signer: signer, events: rec}
}

func dice(wager int64) BetRequest {
	return BetRequest{
		UserID:     "alice",
		Game:       "dice",
		Wager:      decimal.NewFromInt(wager),
		Params:     map[string]any{"target": 50.0, "direction": "under"},
		ClientSeed: "alice-seed",
	}
}

func TestPlaceBetSettlesAndSigns(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	balance := decimal.NewFromInt(1000)
	for i := 0; i < 5; i++ {
		res, err := f.svc.PlaceBet(ctx, dice(10))
		require.NoError(t, err)

		assert.Equal(t, uint64(i), res.Nonce)
		assert.Contains(t, []float64{0, 1.98}, res.Multiplier)
		balance = balance.Sub(decimal.NewFromInt(10)).Add(res.Payout)
		assert.True(t, balance.Equal(res.NewBalance), "balance %s, want %s", res.NewBalance, balance)
		assert.Len(t, res.SeedHashUsed, 64)

		assert.True(t, f.signer.Verify(receiptFor("alice", res), res.Signature))
	}

	page, err := f.svc.History(ctx, "alice", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 5, page.TotalCount)
	for _, b := range page.Bets {
		assert.Equal(t, store.BetSettled, b.Status)
	}

	f.events.mu.Lock()
	defer f.events.mu.Unlock()
	require.Len(t, f.events.got, 5)
	assert.Equal(t, events.TopicBetSettled, f.events.got[0].Type)
}

func TestPlaceBetRejectsBeforeAnyStateChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	tests := []struct {
		name string
		req  BetRequest
		want error
	}{
		{"unknown game", BetRequest{UserID: "alice", Game: "poker", Wager: decimal.NewFromInt(1), ClientSeed: "c"}, errs.ErrInvalidParameters},
		{"round based game", BetRequest{UserID: "alice", Game: "crash", Wager: decimal.NewFromInt(1), ClientSeed: "c"}, errs.ErrRoundClosed},
		{"bad params", BetRequest{UserID: "alice", Game: "dice", Wager: decimal.NewFromInt(1), Params: map[string]any{"target": 150.0}, ClientSeed: "c"}, errs.ErrInvalidParameters},
		{"missing client seed", BetRequest{UserID: "alice", Game: "dice", Wager: decimal.NewFromInt(1), Params: map[string]any{"target": 50.0}}, errs.ErrInvalidParameters},
		{"insufficient funds", dice(1500), errs.ErrInsufficientFunds},
		{"zero wager", dice(0), errs.ErrInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.PlaceBet(ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	acct, err := f.svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1000", acct.Balance.String())

	page, err := f.svc.History(ctx, "alice", 1, 10)
	require.NoError(t, err)
	assert.Zero(t, page.TotalCount)
}

func TestResolutionFailureVoidsWager(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, panicky{games.NewRegistry(games.DefaultRules())})

	_, err := f.svc.PlaceBet(ctx, BetRequest{UserID: "alice", Game: "boom", Wager: decimal.NewFromInt(40), ClientSeed: "c"})
	require.Error(t, err)
	assert.True(t, errs.IsInvariant(err))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "resolution failed, wager refunded", e.Message)

	acct, err := f.svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1000", acct.Balance.String())

	page, err := f.svc.History(ctx, "alice", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Bets, 1)
	assert.Equal(t, store.BetVoided, page.Bets[0].Status)
}

func TestSettlementInvariantVoidsWager(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.svc.ledger = rejectingLedger{f.svc.ledger.(*ledger.Ledger)}

	_, err := f.svc.PlaceBet(ctx, dice(25))
	require.Error(t, err)
	assert.True(t, errs.IsInvariant(err))

	var e *errs.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "resolution failed, wager refunded", e.Message)

	acct, err := f.svc.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1000", acct.Balance.String())

	page, err := f.svc.History(ctx, "alice", 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Bets, 1)
	assert.Equal(t, store.BetVoided, page.Bets[0].Status)

	pending, err := f.store.CountPending(ctx, page.Bets[0].SeedID)
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestReplayAfterRotation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	var ids []int64
	for _, req := range []BetRequest{
		dice(5),
		{UserID: "alice", Game: "dice", Wager: decimal.NewFromInt(5), Params: map[string]any{"target": 20.0, "direction": "over"}, ClientSeed: "alice-seed"},
	} {
		res, err := f.svc.PlaceBet(ctx, req)
		require.NoError(t, err)
		ids = append(ids, res.BetID)
	}

	_, err := f.svc.ReplayBet(ctx, ids[0])
	assert.ErrorIs(t, err, errs.ErrInvalidParameters, "active seed must stay hidden")

	rot, err := f.svc.Rotate(ctx, "alice", "dice", "fresh")
	require.NoError(t, err)
	require.NotNil(t, rot.Previous)
	require.NotNil(t, rot.Previous.ServerSeed)
	assert.Nil(t, rot.Next.ServerSeed)
	assert.Equal(t, uint64(2), rot.Next.FirstNonce)

	for _, id := range ids {
		r, err := f.svc.ReplayBet(ctx, id)
		require.NoError(t, err)
		assert.True(t, r.HashOK)
		assert.True(t, r.Match, "bet %d did not replay", id)
	}

	view, err := f.svc.Fairness(ctx, rot.Previous.ID)
	require.NoError(t, err)
	require.NotNil(t, view.ServerSeed)
	assert.True(t, engine.VerifyCommitment(*view.ServerSeed, view.ServerSeedHash))

	_, err = f.svc.Rotate(ctx, "alice", "crash", "x")
	assert.ErrorIs(t, err, errs.ErrInvalidParameters)
}

func TestPolicyBonusIsAuditedSeparately(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, policy.Rule{Name: "vip_rebate", Rank: "VIP", Expr: "wager * 0.1"})

	_, err := f.svc.SetRank(ctx, "alice", "VIP", "admin")
	require.NoError(t, err)

	res, err := f.svc.PlaceBet(ctx, dice(10))
	require.NoError(t, err)
	require.Len(t, res.Bonuses, 1)
	assert.Equal(t, "1", res.Bonuses[0].Amount.String())

	want := decimal.NewFromInt(991).Add(res.Payout)
	assert.True(t, want.Equal(res.NewBalance), "balance %s, want %s", res.NewBalance, want)

	// The signature covers the bonus and the balance it produced.
	receipt := receiptFor("alice", res)
	assert.Equal(t, "1", receipt.Bonus)
	assert.Equal(t, res.NewBalance.String(), receipt.NewBalance)
	assert.True(t, f.signer.Verify(receipt, res.Signature))
	receipt.Bonus = "0"
	assert.False(t, f.signer.Verify(receipt, res.Signature))

	adjs, err := f.store.ListAdjustments(ctx, res.BetID)
	require.NoError(t, err)
	require.Len(t, adjs, 1)
	assert.Equal(t, "vip_rebate", adjs[0].Policy)

	// The bet record itself keeps the unadjusted payout.
	bet, err := f.store.GetBet(ctx, res.BetID)
	require.NoError(t, err)
	require.NotNil(t, bet.Payout)
	assert.True(t, bet.Payout.Equal(res.Payout))
}

func TestVerifyReplaysKnownVector(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.svc.Verify(VerifyRequest{
		Game:       "dice",
		ServerSeed: "server",
		ClientSeed: "client",
		Nonce:      1,
		Params:     map[string]any{"target": 50.0, "direction": "over"},
		Wager:      decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Equal(t, "b3eacd33433b31b5252351032c9b3e7a2e7aa7738d5decdf0dd6c62680853c06", got.ServerSeedHash)
	assert.Equal(t, 1.98, got.Multiplier)
	assert.Equal(t, "198", got.Payout.String())
	assert.Equal(t, 53.46, got.Metric)

	_, err = f.svc.Verify(VerifyRequest{Game: "dice", ClientSeed: "client"})
	assert.ErrorIs(t, err, errs.ErrInvalidParameters)
}

func TestRoundsUnavailableWithoutTables(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.CurrentRound("crash")
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Empty(t, f.svc.Tables())
}
