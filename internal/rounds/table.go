package rounds

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/events"
	"github.com/MJE43/pf-bet-engine/internal/games"
	"github.com/MJE43/pf-bet-engine/internal/ledger"
	"github.com/MJE43/pf-bet-engine/internal/logger"
	"github.com/MJE43/pf-bet-engine/internal/seeds"
)

const (
	historySize = 50
	// settleRetries bounds attempts to settle a losing wager before it is voided.
	settleRetries = 3
)

// Wallet is the ledger surface a table needs.
type Wallet interface {
	PlaceWager(ctx context.Context, req ledger.WagerRequest) (ledger.WagerHandle, error)
	Settle(ctx context.Context, h ledger.WagerHandle, multiplier float64, payout decimal.Decimal, result json.RawMessage) (ledger.Settlement, error)
	Void(ctx context.Context, h ledger.WagerHandle, reason string) (ledger.Settlement, error)
}

// SeedSource leases round seeds and reveals them after settlement.
type SeedSource interface {
	Acquire(ctx context.Context, owner, table, clientSeed string) (seeds.Lease, error)
	Release(lease seeds.Lease)
	Reveal(ctx context.Context, seedID string) (seeds.Seed, error)
}

type Options struct {
	Table         string
	BettingWindow time.Duration
	CooldownDelay time.Duration
	TickInterval  time.Duration
	ClientSeed    string
	Clock         func() time.Time
}

// Table runs consecutive crash rounds. All state of the current round is
// guarded by mu, so bets, cash-outs and ticks on one table are serialized.
type Table struct {
	opts   Options
	game   *games.GrowthGame
	wallet Wallet
	seeds  SeedSource
	pub    events.Publisher
	log    *slog.Logger

	drawBreakpoint func(*engine.Stream) float64

	mu      sync.Mutex
	current *round
	history []RoundView
	closed  bool
}

func NewTable(game *games.GrowthGame, wallet Wallet, src SeedSource, pub events.Publisher, opts Options) *Table {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 100 * time.Millisecond
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &Table{
		opts:           opts,
		game:           game,
		wallet:         wallet,
		seeds:          src,
		pub:            pub,
		log:            logger.With("component", "rounds", "table", opts.Table),
		drawBreakpoint: game.BreakpointFor,
	}
}

func (t *Table) ID() string { return t.opts.Table }

// Open starts a new round at now. The seed is committed and the breakpoint
// fixed before any bet is accepted.
func (t *Table) Open(ctx context.Context, now time.Time) (RoundView, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return RoundView{}, errs.New(errs.CodeRoundClosed, "table %s is shut down", t.opts.Table)
	}
	if t.current != nil && t.current.phase != PhaseResolved {
		return RoundView{}, errs.Invalid("round %s is still running", t.current.id)
	}
	return t.openLocked(ctx, now)
}

func (t *Table) openLocked(ctx context.Context, now time.Time) (RoundView, error) {
	lease, err := t.seeds.Acquire(ctx, seeds.HouseOwner, t.opts.Table, t.opts.ClientSeed)
	if err != nil {
		return RoundView{}, fmt.Errorf("acquire round seed: %w", err)
	}

	bp := t.drawBreakpoint(lease.Stream())
	startsAt := now.Add(t.opts.BettingWindow)
	r := &round{
		id:           uuid.NewString(),
		phase:        PhaseAccepting,
		openedAt:     now,
		startsAt:     startsAt,
		lease:        lease,
		breakpoint:   bp,
		crashAt:      startsAt.Add(t.game.Curve().TimeTo(bp)),
		participants: make(map[string]*participant),
	}
	t.current = r

	view := t.viewLocked(r, now)
	t.log.Info("Round opened", "round", r.id, "seed_id", lease.SeedID, "hash", logger.SeedTag(lease.ServerSeedHash), "nonce", lease.Nonce)
	t.pub.Publish(events.New(events.TopicRoundOpened, t.opts.Table, view))
	return view, nil
}

// Tick advances the current round to the phase that now implies.
func (t *Table) Tick(ctx context.Context, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	r := t.current
	if r == nil {
		_, err := t.openLocked(ctx, now)
		return err
	}

	switch r.phase {
	case PhaseAccepting:
		if now.Before(r.startsAt) {
			return nil
		}
		r.phase = PhaseActive
		t.log.Debug("Round started", "round", r.id, "participants", len(r.participants))
		t.pub.Publish(events.New(events.TopicRoundStarted, t.opts.Table, t.viewLocked(r, now)))
		fallthrough

	case PhaseActive:
		t.fireAutoCashoutsLocked(ctx, r, now)
		if now.Before(r.crashAt) {
			return nil
		}
		return t.resolveLocked(ctx, r, now)

	case PhaseResolved:
		if r.endedAt != nil && now.Sub(*r.endedAt) < t.opts.CooldownDelay {
			return nil
		}
		_, err := t.openLocked(ctx, now)
		return err
	}
	return nil
}

// fireAutoCashoutsLocked pays every auto-cashout whose target the curve has
// reached. The payout uses the target itself, not the tick's curve value.
func (t *Table) fireAutoCashoutsLocked(ctx context.Context, r *round, now time.Time) {
	elapsed := now.Sub(r.startsAt)
	for _, p := range r.unsettled() {
		if p.autoCashout == nil || *p.autoCashout > r.breakpoint {
			continue
		}
		if t.game.Curve().TimeTo(*p.autoCashout) > elapsed {
			continue
		}
		if _, err := t.cashoutLocked(ctx, r, p, *p.autoCashout, true); err != nil {
			t.log.Error("Auto cash-out failed", "round", r.id, "user", p.userID, "error", err)
		}
	}
}

func (t *Table) cashoutLocked(ctx context.Context, r *round, p *participant, multiplier float64, auto bool) (CashoutResult, error) {
	payout := games.PayoutFor(p.wager, multiplier)
	result, _ := json.Marshal(map[string]any{
		"round_id": r.id,
		"cashout":  multiplier,
		"auto":     auto,
	})

	s, err := t.wallet.Settle(ctx, p.handle, multiplier, payout, result)
	if err != nil {
		return CashoutResult{}, err
	}

	p.settled = true
	p.cashedOutAt = &multiplier
	p.payout = &payout

	res := CashoutResult{
		RoundID:    r.id,
		BetID:      p.handle.BetID,
		Multiplier: multiplier,
		Payout:     payout,
		Balance:    s.Balance,
		Auto:       auto,
	}
	t.pub.Publish(events.New(events.TopicRoundCashout, t.opts.Table, map[string]any{
		"roundId":    r.id,
		"userId":     p.userID,
		"multiplier": multiplier,
		"payout":     payout,
		"auto":       auto,
	}))
	return res, nil
}

// resolveLocked settles every remaining participant at zero, concurrently,
// then reveals the round seed.
func (t *Table) resolveLocked(ctx context.Context, r *round, now time.Time) error {
	result, _ := json.Marshal(map[string]any{
		"round_id":   r.id,
		"breakpoint": r.breakpoint,
	})

	settleCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, p := range r.unsettled() {
		g.Go(func() error {
			return t.settleLost(settleCtx, r, p, result)
		})
	}
	settleErr := g.Wait()
	if settleErr != nil {
		// The seed stays hidden until ledger recovery voids what is left.
		t.log.Error("Round settlement incomplete", "round", r.id, "error", settleErr)
	}

	t.finishLocked(ctx, r, now)
	t.log.Info("Round resolved", "round", r.id, "breakpoint", r.breakpoint, "participants", len(r.participants))
	t.pub.Publish(events.New(events.TopicRoundResolved, t.opts.Table, t.viewLocked(r, now)))
	return settleErr
}

// settleLost settles a participant who did not cash out. A settlement that
// still fails after retries is voided, so the wager never stays pending.
func (t *Table) settleLost(ctx context.Context, r *round, p *participant, result json.RawMessage) error {
	err := withRetry(ctx, func(ctx context.Context) error {
		_, err := t.wallet.Settle(ctx, p.handle, 0, decimal.Zero, result)
		return err
	})
	if err == nil {
		zero := decimal.Zero
		p.payout = &zero
		p.settled = true
		return nil
	}

	t.log.Error("Settlement failed, voiding wager", "round", r.id, "user", p.userID, "bet_id", p.handle.BetID, "error", err)
	verr := withRetry(ctx, func(ctx context.Context) error {
		_, err := t.wallet.Void(ctx, p.handle, "settlement failed")
		return err
	})
	if verr != nil {
		return fmt.Errorf("settle %s: %w (void: %v)", p.userID, err, verr)
	}
	refund := p.wager
	p.payout = &refund
	p.settled = true
	p.voided = true
	return nil
}

// withRetry retries fn on anything but an invariant violation.
func withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := retry.WithMaxRetries(settleRetries, retry.NewExponential(10*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && !errs.IsInvariant(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// finishLocked closes the round, releases its lease and reveals the seed.
// A seed with unsettled bets stays retired but hidden.
func (t *Table) finishLocked(ctx context.Context, r *round, now time.Time) {
	r.phase = PhaseResolved
	r.endedAt = &now

	t.seeds.Release(r.lease)
	if _, err := t.seeds.Reveal(context.WithoutCancel(ctx), r.lease.SeedID); err != nil {
		t.log.Error("Round seed not revealed", "round", r.id, "seed_id", r.lease.SeedID, "error", err)
	}

	t.history = append(t.history, t.viewLocked(r, now))
	if len(t.history) > historySize {
		t.history = t.history[len(t.history)-historySize:]
	}
}

// Join places a wager on the current round. Only one wager per user per round.
func (t *Table) Join(ctx context.Context, userID string, wager decimal.Decimal, autoCashout *float64) (ParticipantView, RoundView, error) {
	if userID == "" {
		return ParticipantView{}, RoundView{}, errs.Invalid("user id is required")
	}
	if autoCashout != nil {
		if err := t.game.ValidateCashout(*autoCashout); err != nil {
			return ParticipantView{}, RoundView{}, err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.opts.Clock()
	r := t.current
	if t.closed || r == nil || r.phase != PhaseAccepting || !now.Before(r.startsAt) {
		return ParticipantView{}, RoundView{}, errs.New(errs.CodeRoundClosed, "table %s is not accepting bets", t.opts.Table)
	}
	if _, ok := r.participant(userID); ok {
		return ParticipantView{}, RoundView{}, errs.Invalid("user %s already joined round %s", userID, r.id)
	}

	params, _ := json.Marshal(map[string]any{"table": t.opts.Table, "auto_cashout": autoCashout})
	handle, err := t.wallet.PlaceWager(ctx, ledger.WagerRequest{
		UserID:         userID,
		Game:           t.game.Spec().ID,
		RoundID:        r.id,
		Amount:         wager,
		SeedID:         r.lease.SeedID,
		ServerSeedHash: r.lease.ServerSeedHash,
		ClientSeed:     r.lease.ClientSeed,
		Nonce:          r.lease.Nonce,
		Params:         params,
	})
	if err != nil {
		return ParticipantView{}, RoundView{}, err
	}

	p := &participant{userID: userID, wager: wager, autoCashout: copyTarget(autoCashout), handle: handle}
	r.participants[userID] = p
	r.order = append(r.order, userID)
	return p.view(), t.viewLocked(r, now), nil
}

// SetAutoCashout sets or clears (target nil) a participant's auto-cashout.
// It is only allowed while the round accepts bets.
func (t *Table) SetAutoCashout(roundID, userID string, target *float64) error {
	if target != nil {
		if err := t.game.ValidateCashout(*target); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.roundLocked(roundID)
	if err != nil {
		return err
	}
	if r.phase != PhaseAccepting || !t.opts.Clock().Before(r.startsAt) {
		return errs.New(errs.CodeRoundClosed, "round %s has started", roundID)
	}
	p, ok := r.participant(userID)
	if !ok {
		return errs.New(errs.CodeNotFound, "user %s has no wager in round %s", userID, roundID)
	}
	p.autoCashout = copyTarget(target)
	return nil
}

func copyTarget(target *float64) *float64 {
	if target == nil {
		return nil
	}
	v := *target
	return &v
}

// Cashout pays the participant at the curve value reached at now. It fails
// with round_already_resolved once the curve has passed the breakpoint, even
// if no tick has observed the crash yet.
func (t *Table) Cashout(ctx context.Context, roundID, userID string, now time.Time) (CashoutResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	r, err := t.roundLocked(roundID)
	if err != nil {
		if t.inHistoryLocked(roundID) {
			return CashoutResult{}, errs.New(errs.CodeRoundAlreadyResolved, "round %s already resolved", roundID)
		}
		return CashoutResult{}, err
	}
	p, ok := r.participant(userID)
	if !ok {
		return CashoutResult{}, errs.New(errs.CodeNotFound, "user %s has no wager in round %s", userID, roundID)
	}

	switch {
	case r.phase == PhaseResolved || !now.Before(r.crashAt):
		return CashoutResult{}, errs.New(errs.CodeRoundAlreadyResolved, "round %s already resolved", roundID)
	case r.phase == PhaseAccepting && now.Before(r.startsAt):
		return CashoutResult{}, errs.Invalid("round %s has not started", roundID)
	case p.settled:
		return CashoutResult{}, errs.Invalid("user %s already cashed out at %.2f", userID, *p.cashedOutAt)
	}

	multiplier := t.game.Curve().Floor(now.Sub(r.startsAt))
	if multiplier > r.breakpoint {
		return CashoutResult{}, errs.New(errs.CodeRoundAlreadyResolved, "round %s already resolved", roundID)
	}
	return t.cashoutLocked(ctx, r, p, multiplier, false)
}

func (t *Table) roundLocked(roundID string) (*round, error) {
	if t.current == nil || t.current.id != roundID {
		return nil, errs.New(errs.CodeNotFound, "round %s not found on table %s", roundID, t.opts.Table)
	}
	return t.current, nil
}

func (t *Table) inHistoryLocked(roundID string) bool {
	for _, v := range t.history {
		if v.ID == roundID {
			return true
		}
	}
	return false
}

// Current returns the public view of the current round.
func (t *Table) Current() (RoundView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return RoundView{}, false
	}
	return t.viewLocked(t.current, t.opts.Clock()), true
}

// Round returns the current or a recently resolved round by id.
func (t *Table) Round(roundID string) (RoundView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil && t.current.id == roundID {
		return t.viewLocked(t.current, t.opts.Clock()), true
	}
	for i := len(t.history) - 1; i >= 0; i-- {
		if t.history[i].ID == roundID {
			return t.history[i], true
		}
	}
	return RoundView{}, false
}

// Run opens rounds and ticks them until ctx is cancelled, then shuts down.
func (t *Table) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.opts.TickInterval)
	defer ticker.Stop()

	for {
		if err := t.Tick(ctx, t.opts.Clock()); err != nil {
			t.log.Error("Round tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return t.Shutdown(context.WithoutCancel(ctx))
		case <-ticker.C:
		}
	}
}

// Shutdown voids every unsettled wager of the open round and stops the table.
func (t *Table) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	r := t.current
	if r == nil || r.phase == PhaseResolved {
		return nil
	}

	var firstErr error
	for _, p := range r.unsettled() {
		if _, err := t.wallet.Void(ctx, p.handle, "round cancelled at shutdown"); err != nil {
			t.log.Error("Void failed", "round", r.id, "user", p.userID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		p.settled = true
		p.voided = true
	}
	r.voided = true
	t.finishLocked(ctx, r, t.opts.Clock())
	t.log.Info("Round voided at shutdown", "round", r.id, "participants", len(r.participants))
	return firstErr
}

func (p *participant) view() ParticipantView {
	return ParticipantView{
		UserID:      p.userID,
		BetID:       p.handle.BetID,
		Wager:       p.wager,
		AutoCashout: p.autoCashout,
		CashedOutAt: p.cashedOutAt,
		Payout:      p.payout,
		Voided:      p.voided,
	}
}

func (t *Table) viewLocked(r *round, now time.Time) RoundView {
	v := RoundView{
		ID:             r.id,
		Table:          t.opts.Table,
		Phase:          r.phase,
		SeedID:         r.lease.SeedID,
		ServerSeedHash: r.lease.ServerSeedHash,
		ClientSeed:     r.lease.ClientSeed,
		Nonce:          r.lease.Nonce,
		OpenedAt:       r.openedAt,
		StartsAt:       r.startsAt,
		EndedAt:        r.endedAt,
		Multiplier:     1,
		Voided:         r.voided,
		Participants:   make([]ParticipantView, 0, len(r.order)),
	}
	switch r.phase {
	case PhaseActive:
		v.Multiplier = min(t.game.Curve().Floor(now.Sub(r.startsAt)), r.breakpoint)
	case PhaseResolved:
		if !r.voided {
			bp := r.breakpoint
			v.Multiplier = bp
			v.Breakpoint = &bp
		}
	}
	for _, id := range r.order {
		v.Participants = append(v.Participants, r.participants[id].view())
	}
	return v
}
