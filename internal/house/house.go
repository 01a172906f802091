package house

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/events"
	"github.com/MJE43/pf-bet-engine/internal/games"
	"github.com/MJE43/pf-bet-engine/internal/ledger"
	"github.com/MJE43/pf-bet-engine/internal/logger"
	"github.com/MJE43/pf-bet-engine/internal/policy"
	"github.com/MJE43/pf-bet-engine/internal/rounds"
	"github.com/MJE43/pf-bet-engine/internal/seeds"
	"github.com/MJE43/pf-bet-engine/internal/signing"
	"github.com/MJE43/pf-bet-engine/internal/store"
)

// Catalog resolves game ids to resolvers.
type Catalog interface {
	Get(id string) (games.Resolver, bool)
	Specs() []games.GameSpec
}

// Ledger is the balance surface the house drives.
type Ledger interface {
	PlaceWager(ctx context.Context, req ledger.WagerRequest) (ledger.WagerHandle, error)
	Settle(ctx context.Context, h ledger.WagerHandle, multiplier float64, payout decimal.Decimal, result json.RawMessage) (ledger.Settlement, error)
	Void(ctx context.Context, h ledger.WagerHandle, reason string) (ledger.Settlement, error)
	Adjust(ctx context.Context, betID int64, userID string, amount decimal.Decimal, policy string) (store.Adjustment, decimal.Decimal, error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, reason, actor string) (store.Account, error)
	SetRank(ctx context.Context, userID, rank, actor string) (store.Account, error)
	RecoverPending(ctx context.Context) ([]store.Bet, error)
	Balance(ctx context.Context, userID string) (store.Account, error)
	History(ctx context.Context, userID string, page, perPage int) (*store.BetsPage, error)
	Bet(ctx context.Context, id int64) (store.Bet, error)
}

// Deps wires the house to its collaborators. Rounds, Policy and Events are optional.
type Deps struct {
	Games  Catalog
	Store  *store.Store
	Ledger Ledger
	Seeds  *seeds.Manager
	Rounds *rounds.Manager
	Policy *policy.Engine
	Signer *signing.Signer
	Events events.Publisher
}

// Service sequences single-shot bets (validate, lease, debit, resolve,
// settle) and fronts the round tables, seeds and ledger for the API.
type Service struct {
	games  Catalog
	store  *store.Store
	ledger Ledger
	seeds  *seeds.Manager
	rounds *rounds.Manager
	policy *policy.Engine
	signer *signing.Signer
	pub    events.Publisher
	log    *slog.Logger
}

func New(d Deps) *Service {
	pub := d.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		games:  d.Games,
		store:  d.Store,
		ledger: d.Ledger,
		seeds:  d.Seeds,
		rounds: d.Rounds,
		policy: d.Policy,
		signer: d.Signer,
		pub:    pub,
		log:    logger.With("component", "house"),
	}
}

// BetRequest is a single-shot bet.
type BetRequest struct {
	UserID     string
	Game       string
	Wager      decimal.Decimal
	Params     map[string]any
	ClientSeed string
}

// BetResult carries the outcome plus everything a client needs to verify it
// once the seed is revealed.
type BetResult struct {
	BetID         int64           `json:"betId"`
	Game          string          `json:"game"`
	Wager         decimal.Decimal `json:"wager"`
	Multiplier    float64         `json:"multiplier"`
	Payout        decimal.Decimal `json:"payout"`
	NewBalance    decimal.Decimal `json:"newBalance"`
	Metric        float64         `json:"metric"`
	ResultPayload map[string]any  `json:"resultPayload"`
	SeedID        string          `json:"seedId"`
	SeedHashUsed  string          `json:"seedHashUsed"`
	ClientSeed    string          `json:"clientSeed"`
	Nonce         uint64          `json:"nonce"`
	Bonuses       []policy.Bonus  `json:"bonuses,omitempty"`
	Signature     string          `json:"signature,omitempty"`
	SettledAt     time.Time       `json:"settledAt"`
}

// Games lists the catalog.
func (s *Service) Games() []games.GameSpec { return s.games.Specs() }

func (s *Service) resolver(game string) (games.Resolver, error) {
	res, ok := s.games.Get(game)
	if !ok {
		return nil, errs.Invalid("unknown game %q", game)
	}
	return res, nil
}

// PlaceBet runs one single-shot bet end to end. Every debit ends in exactly
// one settle or void: a resolution failure voids the wager and is reported
// without detail.
func (s *Service) PlaceBet(ctx context.Context, req BetRequest) (BetResult, error) {
	res, err := s.resolver(req.Game)
	if err != nil {
		return BetResult{}, err
	}
	if res.Spec().RoundBased {
		return BetResult{}, errs.New(errs.CodeRoundClosed, "%s is played through rounds, not single bets", req.Game)
	}
	if err := res.Validate(req.Params); err != nil {
		return BetResult{}, err
	}
	if req.ClientSeed == "" {
		return BetResult{}, errs.Invalid("clientSeed is required")
	}

	params, err := json.Marshal(req.Params)
	if err != nil {
		return BetResult{}, errs.Invalid("params are not serializable: %v", err)
	}

	lease, err := s.seeds.Acquire(ctx, req.UserID, req.Game, req.ClientSeed)
	if err != nil {
		return BetResult{}, err
	}
	defer s.seeds.Release(lease)

	handle, err := s.ledger.PlaceWager(ctx, ledger.WagerRequest{
		UserID:         req.UserID,
		Game:           req.Game,
		Amount:         req.Wager,
		SeedID:         lease.SeedID,
		ServerSeedHash: lease.ServerSeedHash,
		ClientSeed:     lease.ClientSeed,
		Nonce:          lease.Nonce,
		Params:         params,
	})
	if err != nil {
		return BetResult{}, err
	}

	outcome, err := resolveSafely(res, lease, req.Wager, req.Params)
	if err != nil {
		return BetResult{}, s.abort(ctx, handle, req.Game, err)
	}

	result, err := json.Marshal(map[string]any{"metric": outcome.Metric, "payload": outcome.Payload})
	if err != nil {
		return BetResult{}, s.abort(ctx, handle, req.Game, err)
	}

	settled, err := s.ledger.Settle(ctx, handle, outcome.Multiplier, outcome.Payout, result)
	if err != nil {
		return BetResult{}, s.abort(ctx, handle, req.Game, err)
	}

	out := BetResult{
		BetID:         handle.BetID,
		Game:          req.Game,
		Wager:         req.Wager,
		Multiplier:    outcome.Multiplier,
		Payout:        outcome.Payout,
		NewBalance:    settled.Balance,
		Metric:        outcome.Metric,
		ResultPayload: outcome.Payload,
		SeedID:        lease.SeedID,
		SeedHashUsed:  lease.ServerSeedHash,
		ClientSeed:    lease.ClientSeed,
		Nonce:         lease.Nonce,
	}
	if settled.Bet.SettledAt != nil {
		out.SettledAt = *settled.Bet.SettledAt
	}

	out.Bonuses, out.NewBalance = s.applyPolicy(ctx, req.UserID, out, settled.Balance)

	if s.signer != nil {
		sig, err := s.signer.Sign(receiptFor(req.UserID, out))
		if err != nil {
			s.log.Error("Failed to sign result", "bet_id", out.BetID, "error", err)
		}
		out.Signature = sig
	}

	s.pub.Publish(events.New(events.TopicBetSettled, req.Game, map[string]any{
		"betId":      out.BetID,
		"userId":     req.UserID,
		"game":       out.Game,
		"wager":      out.Wager,
		"multiplier": out.Multiplier,
		"payout":     out.Payout,
		"seedHash":   out.SeedHashUsed,
		"nonce":      out.Nonce,
	}))
	return out, nil
}

// resolveSafely turns resolver panics and non-finite results into errors.
func resolveSafely(res games.Resolver, lease seeds.Lease, wager decimal.Decimal, params map[string]any) (out games.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panic: %v", r)
		}
	}()

	out, err = res.Resolve(lease.Stream(), wager, params)
	if err != nil {
		return games.Outcome{}, err
	}
	if math.IsNaN(out.Multiplier) || math.IsInf(out.Multiplier, 0) || out.Multiplier < 0 || out.Payout.IsNegative() {
		return games.Outcome{}, fmt.Errorf("resolver returned multiplier %v payout %s", out.Multiplier, out.Payout)
	}
	return out, nil
}

// abort voids the wager and reports a generic resolution failure.
func (s *Service) abort(ctx context.Context, h ledger.WagerHandle, game string, cause error) error {
	s.log.Error("Resolution failed, voiding wager", "game", game, "bet_id", h.BetID, "user", h.UserID, "error", cause)
	if _, err := s.ledger.Void(context.WithoutCancel(ctx), h, "resolution failed"); err != nil {
		s.log.Error("Void after failed resolution also failed", "bet_id", h.BetID, "error", err)
	}
	return errs.Wrap(errs.CodeInvariantViolation, cause, "resolution failed, wager refunded")
}

// applyPolicy credits rank bonuses for a settled bet. Failures are logged and
// never undo the settlement.
func (s *Service) applyPolicy(ctx context.Context, userID string, bet BetResult, balance decimal.Decimal) ([]policy.Bonus, decimal.Decimal) {
	if s.policy == nil {
		return nil, balance
	}

	acct, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		s.log.Warn("Policy skipped, account lookup failed", "bet_id", bet.BetID, "error", err)
		return nil, balance
	}

	var applied []policy.Bonus
	for _, b := range s.policy.Evaluate(ctx, policy.Input{
		Game:       bet.Game,
		Rank:       acct.Rank,
		Wager:      bet.Wager,
		Payout:     bet.Payout,
		Multiplier: bet.Multiplier,
	}) {
		_, newBalance, err := s.ledger.Adjust(ctx, bet.BetID, userID, b.Amount, b.Policy)
		if err != nil {
			s.log.Error("Policy adjustment failed", "bet_id", bet.BetID, "policy", b.Policy, "error", err)
			continue
		}
		balance = newBalance
		applied = append(applied, b)
	}
	return applied, balance
}

// receiptFor covers the settlement and every bonus credited on top of it.
func receiptFor(userID string, r BetResult) signing.Receipt {
	bonus := decimal.Zero
	for _, b := range r.Bonuses {
		bonus = bonus.Add(b.Amount)
	}
	return signing.Receipt{
		BetID:          r.BetID,
		UserID:         userID,
		Game:           r.Game,
		Wager:          r.Wager.String(),
		Multiplier:     r.Multiplier,
		Payout:         r.Payout.String(),
		SeedID:         r.SeedID,
		ServerSeedHash: r.SeedHashUsed,
		ClientSeed:     r.ClientSeed,
		Nonce:          r.Nonce,
		Bonus:          bonus.String(),
		NewBalance:     r.NewBalance.String(),
	}
}

// Recover voids wagers left pending by a previous process.
func (s *Service) Recover(ctx context.Context) (int, error) {
	voided, err := s.ledger.RecoverPending(ctx)
	return len(voided), err
}

// Ready checks the persistent stores.
func (s *Service) Ready(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Ping(ctx)
}
