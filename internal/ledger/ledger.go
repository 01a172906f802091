package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/logger"
	"github.com/MJE43/pf-bet-engine/internal/store"
)

// Options configures wager limits and the balance given to new accounts.
type Options struct {
	InitialBalance decimal.Decimal
	MinWager       decimal.Decimal
	MaxWager       decimal.Decimal
	// MaxRetries bounds optimistic-concurrency retries per operation.
	MaxRetries uint64
	Clock      func() time.Time
}

// Ledger owns every balance mutation. Game code never writes balances directly.
//
// Operations on one user are serialized by a per-user lock; the account
// version stamp catches any writer that bypasses it, and such conflicts are
// retried with exponential backoff.
type Ledger struct {
	store *store.Store
	locks *userLocks
	opts  Options
	log   *slog.Logger
}

// WagerRequest describes a debit and the bet record it opens.
type WagerRequest struct {
	UserID         string
	Game           string
	RoundID        string
	Amount         decimal.Decimal
	SeedID         string
	ServerSeedHash string
	ClientSeed     string
	Nonce          uint64
	Params         json.RawMessage
}

// WagerHandle identifies a debited wager that must be settled or voided exactly once.
type WagerHandle struct {
	ID      uuid.UUID       `json:"id"`
	BetID   int64           `json:"bet_id"`
	UserID  string          `json:"user_id"`
	Amount  decimal.Decimal `json:"amount"`
	Balance decimal.Decimal `json:"balance"`
}

// Settlement is the outcome of a terminal ledger write.
type Settlement struct {
	Bet     store.Bet
	Balance decimal.Decimal
}

func New(st *store.Store, opts Options) *Ledger {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 5
	}
	return &Ledger{
		store: st,
		locks: newUserLocks(),
		opts:  opts,
		log:   logger.With("component", "ledger"),
	}
}

// mutate runs fn in a transaction under the user's lock, retrying version conflicts.
func (l *Ledger) mutate(ctx context.Context, userID string, fn func(tx *store.Tx, acct store.Account) error) error {
	if userID == "" {
		return errs.Invalid("user id is required")
	}

	unlock := l.locks.lock(userID)
	defer unlock()

	backoff := retry.WithMaxRetries(l.opts.MaxRetries, retry.NewExponential(5*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := l.store.WithTx(ctx, func(tx *store.Tx) error {
			acct, err := tx.EnsureAccount(ctx, userID, l.opts.InitialBalance, l.opts.Clock())
			if err != nil {
				return err
			}
			return fn(tx, acct)
		})
		if errors.Is(err, store.ErrVersionConflict) {
			l.log.Debug("Account version conflict, retrying", "user", userID)
			return retry.RetryableError(err)
		}
		return err
	})
}

func checkAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errs.Invalid("%s must be positive, got %s", field, amount)
	}
	if amount.Exponent() < -8 && !amount.Equal(amount.Truncate(8)) {
		return errs.Invalid("%s has more than 8 decimal places", field)
	}
	return nil
}

// PlaceWager debits the wager and opens a pending bet record atomically.
// A debit larger than the balance fails with insufficient_funds and changes nothing.
func (l *Ledger) PlaceWager(ctx context.Context, req WagerRequest) (WagerHandle, error) {
	if err := checkAmount("wager", req.Amount); err != nil {
		return WagerHandle{}, err
	}
	if !l.opts.MinWager.IsZero() && req.Amount.LessThan(l.opts.MinWager) {
		return WagerHandle{}, errs.Invalid("wager %s below minimum %s", req.Amount, l.opts.MinWager)
	}
	if !l.opts.MaxWager.IsZero() && req.Amount.GreaterThan(l.opts.MaxWager) {
		return WagerHandle{}, errs.Invalid("wager %s above maximum %s", req.Amount, l.opts.MaxWager)
	}

	handle := WagerHandle{ID: uuid.New(), UserID: req.UserID, Amount: req.Amount}
	err := l.mutate(ctx, req.UserID, func(tx *store.Tx, acct store.Account) error {
		if acct.Balance.LessThan(req.Amount) {
			return errs.New(errs.CodeInsufficientFunds, "balance %s is less than wager %s", acct.Balance, req.Amount)
		}

		now := l.opts.Clock()
		balance := acct.Balance.Sub(req.Amount)
		if err := tx.UpdateBalance(ctx, req.UserID, balance, acct.Version, now); err != nil {
			return err
		}

		bet := &store.Bet{
			Handle:         handle.ID,
			UserID:         req.UserID,
			Game:           req.Game,
			RoundID:        req.RoundID,
			Wager:          req.Amount,
			SeedID:         req.SeedID,
			ServerSeedHash: req.ServerSeedHash,
			ClientSeed:     req.ClientSeed,
			Nonce:          req.Nonce,
			Params:         req.Params,
			CreatedAt:      now,
		}
		id, err := tx.InsertBet(ctx, bet)
		if err != nil {
			return err
		}

		handle.BetID = id
		handle.Balance = balance
		return nil
	})
	if err != nil {
		return WagerHandle{}, err
	}

	l.log.Debug("Wager placed", "user", req.UserID, "game", req.Game, "bet_id", handle.BetID, "amount", req.Amount.String())
	return handle, nil
}

// Settle credits the payout and finalizes the bet record. A second terminal
// call on the same handle fails with double_settlement.
func (l *Ledger) Settle(ctx context.Context, h WagerHandle, multiplier float64, payout decimal.Decimal, result json.RawMessage) (Settlement, error) {
	if payout.IsNegative() {
		return Settlement{}, errs.Invariant("negative payout %s for wager %s", payout, h.ID)
	}
	return l.finalize(ctx, h, store.Finalization{
		Status:     store.BetSettled,
		Multiplier: multiplier,
		Payout:     payout,
		Result:     result,
	})
}

// Void refunds the original wager. It is the only recovery path for a wager
// that cannot be resolved.
func (l *Ledger) Void(ctx context.Context, h WagerHandle, reason string) (Settlement, error) {
	return l.finalize(ctx, h, store.Finalization{
		Status:     store.BetVoided,
		VoidReason: reason,
	})
}

func (l *Ledger) finalize(ctx context.Context, h WagerHandle, f store.Finalization) (Settlement, error) {
	var out Settlement
	err := l.mutate(ctx, h.UserID, func(tx *store.Tx, acct store.Account) error {
		bet, err := tx.GetBetByHandle(ctx, h.ID)
		if err != nil {
			return err
		}
		if bet.UserID != h.UserID {
			return errs.Invariant("wager %s belongs to %s, not %s", h.ID, bet.UserID, h.UserID)
		}

		credit := f.Payout
		if f.Status == store.BetVoided {
			credit = bet.Wager
			f.Payout = bet.Wager
			f.Multiplier = 1
		}

		f.At = l.opts.Clock()
		if err := tx.FinalizeBet(ctx, h.ID, f); err != nil {
			if errors.Is(err, store.ErrNotPending) {
				return errs.New(errs.CodeDoubleSettlement, "wager %s already %s", h.ID, bet.Status)
			}
			return err
		}

		balance := acct.Balance.Add(credit)
		if credit.IsPositive() {
			if err := tx.UpdateBalance(ctx, h.UserID, balance, acct.Version, f.At); err != nil {
				return err
			}
		}

		out.Bet, err = tx.GetBetByHandle(ctx, h.ID)
		out.Balance = balance
		return err
	})
	if err != nil {
		if errs.IsInvariant(err) {
			l.log.Error("Ledger invariant violation", "wager", h.ID, "user", h.UserID, "error", err)
		}
		return Settlement{}, err
	}
	return out, nil
}

// Credit adds an authorized deposit and records it.
func (l *Ledger) Credit(ctx context.Context, userID string, amount decimal.Decimal, reason, actor string) (store.Account, error) {
	if err := checkAmount("credit", amount); err != nil {
		return store.Account{}, err
	}

	var out store.Account
	err := l.mutate(ctx, userID, func(tx *store.Tx, acct store.Account) error {
		now := l.opts.Clock()
		if _, err := tx.InsertCredit(ctx, userID, amount, reason, actor, now); err != nil {
			return err
		}
		if err := tx.UpdateBalance(ctx, userID, acct.Balance.Add(amount), acct.Version, now); err != nil {
			return err
		}
		var err error
		out, err = tx.GetAccount(ctx, userID)
		return err
	})
	if err != nil {
		return store.Account{}, err
	}

	l.log.Info("Account credited", "user", userID, "amount", amount.String(), "actor", actor)
	return out, nil
}

// SetRank changes an account's rank, which drives post-settlement policies.
func (l *Ledger) SetRank(ctx context.Context, userID, rank, actor string) (store.Account, error) {
	if rank == "" {
		return store.Account{}, errs.Invalid("rank is required")
	}

	var out store.Account
	err := l.mutate(ctx, userID, func(tx *store.Tx, acct store.Account) error {
		if err := tx.SetRank(ctx, userID, rank, actor, acct.Version, l.opts.Clock()); err != nil {
			return err
		}
		var err error
		out, err = tx.GetAccount(ctx, userID)
		return err
	})
	if err != nil {
		return store.Account{}, err
	}

	l.log.Info("Account rank changed", "user", userID, "rank", rank, "actor", actor)
	return out, nil
}

// Adjust credits a post-settlement policy bonus with its own audit row.
func (l *Ledger) Adjust(ctx context.Context, betID int64, userID string, amount decimal.Decimal, policy string) (store.Adjustment, decimal.Decimal, error) {
	if err := checkAmount("adjustment", amount); err != nil {
		return store.Adjustment{}, decimal.Zero, err
	}

	var (
		adj     store.Adjustment
		balance decimal.Decimal
	)
	err := l.mutate(ctx, userID, func(tx *store.Tx, acct store.Account) error {
		bet, err := tx.GetBet(ctx, betID)
		if err != nil {
			return err
		}
		if bet.UserID != userID || bet.Status != store.BetSettled {
			return errs.Invariant("adjustment on bet %d (%s, %s) for %s", betID, bet.UserID, bet.Status, userID)
		}

		now := l.opts.Clock()
		if adj, err = tx.InsertAdjustment(ctx, betID, userID, policy, amount, now); err != nil {
			return err
		}
		balance = acct.Balance.Add(amount)
		return tx.UpdateBalance(ctx, userID, balance, acct.Version, now)
	})
	if err != nil {
		return store.Adjustment{}, decimal.Zero, err
	}
	return adj, balance, nil
}

// RecoverPending voids every pending wager. Run once at startup, before any
// table or bet handler is live.
func (l *Ledger) RecoverPending(ctx context.Context) ([]store.Bet, error) {
	pending, err := l.store.PendingBets(ctx)
	if err != nil {
		return nil, err
	}

	voided := make([]store.Bet, 0, len(pending))
	for _, b := range pending {
		s, err := l.Void(ctx, WagerHandle{ID: b.Handle, BetID: b.ID, UserID: b.UserID, Amount: b.Wager}, "recovered after restart")
		if err != nil {
			return voided, err
		}
		voided = append(voided, s.Bet)
	}

	if len(voided) > 0 {
		l.log.Warn("Voided pending wagers from a previous run", "count", len(voided))
	}
	return voided, nil
}

// Balance returns the account, creating it on first sight.
func (l *Ledger) Balance(ctx context.Context, userID string) (store.Account, error) {
	if userID == "" {
		return store.Account{}, errs.Invalid("user id is required")
	}
	return l.store.EnsureAccount(ctx, userID, l.opts.InitialBalance, l.opts.Clock())
}

// History returns the user's bet records, most recent first.
func (l *Ledger) History(ctx context.Context, userID string, page, perPage int) (*store.BetsPage, error) {
	return l.store.ListBets(ctx, userID, page, perPage)
}

// Bet returns a bet record by id.
func (l *Ledger) Bet(ctx context.Context, id int64) (store.Bet, error) {
	return l.store.GetBet(ctx, id)
}
