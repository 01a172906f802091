package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/errs"
)

const betColumns = `id, handle, user_id, game, round_id, wager, multiplier, payout,
	seed_id, server_seed_hash, client_seed, nonce, params, result, status, void_reason,
	created_at, settled_at`

func scanBet(row interface{ Scan(...any) error }) (Bet, error) {
	var (
		b          Bet
		multiplier sql.NullFloat64
		payout     decimal.NullDecimal
		params     string
		result     sql.NullString
		settledAt  sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Handle, &b.UserID, &b.Game, &b.RoundID, &b.Wager, &multiplier, &payout,
		&b.SeedID, &b.ServerSeedHash, &b.ClientSeed, &b.Nonce, &params, &result, &b.Status, &b.VoidReason,
		&b.CreatedAt, &settledAt)
	if err != nil {
		return Bet{}, err
	}

	if multiplier.Valid {
		b.Multiplier = &multiplier.Float64
	}
	if payout.Valid {
		b.Payout = &payout.Decimal
	}
	if params != "" {
		b.Params = json.RawMessage(params)
	}
	if result.Valid {
		b.Result = json.RawMessage(result.String)
	}
	if settledAt.Valid {
		t := settledAt.Time
		b.SettledAt = &t
	}
	return b, nil
}

// InsertBet appends a pending bet and returns its id. Reusing (seed, nonce) for
// the same user is rejected as seed_reuse.
func (s *Store) InsertBet(ctx context.Context, b *Bet) (int64, error) {
	params := "{}"
	if len(b.Params) > 0 {
		params = string(b.Params)
	}

	res, err := s.q.ExecContext(ctx, `
		INSERT INTO bets(handle, user_id, game, round_id, wager, seed_id, server_seed_hash,
			client_seed, nonce, params, status, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Handle.String(), b.UserID, b.Game, b.RoundID, b.Wager.String(), b.SeedID, b.ServerSeedHash,
		b.ClientSeed, b.Nonce, params, BetPending, b.CreatedAt.UTC())
	if err != nil {
		if isConstraintErr(err) {
			return 0, errs.Wrap(errs.CodeSeedReuse, err, "seed %s nonce %d already used by %s", b.SeedID, b.Nonce, b.UserID)
		}
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	b.ID = id
	b.Status = BetPending
	return id, nil
}

// FinalizeBet moves a pending bet to settled or voided. A bet already final
// returns ErrNotPending.
func (s *Store) FinalizeBet(ctx context.Context, handle uuid.UUID, f Finalization) error {
	if f.Status != BetSettled && f.Status != BetVoided {
		return fmt.Errorf("finalize bet: invalid status %q", f.Status)
	}

	var result any
	if len(f.Result) > 0 {
		result = string(f.Result)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE bets SET status=?, multiplier=?, payout=?, result=?, void_reason=?, settled_at=?
		WHERE handle=? AND status='pending'`,
		f.Status, f.Multiplier, f.Payout.String(), result, f.VoidReason, f.At.UTC(), handle.String())
	if err != nil {
		if isImmutableErr(err) {
			return ErrNotPending
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetBetByHandle(ctx, handle); err != nil {
			return err
		}
		return ErrNotPending
	}
	return nil
}

// GetBet returns a bet by id.
func (s *Store) GetBet(ctx context.Context, id int64) (Bet, error) {
	b, err := scanBet(s.q.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Bet{}, errs.New(errs.CodeNotFound, "bet %d not found", id)
	}
	return b, err
}

// GetBetByHandle returns a bet by its wager handle.
func (s *Store) GetBetByHandle(ctx context.Context, handle uuid.UUID) (Bet, error) {
	b, err := scanBet(s.q.QueryRowContext(ctx, `SELECT `+betColumns+` FROM bets WHERE handle=?`, handle.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Bet{}, errs.New(errs.CodeNotFound, "wager %s not found", handle)
	}
	return b, err
}

// ListBets returns a user's bets, most recent first.
func (s *Store) ListBets(ctx context.Context, userID string, page, perPage int) (*BetsPage, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 500 {
		perPage = 50
	}

	var total int
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bets WHERE user_id=?`, userID).Scan(&total); err != nil {
		return nil, fmt.Errorf("count bets: %w", err)
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT `+betColumns+` FROM bets
		WHERE user_id=?
		ORDER BY id DESC
		LIMIT ? OFFSET ?`, userID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}
	defer rows.Close()

	out := &BetsPage{Bets: []Bet{}, TotalCount: total, Page: page, PerPage: perPage}
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out.Bets = append(out.Bets, b)
	}
	out.TotalPages = (total + perPage - 1) / perPage
	return out, rows.Err()
}

// PendingBets returns every bet still awaiting settlement, oldest first.
func (s *Store) PendingBets(ctx context.Context) ([]Bet, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+betColumns+` FROM bets WHERE status='pending' ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CountPending reports pending bets for a seed. A seed may only be revealed at zero.
func (s *Store) CountPending(ctx context.Context, seedID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bets WHERE seed_id=? AND status='pending'`, seedID).Scan(&n)
	return n, err
}
