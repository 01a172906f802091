package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/errs"
)

// InsertAdjustment records a post-settlement policy credit. One row per (bet, policy).
func (s *Store) InsertAdjustment(ctx context.Context, betID int64, userID, policy string, amount decimal.Decimal, now time.Time) (Adjustment, error) {
	now = now.UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO adjustments(bet_id, user_id, policy, amount, created_at)
		VALUES(?, ?, ?, ?, ?)`, betID, userID, policy, amount.String(), now)
	if err != nil {
		if isConstraintErr(err) {
			return Adjustment{}, errs.Wrap(errs.CodeInvariantViolation, err, "policy %s already applied to bet %d", policy, betID)
		}
		return Adjustment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Adjustment{}, err
	}
	return Adjustment{ID: id, BetID: betID, UserID: userID, Policy: policy, Amount: amount, CreatedAt: now}, nil
}

// ListAdjustments returns the adjustments applied to a bet.
func (s *Store) ListAdjustments(ctx context.Context, betID int64) ([]Adjustment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, bet_id, user_id, policy, amount, created_at
		FROM adjustments WHERE bet_id=? ORDER BY id ASC`, betID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Adjustment
	for rows.Next() {
		var a Adjustment
		if err := rows.Scan(&a.ID, &a.BetID, &a.UserID, &a.Policy, &a.Amount, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// InsertCredit records an authorized deposit.
func (s *Store) InsertCredit(ctx context.Context, userID string, amount decimal.Decimal, reason, actor string, now time.Time) (Credit, error) {
	now = now.UTC()
	res, err := s.q.ExecContext(ctx, `
		INSERT INTO credits(user_id, amount, reason, actor, created_at)
		VALUES(?, ?, ?, ?, ?)`, userID, amount.String(), reason, actor, now)
	if err != nil {
		return Credit{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Credit{}, err
	}
	return Credit{ID: id, UserID: userID, Amount: amount, Reason: reason, Actor: actor, CreatedAt: now}, nil
}

// ListCredits returns a user's credits, most recent first.
func (s *Store) ListCredits(ctx context.Context, userID string) ([]Credit, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, amount, reason, actor, created_at
		FROM credits WHERE user_id=? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Credit
	for rows.Next() {
		var c Credit
		if err := rows.Scan(&c.ID, &c.UserID, &c.Amount, &c.Reason, &c.Actor, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
