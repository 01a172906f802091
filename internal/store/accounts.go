package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/errs"
)

const accountColumns = `user_id, balance, rank, version, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (Account, error) {
	var a Account
	err := row.Scan(&a.UserID, &a.Balance, &a.Rank, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

// GetAccount returns the account or a not_found error.
func (s *Store) GetAccount(ctx context.Context, userID string) (Account, error) {
	a, err := scanAccount(s.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id=?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, errs.New(errs.CodeNotFound, "account %s not found", userID)
	}
	return a, err
}

// EnsureAccount returns the account, creating it with the initial balance if missing.
func (s *Store) EnsureAccount(ctx context.Context, userID string, initial decimal.Decimal, now time.Time) (Account, error) {
	now = now.UTC()
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO accounts(user_id, balance, rank, version, created_at, updated_at)
		VALUES(?, ?, ?, 0, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, initial.String(), DefaultRank, now, now)
	if err != nil {
		return Account{}, err
	}
	return s.GetAccount(ctx, userID)
}

// UpdateBalance writes a new balance if the row is still at expectedVersion,
// bumping the version. A stale version returns ErrVersionConflict.
func (s *Store) UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal, expectedVersion int64, now time.Time) error {
	if balance.IsNegative() {
		return errs.New(errs.CodeNegativeBalance, "balance for %s would become %s", userID, balance)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE accounts SET balance=?, version=version+1, updated_at=?
		WHERE user_id=? AND version=?`,
		balance.String(), now.UTC(), userID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

// SetRank changes the account rank and records the change.
func (s *Store) SetRank(ctx context.Context, userID, rank, actor string, expectedVersion int64, now time.Time) error {
	now = now.UTC()

	var old string
	if err := s.q.QueryRowContext(ctx, `SELECT rank FROM accounts WHERE user_id=?`, userID).Scan(&old); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errs.New(errs.CodeNotFound, "account %s not found", userID)
		}
		return err
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE accounts SET rank=?, version=version+1, updated_at=?
		WHERE user_id=? AND version=?`,
		rank, now, userID, expectedVersion)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO rank_changes(user_id, old_rank, new_rank, actor, created_at)
		VALUES(?, ?, ?, ?, ?)`, userID, old, rank, actor, now)
	return err
}
