package house

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/rounds"
	"github.com/MJE43/pf-bet-engine/internal/seeds"
	"github.com/MJE43/pf-bet-engine/internal/store"
)

// FairnessView is the client-facing replay material for a seed.
type FairnessView struct {
	SeedID         string       `json:"seedId"`
	ServerSeedHash string       `json:"serverSeedHash"`
	ServerSeed     *string      `json:"serverSeed"`
	ClientSeed     string       `json:"clientSeed"`
	Nonce          uint64       `json:"nonce"`
	FirstNonce     uint64       `json:"firstNonce"`
	Status         seeds.Status `json:"status"`
}

// Fairness returns the seed's commitment and, once retired, the seed itself.
func (s *Service) Fairness(ctx context.Context, seedID string) (FairnessView, error) {
	seed, err := s.seeds.Fairness(ctx, seedID)
	if err != nil {
		return FairnessView{}, err
	}
	return FairnessView{
		SeedID:         seed.ID,
		ServerSeedHash: seed.ServerSeedHash,
		ServerSeed:     seed.ServerSeed,
		ClientSeed:     seed.ClientSeed,
		Nonce:          seed.Nonce,
		FirstNonce:     seed.FirstNonce,
		Status:         seed.Status,
	}, nil
}

// RotateResult pairs the revealed previous seed with the new commitment.
type RotateResult struct {
	Previous *seeds.Seed `json:"previous,omitempty"`
	Next     seeds.Seed  `json:"next"`
}

// Rotate retires the user's seed for a game and commits a fresh one.
func (s *Service) Rotate(ctx context.Context, userID, game, clientSeed string) (RotateResult, error) {
	res, err := s.resolver(game)
	if err != nil {
		return RotateResult{}, err
	}
	if res.Spec().RoundBased {
		return RotateResult{}, errs.Invalid("%s seeds rotate every round", game)
	}
	prev, next, err := s.seeds.Rotate(ctx, userID, game, clientSeed)
	if err != nil {
		return RotateResult{}, err
	}
	return RotateResult{Previous: prev, Next: next}, nil
}

func (s *Service) requireRounds() error {
	if s.rounds == nil {
		return errs.New(errs.CodeNotFound, "no round tables configured")
	}
	return nil
}

// Tables lists the crash table ids.
func (s *Service) Tables() []string {
	if s.rounds == nil {
		return nil
	}
	return s.rounds.Tables()
}

func (s *Service) CurrentRound(table string) (rounds.RoundView, error) {
	if err := s.requireRounds(); err != nil {
		return rounds.RoundView{}, err
	}
	t, err := s.rounds.Table(table)
	if err != nil {
		return rounds.RoundView{}, err
	}
	v, ok := t.Current()
	if !ok {
		return rounds.RoundView{}, errs.New(errs.CodeNotFound, "table %s has no round yet", table)
	}
	return v, nil
}

func (s *Service) JoinRound(ctx context.Context, table, userID string, wager decimal.Decimal, autoCashout *float64) (rounds.ParticipantView, rounds.RoundView, error) {
	if err := s.requireRounds(); err != nil {
		return rounds.ParticipantView{}, rounds.RoundView{}, err
	}
	return s.rounds.Join(ctx, table, userID, wager, autoCashout)
}

func (s *Service) Cashout(ctx context.Context, roundID, userID string) (rounds.CashoutResult, error) {
	if err := s.requireRounds(); err != nil {
		return rounds.CashoutResult{}, err
	}
	return s.rounds.Cashout(ctx, roundID, userID, time.Time{})
}

func (s *Service) SetAutoCashout(roundID, userID string, target *float64) error {
	if err := s.requireRounds(); err != nil {
		return err
	}
	return s.rounds.SetAutoCashout(roundID, userID, target)
}

func (s *Service) Balance(ctx context.Context, userID string) (store.Account, error) {
	return s.ledger.Balance(ctx, userID)
}

func (s *Service) History(ctx context.Context, userID string, page, perPage int) (*store.BetsPage, error) {
	if userID == "" {
		return nil, errs.Invalid("user id is required")
	}
	return s.ledger.History(ctx, userID, page, perPage)
}

// Credit is an admin deposit.
func (s *Service) Credit(ctx context.Context, userID string, amount decimal.Decimal, reason, actor string) (store.Account, error) {
	return s.ledger.Credit(ctx, userID, amount, reason, actor)
}

// SetRank is an admin rank change.
func (s *Service) SetRank(ctx context.Context, userID, rank, actor string) (store.Account, error) {
	return s.ledger.SetRank(ctx, userID, rank, actor)
}
