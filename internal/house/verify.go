package house

import (
	"context"
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/store"
)

// VerifyRequest replays a game from raw seed material.
type VerifyRequest struct {
	Game       string          `json:"game"`
	ServerSeed string          `json:"serverSeed"`
	ClientSeed string          `json:"clientSeed"`
	Nonce      uint64          `json:"nonce"`
	Params     map[string]any  `json:"params"`
	Wager      decimal.Decimal `json:"wager"`
}

type VerifyResult struct {
	Game           string          `json:"game"`
	ServerSeedHash string          `json:"serverSeedHash"`
	Nonce          uint64          `json:"nonce"`
	Multiplier     float64         `json:"multiplier"`
	Payout         decimal.Decimal `json:"payout"`
	Metric         float64         `json:"metric"`
	ResultPayload  map[string]any  `json:"resultPayload"`
}

// Verify recomputes an outcome without touching any state. A zero wager is
// treated as 1 so the payout equals the multiplier.
func (s *Service) Verify(req VerifyRequest) (VerifyResult, error) {
	if req.ServerSeed == "" {
		return VerifyResult{}, errs.Invalid("serverSeed is required")
	}
	res, err := s.resolver(req.Game)
	if err != nil {
		return VerifyResult{}, err
	}
	if err := res.Validate(req.Params); err != nil {
		return VerifyResult{}, err
	}

	wager := req.Wager
	if wager.IsZero() {
		wager = decimal.NewFromInt(1)
	}
	if wager.IsNegative() {
		return VerifyResult{}, errs.Invalid("wager must not be negative")
	}

	out, err := res.Resolve(engine.NewStream(req.ServerSeed, req.ClientSeed, req.Nonce), wager, req.Params)
	if err != nil {
		return VerifyResult{}, err
	}
	return VerifyResult{
		Game:           req.Game,
		ServerSeedHash: engine.HashSeed(req.ServerSeed),
		Nonce:          req.Nonce,
		Multiplier:     out.Multiplier,
		Payout:         out.Payout,
		Metric:         out.Metric,
		ResultPayload:  out.Payload,
	}, nil
}

// Replay is the audit of one stored bet against its revealed seed.
type Replay struct {
	Bet        store.Bet    `json:"bet"`
	Recomputed VerifyResult `json:"recomputed"`
	HashOK     bool         `json:"hashOk"`
	Match      bool         `json:"match"`
}

// ReplayBet recomputes a settled single-shot bet from its revealed seed and
// compares it with the stored record. Round bets replay through the round's
// breakpoint instead and are rejected here.
func (s *Service) ReplayBet(ctx context.Context, betID int64) (Replay, error) {
	bet, err := s.ledger.Bet(ctx, betID)
	if err != nil {
		return Replay{}, err
	}
	if bet.RoundID != "" {
		return Replay{}, errs.Invalid("bet %d belongs to round %s", betID, bet.RoundID)
	}
	if bet.Status != store.BetSettled {
		return Replay{}, errs.Invalid("bet %d is %s", betID, bet.Status)
	}

	seed, err := s.seeds.Fairness(ctx, bet.SeedID)
	if err != nil {
		return Replay{}, err
	}
	if seed.ServerSeed == nil {
		return Replay{}, errs.Invalid("seed %s is still active; rotate it to reveal", bet.SeedID)
	}

	var params map[string]any
	if len(bet.Params) > 0 {
		if err := json.Unmarshal(bet.Params, &params); err != nil {
			return Replay{}, errs.Wrap(errs.CodeInternal, err, "decode params of bet %d", betID)
		}
	}

	got, err := s.Verify(VerifyRequest{
		Game:       bet.Game,
		ServerSeed: *seed.ServerSeed,
		ClientSeed: bet.ClientSeed,
		Nonce:      bet.Nonce,
		Params:     params,
		Wager:      bet.Wager,
	})
	if err != nil {
		return Replay{}, err
	}

	r := Replay{
		Bet:        bet,
		Recomputed: got,
		HashOK:     got.ServerSeedHash == bet.ServerSeedHash,
	}
	if bet.Multiplier != nil && bet.Payout != nil {
		r.Match = r.HashOK && math.Abs(*bet.Multiplier-got.Multiplier) < 1e-9 && bet.Payout.Equal(got.Payout)
	}
	return r, nil
}
