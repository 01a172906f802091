package rounds

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/ledger"
	"github.com/MJE43/pf-bet-engine/internal/seeds"
)

// Phase is the lifecycle state of a crash round.
type Phase string

const (
	PhaseAccepting Phase = "accepting_bets"
	PhaseActive    Phase = "active"
	PhaseResolved  Phase = "resolved"
)

type participant struct {
	userID      string
	wager       decimal.Decimal
	autoCashout *float64
	cashedOutAt *float64
	payout      *decimal.Decimal
	handle      ledger.WagerHandle
	settled     bool
	voided      bool
}

type round struct {
	id       string
	phase    Phase
	openedAt time.Time
	startsAt time.Time
	endedAt  *time.Time
	voided   bool

	lease      seeds.Lease
	breakpoint float64 // hidden until resolved
	crashAt    time.Time

	participants map[string]*participant
	order        []string
}

// RoundView is the public state of a round. Breakpoint is only set once the
// round has resolved.
type RoundView struct {
	ID             string            `json:"roundId"`
	Table          string            `json:"table"`
	Phase          Phase             `json:"phase"`
	SeedID         string            `json:"seedId"`
	ServerSeedHash string            `json:"serverSeedHash"`
	ClientSeed     string            `json:"clientSeed"`
	Nonce          uint64            `json:"nonce"`
	OpenedAt       time.Time         `json:"openedAt"`
	StartsAt       time.Time         `json:"startsAt"`
	EndedAt        *time.Time        `json:"endedAt,omitempty"`
	Multiplier     float64           `json:"multiplier"`
	Breakpoint     *float64          `json:"breakpoint,omitempty"`
	Voided         bool              `json:"voided,omitempty"`
	Participants   []ParticipantView `json:"participants"`
}

type ParticipantView struct {
	UserID      string           `json:"userId"`
	BetID       int64            `json:"betId"`
	Wager       decimal.Decimal  `json:"wager"`
	AutoCashout *float64         `json:"autoCashout,omitempty"`
	CashedOutAt *float64         `json:"cashedOutAt,omitempty"`
	Payout      *decimal.Decimal `json:"payout,omitempty"`
	Voided      bool             `json:"voided,omitempty"`
}

// CashoutResult is returned to a participant who cashed out.
type CashoutResult struct {
	RoundID    string          `json:"roundId"`
	BetID      int64           `json:"betId"`
	Multiplier float64         `json:"multiplierAtCashout"`
	Payout     decimal.Decimal `json:"payout"`
	Balance    decimal.Decimal `json:"newBalance"`
	Auto       bool            `json:"auto,omitempty"`
}

func (r *round) participant(userID string) (*participant, bool) {
	p, ok := r.participants[userID]
	return p, ok
}

func (r *round) unsettled() []*participant {
	var out []*participant
	for _, id := range r.order {
		if p := r.participants[id]; !p.settled {
			out = append(out, p)
		}
	}
	return out
}
