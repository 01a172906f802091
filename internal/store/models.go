package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetStatus is the lifecycle state of a bet record.
type BetStatus string

const (
	BetPending BetStatus = "pending"
	BetSettled BetStatus = "settled"
	BetVoided  BetStatus = "voided"
)

// DefaultRank is assigned to new accounts.
const DefaultRank = "Member"

type Account struct {
	UserID    string          `json:"user_id"`
	Balance   decimal.Decimal `json:"balance"`
	Rank      string          `json:"rank"`
	Version   int64           `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Bet is one row of the append-only bet log.
type Bet struct {
	ID             int64            `json:"id"`
	Handle         uuid.UUID        `json:"handle"`
	UserID         string           `json:"user_id"`
	Game           string           `json:"game"`
	RoundID        string           `json:"round_id,omitempty"`
	Wager          decimal.Decimal  `json:"wager"`
	Multiplier     *float64         `json:"multiplier,omitempty"`
	Payout         *decimal.Decimal `json:"payout,omitempty"`
	SeedID         string           `json:"seed_id"`
	ServerSeedHash string           `json:"server_seed_hash"`
	ClientSeed     string           `json:"client_seed"`
	Nonce          uint64           `json:"nonce"`
	Params         json.RawMessage  `json:"params,omitempty"`
	Result         json.RawMessage  `json:"result,omitempty"`
	Status         BetStatus        `json:"status"`
	VoidReason     string           `json:"void_reason,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	SettledAt      *time.Time       `json:"settled_at,omitempty"`
}

// Finalization is the terminal write applied to a pending bet.
type Finalization struct {
	Status     BetStatus
	Multiplier float64
	Payout     decimal.Decimal
	Result     json.RawMessage
	VoidReason string
	At         time.Time
}

type Adjustment struct {
	ID        int64           `json:"id"`
	BetID     int64           `json:"bet_id"`
	UserID    string          `json:"user_id"`
	Policy    string          `json:"policy"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type Credit struct {
	ID        int64           `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
	Actor     string          `json:"actor"`
	CreatedAt time.Time       `json:"created_at"`
}

// BetsPage is a page of bet history, most recent first.
type BetsPage struct {
	Bets       []Bet `json:"bets"`
	TotalCount int   `json:"totalCount"`
	Page       int   `json:"page"`
	PerPage    int   `json:"perPage"`
	TotalPages int   `json:"totalPages"`
}
