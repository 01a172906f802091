package api

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/errs"
	"github.com/MJE43/pf-bet-engine/internal/games"
)

// EngineError is the JSON body of every failed request.
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string {
	return e.Message
}

// Error types that have no errs.Code counterpart. Everything else uses the
// code string itself as the type.
const (
	ErrTypeResolutionFailed = "resolution_failed"
	ErrTypeValidation       = "validation_error"
	ErrTypeTimeout          = "timeout"
	ErrTypeRateLimit        = "rate_limit_exceeded"
	ErrTypeInternal         = "internal_error"
	ErrTypeUnavailable      = "service_unavailable"
)

// resolutionFailedMessage is the only text clients ever see for an invariant violation.
const resolutionFailedMessage = "resolution failed, wager refunded"

// ErrorCategory groups error types for logs and the X-Error-Category header.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryFunds      ErrorCategory = "funds"
	CategoryTiming     ErrorCategory = "timing"
	CategoryAuth       ErrorCategory = "auth"
	CategoryTimeout    ErrorCategory = "timeout"
	CategorySystem     ErrorCategory = "system"
)

func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case string(errs.CodeInvalidParameters), string(errs.CodeNotFound), ErrTypeValidation:
		return CategoryValidation
	case string(errs.CodeInsufficientFunds):
		return CategoryFunds
	case string(errs.CodeRoundClosed), string(errs.CodeRoundAlreadyResolved):
		return CategoryTiming
	case string(errs.CodeUnauthorized), ErrTypeRateLimit:
		return CategoryAuth
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// BetRequest is the body of POST /bet. The user comes from X-User-ID.
type BetRequest struct {
	Game       string          `json:"game"`
	Wager      decimal.Decimal `json:"wager"`
	Params     map[string]any  `json:"params,omitempty"`
	ClientSeed string          `json:"clientSeed"`
}

type RotateRequest struct {
	Game       string `json:"game"`
	ClientSeed string `json:"clientSeed"`
}

type JoinRequest struct {
	Wager       decimal.Decimal `json:"wager"`
	AutoCashout *float64        `json:"autoCashout,omitempty"`
}

// CashoutRequest may repeat the user id; it must then match X-User-ID.
type CashoutRequest struct {
	UserID string `json:"userId,omitempty"`
}

type AutoCashoutRequest struct {
	Target *float64 `json:"target"`
}

type CreditRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

type RankRequest struct {
	Rank string `json:"rank"`
}

type GamesResponse struct {
	Games         []games.GameSpec `json:"games"`
	Tables        []string         `json:"tables"`
	EngineVersion string           `json:"engine_version"`
}

type BalanceResponse struct {
	UserID  string          `json:"userId"`
	Balance decimal.Decimal `json:"balance"`
	Rank    string          `json:"rank,omitempty"`
	Version int64           `json:"version"`
}
