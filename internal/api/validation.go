package api

import (
	"fmt"
	"unicode/utf8"
)

const (
	maxClientSeedLen = 128
	maxReasonLen     = 256
	maxRankLen       = 64
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalidField(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func validateClientSeed(seed string) error {
	if seed == "" {
		return invalidField("clientSeed", "clientSeed is required")
	}
	if utf8.RuneCountInString(seed) > maxClientSeedLen {
		return invalidField("clientSeed", "clientSeed is longer than %d characters", maxClientSeedLen)
	}
	return nil
}

// ValidateBetRequest checks shape only; game parameters and wager bounds are
// checked by the resolver and the ledger.
func ValidateBetRequest(req *BetRequest) error {
	if req.Game == "" {
		return invalidField("game", "game is required")
	}
	if !req.Wager.IsPositive() {
		return invalidField("wager", "wager must be positive")
	}
	return validateClientSeed(req.ClientSeed)
}

func ValidateRotateRequest(req *RotateRequest) error {
	if req.Game == "" {
		return invalidField("game", "game is required")
	}
	return validateClientSeed(req.ClientSeed)
}

func ValidateJoinRequest(req *JoinRequest) error {
	if !req.Wager.IsPositive() {
		return invalidField("wager", "wager must be positive")
	}
	return nil
}

func ValidateCreditRequest(req *CreditRequest) error {
	if !req.Amount.IsPositive() {
		return invalidField("amount", "amount must be positive")
	}
	if utf8.RuneCountInString(req.Reason) > maxReasonLen {
		return invalidField("reason", "reason is longer than %d characters", maxReasonLen)
	}
	return nil
}

func ValidateRankRequest(req *RankRequest) error {
	if req.Rank == "" {
		return invalidField("rank", "rank is required")
	}
	if utf8.RuneCountInString(req.Rank) > maxRankLen {
		return invalidField("rank", "rank is longer than %d characters", maxRankLen)
	}
	return nil
}
