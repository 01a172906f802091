package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesOnCode(t *testing.T) {
	err := New(CodeDoubleSettlement, "wager %s settled twice", "abc")
	wrapped := fmt.Errorf("settle: %w", err)

	assert.True(t, errors.Is(wrapped, ErrDoubleSettlement))
	assert.False(t, errors.Is(wrapped, ErrInsufficientFunds))
	assert.Equal(t, CodeDoubleSettlement, CodeOf(wrapped))
}

func TestInvariantFamily(t *testing.T) {
	cases := map[Code]bool{
		CodeInvariantViolation:   true,
		CodeDoubleSettlement:     true,
		CodeSeedReuse:            true,
		CodeSeedInUse:            true,
		CodeNegativeBalance:      true,
		CodeInsufficientFunds:    false,
		CodeInvalidParameters:    false,
		CodeRoundAlreadyResolved: false,
	}
	for code, want := range cases {
		t.Run(string(code), func(t *testing.T) {
			assert.Equal(t, want, IsInvariant(New(code, "x")))
		})
	}
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, Code(""), CodeOf(nil))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeInternal, cause, "persist bet")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}
