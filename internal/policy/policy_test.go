package policy

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MJE43/pf-bet-engine/internal/config"
)

func TestEvaluateMatchesRank(t *testing.T) {
	e, err := New([]Rule{
		{Name: "media_bonus", Rank: "Media", Expr: "win ? payout * 0.5 : 0"},
		{Name: "vip_rebate", Rank: "VIP", Expr: "wager * 0.01"},
		{Name: "everyone", Rank: AnyRank, Expr: "game === 'dice' ? 1 : 0"},
	}, time.Second)
	require.NoError(t, err)

	tests := []struct {
		name string
		in   Input
		want map[string]string
	}{
		{
			name: "media win",
			in:   Input{Game: "limbo", Rank: "Media", Wager: decimal.NewFromInt(10), Payout: decimal.NewFromInt(20), Multiplier: 2},
			want: map[string]string{"media_bonus": "10"},
		},
		{
			name: "media loss",
			in:   Input{Game: "limbo", Rank: "Media", Wager: decimal.NewFromInt(10), Payout: decimal.Zero},
			want: map[string]string{},
		},
		{
			name: "vip on dice",
			in:   Input{Game: "dice", Rank: "vip", Wager: decimal.NewFromInt(300), Payout: decimal.Zero},
			want: map[string]string{"vip_rebate": "3", "everyone": "1"},
		},
		{
			name: "member",
			in:   Input{Game: "mines", Rank: "Member", Wager: decimal.NewFromInt(5), Payout: decimal.NewFromInt(5)},
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(map[string]string)
			for _, b := range e.Evaluate(context.Background(), tt.in) {
				got[b.Policy] = b.Amount.String()
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMaxBonusCaps(t *testing.T) {
	e, err := New([]Rule{{Name: "cap", Rank: "VIP", Expr: "payout", MaxBonus: decimal.NewFromInt(50)}}, time.Second)
	require.NoError(t, err)

	bonuses := e.Evaluate(context.Background(), Input{Rank: "VIP", Payout: decimal.NewFromInt(1000)})
	require.Len(t, bonuses, 1)
	assert.Equal(t, "50", bonuses[0].Amount.String())
}

func TestBrokenRulesAreSkipped(t *testing.T) {
	e, err := New([]Rule{
		{Name: "throws", Rank: AnyRank, Expr: "undefinedThing.x"},
		{Name: "nan", Rank: AnyRank, Expr: "0/0"},
		{Name: "spin", Rank: AnyRank, Expr: "while (true) {}"},
		{Name: "no_eval", Rank: AnyRank, Expr: "eval('1')"},
		{Name: "ok", Rank: AnyRank, Expr: "2.5"},
	}, 20*time.Millisecond)
	require.NoError(t, err)

	bonuses := e.Evaluate(context.Background(), Input{Rank: "Member"})
	require.Len(t, bonuses, 1)
	assert.Equal(t, "ok", bonuses[0].Policy)
	assert.Equal(t, "2.5", bonuses[0].Amount.String())
}

func TestNewRejectsBadRules(t *testing.T) {
	_, err := New([]Rule{{Name: "bad", Rank: "VIP", Expr: "payout *"}}, 0)
	assert.Error(t, err)

	_, err = New([]Rule{{Name: "a", Rank: "VIP", Expr: "1"}, {Name: "a", Rank: "VIP", Expr: "2"}}, 0)
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	e, err := FromConfig(config.PolicyConfig{
		Rules:       []config.PolicyRule{{Name: "media_bonus", Rank: "Media", Expr: "payout * 0.5", MaxBonus: "1000"}},
		EvalTimeout: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, e.Rules(), 1)
	assert.Equal(t, "1000", e.Rules()[0].MaxBonus.String())
}
