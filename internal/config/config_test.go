package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 0.99, cfg.Fairness.HouseEdge)
	assert.Equal(t, uint64(1000), cfg.Fairness.NonceCeiling)
	assert.Equal(t, 15*time.Second, cfg.Crash.BettingWindow)
	assert.Equal(t, []string{"crash"}, cfg.Crash.Tables)
	assert.Equal(t, "0.01", cfg.Ledger.MinWagerAmount().String())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  addr: "0.0.0.0:9000"
  admin_token: "secret"
fairness:
  house_edge: 0.97
  nonce_ceiling: 50
crash:
  tables: ["crash", "crash-hi"]
  betting_window: 5s
  growth_rate: 0.1
policy:
  rules:
    - name: media_bonus
      rank: Media
      expr: "payout * 0.5"
      max_bonus: "1000"
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
	assert.Equal(t, 0.97, cfg.Fairness.HouseEdge)
	assert.Equal(t, uint64(50), cfg.Fairness.NonceCeiling)
	assert.Equal(t, 5*time.Second, cfg.Crash.BettingWindow)
	assert.Equal(t, []string{"crash", "crash-hi"}, cfg.Crash.Tables)
	require.Len(t, cfg.Policy.Rules, 1)
	assert.Equal(t, "Media", cfg.Policy.Rules[0].Rank)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PFENGINE_ADDR", "127.0.0.1:7777")
	t.Setenv("PFENGINE_NONCE_CEILING", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7777", cfg.Server.Addr)
	assert.Equal(t, uint64(12), cfg.Fairness.NonceCeiling)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"house edge above one", func(c *Config) { c.Fairness.HouseEdge = 1.2 }},
		{"min wager not positive", func(c *Config) { c.Ledger.MinWager = "0" }},
		{"max below min", func(c *Config) { c.Ledger.MaxWager = "0.001" }},
		{"duplicate table", func(c *Config) { c.Crash.Tables = []string{"a", "a"} }},
		{"rule missing expr", func(c *Config) { c.Policy.Rules = []PolicyRule{{Name: "x", Rank: "VIP"}} }},
		{"negative initial balance", func(c *Config) { c.Ledger.InitialBalance = "-5" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
