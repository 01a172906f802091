package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Fairness FairnessConfig `yaml:"fairness"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Crash    CrashConfig    `yaml:"crash"`
	Policy   PolicyConfig   `yaml:"policy"`
	Signing  SigningConfig  `yaml:"signing"`
	Events   EventsConfig   `yaml:"events"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr           string          `yaml:"addr"`
	ReadTimeout    time.Duration   `yaml:"read_timeout"`
	WriteTimeout   time.Duration   `yaml:"write_timeout"`
	RequestTimeout time.Duration   `yaml:"request_timeout"`
	GatewayToken   string          `yaml:"gateway_token"`
	AdminToken     string          `yaml:"admin_token"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type StorageConfig struct {
	SQLitePath   string `yaml:"sqlite_path"`
	SeedVaultDir string `yaml:"seed_vault_dir"`
	// InMemoryVault keeps seeds in memory only. Intended for tests and local runs.
	InMemoryVault bool `yaml:"in_memory_vault"`
}

type FairnessConfig struct {
	HouseEdge         float64 `yaml:"house_edge"`
	MinWinProbability float64 `yaml:"min_win_probability"`
	NonceCeiling      uint64  `yaml:"nonce_ceiling"`
}

type LedgerConfig struct {
	MinWager       string `yaml:"min_wager"`
	MaxWager       string `yaml:"max_wager"`
	InitialBalance string `yaml:"initial_balance"`
}

type CrashConfig struct {
	Tables        []string      `yaml:"tables"`
	BettingWindow time.Duration `yaml:"betting_window"`
	CooldownDelay time.Duration `yaml:"cooldown_delay"`
	GrowthRate    float64       `yaml:"growth_rate"`
	TickInterval  time.Duration `yaml:"tick_interval"`
	MaxDuration   time.Duration `yaml:"max_duration"`
	ClientSeed    string        `yaml:"client_seed"`
}

type PolicyConfig struct {
	Rules       []PolicyRule  `yaml:"rules"`
	EvalTimeout time.Duration `yaml:"eval_timeout"`
}

type PolicyRule struct {
	Name     string `yaml:"name"`
	Rank     string `yaml:"rank"`
	Expr     string `yaml:"expr"`
	MaxBonus string `yaml:"max_bonus"`
}

type SigningConfig struct {
	Service      string `yaml:"service"`
	Account      string `yaml:"account"`
	FallbackPath string `yaml:"fallback_path"`
}

type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	TimeFormat string `yaml:"time_format"`
}

// Default returns a configuration usable without a file.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, fills defaults, applies PFENGINE_* env overrides and validates.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.RequestTimeout == 0 {
		c.Server.RequestTimeout = 30 * time.Second
	}
	if c.Server.RateLimit.RequestsPerSecond == 0 {
		c.Server.RateLimit.RequestsPerSecond = 20
	}
	if c.Server.RateLimit.BurstSize == 0 {
		c.Server.RateLimit.BurstSize = 40
	}

	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "pfengine.db"
	}
	if c.Storage.SeedVaultDir == "" {
		c.Storage.SeedVaultDir = "seedvault"
	}

	if c.Fairness.HouseEdge == 0 {
		c.Fairness.HouseEdge = 0.99
	}
	if c.Fairness.MinWinProbability == 0 {
		c.Fairness.MinWinProbability = 0.0001
	}
	if c.Fairness.NonceCeiling == 0 {
		c.Fairness.NonceCeiling = 1000
	}

	if c.Ledger.MinWager == "" {
		c.Ledger.MinWager = "0.01"
	}
	if c.Ledger.MaxWager == "" {
		c.Ledger.MaxWager = "100000"
	}
	if c.Ledger.InitialBalance == "" {
		c.Ledger.InitialBalance = "0"
	}

	if len(c.Crash.Tables) == 0 {
		c.Crash.Tables = []string{"crash"}
	}
	if c.Crash.BettingWindow == 0 {
		c.Crash.BettingWindow = 15 * time.Second
	}
	if c.Crash.CooldownDelay == 0 {
		c.Crash.CooldownDelay = 3 * time.Second
	}
	if c.Crash.GrowthRate == 0 {
		c.Crash.GrowthRate = 0.06
	}
	if c.Crash.TickInterval == 0 {
		c.Crash.TickInterval = 100 * time.Millisecond
	}
	if c.Crash.MaxDuration == 0 {
		c.Crash.MaxDuration = 120 * time.Second
	}
	if c.Crash.ClientSeed == "" {
		c.Crash.ClientSeed = "pf-bet-engine/crash"
	}

	if c.Policy.EvalTimeout == 0 {
		c.Policy.EvalTimeout = 50 * time.Millisecond
	}

	if c.Signing.Service == "" {
		c.Signing.Service = "pf-bet-engine"
	}
	if c.Signing.Account == "" {
		c.Signing.Account = "result-signing"
	}

	if c.Events.Subject == "" {
		c.Events.Subject = "pfengine.events"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.TimeFormat == "" {
		c.Log.TimeFormat = time.RFC3339
	}
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("PFENGINE_ADDR", c.Server.Addr)
	c.Server.GatewayToken = getEnv("PFENGINE_GATEWAY_TOKEN", c.Server.GatewayToken)
	c.Server.AdminToken = getEnv("PFENGINE_ADMIN_TOKEN", c.Server.AdminToken)
	c.Storage.SQLitePath = getEnv("PFENGINE_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.SeedVaultDir = getEnv("PFENGINE_SEED_VAULT_DIR", c.Storage.SeedVaultDir)
	c.Events.NATSURL = getEnv("PFENGINE_NATS_URL", c.Events.NATSURL)
	c.Log.Level = getEnv("PFENGINE_LOG_LEVEL", c.Log.Level)
	c.Fairness.NonceCeiling = uint64(getEnvInt("PFENGINE_NONCE_CEILING", int(c.Fairness.NonceCeiling)))
}

// Validate checks ranges and cross-field constraints.
func (c *Config) Validate() error {
	var errs []error

	if c.Fairness.HouseEdge <= 0 || c.Fairness.HouseEdge > 1 {
		errs = append(errs, fmt.Errorf("fairness.house_edge must be in (0, 1], got %v", c.Fairness.HouseEdge))
	}
	if c.Fairness.MinWinProbability <= 0 || c.Fairness.MinWinProbability >= 1 {
		errs = append(errs, fmt.Errorf("fairness.min_win_probability must be in (0, 1), got %v", c.Fairness.MinWinProbability))
	}

	minWager, err := decimal.NewFromString(c.Ledger.MinWager)
	if err != nil || !minWager.IsPositive() {
		errs = append(errs, fmt.Errorf("ledger.min_wager must be a positive decimal, got %q", c.Ledger.MinWager))
	}
	maxWager, err := decimal.NewFromString(c.Ledger.MaxWager)
	if err != nil || maxWager.LessThan(minWager) {
		errs = append(errs, fmt.Errorf("ledger.max_wager must be a decimal >= min_wager, got %q", c.Ledger.MaxWager))
	}
	if initial, err := decimal.NewFromString(c.Ledger.InitialBalance); err != nil || initial.IsNegative() {
		errs = append(errs, fmt.Errorf("ledger.initial_balance must be a non-negative decimal, got %q", c.Ledger.InitialBalance))
	}

	if c.Crash.GrowthRate <= 0 {
		errs = append(errs, fmt.Errorf("crash.growth_rate must be positive"))
	}
	if c.Crash.TickInterval <= 0 || c.Crash.TickInterval > time.Second {
		errs = append(errs, fmt.Errorf("crash.tick_interval must be in (0, 1s]"))
	}
	seen := make(map[string]bool, len(c.Crash.Tables))
	for _, t := range c.Crash.Tables {
		if strings.TrimSpace(t) == "" || seen[t] {
			errs = append(errs, fmt.Errorf("crash.tables contains an empty or duplicate id %q", t))
		}
		seen[t] = true
	}

	for i, r := range c.Policy.Rules {
		if r.Name == "" || r.Rank == "" || r.Expr == "" {
			errs = append(errs, fmt.Errorf("policy.rules[%d]: name, rank and expr are required", i))
		}
		if r.MaxBonus != "" {
			if _, err := decimal.NewFromString(r.MaxBonus); err != nil {
				errs = append(errs, fmt.Errorf("policy.rules[%d].max_bonus: %w", i, err))
			}
		}
	}

	return errors.Join(errs...)
}

// MinWagerAmount returns ledger.min_wager parsed. Call after Validate.
func (c LedgerConfig) MinWagerAmount() decimal.Decimal {
	return decimal.RequireFromString(c.MinWager)
}

// MaxWagerAmount returns ledger.max_wager parsed. Call after Validate.
func (c LedgerConfig) MaxWagerAmount() decimal.Decimal {
	return decimal.RequireFromString(c.MaxWager)
}

// InitialBalanceAmount returns ledger.initial_balance parsed. Call after Validate.
func (c LedgerConfig) InitialBalanceAmount() decimal.Decimal {
	return decimal.RequireFromString(c.InitialBalance)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		return def
	}

	return n
}
