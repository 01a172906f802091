package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MJE43/pf-bet-engine/internal/api"
	"github.com/MJE43/pf-bet-engine/internal/config"
	"github.com/MJE43/pf-bet-engine/internal/events"
	"github.com/MJE43/pf-bet-engine/internal/games"
	"github.com/MJE43/pf-bet-engine/internal/house"
	"github.com/MJE43/pf-bet-engine/internal/ledger"
	"github.com/MJE43/pf-bet-engine/internal/logger"
	"github.com/MJE43/pf-bet-engine/internal/policy"
	"github.com/MJE43/pf-bet-engine/internal/rounds"
	"github.com/MJE43/pf-bet-engine/internal/seeds"
	"github.com/MJE43/pf-bet-engine/internal/signing"
	"github.com/MJE43/pf-bet-engine/internal/store"
)

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP engine and the crash tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func rulesFrom(cfg *config.Config) games.Rules {
	return games.Rules{
		HouseEdge:         cfg.Fairness.HouseEdge,
		MinWinProbability: cfg.Fairness.MinWinProbability,
		MaxGrowthDuration: cfg.Crash.MaxDuration,
		CrashGrowthRate:   cfg.Crash.GrowthRate,
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := logger.With("component", "serve")

	st, err := store.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sm, err := seeds.Open(seeds.Options{
		Dir:          cfg.Storage.SeedVaultDir,
		InMemory:     cfg.Storage.InMemoryVault,
		NonceCeiling: cfg.Fairness.NonceCeiling,
		Pending:      st,
	})
	if err != nil {
		return fmt.Errorf("open seed vault: %w", err)
	}
	defer sm.Close()

	checked, failed, err := sm.Audit(ctx)
	if err != nil {
		return fmt.Errorf("seed audit: %w", err)
	}
	if len(failed) > 0 {
		return fmt.Errorf("seed audit: %d of %d revealed seeds fail their commitment: %v", len(failed), checked, failed)
	}
	log.Info("Seed audit passed", "revealed", checked)

	l := ledger.New(st, ledger.Options{
		InitialBalance: cfg.Ledger.InitialBalanceAmount(),
		MinWager:       cfg.Ledger.MinWagerAmount(),
		MaxWager:       cfg.Ledger.MaxWagerAmount(),
	})

	pe, err := policy.FromConfig(cfg.Policy)
	if err != nil {
		return fmt.Errorf("load policy rules: %w", err)
	}

	signer, err := signing.LoadOrCreate(signing.NewKeyStore(cfg.Signing.Service, cfg.Signing.FallbackPath), cfg.Signing.Account)
	if err != nil {
		return fmt.Errorf("load signing key: %w", err)
	}

	hub := events.NewHub()
	defer hub.Close()
	pub := events.Multi{hub}
	if cfg.Events.NATSURL != "" {
		emitter, err := events.NewEmitter(cfg.Events.NATSURL, cfg.Events.Subject)
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer emitter.Close()
		pub = append(pub, emitter)
	}

	rules := rulesFrom(cfg)
	var tables []*rounds.Table
	for _, id := range cfg.Crash.Tables {
		tables = append(tables, rounds.NewTable(games.NewCrashGame(rules), l, sm, pub, rounds.Options{
			Table:         id,
			BettingWindow: cfg.Crash.BettingWindow,
			CooldownDelay: cfg.Crash.CooldownDelay,
			TickInterval:  cfg.Crash.TickInterval,
			ClientSeed:    cfg.Crash.ClientSeed,
		}))
	}
	manager := rounds.NewManager(tables...)

	svc := house.New(house.Deps{
		Games:  games.NewRegistry(rules),
		Store:  st,
		Ledger: l,
		Seeds:  sm,
		Rounds: manager,
		Policy: pe,
		Signer: signer,
		Events: pub,
	})

	// Wagers left pending by a crash are refunded before any new bet is taken.
	voided, err := svc.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recover pending wagers: %w", err)
	}
	if voided > 0 {
		log.Warn("Voided wagers left pending by previous run", "count", voided)
	}

	if cfg.Server.GatewayToken == "" {
		log.Warn("No gateway token configured; user endpoints will refuse every request")
	}
	if cfg.Server.AdminToken == "" {
		log.Warn("No admin token configured; admin endpoints are disabled")
	}

	server := api.NewServer(cfg.Server, svc, hub)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return manager.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })

	log.Info("Engine started", "addr", cfg.Server.Addr, "tables", manager.Tables(), "games", len(svc.Games()))
	err = g.Wait()
	log.Info("Engine stopped")
	return err
}
