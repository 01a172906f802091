package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/MJE43/pf-bet-engine/internal/api"
	"github.com/MJE43/pf-bet-engine/internal/config"
	"github.com/MJE43/pf-bet-engine/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var debug bool

	root := &cobra.Command{
		Use:           "pfengine",
		Short:         "Provably fair bet engine",
		Version:       fmt.Sprintf("%s (%s, built %s)", api.EngineVersion, api.GitCommit, api.BuildTime),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logs")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		level := logger.ParseLevel(cfg.Log.Level)
		if debug {
			level = slog.LevelDebug
		}
		logger.Init(&logger.Options{Level: level, TimeFormat: cfg.Log.TimeFormat})
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newMigrateCmd(load),
		newVerifyCmd(),
		newHashCmd(),
	)
	return root
}

type loadFunc func() (*config.Config, error)

func initPlainLogger() {
	logger.Init(&logger.Options{Level: slog.LevelWarn, TimeFormat: time.RFC3339})
}
