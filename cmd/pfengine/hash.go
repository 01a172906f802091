package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

func newHashCmd() *cobra.Command {
	var generate bool

	cmd := &cobra.Command{
		Use:   "hash [server-seed]",
		Short: "Print the SHA-256 commitment of a server seed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case generate:
				seed, err := engine.NewServerSeed()
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "server_seed: %s\nhash:        %s\n", seed, engine.HashSeed(seed))
			case len(args) == 1:
				fmt.Fprintln(out, engine.HashSeed(args[0]))
			default:
				return fmt.Errorf("pass a server seed or --generate")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a fresh server seed")
	return cmd
}
