package main

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/MJE43/pf-bet-engine/internal/games"
	"github.com/MJE43/pf-bet-engine/internal/house"
)

func newVerifyCmd() *cobra.Command {
	var (
		req    house.VerifyRequest
		params string
		wager  string
		edge   float64
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute a bet outcome from revealed seed material",
		Example: `  pfengine verify --game dice --server-seed <seed> --client-seed abc --nonce 7 \
    --params '{"target":50,"direction":"under"}' --wager 10`,
		RunE: func(cmd *cobra.Command, args []string) error {
			initPlainLogger()

			if params != "" {
				if err := json.Unmarshal([]byte(params), &req.Params); err != nil {
					return fmt.Errorf("--params must be a JSON object: %w", err)
				}
			}
			if wager != "" {
				w, err := decimal.NewFromString(wager)
				if err != nil {
					return fmt.Errorf("--wager: %w", err)
				}
				req.Wager = w
			}

			rules := games.DefaultRules()
			if edge > 0 {
				rules.HouseEdge = edge
			}
			svc := house.New(house.Deps{Games: games.NewRegistry(rules)})

			res, err := svc.Verify(req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Game, "game", "", "game id")
	f.StringVar(&req.ServerSeed, "server-seed", "", "revealed server seed")
	f.StringVar(&req.ClientSeed, "client-seed", "", "client seed")
	f.Uint64Var(&req.Nonce, "nonce", 0, "nonce of the bet")
	f.StringVar(&params, "params", "", "game parameters as JSON")
	f.StringVar(&wager, "wager", "", "wager amount (default 1)")
	f.Float64Var(&edge, "house-edge", 0, "house edge factor the bet was played with (default 0.99)")
	_ = cmd.MarkFlagRequired("game")
	_ = cmd.MarkFlagRequired("server-seed")
	return cmd
}
