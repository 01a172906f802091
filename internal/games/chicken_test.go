package games

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

func TestChickenMultiplierKeepsHouseEdge(t *testing.T) {
	edge := DefaultRules().HouseEdge

	tests := []struct {
		difficulty string
		lanes      int
		want       float64
	}{
		{"easy", 1, 0.99 / 0.86},
		{"easy", 9, 0.99 / math.Pow(0.86, 9)},
		{"medium", 3, 0.99 / (0.62 * 0.62 * 0.62)},
		{"hard", 1, 3.3},
		{"hard", 9, 0.99 / math.Pow(0.3, 9)},
	}

	for _, tt := range tests {
		p := chickenSurvival[tt.difficulty]
		got := ChickenMultiplier(edge, p, tt.lanes)
		if math.Abs(got-tt.want)/tt.want > 1e-9 {
			t.Errorf("%s/%d: multiplier = %v, want %v", tt.difficulty, tt.lanes, got, tt.want)
		}
		if rtp := math.Pow(p, float64(tt.lanes)) * got; math.Abs(rtp-edge) > 1e-9 {
			t.Errorf("%s/%d: p^k·multiplier = %v, want %v", tt.difficulty, tt.lanes, rtp, edge)
		}
	}
}

func TestChickenRun(t *testing.T) {
	game := &ChickenGame{rules: DefaultRules()}
	wager := decimal.NewFromInt(10)

	tests := []struct {
		difficulty string
		lanes      int
	}{
		{"easy", 1},
		{"easy", 9},
		{"medium", 4},
		{"hard", 2},
	}

	for _, tt := range tests {
		t.Run(tt.difficulty, func(t *testing.T) {
			params := map[string]any{"difficulty": tt.difficulty, "lanes": tt.lanes}
			p := chickenSurvival[tt.difficulty]
			for nonce := uint64(0); nonce < 200; nonce++ {
				stream := engine.NewStream(refServer, refClient, nonce)
				out, err := game.Resolve(stream, wager, params)
				if err != nil {
					t.Fatal(err)
				}

				crossed := out.Payload["lanes_crossed"].(int)
				if crossed > tt.lanes {
					t.Fatalf("nonce %d crossed %d of %d lanes", nonce, crossed, tt.lanes)
				}
				// One draw per lane attempted, none after the run ends.
				draws := min(crossed+1, tt.lanes)
				if stream.Cursor() != uint64(draws*4) {
					t.Fatalf("nonce %d: cursor %d after %d draws", nonce, stream.Cursor(), draws)
				}

				win := out.Payload["win"].(bool)
				if win != (crossed == tt.lanes) {
					t.Fatalf("nonce %d: win=%v with %d/%d lanes", nonce, win, crossed, tt.lanes)
				}
				want := 0.0
				if win {
					want = ChickenMultiplier(0.99, p, tt.lanes)
				}
				if out.Multiplier != want {
					t.Fatalf("nonce %d: multiplier %v, want %v", nonce, out.Multiplier, want)
				}
			}
		})
	}
}

func TestChickenSurvivalRate(t *testing.T) {
	game := &ChickenGame{rules: DefaultRules()}
	params := map[string]any{"difficulty": "easy", "lanes": 1}

	const n = 2000
	wins := 0
	for nonce := uint64(0); nonce < n; nonce++ {
		out, err := game.Resolve(engine.NewStream("seed", "client", nonce), decimal.NewFromInt(1), params)
		if err != nil {
			t.Fatal(err)
		}
		if out.Payload["win"].(bool) {
			wins++
		}
	}
	if rate := float64(wins) / n; math.Abs(rate-0.86) > 0.04 {
		t.Errorf("easy survival rate = %v, want ≈0.86", rate)
	}
}
