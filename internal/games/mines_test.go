package games

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

func TestMinesMultiplier(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		mines int
		k     int
		want  float64
	}{
		{"one pick three mines", 25, 3, 1, 25.0 / 22.0},
		{"two picks three mines", 25, 3, 2, (25.0 / 22.0) * (24.0 / 21.0)},
		{"one pick one mine", 25, 1, 1, 25.0 / 24.0},
		{"all safe tiles", 25, 24, 1, 25},
		{"no picks", 25, 3, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MinesMultiplier(tt.n, tt.mines, tt.k)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("MinesMultiplier(%d, %d, %d) = %v, want %v", tt.n, tt.mines, tt.k, got, tt.want)
			}
		})
	}

	if got := MinesMultiplier(25, 3, 1); math.Abs(got-1.1364) > 1e-4 {
		t.Errorf("25/22 = %v, want ≈1.1364", got)
	}
}

func TestMinesPlacesExactMineCount(t *testing.T) {
	game := &MinesGame{}
	params := map[string]any{"mines": 3, "picks": 5, "tiles": []any{0.0, 6.0, 12.0, 18.0, 24.0}}

	wins := 0
	for nonce := uint64(0); nonce < 200; nonce++ {
		out, err := game.Resolve(engine.NewStream("mines-seed", "client", nonce), decimal.NewFromInt(1), params)
		if err != nil {
			t.Fatal(err)
		}

		positions := out.Payload["mine_positions"].([]int)
		if len(positions) != 3 {
			t.Fatalf("nonce %d: %d mines placed, want 3", nonce, len(positions))
		}

		safe := out.Payload["safe_picks"].(int)
		if out.Payload["win"].(bool) {
			wins++
			if safe != 5 {
				t.Fatalf("nonce %d: win with %d safe picks", nonce, safe)
			}
			want := MinesMultiplier(25, 3, 5)
			if math.Abs(out.Multiplier-want) > 1e-9 {
				t.Fatalf("nonce %d: multiplier %v, want %v", nonce, out.Multiplier, want)
			}
			for _, p := range positions {
				for _, tile := range []int{0, 6, 12, 18, 24} {
					if p == tile {
						t.Fatalf("nonce %d: mine under revealed tile %d", nonce, tile)
					}
				}
			}
		} else {
			if out.Multiplier != 0 {
				t.Fatalf("nonce %d: loss with multiplier %v", nonce, out.Multiplier)
			}
			hit := out.Payload["hit_tile"].(int)
			found := false
			for _, p := range positions {
				found = found || p == hit
			}
			if !found {
				t.Fatalf("nonce %d: hit tile %d not in mine positions %v", nonce, hit, positions)
			}
		}
	}

	// P(win) = C(22,5)/C(25,5) ≈ 0.4957; 200 rounds should land well inside (60, 140).
	if wins < 60 || wins > 140 {
		t.Errorf("wins = %d out of 200, far from expected ≈99", wins)
	}
}

func TestTowerMultiplier(t *testing.T) {
	if got := TowerMultiplier(2, 1, 3); got != 8 {
		t.Errorf("hard x3 = %v, want 8", got)
	}
	if got := TowerMultiplier(4, 3, 1); got != 4 {
		t.Errorf("master x1 = %v, want 4", got)
	}

	game := &TowerGame{}
	for nonce := uint64(0); nonce < 50; nonce++ {
		out, err := game.Resolve(engine.NewStream("tower", "client", nonce), decimal.NewFromInt(1), map[string]any{"difficulty": "expert", "levels": 2})
		if err != nil {
			t.Fatal(err)
		}
		rows := out.Payload["bombs"].([][]bool)
		for lvl, row := range rows {
			n := 0
			for _, b := range row {
				if b {
					n++
				}
			}
			if n != 2 {
				t.Fatalf("nonce %d level %d has %d bombs, want 2", nonce, lvl, n)
			}
		}
	}
}
