package games

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/MJE43/pf-bet-engine/internal/engine"
)

func TestPaytableSelect(t *testing.T) {
	table := Paytable{{Multiplier: 0, Weight: 1}, {Multiplier: 2, Weight: 1}, {Multiplier: 5, Weight: 2}}

	tests := []struct {
		u    float64
		want int
	}{
		{0, 0},
		{0.2499, 0},
		{0.25, 1}, // boundary goes to the next bucket
		{0.4999, 1},
		{0.5, 2},
		{0.9999999, 2},
	}
	for _, tt := range tests {
		if got := table.Select(tt.u); got != tt.want {
			t.Errorf("Select(%v) = %d, want %d", tt.u, got, tt.want)
		}
	}
}

func TestPaytableReturnToPlayer(t *testing.T) {
	const tolerance = 0.0015

	for segments, risks := range wheelPayouts {
		for risk, m := range risks {
			if ev := uniformTable(m).ExpectedMultiplier(); math.Abs(ev-0.99) > tolerance {
				t.Errorf("wheel %d/%s EV = %v", segments, risk, ev)
			}
		}
	}

	plinko := &PlinkoGame{}
	for rows, risks := range plinkoPayouts {
		for risk := range risks {
			table, _, _, err := plinko.table(map[string]any{"rows": rows, "risk": risk})
			if err != nil {
				t.Fatal(err)
			}
			if ev := table.ExpectedMultiplier(); math.Abs(ev-0.99) > tolerance {
				t.Errorf("plinko %d/%s EV = %v", rows, risk, ev)
			}
		}
	}

	if ev := slotsTable.ExpectedMultiplier(); math.Abs(ev-0.99) > 1e-9 {
		t.Errorf("slots EV = %v", ev)
	}
	for name, table := range caseTables {
		if ev := table.ExpectedMultiplier(); math.Abs(ev-0.99) > 1e-9 {
			t.Errorf("case %s EV = %v", name, ev)
		}
	}
}

func TestPlinkoPathEndsInBucket(t *testing.T) {
	game := &PlinkoGame{}
	for nonce := uint64(0); nonce < 100; nonce++ {
		out, err := game.Resolve(engine.NewStream("plinko", "client", nonce), decimal.NewFromInt(1), map[string]any{"rows": 8, "risk": "low"})
		if err != nil {
			t.Fatal(err)
		}
		rights := 0
		for _, d := range out.Payload["directions"].([]string) {
			if d == "right" {
				rights++
			}
		}
		if rights != out.Payload["bucket"].(int) {
			t.Fatalf("nonce %d: path has %d rights, bucket %v", nonce, rights, out.Payload["bucket"])
		}
	}
}

func TestRouletteBets(t *testing.T) {
	game := &RouletteGame{}

	tests := []struct {
		params  map[string]any
		winners int
		pays    float64
	}{
		{map[string]any{"bet": "straight", "number": 17}, 1, 36},
		{map[string]any{"bet": "red"}, 18, 2},
		{map[string]any{"bet": "black"}, 18, 2},
		{map[string]any{"bet": "even"}, 18, 2},
		{map[string]any{"bet": "odd"}, 18, 2},
		{map[string]any{"bet": "low"}, 18, 2},
		{map[string]any{"bet": "high"}, 18, 2},
		{map[string]any{"bet": "dozen", "dozen": 2}, 12, 3},
	}

	for _, tt := range tests {
		_, table, err := game.table(tt.params)
		if err != nil {
			t.Fatal(err)
		}
		winners := 0
		for _, b := range table {
			if b.Multiplier > 0 {
				winners++
				if b.Multiplier != tt.pays {
					t.Errorf("%v pays %v, want %v", tt.params, b.Multiplier, tt.pays)
				}
			}
		}
		if winners != tt.winners {
			t.Errorf("%v has %d winning pockets, want %d", tt.params, winners, tt.winners)
		}
		if table[0].Multiplier != 0 && tt.params["bet"] != "straight" {
			t.Errorf("%v pays on zero", tt.params)
		}
	}
}

func TestSlotsLosingReelsNeverTriple(t *testing.T) {
	game := &SlotsGame{}
	for nonce := uint64(0); nonce < 300; nonce++ {
		out, err := game.Resolve(engine.NewStream("slots", "client", nonce), decimal.NewFromInt(1), nil)
		if err != nil {
			t.Fatal(err)
		}
		reels := out.Payload["reels"].([]string)
		triple := reels[0] == reels[1] && reels[1] == reels[2]
		if (out.Multiplier > 0) != triple {
			t.Fatalf("nonce %d: reels %v with multiplier %v", nonce, reels, out.Multiplier)
		}
	}
}
