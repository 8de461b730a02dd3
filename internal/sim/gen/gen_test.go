package gen

import (
	"errors"
	"math/rand"
	"strconv"
	"testing"

	"wumpusworld/internal/sim/board"
)

func TestGenerate_ValidBoards(t *testing.T) {
	configs := []Config{
		DefaultConfig(),
		{Side: 5, PitProbability: 10, Treasures: 1, Survivors: 1, Pups: 1},
		{Side: 5, PitProbability: 40, Treasures: 5, Survivors: 5, Pups: 5},
		{Side: 15, PitProbability: 25, Treasures: 5, Survivors: 5, Pups: 5, RandomStart: true},
		{Side: 8, PitProbability: 25, Treasures: 2, Survivors: 3, Pups: 4, RandomStart: true},
	}
	for ci, cfg := range configs {
		for seed := int64(1); seed <= 20; seed++ {
			b, err := Generate(cfg, rand.New(rand.NewSource(seed)))
			if err != nil {
				t.Fatalf("config %d seed %d: %v", ci, seed, err)
			}
			checkBoard(t, b, cfg)
		}
	}
}

func checkBoard(t *testing.T, b *board.Board, cfg Config) {
	t.Helper()
	if !Solvable(b) {
		t.Fatalf("generated board not solvable")
	}
	if b.Side() != cfg.Side {
		t.Fatalf("side=%d want %d", b.Side(), cfg.Side)
	}
	if len(b.Treasures()) != cfg.Treasures || len(b.Survivors()) != cfg.Survivors || len(b.Pups()) != cfg.Pups {
		t.Fatalf("counts t=%d s=%d p=%d", len(b.Treasures()), len(b.Survivors()), len(b.Pups()))
	}
	wumpi := 0
	seen := map[board.Position]bool{}
	for _, e := range b.Elements() {
		if e.Kind == board.KindWumpus {
			wumpi++
			if e.Value < 300 || e.Value > 500 || e.Value%50 != 0 {
				t.Fatalf("wumpus value %d", e.Value)
			}
		}
		if seen[e.Pos] {
			t.Fatalf("two alive elements at %v", e.Pos)
		}
		seen[e.Pos] = true
	}
	if wumpi != 1 || b.Wumpus() == nil {
		t.Fatalf("wumpus count=%d", wumpi)
	}
	a := b.Agent()
	if a == nil || a.Score != 0 || a.Arrows != 1 || !a.Alive {
		t.Fatalf("agent=%+v", a)
	}
	if !cfg.RandomStart && a.Pos != board.Pos(0, 0) {
		t.Fatalf("agent start=%v want 0,0", a.Pos)
	}
	if e := b.At(a.Pos); e != nil && e.Kind == board.KindPit {
		t.Fatalf("agent starts on a pit")
	}
	for i, tr := range b.Treasures() {
		if tr.Value != 100+50*i {
			t.Fatalf("treasure %d value=%d", i, tr.Value)
		}
	}
	for i, s := range b.Survivors() {
		if want := "survivor n. " + strconv.Itoa(i+1); s.Name != want {
			t.Fatalf("survivor name=%q want %q", s.Name, want)
		}
		if s.Value < 50 || s.Value > 300 || s.Value%50 != 0 {
			t.Fatalf("survivor value %d", s.Value)
		}
	}
	for i, p := range b.Pups() {
		if want := "pup n. " + strconv.Itoa(i+1); p.Name != want {
			t.Fatalf("pup name=%q want %q", p.Name, want)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a, err := Generate(DefaultConfig(), rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, err := Generate(DefaultConfig(), rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("same seed produced different boards")
	}
}

func TestConfigValidate(t *testing.T) {
	base := DefaultConfig()
	bad := []func(c *Config){
		func(c *Config) { c.Side = 4 },
		func(c *Config) { c.Side = 16 },
		func(c *Config) { c.PitProbability = 9 },
		func(c *Config) { c.PitProbability = 41 },
		func(c *Config) { c.Treasures = 0 },
		func(c *Config) { c.Survivors = 6 },
		func(c *Config) { c.Pups = 0 },
		func(c *Config) { c.AgentName = "a:b" },
		func(c *Config) { c.AgentName = " Link" },
		func(c *Config) { c.WumpusName = "Ganon " },
	}
	for i, mut := range bad {
		c := base
		mut(&c)
		if _, err := Generate(c, rand.New(rand.NewSource(1))); !errors.Is(err, ErrInvalidConfiguration) {
			t.Fatalf("case %d: err=%v, want ErrInvalidConfiguration", i, err)
		}
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestSolvable_EnclosedTreasure(t *testing.T) {
	b := board.New(5)
	b.Place(board.NewAgent(board.Pos(0, 0), "Link"))
	// Treasure at (4,4) walled off by pits at (3,4) and (4,3).
	b.Place(board.NewPit(board.Pos(3, 4)))
	b.Place(board.NewPit(board.Pos(4, 3)))
	b.Place(board.NewTreasure(board.Pos(4, 4), 100))
	b.Place(board.NewWumpus(board.Pos(2, 2), "Ganon", 300))
	if Solvable(b) {
		t.Fatalf("expected enclosed treasure to make the board unsolvable")
	}

	open := board.New(5)
	open.Place(board.NewAgent(board.Pos(0, 0), "Link"))
	open.Place(board.NewPit(board.Pos(3, 4)))
	open.Place(board.NewTreasure(board.Pos(4, 4), 100))
	open.Place(board.NewWumpus(board.Pos(2, 2), "Ganon", 300))
	if !Solvable(open) {
		t.Fatalf("expected reachable treasure to be solvable")
	}
}

func TestSolvable_WumpusDoesNotBlock(t *testing.T) {
	b := board.New(5)
	b.Place(board.NewAgent(board.Pos(0, 0), "Link"))
	// The only way to (0,2) passes through the Wumpus at (0,1).
	b.Place(board.NewPit(board.Pos(1, 0)))
	b.Place(board.NewPit(board.Pos(1, 1)))
	b.Place(board.NewPit(board.Pos(1, 2)))
	b.Place(board.NewPit(board.Pos(0, 3)))
	b.Place(board.NewPit(board.Pos(1, 3)))
	b.Place(board.NewWumpus(board.Pos(0, 1), "Ganon", 300))
	b.Place(board.NewTreasure(board.Pos(0, 2), 100))
	if !Solvable(b) {
		t.Fatalf("wumpus should not block traversal")
	}
}
