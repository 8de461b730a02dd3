// Package gen builds fresh, solvable boards.
package gen

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"wumpusworld/internal/sim/board"
)

var ErrInvalidConfiguration = errors.New("invalid configuration")

const (
	DefaultSide           = 10
	DefaultPitProbability = 20
	DefaultTreasures      = 3
	DefaultSurvivors      = 2
	DefaultPups           = 2
	DefaultArrows         = 1
	DefaultAgentName      = "Link"
	DefaultWumpusName     = "Ganon"
)

type Config struct {
	Side           int
	PitProbability int // percent
	Treasures      int
	Survivors      int
	Pups           int

	// RandomStart puts the agent on a random cell instead of (0, 0).
	RandomStart bool

	AgentName  string
	WumpusName string
	Arrows     int
}

func DefaultConfig() Config {
	return Config{
		Side:           DefaultSide,
		PitProbability: DefaultPitProbability,
		Treasures:      DefaultTreasures,
		Survivors:      DefaultSurvivors,
		Pups:           DefaultPups,
		AgentName:      DefaultAgentName,
		WumpusName:     DefaultWumpusName,
		Arrows:         DefaultArrows,
	}
}

func (c Config) withDefaults() Config {
	if c.AgentName == "" {
		c.AgentName = DefaultAgentName
	}
	if c.WumpusName == "" {
		c.WumpusName = DefaultWumpusName
	}
	if c.Arrows == 0 {
		c.Arrows = DefaultArrows
	}
	return c
}

func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfiguration, fmt.Sprintf(format, args...))
	}
	if c.Side < board.MinSide || c.Side > board.MaxSide {
		return bad("side must be in [%d,%d], got %d", board.MinSide, board.MaxSide, c.Side)
	}
	if c.PitProbability < 10 || c.PitProbability > 40 {
		return bad("pit probability must be in [10,40], got %d", c.PitProbability)
	}
	for _, f := range []struct {
		name string
		v    int
	}{{"treasures", c.Treasures}, {"survivors", c.Survivors}, {"pups", c.Pups}} {
		if f.v < 1 || f.v > 5 {
			return bad("%s must be in [1,5], got %d", f.name, f.v)
		}
	}
	if c.Arrows < 0 {
		return bad("arrows must be >= 0, got %d", c.Arrows)
	}
	for _, n := range []string{c.AgentName, c.WumpusName} {
		if strings.ContainsAny(n, ":\r\n") {
			return bad("name %q contains ':' or a line break", n)
		}
		if strings.TrimSpace(n) != n {
			return bad("name %q has leading or trailing whitespace", n)
		}
	}
	return nil
}

// Generate lays out a board for cfg, re-rolling the hazard and reward layout
// until every element is reachable from the agent's start cell. The start
// cell is chosen once and kept across retries.
func Generate(cfg Config, rng *rand.Rand) (*board.Board, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := board.Pos(0, 0)
	if cfg.RandomStart {
		start = board.Pos(rng.Intn(cfg.Side), rng.Intn(cfg.Side))
	}
	for {
		b, ok := layout(cfg, start, rng)
		if ok && Solvable(b) {
			return b, nil
		}
	}
}

// layout reports false when the pits leave too few cells for the remaining
// elements; the caller re-rolls instead of sampling forever.
func layout(cfg Config, start board.Position, rng *rand.Rand) (*board.Board, bool) {
	b := board.New(cfg.Side)
	agent := board.NewAgent(start, cfg.AgentName)
	agent.Arrows = cfg.Arrows
	b.Place(agent)
	b.Reserve(start)

	for r := 0; r < cfg.Side; r++ {
		for c := 0; c < cfg.Side; c++ {
			p := board.Pos(r, c)
			if p == start {
				continue
			}
			if rng.Intn(100) < cfg.PitProbability {
				b.Place(board.NewPit(p))
			}
		}
	}

	pits := len(b.Elements())
	if cfg.Side*cfg.Side-1-pits < 1+cfg.Treasures+cfg.Survivors+cfg.Pups {
		return nil, false
	}

	placeRandom(b, rng, func(p board.Position) *board.Element {
		return board.NewWumpus(p, cfg.WumpusName, 300+rng.Intn(5)*50)
	})
	for i := 0; i < cfg.Treasures; i++ {
		value := 100 + 50*i
		placeRandom(b, rng, func(p board.Position) *board.Element { return board.NewTreasure(p, value) })
	}
	for i := 0; i < cfg.Survivors; i++ {
		name := fmt.Sprintf("survivor n. %d", i+1)
		placeRandom(b, rng, func(p board.Position) *board.Element {
			return board.NewSurvivor(p, name, 50+rng.Intn(6)*50)
		})
	}
	for i := 0; i < cfg.Pups; i++ {
		name := fmt.Sprintf("pup n. %d", i+1)
		placeRandom(b, rng, func(p board.Position) *board.Element { return board.NewPup(p, name) })
	}

	b.ClearReservations()
	return b, true
}

// placeRandom samples cells until one is free. The element is built only once
// a free cell is found, so each placement draws its value exactly once.
func placeRandom(b *board.Board, rng *rand.Rand, build func(board.Position) *board.Element) {
	side := b.Side()
	for {
		p := board.Pos(rng.Intn(side), rng.Intn(side))
		if !b.Free(p) {
			continue
		}
		b.Place(build(p))
		return
	}
}
