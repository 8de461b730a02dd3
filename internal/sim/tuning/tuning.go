package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"wumpusworld/internal/persistence/savefile"
	"wumpusworld/internal/sim/gen"
	"wumpusworld/internal/sim/match"
)

type Tuning struct {
	Board    Board    `yaml:"board"`
	Names    Names    `yaml:"names"`
	Agent    Agent    `yaml:"agent"`
	Autoplay Autoplay `yaml:"autoplay"`
	SavePath string   `yaml:"save_path"`
}

type Board struct {
	Side           int  `yaml:"side"`
	PitProbability int  `yaml:"pit_probability"`
	Treasures      int  `yaml:"treasures"`
	Survivors      int  `yaml:"survivors"`
	Pups           int  `yaml:"pups"`
	RandomStart    bool `yaml:"random_start"`
}

type Names struct {
	Agent  string `yaml:"agent"`
	Wumpus string `yaml:"wumpus"`
}

type Agent struct {
	Arrows int `yaml:"arrows"`
}

type Autoplay struct {
	Enabled bool `yaml:"enabled"`
	IdleMs  int  `yaml:"idle_ms"`
}

// Defaults mirrors gen.DefaultConfig and the default autoplay interval.
func Defaults() Tuning {
	c := gen.DefaultConfig()
	return Tuning{
		Board: Board{
			Side:           c.Side,
			PitProbability: c.PitProbability,
			Treasures:      c.Treasures,
			Survivors:      c.Survivors,
			Pups:           c.Pups,
			RandomStart:    c.RandomStart,
		},
		Names:    Names{Agent: c.AgentName, Wumpus: c.WumpusName},
		Agent:    Agent{Arrows: c.Arrows},
		Autoplay: Autoplay{IdleMs: int(match.DefaultAutoplayIdle / time.Millisecond)},
		SavePath: savefile.DefaultPath,
	}
}

// Load reads path over Defaults, so keys missing from the file keep their
// default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if err := t.GenConfig().Validate(); err != nil {
		return err
	}
	if t.Autoplay.IdleMs <= 0 {
		return fmt.Errorf("%w: autoplay.idle_ms must be positive", gen.ErrInvalidConfiguration)
	}
	if t.SavePath == "" {
		return errors.New("save_path is empty")
	}
	return nil
}

func (t Tuning) GenConfig() gen.Config {
	return gen.Config{
		Side:           t.Board.Side,
		PitProbability: t.Board.PitProbability,
		Treasures:      t.Board.Treasures,
		Survivors:      t.Board.Survivors,
		Pups:           t.Board.Pups,
		RandomStart:    t.Board.RandomStart,
		AgentName:      t.Names.Agent,
		WumpusName:     t.Names.Wumpus,
		Arrows:         t.Agent.Arrows,
	}
}

func (t Tuning) AutoplayIdle() time.Duration {
	return time.Duration(t.Autoplay.IdleMs) * time.Millisecond
}
