package board

import "fmt"

type Kind uint8

const (
	KindPit Kind = iota
	KindTreasure
	KindSurvivor
	KindPup
	KindWumpus
	KindAgent
)

func (k Kind) String() string {
	switch k {
	case KindPit:
		return "pit"
	case KindTreasure:
		return "treasure"
	case KindSurvivor:
		return "survivor"
	case KindPup:
		return "pup"
	case KindWumpus:
		return "wumpus"
	case KindAgent:
		return "agent"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for c := KindPit; c <= KindAgent; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("board: unknown kind %q", b)
}

// Element is any placeable board entity. Which fields are meaningful depends
// on Kind: Name for survivors, pups, the Wumpus and the agent; Value for
// treasures, survivors and the Wumpus; Arrows and Score for the agent only.
//
// Fields may be read freely. Mutations of a placed element go through the
// owning Board so that each one emits its event.
type Element struct {
	Kind   Kind     `json:"kind"`
	Pos    Position `json:"pos"`
	Name   string   `json:"name,omitempty"`
	Value  int      `json:"value,omitempty"`
	Alive  bool     `json:"alive"`
	Arrows int      `json:"arrows,omitempty"`
	Score  int      `json:"score,omitempty"`

	// Index is the slot within the element's kind list.
	Index int `json:"index"`
}

func NewPit(p Position) *Element { return &Element{Kind: KindPit, Pos: p, Alive: true} }

func NewTreasure(p Position, value int) *Element {
	return &Element{Kind: KindTreasure, Pos: p, Value: value, Alive: true}
}

func NewSurvivor(p Position, name string, value int) *Element {
	return &Element{Kind: KindSurvivor, Pos: p, Name: name, Value: value, Alive: true}
}

func NewPup(p Position, name string) *Element {
	return &Element{Kind: KindPup, Pos: p, Name: name, Alive: true}
}

func NewWumpus(p Position, name string, value int) *Element {
	return &Element{Kind: KindWumpus, Pos: p, Name: name, Value: value, Alive: true}
}

func NewAgent(p Position, name string) *Element {
	return &Element{Kind: KindAgent, Pos: p, Name: name, Alive: true, Arrows: 1}
}

// OccupiesCell reports whether e blocks other placements while alive.
// The agent never does.
func (e *Element) OccupiesCell() bool { return e.Kind != KindAgent }

func (e *Element) IsAlive() bool { return e.Alive }

func (e *Element) IsMobile() bool { return e.Kind == KindAgent || e.Kind == KindPup }

// Label is the name used in narration; unnamed kinds fall back to the kind.
func (e *Element) Label() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Kind.String()
}
