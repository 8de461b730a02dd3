package board

import (
	"errors"
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"wumpusworld/internal/sim/events"
)

const (
	MinSide = 5
	MaxSide = 15
)

var (
	ErrAlreadyEliminated = errors.New("already eliminated")
	ErrInvalidMove       = errors.New("invalid move")
	ErrOutOfBounds       = errors.New("out of bounds")
)

// Board is the occupancy registry for one match. It owns every element.
type Board struct {
	side int

	agent     *Element
	wumpus    *Element
	treasures []*Element
	survivors []*Element
	pups      []*Element

	// elements is append-only, in placement order. The agent is never in it.
	elements []*Element
	reserved mapset.Set[Position]

	bus *events.Bus
}

func New(side int) *Board {
	return &Board{
		side:     side,
		reserved: mapset.New[Position](),
		bus:      events.NewBus(),
	}
}

func (b *Board) Side() int             { return b.side }
func (b *Board) Bus() *events.Bus      { return b.bus }
func (b *Board) Agent() *Element       { return b.agent }
func (b *Board) Wumpus() *Element      { return b.wumpus }
func (b *Board) Treasures() []*Element { return b.treasures }
func (b *Board) Survivors() []*Element { return b.survivors }
func (b *Board) Pups() []*Element      { return b.pups }

// Elements returns every placed element except the agent, in placement order.
func (b *Board) Elements() []*Element { return b.elements }

func (b *Board) Pits() []*Element {
	var out []*Element
	for _, e := range b.elements {
		if e.Kind == KindPit {
			out = append(out, e)
		}
	}
	return out
}

// Reserve blocks p against placements until ClearReservations.
func (b *Board) Reserve(p Position) { b.reserved.Put(p) }

func (b *Board) ClearReservations() { b.reserved = mapset.New[Position]() }

// Free reports whether p is on the board, unreserved and has no alive occupant.
func (b *Board) Free(p Position) bool {
	return p.In(b.side) && !b.reserved.Has(p) && b.At(p) == nil
}

// Place adds e to the board. An alive element is rejected (false) when its
// cell is off-board, reserved or already held by an alive element. Dead
// elements are always accepted.
//
// Placing the agent or the Wumpus replaces the previous singleton.
func (b *Board) Place(e *Element) bool {
	if e == nil || !e.Pos.In(b.side) {
		return false
	}
	if e.Kind == KindAgent {
		b.agent = e
		return true
	}
	if e.Alive && (b.reserved.Has(e.Pos) || b.At(e.Pos) != nil) {
		return false
	}
	switch e.Kind {
	case KindWumpus:
		b.wumpus = e
	case KindTreasure:
		e.Index = len(b.treasures)
		b.treasures = append(b.treasures, e)
	case KindSurvivor:
		e.Index = len(b.survivors)
		b.survivors = append(b.survivors, e)
	case KindPup:
		e.Index = len(b.pups)
		b.pups = append(b.pups, e)
	case KindPit:
		e.Index = b.countPits()
	}
	b.elements = append(b.elements, e)
	return true
}

func (b *Board) countPits() int {
	n := 0
	for _, e := range b.elements {
		if e.Kind == KindPit {
			n++
		}
	}
	return n
}

// At returns the first alive non-agent element at p, or nil.
func (b *Board) At(p Position) *Element {
	for _, e := range b.elements {
		if e.Alive && e.Pos == p {
			return e
		}
	}
	return nil
}

// Breeze reports whether an orthogonal neighbour of p holds a pit.
func (b *Board) Breeze(p Position) bool {
	return b.neighbourHas(p, func(e *Element) bool { return e.Kind == KindPit })
}

// Stench reports whether an orthogonal neighbour of p holds the alive Wumpus.
func (b *Board) Stench(p Position) bool {
	return b.neighbourHas(p, func(e *Element) bool { return e.Kind == KindWumpus })
}

func (b *Board) neighbourHas(p Position, match func(*Element) bool) bool {
	for _, d := range Directions {
		n := p.Add(d)
		if !n.In(b.side) {
			continue
		}
		if e := b.At(n); e != nil && match(e) {
			return true
		}
	}
	return false
}

// Move steps a mobile element one cell. Off-board destinations return
// ErrOutOfBounds and change nothing. Anything other than a single
// orthogonal step is a caller bug and panics.
func (b *Board) Move(e *Element, to Position) error {
	dr, dc := to.Row-e.Pos.Row, to.Col-e.Pos.Col
	if !e.IsMobile() || abs(dr)+abs(dc) != 1 {
		panic(fmt.Errorf("board: %w: %s from %v to %v", ErrInvalidMove, e.Kind, e.Pos, to))
	}
	if !to.In(b.side) {
		return ErrOutOfBounds
	}
	from := e.Pos
	e.Pos = to
	b.bus.Emit(events.Event{
		Type:    events.Moved,
		Subject: subject(e),
		From:    cell(from),
		To:      cell(to),
	})
	return nil
}

// Eliminate takes e out of play. Eliminating a dead element returns
// ErrAlreadyEliminated and emits nothing.
func (b *Board) Eliminate(e *Element) error {
	if !e.Alive {
		return ErrAlreadyEliminated
	}
	e.Alive = false
	b.bus.Emit(events.Event{Type: events.Eliminated, Subject: subject(e), To: cell(e.Pos)})
	return nil
}

// AddScore changes the agent's gold by delta.
func (b *Board) AddScore(delta int) {
	a := b.agent
	old := a.Score
	a.Score += delta
	b.bus.Emit(events.Event{Type: events.ScoreChanged, Subject: subject(a), Old: old, New: a.Score})
}

// AddArrows changes the agent's arrow count by delta.
func (b *Board) AddArrows(delta int) {
	a := b.agent
	old := a.Arrows
	a.Arrows += delta
	b.bus.Emit(events.Event{Type: events.ArrowCountChanged, Subject: subject(a), Old: old, New: a.Arrows})
}

// FireArrow announces an arrow leaving the agent's cell toward target. The
// target may be off-board.
func (b *Board) FireArrow(target Position) {
	a := b.agent
	b.bus.Emit(events.Event{Type: events.ArrowFired, Subject: subject(a), From: cell(a.Pos), To: cell(target)})
}

func subject(e *Element) events.Subject {
	return events.Subject{Kind: e.Kind.String(), Name: e.Name, Index: e.Index}
}

func cell(p Position) *events.Cell {
	c := events.Cell{p.Row, p.Col}
	return &c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
