package gen

import (
	"github.com/zyedidia/generic/mapset"

	"wumpusworld/internal/sim/board"
)

// Solvable reports whether every alive non-pit element can be reached from
// the agent's cell by orthogonal steps that never enter a pit. Only pits
// block; the agent may walk into anything else.
func Solvable(b *board.Board) bool {
	a := b.Agent()
	if a == nil {
		return false
	}
	visited := mapset.New[board.Position]()
	found := mapset.New[*board.Element]()
	explore(b, a.Pos, visited, found)

	for _, e := range b.Elements() {
		if e.Kind == board.KindPit || !e.Alive {
			continue
		}
		if !found.Has(e) {
			return false
		}
	}
	return true
}

func explore(b *board.Board, p board.Position, visited mapset.Set[board.Position], found mapset.Set[*board.Element]) {
	visited.Put(p)
	if e := b.At(p); e != nil {
		found.Put(e)
	}
	for _, d := range board.Directions {
		n := p.Add(d)
		if !n.In(b.Side()) || visited.Has(n) {
			continue
		}
		if e := b.At(n); e != nil && e.Kind == board.KindPit {
			continue
		}
		explore(b, n, visited, found)
	}
}
