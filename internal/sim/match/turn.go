package match

import (
	"fmt"
	"strings"

	"github.com/zyedidia/generic/mapset"

	"wumpusworld/internal/sim/board"
)

type Action uint8

const (
	Move Action = iota
	Shoot
)

func (a Action) Valid() bool { return a <= Shoot }

func (a Action) String() string {
	switch a {
	case Move:
		return "MOVE"
	case Shoot:
		return "SHOOT"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

func ParseAction(s string) (Action, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MOVE", "VAI":
		return Move, true
	case "SHOOT", "FRECCIA":
		return Shoot, true
	}
	return 0, false
}

const (
	pupStealGold      = 50
	pupStealArrowPct  = 20
	survivorArrowPct  = 20
	maxPupMoveAttempt = 4
)

// ResolveTurn plays one turn and returns its narration. It cancels any
// pending autoplay wait first. Once the match has ended it does nothing and
// returns "".
//
// Unknown actions or directions are programming errors and panic.
func (m *Match) ResolveTurn(a Action, d board.Direction) string {
	return m.Play(a, d).Log
}

// Play is ResolveTurn with the full result.
func (m *Match) Play(a Action, d board.Direction) TurnResult {
	mustValid(a, d)
	m.manualSeq.Add(1)
	select {
	case m.reset <- struct{}{}:
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(a, d, false)
}

// Replay applies a logged turn without touching autoplay.
func (m *Match) Replay(a Action, d board.Direction, auto bool) TurnResult {
	mustValid(a, d)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(a, d, auto)
}

func mustValid(a Action, d board.Direction) {
	if !a.Valid() {
		panic(fmt.Sprintf("match: unknown action %d", uint8(a)))
	}
	if !d.Valid() {
		panic(fmt.Sprintf("match: unknown direction %d", uint8(d)))
	}
}

func (m *Match) resolveLocked(a Action, d board.Direction, auto bool) TurnResult {
	if !m.activeLocked() {
		return TurnResult{Turn: m.turn, Action: a, Dir: d, Auto: auto}
	}
	var n narration
	switch a {
	case Move:
		m.moveAgent(&n, d)
	case Shoot:
		m.shoot(&n, d)
	}
	if m.wumpus.Alive {
		m.movePups(&n)
	}
	m.turn++

	res := TurnResult{
		Turn:     m.turn,
		Action:   a,
		Dir:      d,
		Auto:     auto,
		Log:      n.String(),
		Events:   m.rec.Drain(),
		Active:   m.activeLocked(),
		Digest:   m.b.Digest(),
		Resolved: true,
	}
	if m.turnLog != nil {
		entry := TurnLogEntry{
			MatchID: m.id,
			Turn:    res.Turn,
			Action:  a.String(),
			Dir:     d.Code(),
			Auto:    auto,
			Log:     res.Log,
			Events:  res.Events,
			Digest:  res.Digest,
		}
		if err := m.turnLog.WriteTurn(entry); err != nil {
			m.log.Printf("match %s: turn log: %v", m.id, err)
		}
	}
	return res
}

func (m *Match) moveAgent(n *narration, d board.Direction) {
	a := m.agent
	n.linef("%s prova a spostarsi a %s.", a.Name, d)
	if err := m.b.Move(a, a.Pos.Add(d)); err != nil {
		n.linef("Le pareti della caverna impediscono a %s di spostarsi a %s.", a.Name, d)
		return
	}
	n.linef("%s si sposta nella casella %d, %d.", a.Name, a.Pos.Row, a.Pos.Col)
	m.resolveAgentCell(n)
}

// resolveAgentCell applies whatever shares the agent's cell.
func (m *Match) resolveAgentCell(n *narration) {
	a := m.agent
	if !a.Alive {
		return
	}
	e := m.b.At(a.Pos)
	if e == nil {
		return
	}
	switch e.Kind {
	case board.KindWumpus:
		n.linef("%s e' stato ucciso dal Wumpus %s.", a.Name, e.Name)
		_ = m.b.Eliminate(a)
	case board.KindPit:
		n.linef("%s e' caduto in una voragine.", a.Name)
		_ = m.b.Eliminate(a)
	case board.KindTreasure:
		n.linef("%s ha trovato un tesoro.", a.Name)
		_ = m.b.Eliminate(e)
		n.linef("Il recupero del tesoro frutta a %s %d monete d'oro.", a.Name, e.Value)
		m.b.AddScore(e.Value)
	case board.KindSurvivor:
		n.linef("%s ha salvato il superstite %s.", a.Name, e.Name)
		_ = m.b.Eliminate(e)
		if a.Arrows == 0 || m.rng.Intn(100) < survivorArrowPct {
			n.linef("%s ricompensa %s con una freccia.", e.Name, a.Name)
			m.b.AddArrows(1)
		} else {
			n.linef("%s ricompensa %s con %d monete d'oro.", e.Name, a.Name, e.Value)
			m.b.AddScore(e.Value)
		}
	case board.KindPup:
		n.linef("%s incontra il cucciolo di Wumpus %s.", a.Name, e.Name)
		m.pupTheft(n, e)
	}
}

func (m *Match) pupTheft(n *narration, pup *board.Element) {
	a := m.agent
	hasGold, hasArrows := a.Score > 0, a.Arrows > 0
	stealArrow := func() {
		n.linef("%s ruba a %s una freccia.", pup.Name, a.Name)
		m.b.AddArrows(-1)
	}
	stealGold := func() {
		n.linef("%s ruba a %s %d monete d'oro.", pup.Name, a.Name, pupStealGold)
		m.b.AddScore(-pupStealGold)
	}
	switch {
	case hasGold && hasArrows:
		if m.rng.Intn(100) < pupStealArrowPct {
			stealArrow()
		} else {
			stealGold()
		}
	case hasArrows:
		stealArrow()
	case hasGold:
		stealGold()
	default:
		n.linef("%s non trova nulla da rubare.", pup.Name)
	}
	n.linef("%s scompare dalla mappa.", pup.Name)
	_ = m.b.Eliminate(pup)
}

func (m *Match) shoot(n *narration, d board.Direction) {
	a := m.agent
	if a.Arrows <= 0 {
		n.linef("%s vorrebbe scagliare una freccia a %s, ma le ha terminate.", a.Name, d)
		return
	}
	n.linef("%s scaglia una freccia a %s.", a.Name, d)
	m.b.AddArrows(-1)
	target := a.Pos.Add(d)
	m.b.FireArrow(target)
	if !target.In(m.b.Side()) {
		n.line("La freccia colpisce le pareti della caverna.")
		return
	}

	e := m.b.At(target)
	if e == nil {
		n.linef("%s non ha colpito nulla.", a.Name)
		return
	}
	switch e.Kind {
	case board.KindWumpus:
		reward := e.Value
		n.linef("%s ha ucciso il Wumpus! L'uccisione di %s frutta a %s una ricompensa di %d monete d'oro.", a.Name, e.Name, a.Name, reward)
		_ = m.b.Eliminate(e)
		m.b.AddScore(reward)
	case board.KindSurvivor:
		n.linef("%s ha ucciso il superstite %s.", a.Name, e.Name)
		_ = m.b.Eliminate(e)
	case board.KindPup:
		n.linef("%s ha ucciso il cucciolo di Wumpus %s.", a.Name, e.Name)
		_ = m.b.Eliminate(e)
	default:
		n.linef("%s non ha colpito nulla.", a.Name)
	}
}

// movePups walks every alive pup one random step. A pup tries distinct
// directions until one leads to an on-board cell with no alive occupant; the
// agent does not count as an occupant, so a pup may land on the agent and rob it.
func (m *Match) movePups(n *narration) {
	for _, pup := range m.pups {
		if !pup.Alive {
			continue
		}
		if !m.stepPup(pup) {
			n.linef("Il cucciolo di Wumpus %s non si muove.", pup.Name)
			continue
		}
		n.linef("Il cucciolo di Wumpus %s si sposta nella casella %d, %d", pup.Name, pup.Pos.Row, pup.Pos.Col)
		if pup.Pos == m.agent.Pos {
			m.resolveAgentCell(n)
		}
	}
}

func (m *Match) stepPup(pup *board.Element) bool {
	tried := mapset.New[board.Direction]()
	for tried.Size() < maxPupMoveAttempt {
		d := board.Directions[m.rng.Intn(len(board.Directions))]
		if tried.Has(d) {
			continue
		}
		tried.Put(d)
		to := pup.Pos.Add(d)
		if !to.In(m.b.Side()) || m.b.At(to) != nil {
			continue
		}
		_ = m.b.Move(pup, to)
		return true
	}
	return false
}

// narration accumulates turn log lines in execution order.
type narration struct {
	lines []string
}

func (n *narration) line(s string) { n.lines = append(n.lines, s) }

func (n *narration) linef(format string, args ...any) {
	n.lines = append(n.lines, fmt.Sprintf(format, args...))
}

func (n *narration) String() string { return strings.Join(n.lines, "\n") }
