// Package match runs turns on a board: the agent acts, the pups react, and
// every outcome is narrated into a per-turn log.
package match

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"wumpusworld/internal/sim/board"
	"wumpusworld/internal/sim/events"
)

// Rand is the randomness a match consumes. *rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

type Options struct {
	// ID defaults to a fresh UUID.
	ID string
	// Seed feeds the turn and autoplay sources when Rand is nil.
	Seed int64
	// Rand overrides the turn source (tests pin it).
	Rand Rand

	Logger  *log.Logger
	TurnLog TurnLogger
}

// TurnLogger receives one entry per resolved turn.
type TurnLogger interface {
	WriteTurn(TurnLogEntry) error
}

type TurnLogEntry struct {
	MatchID string         `json:"match_id"`
	Turn    uint64         `json:"turn"`
	Action  string         `json:"action"`
	Dir     string         `json:"dir"`
	Auto    bool           `json:"auto,omitempty"`
	Log     string         `json:"log"`
	Events  []events.Event `json:"events,omitempty"`
	Digest  string         `json:"digest"`
}

// TurnResult is the outcome of one resolved (or skipped) turn.
type TurnResult struct {
	Turn     uint64
	Action   Action
	Dir      board.Direction
	Auto     bool
	Log      string
	Events   []events.Event
	Active   bool
	Digest   string
	Resolved bool
}

type Match struct {
	id   string
	seed int64
	b    *board.Board

	agent  *board.Element
	wumpus *board.Element
	pups   []*board.Element

	mu   sync.RWMutex
	rng  Rand
	turn uint64
	rec  events.Recorder

	// manualSeq counts externally requested turns. Autoplay compares it
	// against the value it armed with to detect a racing manual turn.
	manualSeq atomic.Uint64
	reset     chan struct{}
	autoRng   *rand.Rand

	turnLog TurnLogger
	log     *log.Logger
}

// New wraps b. The board must already hold an agent and a Wumpus.
func New(b *board.Board, opts Options) (*Match, error) {
	if b == nil || b.Agent() == nil || b.Wumpus() == nil {
		return nil, fmt.Errorf("match: board needs an agent and a wumpus")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(opts.Seed))
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Match{
		id:      id,
		seed:    opts.Seed,
		b:       b,
		agent:   b.Agent(),
		wumpus:  b.Wumpus(),
		pups:    b.Pups(),
		rng:     rng,
		reset:   make(chan struct{}, 1),
		autoRng: rand.New(rand.NewSource(opts.Seed + 1)),
		turnLog: opts.TurnLog,
		log:     logger,
	}
	b.Bus().Subscribe(m.rec.Record)
	return m, nil
}

func (m *Match) ID() string  { return m.id }
func (m *Match) Seed() int64 { return m.seed }
func (m *Match) Side() int   { return m.b.Side() }

func (m *Match) Turn() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.turn
}

// SetTurnLogger replaces the turn logger; nil disables logging.
func (m *Match) SetTurnLogger(l TurnLogger) {
	m.mu.Lock()
	m.turnLog = l
	m.mu.Unlock()
}

// Subscribe registers a listener for board events. Listeners run while the
// turn is being resolved and must not call back into the match.
func (m *Match) Subscribe(fn events.Listener) (cancel func()) {
	return m.b.Bus().Subscribe(fn)
}

// Events subscribes a buffered channel to board events.
func (m *Match) Events(buf int) (<-chan events.Event, func()) {
	return m.b.Bus().Chan(buf)
}

// Active reports whether both the agent and the Wumpus are alive.
func (m *Match) Active() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeLocked()
}

func (m *Match) activeLocked() bool { return m.agent.Alive && m.wumpus.Alive }

// WithBoard runs fn with read access to the board. fn must not retain b.
func (m *Match) WithBoard(fn func(b *board.Board)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.b)
}

// Digest hashes the current board state.
func (m *Match) Digest() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.b.Digest()
}

// DescribeCurrentCell reports the agent's position and what can be sensed there.
func (m *Match) DescribeCurrentCell() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := m.agent
	lines := []string{fmt.Sprintf("Posizione attuale di %s: %d, %d", a.Name, a.Pos.Row, a.Pos.Col)}
	if m.b.Stench(a.Pos) {
		lines = append(lines, "In questa casella si sente la puzza del Wumpus")
	}
	if m.b.Breeze(a.Pos) {
		lines = append(lines, "In questa casella si sente una brezza: c'e' una voragine nelle vicinanze")
	}
	return strings.Join(lines, "\n")
}

// View is a read-only copy of the board for presentation.
type View struct {
	Side      int             `json:"side"`
	Turn      uint64          `json:"turn"`
	Active    bool            `json:"active"`
	Agent     board.Element   `json:"agent"`
	Wumpus    board.Element   `json:"wumpus"`
	Pits      []board.Element `json:"pits"`
	Treasures []board.Element `json:"treasures"`
	Survivors []board.Element `json:"survivors"`
	Pups      []board.Element `json:"pups"`
}

func (m *Match) View() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return View{
		Side:      m.b.Side(),
		Turn:      m.turn,
		Active:    m.activeLocked(),
		Agent:     *m.agent,
		Wumpus:    *m.wumpus,
		Pits:      copyElements(m.b.Pits()),
		Treasures: copyElements(m.b.Treasures()),
		Survivors: copyElements(m.b.Survivors()),
		Pups:      copyElements(m.b.Pups()),
	}
}

func copyElements(in []*board.Element) []board.Element {
	out := make([]board.Element, 0, len(in))
	for _, e := range in {
		out = append(out, *e)
	}
	return out
}
