package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"wumpusworld/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "agent name")
		seed     = flag.Int64("seed", 0, "board seed (0 = server default)")
		maxTurns = flag.Int("turns", 200, "stop after this many turns")
		load     = flag.String("load", "", "load this save instead of starting a new game")
		save     = flag.String("save", "", "save here before disconnecting (optional)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       *name,
	}
	if *seed != 0 {
		hello.Seed = seed
	}
	if *load != "" {
		hello.Load = &protocol.LoadSpec{Path: *load}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	b := &bot{conn: conn, log: logger, rng: rand.New(rand.NewSource(time.Now().UnixNano())), maxTurns: *maxTurns}
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME match=%s side=%d seed=%d", w.MatchID, w.Side, w.Seed)
			b.side = w.Side
			b.act(w.View)

		case protocol.TypeTurn:
			var t protocol.TurnMsg
			if err := json.Unmarshal(msg, &t); err != nil {
				continue
			}
			logger.Printf("turn %d %s %s score=%d\n%s", t.Turn, t.Action, t.Direction, t.View.Agent.Score, t.Log)
			if !t.Active || int(t.Turn) >= b.maxTurns {
				if *save == "" {
					return
				}
				_ = conn.WriteJSON(protocol.SaveMsg{Type: protocol.TypeSave, ProtocolVersion: protocol.Version, Path: *save})
				continue
			}
			b.act(t.View)

		case protocol.TypeSaved:
			var s protocol.SavedMsg
			_ = json.Unmarshal(msg, &s)
			logger.Printf("saved to %s (%d cells discovered)", s.Path, s.Discovered)
			return

		case protocol.TypeError:
			var e protocol.ErrorMsg
			_ = json.Unmarshal(msg, &e)
			logger.Printf("ERROR %s: %s", e.Code, e.Message)
			if b.side == 0 {
				return
			}
		}
	}
}

type bot struct {
	conn     *websocket.Conn
	log      *log.Logger
	rng      *rand.Rand
	side     int
	maxTurns int
}

var steps = map[string][2]int{"N": {-1, 0}, "S": {1, 0}, "E": {0, 1}, "W": {0, -1}}

// act shoots blindly when the Wumpus is near, otherwise walks toward a cell
// it has not revealed yet, falling back to any on-board step.
func (b *bot) act(v protocol.ViewObs) {
	if !v.Active {
		return
	}
	dirs := []string{"N", "S", "E", "W"}
	b.rng.Shuffle(len(dirs), func(i, j int) { dirs[i], dirs[j] = dirs[j], dirs[i] })

	if v.Stench && v.WumpusAlive && v.Agent.Arrows > 0 {
		b.send("SHOOT", dirs[0])
		return
	}

	revealed := make(map[[2]int]bool, len(v.Revealed))
	for _, c := range v.Revealed {
		revealed[c.Pos] = true
	}
	var fallback string
	for _, d := range dirs {
		p := [2]int{v.Agent.Pos[0] + steps[d][0], v.Agent.Pos[1] + steps[d][1]}
		if p[0] < 0 || p[1] < 0 || p[0] >= b.side || p[1] >= b.side {
			continue
		}
		if !revealed[p] {
			b.send("MOVE", d)
			return
		}
		if fallback == "" {
			fallback = d
		}
	}
	if fallback == "" {
		fallback = dirs[0]
	}
	b.send("MOVE", fallback)
}

func (b *bot) send(action, dir string) {
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Action:          action,
		Direction:       dir,
	}
	if err := b.conn.WriteJSON(act); err != nil {
		b.log.Printf("send ACT: %v", err)
	}
}
