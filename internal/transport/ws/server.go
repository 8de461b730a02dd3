package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"wumpusworld/internal/persistence/indexdb"
	plog "wumpusworld/internal/persistence/log"
	"wumpusworld/internal/persistence/savefile"
	"wumpusworld/internal/protocol"
	"wumpusworld/internal/sim/board"
	"wumpusworld/internal/sim/gen"
	"wumpusworld/internal/sim/match"
	"wumpusworld/internal/sim/tuning"
)

type Config struct {
	Tuning tuning.Tuning

	// DataDir receives per-match turn logs and the audit log. Empty disables both.
	DataDir string
	// SaveDir confines SAVE and HELLO.load paths. Empty means the working directory.
	SaveDir string

	// Seed is used when HELLO carries none; 0 picks a time-based seed per match.
	Seed int64
	// Autoplay forces autoplay on for every match, whatever HELLO asks.
	Autoplay bool

	// Index, when set, mirrors matches, turns and saves into SQLite.
	Index *indexdb.SQLiteIndex

	ReadTimeout time.Duration
}

type Server struct {
	cfg   Config
	log   *log.Logger
	audit *plog.AuditLogger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session

	matchesTotal   atomic.Uint64
	turnsTotal     atomic.Uint64
	autoTurnsTotal atomic.Uint64
}

// Metrics is a point-in-time counter snapshot for /metrics.
type Metrics struct {
	ActiveSessions int
	MatchesTotal   uint64
	TurnsTotal     uint64
	AutoTurnsTotal uint64
}

// MatchInfo describes one connected match for the admin endpoint.
type MatchInfo struct {
	MatchID  string `json:"match_id"`
	Agent    string `json:"agent"`
	Turn     uint64 `json:"turn"`
	Active   bool   `json:"active"`
	Autoplay bool   `json:"autoplay"`
	Digest   string `json:"digest"`
}

func (s *Server) Metrics() Metrics {
	s.mu.Lock()
	n := len(s.sessions)
	s.mu.Unlock()
	return Metrics{
		ActiveSessions: n,
		MatchesTotal:   s.matchesTotal.Load(),
		TurnsTotal:     s.turnsTotal.Load(),
		AutoTurnsTotal: s.autoTurnsTotal.Load(),
	}
}

// Matches lists connected matches ordered by match ID.
func (s *Server) Matches() []MatchInfo {
	s.mu.Lock()
	list := make([]*session, 0, len(s.sessions))
	for _, ss := range s.sessions {
		list = append(list, ss)
	}
	s.mu.Unlock()

	out := make([]MatchInfo, 0, len(list))
	for _, ss := range list {
		out = append(out, MatchInfo{
			MatchID:  ss.m.ID(),
			Agent:    ss.agentName,
			Turn:     ss.m.Turn(),
			Active:   ss.m.Active(),
			Autoplay: ss.autoplay,
			Digest:   ss.m.Digest(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}

func (s *Server) track(ss *session) {
	s.matchesTotal.Add(1)
	s.mu.Lock()
	s.sessions[ss.m.ID()] = ss
	s.mu.Unlock()
}

func (s *Server) untrack(ss *session) {
	s.mu.Lock()
	delete(s.sessions, ss.m.ID())
	s.mu.Unlock()
}

func NewServer(cfg Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	s := &Server{
		cfg:      cfg,
		log:      logger,
		sessions: map[string]*session{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	if cfg.DataDir != "" {
		s.audit = plog.NewAuditLogger(cfg.DataDir)
	}
	return s
}

// Close flushes the audit log.
func (s *Server) Close() error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Close()
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := s.handshake(ctx, conn)
		if sess == nil {
			return
		}
		s.track(sess)
		defer s.untrack(sess)
		defer sess.close()
		s.log.Printf("match %s: started (agent=%s autoplay=%v)", sess.m.ID(), sess.agentName, sess.autoplay)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		if sess.autoplay {
			go func() {
				err := sess.m.RunAutoplay(ctx, s.cfg.Tuning.AutoplayIdle(), sess.pushTurn)
				if err == nil {
					s.log.Printf("match %s: autoplay stopped, match over", sess.m.ID())
				}
			}()
		}

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			sess.handle(msg)
		}
		s.log.Printf("match %s: connection closed at turn %d", sess.m.ID(), sess.m.Turn())
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.ValidateInbound(msg)
	if err != nil || base.Type != protocol.TypeHello {
		reason := "expected HELLO"
		if err != nil && base.Type == protocol.TypeHello {
			reason = "bad HELLO"
			_ = writeJSON(conn, errorMsg(protocol.ErrProtoBadRequest, err.Error()))
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
		return nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}

	seed := s.cfg.Seed
	if hello.Seed != nil {
		seed = *hello.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	b, discovered, source, err := s.setupBoard(hello, seed)
	if err != nil {
		_ = writeJSON(conn, errorMsg(setupErrorCode(err), err.Error()))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "setup failed"), time.Now().Add(time.Second))
		s.log.Printf("handshake: %v", err)
		return nil
	}

	m, err := match.New(b, match.Options{Seed: seed, Logger: s.log})
	if err != nil {
		_ = writeJSON(conn, errorMsg(protocol.ErrInternal, err.Error()))
		return nil
	}
	sess := &session{
		srv:        s,
		ctx:        ctx,
		m:          m,
		out:        make(chan []byte, 64),
		agentName:  b.Agent().Name,
		autoplay:   s.cfg.Autoplay || s.cfg.Tuning.Autoplay.Enabled,
		discovered: discovered,
	}
	if hello.Autoplay != nil {
		sess.autoplay = *hello.Autoplay || s.cfg.Autoplay
	}
	if err := sess.startRecording(source); err != nil {
		s.log.Printf("match %s: recording disabled: %v", m.ID(), err)
	}
	sess.revealAgentCell()
	s.auditf(sess, "HELLO", source, "")

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		MatchID:         m.ID(),
		Side:            m.Side(),
		Seed:            seed,
		View:            sess.view(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		sess.close()
		return nil
	}
	return sess
}

// setupBoard loads or generates the board HELLO asks for. source is the
// loaded path, or "generated".
func (s *Server) setupBoard(hello protocol.HelloMsg, seed int64) (*board.Board, savefile.Discovered, string, error) {
	if hello.Load != nil {
		path, err := s.resolvePath(hello.Load.Path)
		if err != nil {
			return nil, nil, "", err
		}
		b, cells, err := savefile.LoadWithDiscovered(path)
		if err != nil {
			return nil, nil, "", err
		}
		return b, cells, path, nil
	}

	cfg := s.cfg.Tuning.GenConfig()
	if hello.AgentName != "" {
		cfg.AgentName = hello.AgentName
	}
	if ng := hello.NewGame; ng != nil {
		if ng.Side != 0 {
			cfg.Side = ng.Side
		}
		if ng.PitProbability != 0 {
			cfg.PitProbability = ng.PitProbability
		}
		if ng.Treasures != 0 {
			cfg.Treasures = ng.Treasures
		}
		if ng.Survivors != 0 {
			cfg.Survivors = ng.Survivors
		}
		if ng.Pups != 0 {
			cfg.Pups = ng.Pups
		}
		if ng.RandomStart != nil {
			cfg.RandomStart = *ng.RandomStart
		}
	}
	b, err := gen.Generate(cfg, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, nil, "", err
	}
	return b, nil, "generated", nil
}

var errPathEscapes = errors.New("path escapes the save directory")

// resolvePath maps a client path into SaveDir. Absolute paths and ".."
// segments that leave SaveDir are refused.
func (s *Server) resolvePath(p string) (string, error) {
	if p == "" {
		p = s.cfg.Tuning.SavePath
	}
	if p == "" {
		p = savefile.DefaultPath
	}
	if filepath.IsAbs(p) {
		return "", fmt.Errorf("%w: %s", errPathEscapes, p)
	}
	clean := filepath.Clean(p)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", errPathEscapes, p)
	}
	dir := s.cfg.SaveDir
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, clean), nil
}

func setupErrorCode(err error) string {
	switch {
	case errors.Is(err, gen.ErrInvalidConfiguration):
		return protocol.ErrInvalidConfig
	case errors.Is(err, savefile.ErrMalformedSave):
		return protocol.ErrMalformedSave
	case errors.Is(err, savefile.ErrRangeViolation):
		return protocol.ErrRangeViolation
	}
	return protocol.ErrBadRequest
}

func (s *Server) auditf(sess *session, action, path, errText string) {
	if s.audit == nil {
		return
	}
	err := s.audit.WriteAudit(plog.AuditEntry{
		Time:    time.Now().UTC(),
		MatchID: sess.m.ID(),
		Agent:   sess.agentName,
		Action:  action,
		Path:    path,
		Turn:    sess.m.Turn(),
		Error:   errText,
	})
	if err != nil {
		s.log.Printf("audit: %v", err)
	}
}

func errorMsg(code, message string) protocol.ErrorMsg {
	return protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// session is one connection's match.
type session struct {
	srv       *Server
	ctx       context.Context
	m         *match.Match
	out       chan []byte
	agentName string
	autoplay  bool

	turnLog  *plog.TurnLogger
	matchDir string

	mu         sync.Mutex
	discovered savefile.Discovered
}

func (ss *session) startRecording(source string) error {
	var loggers turnLoggers
	if idx := ss.srv.cfg.Index; idx != nil {
		idx.RecordMatch(indexdb.MatchRow{
			MatchID:   ss.m.ID(),
			Agent:     ss.agentName,
			Seed:      ss.m.Seed(),
			Source:    source,
			Side:      ss.m.Side(),
			StartedAt: time.Now().UTC(),
		})
		loggers = append(loggers, idx)
		ss.m.SetTurnLogger(loggers)
	}
	if ss.srv.cfg.DataDir == "" {
		return nil
	}

	dir := filepath.Join(ss.srv.cfg.DataDir, "matches", ss.m.ID())
	meta := plog.Meta{
		MatchID:   ss.m.ID(),
		Seed:      ss.m.Seed(),
		Agent:     ss.agentName,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	if err := plog.WriteMeta(dir, meta); err != nil {
		return err
	}
	var saveErr error
	ss.m.WithBoard(func(b *board.Board) {
		saveErr = savefile.Save(filepath.Join(dir, plog.InitialSave), b)
	})
	if saveErr != nil {
		return saveErr
	}
	ss.matchDir = dir
	ss.turnLog = plog.NewTurnLogger(dir)
	ss.m.SetTurnLogger(append(loggers, ss.turnLog))
	return nil
}

// turnLoggers fans each turn out to every logger; the first error wins.
type turnLoggers []match.TurnLogger

func (ls turnLoggers) WriteTurn(e match.TurnLogEntry) error {
	var first error
	for _, l := range ls {
		if err := l.WriteTurn(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ss *session) close() {
	ss.m.SetTurnLogger(nil)
	if idx := ss.srv.cfg.Index; idx != nil {
		v := ss.m.View()
		idx.RecordOutcome(indexdb.OutcomeRow{
			MatchID:     ss.m.ID(),
			Turns:       v.Turn,
			Score:       v.Agent.Score,
			AgentAlive:  v.Agent.Alive,
			WumpusAlive: v.Wumpus.Alive,
			Digest:      ss.m.Digest(),
			EndedAt:     time.Now().UTC(),
		})
	}
	if ss.turnLog == nil {
		return
	}
	if err := ss.turnLog.Close(); err != nil {
		ss.srv.log.Printf("match %s: turn log close: %v", ss.m.ID(), err)
	}
	ss.turnLog = nil
}

func (ss *session) handle(msg []byte) {
	base, err := protocol.ValidateInbound(msg)
	if err != nil {
		ss.send(errorMsg(protocol.ErrProtoBadRequest, err.Error()))
		return
	}
	if base.ProtocolVersion != protocol.Version {
		ss.send(errorMsg(protocol.ErrProtoBadRequest, "bad protocol_version"))
		return
	}

	switch base.Type {
	case protocol.TypeAct:
		var act protocol.ActMsg
		if err := json.Unmarshal(msg, &act); err != nil {
			ss.send(errorMsg(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		a, okA := match.ParseAction(act.Action)
		d, okD := board.ParseDirection(act.Direction)
		if !okA || !okD {
			ss.send(errorMsg(protocol.ErrBadRequest, "unknown action or direction"))
			return
		}
		if !ss.m.Active() {
			ss.send(errorMsg(protocol.ErrConflict, "match is over"))
			return
		}
		ss.pushTurn(ss.m.Play(a, d))

	case protocol.TypeSave:
		var sm protocol.SaveMsg
		if err := json.Unmarshal(msg, &sm); err != nil {
			ss.send(errorMsg(protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		ss.save(sm.Path)

	case protocol.TypeDescribe:
		ss.send(protocol.DescriptionMsg{
			Type:            protocol.TypeDescription,
			ProtocolVersion: protocol.Version,
			Text:            ss.m.DescribeCurrentCell(),
		})

	case protocol.TypeHello:
		ss.send(errorMsg(protocol.ErrConflict, "match already started"))
	}
}

func (ss *session) save(p string) {
	path, err := ss.srv.resolvePath(p)
	if err != nil {
		ss.send(errorMsg(protocol.ErrBadRequest, err.Error()))
		return
	}
	ss.mu.Lock()
	cells := append(savefile.Discovered(nil), ss.discovered...)
	ss.mu.Unlock()

	ss.m.WithBoard(func(b *board.Board) {
		err = savefile.SaveWithDiscovered(path, b, cells)
	})
	errText := ""
	if err != nil {
		errText = err.Error()
	}
	ss.srv.auditf(ss, "SAVE", path, errText)
	ss.srv.cfg.Index.RecordSave(indexdb.SaveRow{
		MatchID:    ss.m.ID(),
		Turn:       ss.m.Turn(),
		Path:       path,
		Discovered: len(cells),
		Error:      errText,
		At:         time.Now().UTC(),
	})
	if err != nil {
		ss.send(errorMsg(setupErrorCode(err), err.Error()))
		return
	}
	ss.send(protocol.SavedMsg{
		Type:            protocol.TypeSaved,
		ProtocolVersion: protocol.Version,
		Path:            path,
		Discovered:      len(cells),
	})
}

// pushTurn streams a resolved turn: its events in order, then the TURN summary.
func (ss *session) pushTurn(res match.TurnResult) {
	if !res.Resolved {
		return
	}
	ss.srv.turnsTotal.Add(1)
	if res.Auto {
		ss.srv.autoTurnsTotal.Add(1)
	}
	ss.revealAgentCell()
	for _, e := range res.Events {
		raw, err := json.Marshal(e)
		if err != nil {
			continue
		}
		ss.send(protocol.EventMsg{Type: protocol.TypeEvent, ProtocolVersion: protocol.Version, Event: raw})
	}
	ss.send(protocol.TurnMsg{
		Type:            protocol.TypeTurn,
		ProtocolVersion: protocol.Version,
		Turn:            res.Turn,
		Action:          res.Action.String(),
		Direction:       res.Dir.Code(),
		Auto:            res.Auto,
		Log:             res.Log,
		Active:          res.Active,
		View:            ss.view(),
	})
}

func (ss *session) send(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		ss.srv.log.Printf("match %s: marshal: %v", ss.m.ID(), err)
		return
	}
	select {
	case ss.out <- b:
	case <-ss.ctx.Done():
	}
}

func (ss *session) revealAgentCell() {
	var (
		pos            board.Position
		stench, breeze bool
	)
	ss.m.WithBoard(func(b *board.Board) {
		pos = b.Agent().Pos
		stench, breeze = b.Stench(pos), b.Breeze(pos)
	})
	ss.mu.Lock()
	ss.discovered.Reveal(pos, stench, breeze)
	ss.mu.Unlock()
}

func (ss *session) view() protocol.ViewObs {
	v := ss.m.View()
	var stench, breeze bool
	ss.m.WithBoard(func(b *board.Board) {
		stench, breeze = b.Stench(v.Agent.Pos), b.Breeze(v.Agent.Pos)
	})

	ss.mu.Lock()
	revealed := make([]protocol.CellObs, 0, len(ss.discovered))
	seen := make(map[board.Position]bool, len(ss.discovered))
	for _, c := range ss.discovered {
		revealed = append(revealed, protocol.CellObs{
			Pos: [2]int{c.Pos.Row, c.Pos.Col},
			RGB: [3]int{int(c.R), int(c.G), int(c.B)},
		})
		seen[c.Pos] = true
	}
	ss.mu.Unlock()

	obs := protocol.ViewObs{
		Turn:   v.Turn,
		Active: v.Active,
		Agent: protocol.AgentObs{
			Name:   v.Agent.Name,
			Pos:    [2]int{v.Agent.Pos.Row, v.Agent.Pos.Col},
			Alive:  v.Agent.Alive,
			Arrows: v.Agent.Arrows,
			Score:  v.Agent.Score,
		},
		Stench:      stench,
		Breeze:      breeze,
		WumpusAlive: v.Wumpus.Alive,
		Revealed:    revealed,
	}
	for _, p := range v.Pups {
		if p.Alive && seen[p.Pos] {
			obs.Pups = append(obs.Pups, protocol.PupObs{Name: p.Name, Pos: [2]int{p.Pos.Row, p.Pos.Col}})
		}
	}
	return obs
}
