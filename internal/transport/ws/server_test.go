package ws

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"wumpusworld/internal/persistence/indexdb"
	"wumpusworld/internal/persistence/savefile"
	"wumpusworld/internal/protocol"
	"wumpusworld/internal/sim/tuning"
)

type testServer struct {
	srv     *Server
	http    *httptest.Server
	saveDir string
	dataDir string
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	cfg := Config{
		Tuning:  tuning.Defaults(),
		DataDir: t.TempDir(),
		SaveDir: t.TempDir(),
		Seed:    1234,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s := NewServer(cfg, log.New(io.Discard, "", 0))
	hs := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		hs.Close()
		_ = s.Close()
	})
	return &testServer{srv: s, http: hs, saveDir: cfg.SaveDir, dataDir: cfg.DataDir}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// next reads messages until one of type typ arrives, returning it raw and
// counting the EVENT messages skipped on the way.
func next(t *testing.T, conn *websocket.Conn, typ string) (json.RawMessage, int) {
	t.Helper()
	events := 0
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		base, err := protocol.DecodeBase(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if base.Type == typ {
			return b, events
		}
		if base.Type == protocol.TypeEvent {
			events++
			continue
		}
		if base.Type == protocol.TypeError && typ != protocol.TypeError {
			t.Fatalf("unexpected error while waiting for %s: %s", typ, b)
		}
	}
}

func hello(extra map[string]any) map[string]any {
	m := map[string]any{"type": protocol.TypeHello, "protocol_version": protocol.Version}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func join(t *testing.T, conn *websocket.Conn, extra map[string]any) protocol.WelcomeMsg {
	t.Helper()
	send(t, conn, hello(extra))
	raw, _ := next(t, conn, protocol.TypeWelcome)
	var w protocol.WelcomeMsg
	if err := json.Unmarshal(raw, &w); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	return w
}

func TestHandshake_NewGame(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)
	w := join(t, conn, map[string]any{
		"agent_name": "Zelda",
		"seed":       7,
		"new_game":   map[string]any{"side": 6, "pit_probability": 10, "treasures": 1, "survivors": 1, "pups": 1},
	})
	if w.MatchID == "" || w.Side != 6 || w.Seed != 7 {
		t.Fatalf("welcome=%+v", w)
	}
	if w.View.Agent.Name != "Zelda" || !w.View.Active || w.View.Agent.Pos != [2]int{0, 0} {
		t.Fatalf("view=%+v", w.View)
	}
	if len(w.View.Revealed) != 1 {
		t.Fatalf("start cell should be revealed: %+v", w.View.Revealed)
	}

	dir := filepath.Join(ts.dataDir, "matches", w.MatchID)
	for _, name := range []string{"match.json", "initial.sav.zst"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s not recorded: %v", name, err)
		}
	}
}

func TestHandshake_RejectsNonHello(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)
	send(t, conn, map[string]any{"type": protocol.TypeDescribe, "protocol_version": protocol.Version})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("err=%v want policy violation close", err)
	}
}

func TestHandshake_InvalidConfig(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.Tuning.Board.Side = 3 })
	conn := ts.dial(t)
	send(t, conn, hello(nil))
	raw, _ := next(t, conn, protocol.TypeError)
	var e protocol.ErrorMsg
	_ = json.Unmarshal(raw, &e)
	if e.Code != protocol.ErrInvalidConfig {
		t.Fatalf("error=%+v", e)
	}
}

func TestHandshake_LoadMalformedSave(t *testing.T) {
	ts := newTestServer(t, nil)
	if err := os.WriteFile(filepath.Join(ts.saveDir, "bad.txt"), []byte("not a save\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	conn := ts.dial(t)
	send(t, conn, hello(map[string]any{"load": map[string]any{"path": "bad.txt"}}))
	raw, _ := next(t, conn, protocol.TypeError)
	var e protocol.ErrorMsg
	_ = json.Unmarshal(raw, &e)
	if e.Code != protocol.ErrMalformedSave {
		t.Fatalf("error=%+v", e)
	}
}

func TestSession_ActDescribeSaveLoad(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)
	w := join(t, conn, map[string]any{"seed": 99})

	send(t, conn, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Action: "MOVE", Direction: "N"})
	raw, events := next(t, conn, protocol.TypeTurn)
	var turn protocol.TurnMsg
	if err := json.Unmarshal(raw, &turn); err != nil {
		t.Fatal(err)
	}
	if turn.Turn != 1 || turn.Auto || !strings.Contains(turn.Log, "impediscono") {
		t.Fatalf("turn=%+v", turn)
	}
	if turn.View.Agent.Pos != w.View.Agent.Pos {
		t.Fatalf("wall bump moved the agent: %+v", turn.View.Agent)
	}
	if events > 0 && !strings.Contains(turn.Log, "cucciolo") {
		t.Fatalf("a wall bump alone emits no events, got %d", events)
	}

	send(t, conn, map[string]any{"type": protocol.TypeDescribe, "protocol_version": protocol.Version})
	raw, _ = next(t, conn, protocol.TypeDescription)
	var desc protocol.DescriptionMsg
	_ = json.Unmarshal(raw, &desc)
	if !strings.HasPrefix(desc.Text, "Posizione attuale di Link: 0, 0") {
		t.Fatalf("description=%q", desc.Text)
	}

	send(t, conn, protocol.SaveMsg{Type: protocol.TypeSave, ProtocolVersion: protocol.Version, Path: "slot.txt"})
	raw, _ = next(t, conn, protocol.TypeSaved)
	var saved protocol.SavedMsg
	_ = json.Unmarshal(raw, &saved)
	if saved.Discovered != 1 {
		t.Fatalf("saved=%+v", saved)
	}
	b, cells, err := savefile.LoadWithDiscovered(filepath.Join(ts.saveDir, "slot.txt"))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if b.Agent().Name != "Link" || len(cells) != 1 {
		t.Fatalf("agent=%+v cells=%+v", b.Agent(), cells)
	}

	conn2 := ts.dial(t)
	w2 := join(t, conn2, map[string]any{"load": map[string]any{"path": "slot.txt"}})
	if w2.Side != w.Side || len(w2.View.Revealed) != 1 || w2.MatchID == w.MatchID {
		t.Fatalf("loaded welcome=%+v", w2)
	}
}

func TestSession_BadMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)
	join(t, conn, nil)

	cases := []struct {
		msg  any
		code string
	}{
		{map[string]any{"type": "ACT", "protocol_version": protocol.Version, "action": "JUMP", "direction": "N"}, protocol.ErrProtoBadRequest},
		{map[string]any{"type": "ACT", "protocol_version": "0.1", "action": "MOVE", "direction": "N"}, protocol.ErrProtoBadRequest},
		{hello(nil), protocol.ErrConflict},
		{protocol.SaveMsg{Type: protocol.TypeSave, ProtocolVersion: protocol.Version, Path: "../escape.txt"}, protocol.ErrBadRequest},
	}
	for _, tc := range cases {
		send(t, conn, tc.msg)
		raw, _ := next(t, conn, protocol.TypeError)
		var e protocol.ErrorMsg
		_ = json.Unmarshal(raw, &e)
		if e.Code != tc.code {
			t.Fatalf("msg %+v: code=%s want %s", tc.msg, e.Code, tc.code)
		}
	}
}

func TestSession_Autoplay(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.Tuning.Autoplay.IdleMs = 30 })
	conn := ts.dial(t)
	join(t, conn, map[string]any{"autoplay": true})

	raw, _ := next(t, conn, protocol.TypeTurn)
	var turn protocol.TurnMsg
	_ = json.Unmarshal(raw, &turn)
	if !turn.Auto || turn.Action != "MOVE" {
		t.Fatalf("turn=%+v", turn)
	}
}

func TestResolvePath(t *testing.T) {
	s := NewServer(Config{Tuning: tuning.Defaults(), SaveDir: "/saves"}, nil)
	cases := map[string]string{
		"":              filepath.Join("/saves", savefile.DefaultPath),
		"a.txt":         filepath.Join("/saves", "a.txt"),
		"x/../b.txt":    filepath.Join("/saves", "b.txt"),
		"sub/c.txt.zst": filepath.Join("/saves", "sub", "c.txt.zst"),
	}
	for in, want := range cases {
		got, err := s.resolvePath(in)
		if err != nil || got != want {
			t.Fatalf("resolvePath(%q)=%q,%v want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"../x", "/etc/passwd", "a/../../x"} {
		if _, err := s.resolvePath(bad); !errors.Is(err, errPathEscapes) {
			t.Fatalf("resolvePath(%q) err=%v", bad, err)
		}
	}
}

func TestServer_MetricsAndMatches(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)
	w := join(t, conn, nil)
	send(t, conn, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Action: "SHOOT", Direction: "N"})
	next(t, conn, protocol.TypeTurn)

	m := ts.srv.Metrics()
	if m.ActiveSessions != 1 || m.MatchesTotal != 1 || m.TurnsTotal != 1 || m.AutoTurnsTotal != 0 {
		t.Fatalf("metrics=%+v", m)
	}
	list := ts.srv.Matches()
	if len(list) != 1 || list[0].MatchID != w.MatchID || list[0].Turn != 1 {
		t.Fatalf("matches=%+v", list)
	}
}

func TestSession_IndexRecordsMatch(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "matches.sqlite")
	idx, err := indexdb.OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	ts := newTestServer(t, func(c *Config) { c.Index = idx })
	conn := ts.dial(t)
	w := join(t, conn, map[string]any{"seed": 5})
	send(t, conn, protocol.ActMsg{Type: protocol.TypeAct, ProtocolVersion: protocol.Version, Action: "SHOOT", Direction: "S"})
	next(t, conn, protocol.TypeTurn)
	send(t, conn, protocol.SaveMsg{Type: protocol.TypeSave, ProtocolVersion: protocol.Version, Path: "idx.txt"})
	next(t, conn, protocol.TypeSaved)
	_ = conn.Close()

	deadline := time.Now().Add(3 * time.Second)
	for ts.srv.Metrics().ActiveSessions != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session never ended")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("index close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var (
		turns, saves int
		ended        sql.NullString
	)
	if err := db.QueryRow(`SELECT turns, ended_at FROM matches WHERE match_id=?`, w.MatchID).Scan(&turns, &ended); err != nil {
		t.Fatalf("match row: %v", err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM saves WHERE match_id=?`, w.MatchID).Scan(&saves); err != nil {
		t.Fatal(err)
	}
	if turns != 1 || !ended.Valid || saves != 1 {
		t.Fatalf("turns=%d ended=%v saves=%d", turns, ended, saves)
	}
}
