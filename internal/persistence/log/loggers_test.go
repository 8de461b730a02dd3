package log

import (
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"wumpusworld/internal/persistence/savefile"
	"wumpusworld/internal/sim/board"
	"wumpusworld/internal/sim/gen"
	"wumpusworld/internal/sim/match"
)

func TestJSONLZstdWriter_RotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "turns")
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if err := w.Write(match.TurnLogEntry{Turn: uint64(i + 1)}); err != nil {
			t.Fatalf("write: %v", err)
		}
		clock = clock.Add(time.Minute)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(dir, "turns")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("files=%v want 2", files)
	}
	if filepath.Base(files[0]) != "turns-2026-03-01-10.jsonl.zst" {
		t.Fatalf("first file=%s", files[0])
	}

	var turns []uint64
	for _, f := range files {
		if err := ReadJSONL(f, func(e match.TurnLogEntry) error {
			turns = append(turns, e.Turn)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(turns) != 3 || turns[0] != 1 || turns[2] != 3 {
		t.Fatalf("turns=%v", turns)
	}
}

// record plays a short match the way the server does: meta, initial save,
// then a turn log fed by the match.
func record(t *testing.T, dir string, seed int64, moves int) string {
	t.Helper()
	b, err := gen.Generate(gen.DefaultConfig(), rand.New(rand.NewSource(seed)))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	id := "match-under-test"
	if err := WriteMeta(dir, Meta{MatchID: id, Seed: seed, Agent: "Link", Source: "generated"}); err != nil {
		t.Fatalf("meta: %v", err)
	}
	if err := savefile.Save(filepath.Join(dir, InitialSave), b); err != nil {
		t.Fatalf("initial save: %v", err)
	}
	tl := NewTurnLogger(dir)
	m, err := match.New(b, match.Options{ID: id, Seed: seed, TurnLog: tl})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	rng := rand.New(rand.NewSource(seed * 31))
	for i := 0; i < moves && m.Active(); i++ {
		a := match.Move
		if i%7 == 6 {
			a = match.Shoot
		}
		m.Play(a, board.Directions[rng.Intn(4)])
	}
	if err := tl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return m.Digest()
}

func TestReplay_MatchesRecording(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		dir := t.TempDir()
		want := record(t, dir, seed, 40)

		res, err := Replay(dir)
		if err != nil {
			t.Fatalf("seed %d: replay: %v", seed, err)
		}
		if res.FinalDigest != want {
			t.Fatalf("seed %d: final digest mismatch", seed)
		}
		if res.Turns == 0 {
			t.Fatalf("seed %d: no turns replayed", seed)
		}
	}
}

func TestReplay_NoTurnsLogged(t *testing.T) {
	dir := t.TempDir()
	want := record(t, dir, 11, 0)
	res, err := Replay(dir)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.Turns != 0 || res.FinalDigest != want || !res.Active {
		t.Fatalf("res=%+v", res)
	}
}

func TestRebuild_StopsAtTurn(t *testing.T) {
	checked := 0
	for seed := int64(1); seed <= 5; seed++ {
		dir := t.TempDir()
		record(t, dir, seed, 40)
		turns, err := ReadTurns(dir)
		if err != nil {
			t.Fatalf("read turns: %v", err)
		}
		if len(turns) < 2 {
			continue
		}
		m, res, err := Rebuild(dir, 2)
		if err != nil {
			t.Fatalf("seed %d: rebuild: %v", seed, err)
		}
		if m.Turn() != 2 || res.Turns != 2 || m.Digest() != turns[1].Digest {
			t.Fatalf("seed %d: turn=%d replayed=%d", seed, m.Turn(), res.Turns)
		}
		checked++
	}
	if checked == 0 {
		t.Fatalf("no recording reached turn 2")
	}
}

type corruptAt struct {
	*TurnLogger
	turn uint64
}

func (c corruptAt) WriteTurn(e match.TurnLogEntry) error {
	if e.Turn == c.turn {
		e.Digest = "0000"
	}
	return c.TurnLogger.WriteTurn(e)
}

func TestReplay_DetectsTampering(t *testing.T) {
	dir := t.TempDir()
	b := board.New(5)
	b.Place(board.NewAgent(board.Pos(0, 0), "Link"))
	for _, e := range []*board.Element{
		board.NewWumpus(board.Pos(4, 4), "Ganon", 300),
		board.NewTreasure(board.Pos(4, 0), 100),
		board.NewSurvivor(board.Pos(0, 4), "Zelda", 50),
		board.NewPup(board.Pos(2, 2), "Moblin"),
	} {
		b.Place(e)
	}
	if err := WriteMeta(dir, Meta{MatchID: "t", Seed: 9}); err != nil {
		t.Fatal(err)
	}
	if err := savefile.Save(filepath.Join(dir, InitialSave), b); err != nil {
		t.Fatal(err)
	}
	tl := NewTurnLogger(dir)
	m, err := match.New(b, match.Options{ID: "t", Seed: 9, TurnLog: corruptAt{tl, 3}})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		m.Play(match.Move, []board.Direction{board.East, board.West}[i%2])
	}
	_ = tl.Close()

	res, err := Replay(dir)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("err=%v want ErrDigestMismatch", err)
	}
	if res.Turns != 2 {
		t.Fatalf("verified %d turns before the mismatch, want 2", res.Turns)
	}
}

func TestMeta_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "m")
	in := Meta{MatchID: "abc", Seed: 42, Agent: "Link", Source: "generated", StartedAt: time.Unix(100, 0).UTC()}
	if err := WriteMeta(dir, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := ReadMeta(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if out.MatchID != in.MatchID || out.Seed != in.Seed || out.Source != in.Source || !out.StartedAt.Equal(in.StartedAt) {
		t.Fatalf("meta=%+v want %+v", out, in)
	}
}

func TestAuditLogger_Writes(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	if err := l.WriteAudit(AuditEntry{Time: time.Now().UTC(), MatchID: "m", Action: "SAVE", Path: "x.txt"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = l.Close()
	files, err := ListFiles(filepath.Join(dir, "audit"), "audit")
	if err != nil || len(files) != 1 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	n := 0
	if err := ReadJSONL(files[0], func(e AuditEntry) error {
		n++
		if e.Action != "SAVE" || e.Path != "x.txt" {
			t.Fatalf("entry=%+v", e)
		}
		return nil
	}); err != nil || n != 1 {
		t.Fatalf("n=%d err=%v", n, err)
	}
}
