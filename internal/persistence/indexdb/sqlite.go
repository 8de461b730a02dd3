// Package indexdb keeps a queryable SQLite index of matches, turns and saves.
// The JSONL turn logs stay the source of truth; the index may drop writes
// when it falls behind.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"wumpusworld/internal/sim/match"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqMatch reqKind = iota + 1
	reqTurn
	reqSave
	reqOutcome
)

type req struct {
	kind reqKind

	match   MatchRow
	turn    match.TurnLogEntry
	save    SaveRow
	outcome OutcomeRow
}

// MatchRow is written once when a match starts.
type MatchRow struct {
	MatchID   string
	Agent     string
	Seed      int64
	Source    string
	Side      int
	StartedAt time.Time
}

// SaveRow records one SAVE request, failed or not.
type SaveRow struct {
	MatchID    string
	Turn       uint64
	Path       string
	Discovered int
	Error      string
	At         time.Time
}

// OutcomeRow is the state a match was left in when its connection ended.
type OutcomeRow struct {
	MatchID     string
	Turns       uint64
	Score       int
	AgentAlive  bool
	WumpusAlive bool
	Digest      string
	EndedAt     time.Time
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			seed INTEGER NOT NULL,
			source TEXT NOT NULL,
			side INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			turns INTEGER NOT NULL DEFAULT 0,
			score INTEGER,
			agent_alive INTEGER,
			wumpus_alive INTEGER,
			final_digest TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_matches_started ON matches(started_at);`,
		`CREATE TABLE IF NOT EXISTS turns (
			match_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			action TEXT NOT NULL,
			dir TEXT NOT NULL,
			auto INTEGER NOT NULL,
			events INTEGER NOT NULL,
			digest TEXT NOT NULL,
			log TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (match_id, turn)
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			path TEXT NOT NULL,
			discovered INTEGER NOT NULL,
			error TEXT,
			saved_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_saves_match ON saves(match_id, turn);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
	}
}

func (s *SQLiteIndex) RecordMatch(m MatchRow) { s.enqueue(req{kind: reqMatch, match: m}) }

// WriteTurn lets the index sit behind a match as a turn logger.
func (s *SQLiteIndex) WriteTurn(e match.TurnLogEntry) error {
	s.enqueue(req{kind: reqTurn, turn: e})
	return nil
}

func (s *SQLiteIndex) RecordSave(r SaveRow) { s.enqueue(req{kind: reqSave, save: r}) }

func (s *SQLiteIndex) RecordOutcome(o OutcomeRow) { s.enqueue(req{kind: reqOutcome, outcome: o}) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertMatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO matches(match_id,agent,seed,source,side,started_at) VALUES(?,?,?,?,?,?)`)
	insertTurn, _ := s.db.Prepare(`INSERT OR REPLACE INTO turns(match_id,turn,action,dir,auto,events,digest,log,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	bumpTurns, _ := s.db.Prepare(`UPDATE matches SET turns=? WHERE match_id=? AND turns<?`)
	insertSave, _ := s.db.Prepare(`INSERT INTO saves(match_id,turn,path,discovered,error,saved_at) VALUES(?,?,?,?,?,?)`)
	updateOutcome, _ := s.db.Prepare(`UPDATE matches SET ended_at=?,turns=?,score=?,agent_alive=?,wumpus_alive=?,final_digest=? WHERE match_id=?`)
	defer func() {
		for _, st := range []*sql.Stmt{insertMatch, insertTurn, bumpTurns, insertSave, updateOutcome} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqMatch:
			m := r.match
			exec(insertMatch, m.MatchID, m.Agent, m.Seed, m.Source, m.Side, m.StartedAt.UTC().Format(time.RFC3339Nano))

		case reqTurn:
			e := r.turn
			raw, _ := json.Marshal(e)
			if exec(insertTurn, e.MatchID, int64(e.Turn), e.Action, e.Dir, boolInt(e.Auto), len(e.Events), e.Digest, e.Log, string(raw)) {
				exec(bumpTurns, int64(e.Turn), e.MatchID, int64(e.Turn))
			}

		case reqSave:
			sv := r.save
			var errText any
			if sv.Error != "" {
				errText = sv.Error
			}
			exec(insertSave, sv.MatchID, int64(sv.Turn), sv.Path, sv.Discovered, errText, sv.At.UTC().Format(time.RFC3339Nano))

		case reqOutcome:
			o := r.outcome
			exec(updateOutcome, o.EndedAt.UTC().Format(time.RFC3339Nano), int64(o.Turns), o.Score,
				boolInt(o.AgentAlive), boolInt(o.WumpusAlive), o.Digest, o.MatchID)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
