package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/matches.sqlite)")
	matchID := fs.String("match", "", "match id (required for turns and saves)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "matches"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if (q == "turns" || q == "saves") && strings.TrimSpace(*matchID) == "" {
		fmt.Fprintln(os.Stderr, "missing -match")
		os.Exit(2)
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "matches.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "matches":
		rows, err := db.Query(`SELECT match_id,agent,seed,source,side,started_at,ended_at,turns,score,agent_alive,wumpus_alive FROM matches ORDER BY started_at DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				MatchID     string         `json:"match_id"`
				Agent       string         `json:"agent"`
				Seed        int64          `json:"seed"`
				Source      string         `json:"source"`
				Side        int            `json:"side"`
				StartedAt   string         `json:"started_at"`
				EndedAt     sql.NullString `json:"ended_at"`
				Turns       int64          `json:"turns"`
				Score       sql.NullInt64  `json:"score"`
				AgentAlive  sql.NullBool   `json:"agent_alive"`
				WumpusAlive sql.NullBool   `json:"wumpus_alive"`
			}
			if err := rows.Scan(&r.MatchID, &r.Agent, &r.Seed, &r.Source, &r.Side, &r.StartedAt, &r.EndedAt, &r.Turns, &r.Score, &r.AgentAlive, &r.WumpusAlive); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "turns":
		rows, err := db.Query(`SELECT turn,action,dir,auto,events,digest,log FROM turns WHERE match_id=? ORDER BY turn LIMIT ?`, *matchID, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Turn   int64  `json:"turn"`
				Action string `json:"action"`
				Dir    string `json:"dir"`
				Auto   bool   `json:"auto"`
				Events int    `json:"events"`
				Digest string `json:"digest"`
				Log    string `json:"log"`
			}
			if err := rows.Scan(&r.Turn, &r.Action, &r.Dir, &r.Auto, &r.Events, &r.Digest, &r.Log); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "saves":
		rows, err := db.Query(`SELECT turn,path,discovered,error,saved_at FROM saves WHERE match_id=? ORDER BY id DESC LIMIT ?`, *matchID, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Turn       int64          `json:"turn"`
				Path       string         `json:"path"`
				Discovered int            `json:"discovered"`
				Error      sql.NullString `json:"error"`
				SavedAt    string         `json:"saved_at"`
			}
			if err := rows.Scan(&r.Turn, &r.Path, &r.Discovered, &r.Error, &r.SavedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data|-db PATH] [-match ID] [-limit N] matches|turns|saves")
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
