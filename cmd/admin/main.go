package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	plog "wumpusworld/internal/persistence/log"
	"wumpusworld/internal/persistence/savefile"
	"wumpusworld/internal/sim/board"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "restore":
			restoreCmd(os.Args[2:])
			return
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "tuning":
			tuningCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "matches"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// restoreCmd rebuilds a recorded match up to a turn and writes it as a save
// file the server can load.
func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	matchID := fs.String("match", "", "match id")
	toTurn := fs.Uint64("turn", 0, "restore the board as it stood after this turn (0 = last logged turn)")
	outPath := fs.String("out", "", "output save path (default: <match dir>/turn-<N>.txt)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*matchID) == "" {
		fmt.Fprintln(os.Stderr, "missing -match")
		os.Exit(2)
	}
	dir := filepath.Join(*dataDir, "matches", *matchID)

	m, res, err := plog.Rebuild(dir, *toTurn)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rebuild:", err)
		os.Exit(1)
	}
	if *toTurn != 0 && m.Turn() != *toTurn {
		fmt.Fprintf(os.Stderr, "match %s only logged %d turns\n", *matchID, m.Turn())
		os.Exit(1)
	}

	out := strings.TrimSpace(*outPath)
	if out == "" {
		out = filepath.Join(dir, fmt.Sprintf("turn-%d.txt", m.Turn()))
	}
	m.WithBoard(func(b *board.Board) {
		err = savefile.Save(out, b)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "write save:", err)
		os.Exit(1)
	}
	fmt.Printf("restore ok: match=%s turn=%d digest=%s active=%v out=%s\n", res.MatchID, m.Turn(), res.FinalDigest, res.Active, out)
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	matchID := fs.String("match", "", "match id filter (optional)")
	action := fs.String("action", "", "action filter, e.g. SAVE or HELLO (optional)")
	failed := fs.Bool("failed", false, "only entries that carry an error")
	_ = fs.Parse(args)

	files, err := plog.ListFiles(filepath.Join(*dataDir, "audit"), "audit")
	if err != nil {
		fmt.Fprintln(os.Stderr, "list audit:", err)
		os.Exit(1)
	}
	wantAction := strings.ToUpper(strings.TrimSpace(*action))
	n := 0
	for _, path := range files {
		err := plog.ReadJSONL(path, func(e plog.AuditEntry) error {
			if *matchID != "" && e.MatchID != *matchID {
				return nil
			}
			if wantAction != "" && e.Action != wantAction {
				return nil
			}
			if *failed && e.Error == "" {
				return nil
			}
			n++
			printJSON(e)
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "read audit:", err)
			os.Exit(1)
		}
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", n)
}
