package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	plog "wumpusworld/internal/persistence/log"
	"wumpusworld/internal/persistence/savefile"
)

func main() {
	var (
		matchDir = flag.String("match", "", "recorded match dir (contains match.json)")
		dataDir  = flag.String("data", "./data", "runtime data directory (used with -id or -list)")
		matchID  = flag.String("id", "", "match id under <data>/matches")
		list     = flag.Bool("list", false, "list recorded matches and exit")
		verbose  = flag.Bool("v", false, "print every replayed turn")
	)
	flag.Parse()

	if *list {
		if err := listMatches(filepath.Join(*dataDir, "matches")); err != nil {
			fmt.Fprintln(os.Stderr, "list matches:", err)
			os.Exit(1)
		}
		return
	}

	dir := *matchDir
	if dir == "" && *matchID != "" {
		dir = filepath.Join(*dataDir, "matches", *matchID)
	}
	if dir == "" {
		fmt.Fprintln(os.Stderr, "missing -match or -id")
		os.Exit(2)
	}

	meta, err := plog.ReadMeta(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read meta:", err)
		os.Exit(1)
	}
	b, err := savefile.Load(filepath.Join(dir, plog.InitialSave))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read initial board:", err)
		os.Exit(1)
	}
	fmt.Printf("match=%s agent=%s seed=%d source=%s started=%s side=%d digest=%s\n",
		meta.MatchID, meta.Agent, meta.Seed, meta.Source, meta.StartedAt.Format("2006-01-02T15:04:05Z07:00"), b.Side(), b.Digest())

	if *verbose {
		turns, err := plog.ReadTurns(dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read turns:", err)
			os.Exit(1)
		}
		for _, e := range turns {
			src := "manual"
			if e.Auto {
				src = "auto"
			}
			fmt.Printf("turn=%d %s %s (%s) events=%d digest=%s\n", e.Turn, e.Action, e.Dir, src, len(e.Events), e.Digest)
		}
	}

	res, err := plog.Replay(dir)
	if err != nil {
		if errors.Is(err, plog.ErrDigestMismatch) {
			fmt.Fprintf(os.Stderr, "replay diverged after %d turns: %v\n", res.Turns, err)
		} else {
			fmt.Fprintln(os.Stderr, "replay:", err)
		}
		os.Exit(1)
	}
	fmt.Printf("replay ok: turns=%d final_digest=%s active=%v\n", res.Turns, res.FinalDigest, res.Active)
}

func listMatches(root string) error {
	ents, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		meta, err := plog.ReadMeta(filepath.Join(root, name))
		if err != nil {
			fmt.Printf("%s (unreadable: %v)\n", name, err)
			continue
		}
		fmt.Printf("%s agent=%s seed=%d source=%s started=%s\n", meta.MatchID, meta.Agent, meta.Seed, meta.Source, meta.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
