package log

import (
	"errors"
	"fmt"
	"path/filepath"

	"wumpusworld/internal/persistence/savefile"
	"wumpusworld/internal/sim/board"
	"wumpusworld/internal/sim/match"
)

var ErrDigestMismatch = errors.New("digest mismatch")

// ReplayResult summarises a verified replay.
type ReplayResult struct {
	MatchID     string
	Turns       int
	FinalDigest string
	Active      bool
}

// Replay rebuilds a recorded match from its initial save and seed, reapplies
// every logged turn and checks each post-turn digest against the log.
func Replay(matchDir string) (ReplayResult, error) {
	_, res, err := Rebuild(matchDir, 0)
	return res, err
}

// Rebuild is Replay stopped after turn toTurn (0 = every logged turn). The
// returned match holds the board as it stood after that turn.
func Rebuild(matchDir string, toTurn uint64) (*match.Match, ReplayResult, error) {
	var res ReplayResult
	meta, err := ReadMeta(matchDir)
	if err != nil {
		return nil, res, err
	}
	b, err := savefile.Load(filepath.Join(matchDir, InitialSave))
	if err != nil {
		return nil, res, err
	}
	m, err := match.New(b, match.Options{ID: meta.MatchID, Seed: meta.Seed})
	if err != nil {
		return nil, res, err
	}
	turns, err := ReadTurns(matchDir)
	if err != nil {
		return nil, res, err
	}

	res.MatchID = meta.MatchID
	res.FinalDigest = m.Digest()
	for _, e := range turns {
		if toTurn != 0 && e.Turn > toTurn {
			break
		}
		a, ok := match.ParseAction(e.Action)
		if !ok {
			return m, res, fmt.Errorf("turn %d: bad action %q", e.Turn, e.Action)
		}
		d, ok := board.ParseDirection(e.Dir)
		if !ok {
			return m, res, fmt.Errorf("turn %d: bad direction %q", e.Turn, e.Dir)
		}
		got := m.Replay(a, d, e.Auto)
		if !got.Resolved || got.Turn != e.Turn {
			return m, res, fmt.Errorf("turn %d: replay resolved=%v at turn %d", e.Turn, got.Resolved, got.Turn)
		}
		if got.Digest != e.Digest {
			return m, res, fmt.Errorf("turn %d: %w: got %s want %s", e.Turn, ErrDigestMismatch, got.Digest, e.Digest)
		}
		res.Turns++
		res.FinalDigest = got.Digest
	}
	res.Active = m.Active()
	return m, res, nil
}
