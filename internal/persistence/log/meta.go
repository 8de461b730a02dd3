package log

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	metaFile    = "match.json"
	InitialSave = "initial.sav.zst"
)

// Meta is what a replay needs besides the initial board and the turn log.
type Meta struct {
	MatchID   string    `json:"match_id"`
	Seed      int64     `json:"seed"`
	Agent     string    `json:"agent"`
	Source    string    `json:"source"` // "generated" or the loaded save path
	StartedAt time.Time `json:"started_at"`
}

func WriteMeta(matchDir string, m Meta) error {
	if err := os.MkdirAll(matchDir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(matchDir, metaFile), append(b, '\n'), 0o644)
}

func ReadMeta(matchDir string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(filepath.Join(matchDir, metaFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return m, fmt.Errorf("%s: %w", metaFile, err)
	}
	return m, nil
}
