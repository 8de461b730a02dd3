package protocol

import "encoding/json"

// HELLO (client -> server). NewGame and Load are mutually exclusive; with
// neither the server generates a board from its tuning defaults.
type HelloMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	AgentName       string       `json:"agent_name,omitempty"`
	NewGame         *NewGameSpec `json:"new_game,omitempty"`
	Load            *LoadSpec    `json:"load,omitempty"`
	Autoplay        *bool        `json:"autoplay,omitempty"`
	Seed            *int64       `json:"seed,omitempty"`
}

// NewGameSpec overrides the server's board defaults; zero fields keep them.
type NewGameSpec struct {
	Side           int   `json:"side,omitempty"`
	PitProbability int   `json:"pit_probability,omitempty"`
	Treasures      int   `json:"treasures,omitempty"`
	Survivors      int   `json:"survivors,omitempty"`
	Pups           int   `json:"pups,omitempty"`
	RandomStart    *bool `json:"random_start,omitempty"`
}

type LoadSpec struct {
	Path string `json:"path,omitempty"`
}

// ACT (client -> server)
type ActMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Action          string `json:"action"`
	Direction       string `json:"direction"`
}

// SAVE (client -> server)
type SaveMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Path            string `json:"path,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	MatchID         string  `json:"match_id"`
	Side            int     `json:"side"`
	Seed            int64   `json:"seed"`
	View            ViewObs `json:"view"`
}

// TURN (server -> client): the outcome of one manual or automatic turn.
type TurnMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Turn            uint64  `json:"turn"`
	Action          string  `json:"action"`
	Direction       string  `json:"direction"`
	Auto            bool    `json:"auto,omitempty"`
	Log             string  `json:"log"`
	Active          bool    `json:"active"`
	View            ViewObs `json:"view"`
}

// EVENT (server -> client): one board notification, streamed as it happens.
type EventMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Event           json.RawMessage `json:"event"`
}

// SAVED (server -> client)
type SavedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Path            string `json:"path"`
	Discovered      int    `json:"discovered"`
}

// DESCRIPTION (server -> client)
type DescriptionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Text            string `json:"text"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// ViewObs is what the player is allowed to see: its own state, the hints
// sensed in its cell and the cells it has uncovered so far.
type ViewObs struct {
	Turn        uint64    `json:"turn"`
	Active      bool      `json:"active"`
	Agent       AgentObs  `json:"agent"`
	Stench      bool      `json:"stench"`
	Breeze      bool      `json:"breeze"`
	WumpusAlive bool      `json:"wumpus_alive"`
	Revealed    []CellObs `json:"revealed"`
	Pups        []PupObs  `json:"pups,omitempty"`
}

type AgentObs struct {
	Name   string `json:"name"`
	Pos    [2]int `json:"pos"`
	Alive  bool   `json:"alive"`
	Arrows int    `json:"arrows"`
	Score  int    `json:"score"`
}

// CellObs is a revealed cell and its display colour.
type CellObs struct {
	Pos [2]int `json:"pos"`
	RGB [3]int `json:"rgb"`
}

// PupObs is a pup standing on a revealed cell.
type PupObs struct {
	Name string `json:"name"`
	Pos  [2]int `json:"pos"`
}
