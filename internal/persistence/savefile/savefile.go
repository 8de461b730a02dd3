// Package savefile reads and writes the plain-text board save format.
//
// The format is strict: headers, labels and field order must match exactly.
// Paths ending in ".zst" are transparently zstd-compressed.
package savefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"wumpusworld/internal/sim/board"
)

// DefaultPath is the file used when no path is given.
const DefaultPath = "salvataggioWumpus.txt"

var (
	ErrMalformedSave  = errors.New("malformed save")
	ErrRangeViolation = errors.New("range violation")
)

const (
	hdrMap       = "Caratteristiche della mappa"
	hdrAgent     = "Valori dell'agente"
	hdrWumpus    = "Valori del Wumpus"
	hdrPits      = "Elenco delle voragini"
	hdrTreasures = "Elenco dei tesori"
	hdrSurvivors = "Elenco dei superstiti"
	hdrPups      = "Elenco dei cuccioli di Wumpus"

	blockPit      = "Voragine n. "
	blockTreasure = "Tesoro n. "
	blockSurvivor = "Superstite n. "
	blockPup      = "Cucciolo di Wumpus n. "

	lblRow   = "Indice di riga"
	lblCol   = "Indice di colonna"
	lblName  = "Nome"
	lblValue = "Valore"
	lblAlive = "Stato in gioco"
)

// Save writes b to path, creating parent directories.
func Save(path string, b *board.Board) error {
	return writeFile(path, func(w io.Writer) error { return Encode(w, b) })
}

// Load reads a board from path.
func Load(path string) (*board.Board, error) {
	var b *board.Board
	err := readFile(path, func(r io.Reader) error {
		var err error
		b, err = Decode(r)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if !compressed(path) {
		bw := bufio.NewWriter(f)
		if err := fn(bw); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
		return f.Close()
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := fn(enc); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return f.Close()
}

func readFile(path string, fn func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !compressed(path) {
		return fn(f)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	return fn(dec)
}

func compressed(path string) bool { return strings.HasSuffix(path, ".zst") }

// Encode writes b in the save format. Names that would break the
// line-oriented format are rejected with ErrMalformedSave.
func Encode(w io.Writer, b *board.Board) error {
	a, wu := b.Agent(), b.Wumpus()
	if a == nil || wu == nil {
		return fmt.Errorf("%w: board needs an agent and a wumpus", ErrMalformedSave)
	}
	if err := checkNames(b); err != nil {
		return err
	}
	pits := b.Pits()

	var sb strings.Builder
	section := func(title string) {
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(title)
		sb.WriteByte('\n')
		sb.WriteString(strings.Repeat("=", len(title)))
		sb.WriteByte('\n')
	}
	field := func(label string, v any) { fmt.Fprintf(&sb, "%s: %v\n", label, v) }

	section(hdrMap)
	field("Dimensione del lato della mappa", b.Side())
	field("Numero delle voragini", len(pits))
	field("Numero dei tesori", len(b.Treasures()))
	field("Numero dei superstiti", len(b.Survivors()))
	field("Numero dei cuccioli", len(b.Pups()))

	section(hdrAgent)
	field("Indice di riga dell'agente", a.Pos.Row)
	field("Indice di colonna dell'agente", a.Pos.Col)
	field("Nome dell'agente", a.Name)
	field("Stato in gioco dell'agente", a.Alive)
	field("Numero di frecce dell'agente", a.Arrows)
	field("Punteggio dell'agente", a.Score)

	section(hdrWumpus)
	field("Indice di riga del Wumpus", wu.Pos.Row)
	field("Indice di colonna del Wumpus", wu.Pos.Col)
	field("Nome del Wumpus", wu.Name)
	field("Valore del Wumpus", wu.Value)
	field("Stato in gioco del Wumpus", wu.Alive)

	section(hdrPits)
	for i, p := range pits {
		sb.WriteString(blockPit + strconv.Itoa(i) + "\n")
		field(lblRow, p.Pos.Row)
		field(lblCol, p.Pos.Col)
	}

	section(hdrTreasures)
	for i, t := range b.Treasures() {
		sb.WriteString(blockTreasure + strconv.Itoa(i) + "\n")
		field(lblRow, t.Pos.Row)
		field(lblCol, t.Pos.Col)
		field(lblValue, t.Value)
		field(lblAlive, t.Alive)
	}

	section(hdrSurvivors)
	for i, s := range b.Survivors() {
		sb.WriteString(blockSurvivor + strconv.Itoa(i) + "\n")
		field(lblRow, s.Pos.Row)
		field(lblCol, s.Pos.Col)
		field(lblName, s.Name)
		field(lblValue, s.Value)
		field(lblAlive, s.Alive)
	}

	section(hdrPups)
	for i, p := range b.Pups() {
		sb.WriteString(blockPup + strconv.Itoa(i) + "\n")
		field(lblRow, p.Pos.Row)
		field(lblCol, p.Pos.Col)
		field(lblName, p.Name)
		field(lblAlive, p.Alive)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// SafeName reports whether name survives a save and reload unchanged: it is
// non-empty, has no ':' or line break, and no surrounding whitespace.
func SafeName(name string) bool {
	return name != "" && strings.TrimSpace(name) == name && !strings.ContainsAny(name, ":\r\n")
}

func checkNames(b *board.Board) error {
	named := []*board.Element{b.Agent(), b.Wumpus()}
	named = append(named, b.Survivors()...)
	named = append(named, b.Pups()...)
	for _, e := range named {
		if !SafeName(e.Name) {
			return fmt.Errorf("%w: %s name %q cannot be saved", ErrMalformedSave, e.Kind, e.Name)
		}
	}
	return nil
}
