package savefile

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"wumpusworld/internal/sim/board"
)

const (
	minCount = 1
	maxCount = 5
)

// lineReader walks the save line by line and turns every mismatch into an
// ErrMalformedSave carrying the line number.
type lineReader struct {
	sc   *bufio.Scanner
	line int
}

func newLineReader(r io.Reader) *lineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4*1024), 1024*1024)
	return &lineReader{sc: sc}
}

func (lr *lineReader) next() (string, error) {
	if !lr.sc.Scan() {
		if err := lr.sc.Err(); err != nil {
			return "", fmt.Errorf("%w: line %d: %v", ErrMalformedSave, lr.line+1, err)
		}
		return "", lr.malformed("unexpected end of file")
	}
	lr.line++
	return strings.TrimSuffix(lr.sc.Text(), "\r"), nil
}

func (lr *lineReader) malformed(format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedSave, lr.line, fmt.Sprintf(format, args...))
}

func (lr *lineReader) expect(want string) error {
	got, err := lr.next()
	if err != nil {
		return err
	}
	if got != want {
		return lr.malformed("want %q, got %q", want, got)
	}
	return nil
}

func (lr *lineReader) header(title string, first bool) error {
	if !first {
		if err := lr.expect(""); err != nil {
			return err
		}
	}
	if err := lr.expect(title); err != nil {
		return err
	}
	return lr.expect(strings.Repeat("=", len(title)))
}

// field reads "label: value". The line must split on ':' into exactly two
// parts, the label must match exactly and the value must not be blank.
func (lr *lineReader) field(label string) (string, error) {
	got, err := lr.next()
	if err != nil {
		return "", err
	}
	parts := strings.Split(got, ":")
	if len(parts) != 2 || parts[0] != label {
		return "", lr.malformed("want field %q, got %q", label, got)
	}
	v := strings.TrimSpace(parts[1])
	if v == "" {
		return "", lr.malformed("%s: empty value", label)
	}
	return v, nil
}

func (lr *lineReader) intField(label string) (int, error) {
	v, err := lr.field(label)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, lr.malformed("%s: not an integer: %q", label, v)
	}
	return n, nil
}

func (lr *lineReader) boolField(label string) (bool, error) {
	v, err := lr.field(label)
	if err != nil {
		return false, err
	}
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, lr.malformed("%s: not a boolean: %q", label, v)
}

func (lr *lineReader) position(side int, rowLabel, colLabel string) (board.Position, error) {
	r, err := lr.intField(rowLabel)
	if err != nil {
		return board.Position{}, err
	}
	c, err := lr.intField(colLabel)
	if err != nil {
		return board.Position{}, err
	}
	p := board.Pos(r, c)
	if !p.In(side) {
		return p, fmt.Errorf("%w: line %d: position %s outside a board of side %d", ErrRangeViolation, lr.line, p, side)
	}
	return p, nil
}

func inRange(what string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s=%d not in [%d,%d]", ErrRangeViolation, what, v, lo, hi)
	}
	return nil
}

type counts struct {
	side, pits, treasures, survivors, pups int
}

// Decode reads a board in the save format. Content after the last pup
// block is ignored. On error no board is returned.
func Decode(r io.Reader) (*board.Board, error) {
	lr := newLineReader(r)

	if err := lr.header(hdrMap, true); err != nil {
		return nil, err
	}
	var c counts
	var err error
	if c.side, err = lr.intField("Dimensione del lato della mappa"); err != nil {
		return nil, err
	}
	if err := inRange("side", c.side, board.MinSide, board.MaxSide); err != nil {
		return nil, err
	}
	if c.pits, err = lr.intField("Numero delle voragini"); err != nil {
		return nil, err
	}
	if err := inRange("pits", c.pits, 0, c.side*c.side); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		label string
		dst   *int
	}{
		{"Numero dei tesori", &c.treasures},
		{"Numero dei superstiti", &c.survivors},
		{"Numero dei cuccioli", &c.pups},
	} {
		if *f.dst, err = lr.intField(f.label); err != nil {
			return nil, err
		}
		if err := inRange(f.label, *f.dst, minCount, maxCount); err != nil {
			return nil, err
		}
	}

	agent, err := decodeAgent(lr, c.side)
	if err != nil {
		return nil, err
	}
	wumpus, err := decodeWumpus(lr, c.side)
	if err != nil {
		return nil, err
	}

	b := board.New(c.side)
	b.Place(agent)
	place := func(e *board.Element) error {
		if !b.Place(e) {
			return lr.malformed("%s at %s collides with another element", e.Kind, e.Pos)
		}
		return nil
	}
	if err := place(wumpus); err != nil {
		return nil, err
	}

	if err := lr.header(hdrPits, false); err != nil {
		return nil, err
	}
	for i := 0; i < c.pits; i++ {
		if err := lr.expect(blockPit + strconv.Itoa(i)); err != nil {
			return nil, err
		}
		p, err := lr.position(c.side, lblRow, lblCol)
		if err != nil {
			return nil, err
		}
		if err := place(board.NewPit(p)); err != nil {
			return nil, err
		}
	}

	if err := lr.header(hdrTreasures, false); err != nil {
		return nil, err
	}
	for i := 0; i < c.treasures; i++ {
		if err := lr.expect(blockTreasure + strconv.Itoa(i)); err != nil {
			return nil, err
		}
		p, err := lr.position(c.side, lblRow, lblCol)
		if err != nil {
			return nil, err
		}
		v, err := lr.intField(lblValue)
		if err != nil {
			return nil, err
		}
		alive, err := lr.boolField(lblAlive)
		if err != nil {
			return nil, err
		}
		t := board.NewTreasure(p, v)
		t.Alive = alive
		if err := place(t); err != nil {
			return nil, err
		}
	}

	if err := lr.header(hdrSurvivors, false); err != nil {
		return nil, err
	}
	for i := 0; i < c.survivors; i++ {
		if err := lr.expect(blockSurvivor + strconv.Itoa(i)); err != nil {
			return nil, err
		}
		p, err := lr.position(c.side, lblRow, lblCol)
		if err != nil {
			return nil, err
		}
		name, err := lr.field(lblName)
		if err != nil {
			return nil, err
		}
		v, err := lr.intField(lblValue)
		if err != nil {
			return nil, err
		}
		alive, err := lr.boolField(lblAlive)
		if err != nil {
			return nil, err
		}
		s := board.NewSurvivor(p, name, v)
		s.Alive = alive
		if err := place(s); err != nil {
			return nil, err
		}
	}

	if err := lr.header(hdrPups, false); err != nil {
		return nil, err
	}
	for i := 0; i < c.pups; i++ {
		if err := lr.expect(blockPup + strconv.Itoa(i)); err != nil {
			return nil, err
		}
		p, err := lr.position(c.side, lblRow, lblCol)
		if err != nil {
			return nil, err
		}
		name, err := lr.field(lblName)
		if err != nil {
			return nil, err
		}
		alive, err := lr.boolField(lblAlive)
		if err != nil {
			return nil, err
		}
		pup := board.NewPup(p, name)
		pup.Alive = alive
		if err := place(pup); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func decodeAgent(lr *lineReader, side int) (*board.Element, error) {
	if err := lr.header(hdrAgent, false); err != nil {
		return nil, err
	}
	p, err := lr.position(side, "Indice di riga dell'agente", "Indice di colonna dell'agente")
	if err != nil {
		return nil, err
	}
	name, err := lr.field("Nome dell'agente")
	if err != nil {
		return nil, err
	}
	alive, err := lr.boolField("Stato in gioco dell'agente")
	if err != nil {
		return nil, err
	}
	arrows, err := lr.intField("Numero di frecce dell'agente")
	if err != nil {
		return nil, err
	}
	if arrows < 0 {
		return nil, fmt.Errorf("%w: negative arrow count %d", ErrRangeViolation, arrows)
	}
	score, err := lr.intField("Punteggio dell'agente")
	if err != nil {
		return nil, err
	}
	a := board.NewAgent(p, name)
	a.Alive = alive
	a.Arrows = arrows
	a.Score = score
	return a, nil
}

func decodeWumpus(lr *lineReader, side int) (*board.Element, error) {
	if err := lr.header(hdrWumpus, false); err != nil {
		return nil, err
	}
	p, err := lr.position(side, "Indice di riga del Wumpus", "Indice di colonna del Wumpus")
	if err != nil {
		return nil, err
	}
	name, err := lr.field("Nome del Wumpus")
	if err != nil {
		return nil, err
	}
	v, err := lr.intField("Valore del Wumpus")
	if err != nil {
		return nil, err
	}
	alive, err := lr.boolField("Stato in gioco del Wumpus")
	if err != nil {
		return nil, err
	}
	w := board.NewWumpus(p, name, v)
	w.Alive = alive
	return w, nil
}
