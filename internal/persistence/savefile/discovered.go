package savefile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"wumpusworld/internal/sim/board"
)

const hdrDiscovered = "Caselle scoperte"

// Cell is a revealed board cell and the colour the display painted it.
type Cell struct {
	Pos board.Position `json:"pos"`
	R   uint8          `json:"r"`
	G   uint8          `json:"g"`
	B   uint8          `json:"b"`
}

// Discovered is the display-owned list of revealed cells that may trail a save.
type Discovered []Cell

// EncodeDiscovered appends the discovered-cells section after a save body.
func EncodeDiscovered(w io.Writer, cells Discovered) error {
	var sb strings.Builder
	sb.WriteString("\n" + hdrDiscovered + "\n")
	sb.WriteString(strings.Repeat("=", len(hdrDiscovered)) + "\n")
	for _, c := range cells {
		fmt.Fprintf(&sb, "%d:%d:%d:%d:%d\n", c.Pos.Row, c.Pos.Col, c.R, c.G, c.B)
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

// DecodeDiscovered scans r for the discovered-cells section. It returns
// (nil, false, nil) when the section is absent.
func DecodeDiscovered(r io.Reader, side int) (Discovered, bool, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4*1024), 1024*1024)
	found := false
	for sc.Scan() {
		if strings.TrimSuffix(sc.Text(), "\r") == hdrDiscovered {
			found = true
			break
		}
	}
	if err := sc.Err(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedSave, err)
	}
	if !found {
		return nil, false, nil
	}
	// underline
	sc.Scan()

	var out Discovered
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if line == "" {
			continue
		}
		c, err := parseCell(line, side)
		if err != nil {
			return nil, true, err
		}
		out = append(out, c)
	}
	if err := sc.Err(); err != nil {
		return nil, true, fmt.Errorf("%w: %v", ErrMalformedSave, err)
	}
	return out, true, nil
}

func parseCell(line string, side int) (Cell, error) {
	parts := strings.Split(line, ":")
	if len(parts) != 5 {
		return Cell{}, fmt.Errorf("%w: discovered cell %q", ErrMalformedSave, line)
	}
	var n [5]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Cell{}, fmt.Errorf("%w: discovered cell %q", ErrMalformedSave, line)
		}
		n[i] = v
	}
	pos := board.Pos(n[0], n[1])
	if !pos.In(side) {
		return Cell{}, fmt.Errorf("%w: discovered cell %s outside side %d", ErrRangeViolation, pos, side)
	}
	for _, v := range n[2:] {
		if v < 0 || v > 255 {
			return Cell{}, fmt.Errorf("%w: colour component %d in %q", ErrRangeViolation, v, line)
		}
	}
	return Cell{Pos: pos, R: uint8(n[2]), G: uint8(n[3]), B: uint8(n[4])}, nil
}

// SaveWithDiscovered writes b followed by the discovered-cells section.
func SaveWithDiscovered(path string, b *board.Board, cells Discovered) error {
	return writeFile(path, func(w io.Writer) error {
		if err := Encode(w, b); err != nil {
			return err
		}
		return EncodeDiscovered(w, cells)
	})
}

// LoadWithDiscovered reads a board and, if present, its discovered cells.
func LoadWithDiscovered(path string) (*board.Board, Discovered, error) {
	var (
		b     *board.Board
		cells Discovered
	)
	err := readFile(path, func(r io.Reader) error {
		raw, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		if b, err = Decode(bytes.NewReader(raw)); err != nil {
			return err
		}
		cells, _, err = DecodeDiscovered(bytes.NewReader(raw), b.Side())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return b, cells, nil
}

// Colours the display paints a revealed cell with, by the hints it shows.
var (
	ColourBoth   = [3]uint8{0, 0, 0}
	ColourStench = [3]uint8{255, 0, 0}
	ColourBreeze = [3]uint8{0, 0, 255}
	ColourPlain  = [3]uint8{255, 255, 255}
)

// Reveal marks p as discovered, colouring it by its hints. A cell already
// present is repainted in place.
func (d *Discovered) Reveal(p board.Position, stench, breeze bool) {
	c := ColourPlain
	switch {
	case stench && breeze:
		c = ColourBoth
	case stench:
		c = ColourStench
	case breeze:
		c = ColourBreeze
	}
	cell := Cell{Pos: p, R: c[0], G: c[1], B: c[2]}
	for i := range *d {
		if (*d)[i].Pos == p {
			(*d)[i] = cell
			return
		}
	}
	*d = append(*d, cell)
}
