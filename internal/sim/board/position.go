package board

import (
	"fmt"
	"strings"
)

// Position is a (row, column) cell coordinate. Row 0 is the northern edge.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func Pos(row, col int) Position { return Position{Row: row, Col: col} }

// In reports whether p lies on a board of the given side.
func (p Position) In(side int) bool {
	return p.Row >= 0 && p.Row < side && p.Col >= 0 && p.Col < side
}

func (p Position) Add(d Direction) Position {
	dr, dc := d.Delta()
	return Position{Row: p.Row + dr, Col: p.Col + dc}
}

func (p Position) String() string { return fmt.Sprintf("%d, %d", p.Row, p.Col) }

// Direction is one of the four orthogonal compass directions.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

// Directions lists every direction in canonical order.
var Directions = [4]Direction{North, East, South, West}

func (d Direction) Valid() bool { return d <= West }

func (d Direction) Delta() (dRow, dCol int) {
	switch d {
	case North:
		return -1, 0
	case East:
		return 0, 1
	case South:
		return 1, 0
	case West:
		return 0, -1
	}
	panic(fmt.Sprintf("board: unknown direction %d", uint8(d)))
}

// String returns the name used in turn narration.
func (d Direction) String() string {
	switch d {
	case North:
		return "nord"
	case East:
		return "est"
	case South:
		return "sud"
	case West:
		return "ovest"
	}
	return fmt.Sprintf("direction(%d)", uint8(d))
}

// Code is the wire form of d.
func (d Direction) Code() string {
	switch d {
	case North:
		return "N"
	case East:
		return "E"
	case South:
		return "S"
	case West:
		return "W"
	}
	return ""
}

// ParseDirection accepts wire codes, English names and narration names.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "N", "NORTH", "NORD":
		return North, true
	case "E", "EAST", "EST":
		return East, true
	case "S", "SOUTH", "SUD":
		return South, true
	case "W", "WEST", "O", "OVEST":
		return West, true
	}
	return 0, false
}
