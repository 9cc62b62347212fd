package rocker

import (
	"fmt"
	"strings"
)

// Position is one of the four buttons of a two-rocker switch.
type Position string

// Rocker positions. A is the first rocker, B the second; I and O are the
// two ends of each rocker.
const (
	PositionAI Position = "AI"
	PositionAO Position = "AO"
	PositionBI Position = "BI"
	PositionBO Position = "BO"
)

// positionTable maps each position to its button index in the F6-02 RPS
// payload (R1/R2 field). Order is the processing order of a batch.
var positionTable = [...]struct {
	position Position
	index    int
}{
	{PositionAI, 0},
	{PositionAO, 1},
	{PositionBI, 2},
	{PositionBO, 3},
}

// Positions returns all positions in processing order.
func Positions() []Position {
	out := make([]Position, len(positionTable))
	for i, e := range positionTable {
		out[i] = e.position
	}
	return out
}

// HardwareIndex returns the button index of p in the radio payload, or -1
// for an unknown position.
func (p Position) HardwareIndex() int {
	for _, e := range positionTable {
		if e.position == p {
			return e.index
		}
	}
	return -1
}

// Valid reports whether p is one of the four rocker positions.
func (p Position) Valid() bool {
	return p.HardwareIndex() >= 0
}

// ParsePosition parses a position name, ignoring case.
func ParsePosition(s string) (Position, error) {
	p := Position(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q (want AI, AO, BI or BO)", ErrInvalidPosition, s)
	}
	return p, nil
}
