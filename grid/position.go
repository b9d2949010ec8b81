package grid

import (
	"fmt"
	"math"
)

// Position is a cell coordinate: X is the column, Y is the row, both
// 0-indexed with row 0 at the top.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y}
}

func (p Position) Sub(o Position) Position {
	return Position{X: p.X - o.X, Y: p.Y - o.Y}
}

// Distance returns the Euclidean distance between p and o.
func (p Position) Distance(o Position) float64 {
	d := p.Sub(o)
	return math.Sqrt(float64(d.X*d.X + d.Y*d.Y))
}

// Chebyshev returns the king-move distance between p and o.
func (p Position) Chebyshev(o Position) int {
	d := p.Sub(o)
	return max(abs(d.X), abs(d.Y))
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Y)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Direction is one of the four orthogonal steps on the grid.
type Direction int

const (
	Right Direction = iota
	Left
	Down
	Up
)

// searchOrder is the fixed neighbour order used by every search: +x, -x, +y, -y.
var searchOrder = [...]Direction{Right, Left, Down, Up}

var directionDeltas = [...]Position{
	Right: {X: 1},
	Left:  {X: -1},
	Down:  {Y: 1},
	Up:    {Y: -1},
}

var directionNames = [...]string{
	Right: "right",
	Left:  "left",
	Down:  "down",
	Up:    "up",
}

func (d Direction) Delta() Position {
	return directionDeltas[d]
}

func (d Direction) String() string {
	if d < 0 || int(d) >= len(directionNames) {
		return fmt.Sprintf("direction(%d)", int(d))
	}
	return directionNames[d]
}
