package api

import (
	"fmt"

	"github.com/cmars/mazewar/grid"
)

// ParseError is returned when a payload does not describe a legal move.
type ParseError struct {
	Field string
	Value string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

// OffenseMove is a parsed offense response.
type OffenseMove int

const (
	OffenseSkip OffenseMove = iota
	OffenseUp
	OffenseDown
	OffenseLeft
	OffenseRight
)

var offenseMoves = []struct {
	wire string
	dir  grid.Direction
}{
	OffenseSkip:  {wire: "skip"},
	OffenseUp:    {wire: "up", dir: grid.Up},
	OffenseDown:  {wire: "down", dir: grid.Down},
	OffenseLeft:  {wire: "left", dir: grid.Left},
	OffenseRight: {wire: "right", dir: grid.Right},
}

func (m OffenseMove) String() string {
	if m < 0 || int(m) >= len(offenseMoves) {
		return fmt.Sprintf("offense(%d)", int(m))
	}
	return offenseMoves[m].wire
}

// Direction returns the step taken by m; skip has none.
func (m OffenseMove) Direction() (grid.Direction, bool) {
	if m <= OffenseSkip || int(m) >= len(offenseMoves) {
		return 0, false
	}
	return offenseMoves[m].dir, true
}

// Delta is the position change for m, zero for skip.
func (m OffenseMove) Delta() (grid.Position, bool) {
	d, ok := m.Direction()
	if !ok {
		return grid.Position{}, false
	}
	return d.Delta(), true
}

// OffenseMoveFor maps a grid direction to its move.
func OffenseMoveFor(d grid.Direction) OffenseMove {
	for i, m := range offenseMoves {
		if i != int(OffenseSkip) && m.dir == d {
			return OffenseMove(i)
		}
	}
	return OffenseSkip
}

// Parse validates the response and converts it to an OffenseMove.
func (r *OffenseMoveResponse) Parse() (OffenseMove, error) {
	for i, m := range offenseMoves {
		if m.wire == r.Move {
			return OffenseMove(i), nil
		}
	}
	return OffenseSkip, &ParseError{Field: "move", Value: r.Move}
}

func (m OffenseMove) Response() *OffenseMoveResponse {
	return &OffenseMoveResponse{Move: m.String()}
}

// DefenseAction is what the defense places on its turn.
type DefenseAction int

const (
	DefenseSkip DefenseAction = iota
	DefenseWall
	DefenseTimebomb
)

var defenseActions = []string{
	DefenseSkip:     "skip",
	DefenseWall:     "wall",
	DefenseTimebomb: "timebomb",
}

func (a DefenseAction) String() string {
	if a < 0 || int(a) >= len(defenseActions) {
		return fmt.Sprintf("defense(%d)", int(a))
	}
	return defenseActions[a]
}

// DefenseMove is a parsed defense response.
type DefenseMove struct {
	Action   DefenseAction
	Position grid.Position
}

func (m DefenseMove) String() string {
	if m.Action == DefenseSkip {
		return m.Action.String()
	}
	return fmt.Sprintf("%s@%v", m.Action, m.Position)
}

// Parse validates the response and converts it to a DefenseMove.
func (r *DefenseMoveResponse) Parse() (DefenseMove, error) {
	for i, name := range defenseActions {
		if name != r.Element {
			continue
		}
		m := DefenseMove{Action: DefenseAction(i)}
		if m.Action != DefenseSkip {
			m.Position = grid.Position{X: r.X, Y: r.Y}
		}
		return m, nil
	}
	return DefenseMove{}, &ParseError{Field: "element", Value: r.Element}
}

func (m DefenseMove) Response() *DefenseMoveResponse {
	return &DefenseMoveResponse{X: m.Position.X, Y: m.Position.Y, Element: m.Action.String()}
}
