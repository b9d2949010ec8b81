package grid

import (
	"fmt"
	"strings"
)

// String draws the grid one character per cell, one row per line.
func (g *Grid) String() string {
	var sb strings.Builder
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			sb.WriteByte(elements[g.cells[y*g.width+x]].symbol)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Parse reads the String form back. Leading and trailing blank space on each
// line is ignored; every row must have the same width.
func Parse(s string) (*Grid, error) {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	h := len(lines)
	w := len(lines[0])
	if w == 0 {
		return nil, ErrInvalidShape
	}
	g := New(w, h)
	for y, line := range lines {
		if len(line) != w {
			return nil, fmt.Errorf("row %d has width %d, want %d: %w", y, len(line), w, ErrInvalidShape)
		}
		for x := 0; x < w; x++ {
			e, ok := elementsBySymbol[line[x]]
			if !ok || e == Visited {
				return nil, fmt.Errorf("unknown cell %q at (%d, %d)", line[x], x, y)
			}
			if e == Goal {
				if g.hasGoal {
					return nil, fmt.Errorf("second goal at (%d, %d): %w", x, y, ErrGoalPlaced)
				}
				g.goal, g.hasGoal = Position{X: x, Y: y}, true
			}
			g.cells[y*w+x] = e
		}
	}
	return g, nil
}

// MustParse is Parse for fixtures known to be well formed.
func MustParse(s string) *Grid {
	g, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return g
}
