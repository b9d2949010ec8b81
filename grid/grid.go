package grid

import (
	"errors"
	"fmt"
)

var (
	ErrNoGoal       = errors.New("grid has no goal")
	ErrGoalPlaced   = errors.New("goal already placed")
	ErrNoFreeCell   = errors.New("no free background cell")
	ErrInvalidShape = errors.New("invalid grid dimensions")
)

// maxPlacementAttempts bounds random placement before falling back to a scan.
const maxPlacementAttempts = 1000

// Rand is the subset of *math/rand.Rand used for placement.
type Rand interface {
	Intn(n int) int
}

// Tile is a cell and its content.
type Tile struct {
	Position
	Element ElementType
}

// Neighbor is an orthogonally adjacent tile and the direction that reaches it.
type Neighbor struct {
	Tile
	Direction Direction
}

// Grid is a width x height board of elements with at most one goal.
type Grid struct {
	width, height int
	cells         []ElementType

	goal    Position
	hasGoal bool
}

// New returns a grid filled with Background.
func New(width, height int) *Grid {
	g := &Grid{width: width, height: height, cells: make([]ElementType, width*height)}
	for i := range g.cells {
		g.cells[i] = Background
	}
	return g
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.X < g.width && p.Y >= 0 && p.Y < g.height
}

func (g *Grid) index(p Position) int {
	return p.Y*g.width + p.X
}

// Get returns the tile at (x, y), or false if it lies outside the grid.
func (g *Grid) Get(x, y int) (Tile, bool) {
	p := Position{X: x, Y: y}
	if !g.InBounds(p) {
		return Tile{}, false
	}
	return Tile{Position: p, Element: g.cells[g.index(p)]}, true
}

// At returns the element at p, treating everything outside the grid as Wall.
func (g *Grid) At(p Position) ElementType {
	if !g.InBounds(p) {
		return Wall
	}
	return g.cells[g.index(p)]
}

// Set writes e at (x, y). It reports false, leaving the grid untouched, when
// the cell is out of bounds, e is search scratch state, or the write would
// change the goal cell.
func (g *Grid) Set(x, y int, e ElementType) bool {
	p := Position{X: x, Y: y}
	if !g.InBounds(p) || !e.valid() || e == Visited {
		return false
	}
	if g.hasGoal && p == g.goal && e != Goal {
		return false
	}
	g.cells[g.index(p)] = e
	return true
}

// NearbyTiles returns the in-bounds orthogonal neighbours of (x, y) in search
// order.
func (g *Grid) NearbyTiles(x, y int) []Neighbor {
	origin := Position{X: x, Y: y}
	if !g.InBounds(origin) {
		return nil
	}
	nearby := make([]Neighbor, 0, len(searchOrder))
	for _, d := range searchOrder {
		p := origin.Add(d.Delta())
		if t, ok := g.Get(p.X, p.Y); ok {
			nearby = append(nearby, Neighbor{Tile: t, Direction: d})
		}
	}
	return nearby
}

// Goal returns the goal position, if one has been placed.
func (g *Grid) Goal() (Position, bool) {
	return g.goal, g.hasGoal
}

// PlaceGoal puts the goal at p. The goal can be placed once, on Background.
func (g *Grid) PlaceGoal(p Position) error {
	if g.hasGoal {
		return ErrGoalPlaced
	}
	if g.At(p) != Background {
		return fmt.Errorf("cannot place goal at %v: %w", p, ErrNoFreeCell)
	}
	g.cells[g.index(p)] = Goal
	g.goal, g.hasGoal = p, true
	return nil
}

// SetGoal places the goal on a random Background cell in the east half of
// the grid.
func (g *Grid) SetGoal(rng Rand) (Position, error) {
	if g.hasGoal {
		return Position{}, ErrGoalPlaced
	}
	minX := g.width / 2
	p, err := g.randomBackground(rng, minX)
	if err != nil {
		return Position{}, err
	}
	return p, g.PlaceGoal(p)
}

// SetVisionPickup places a vision pickup on a random Background cell.
func (g *Grid) SetVisionPickup(rng Rand) (Position, error) {
	p, err := g.randomBackground(rng, 0)
	if err != nil {
		return Position{}, err
	}
	g.Set(p.X, p.Y, VisionPickup)
	return p, nil
}

func (g *Grid) randomBackground(rng Rand, minX int) (Position, error) {
	w := g.width - minX
	if w <= 0 || g.height <= 0 {
		return Position{}, ErrInvalidShape
	}
	for i := 0; i < maxPlacementAttempts; i++ {
		p := Position{X: minX + rng.Intn(w), Y: rng.Intn(g.height)}
		if g.At(p) == Background {
			return p, nil
		}
	}
	for y := 0; y < g.height; y++ {
		for x := minX; x < g.width; x++ {
			if p := (Position{X: x, Y: y}); g.At(p) == Background {
				return p, nil
			}
		}
	}
	return Position{}, ErrNoFreeCell
}

// Find returns every position holding e, in row-major order.
func (g *Grid) Find(e ElementType) []Position {
	var found []Position
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			if g.cells[y*g.width+x] == e {
				found = append(found, Position{X: x, Y: y})
			}
		}
	}
	return found
}

// Rows returns a copy of the grid indexed [y][x].
func (g *Grid) Rows() [][]ElementType {
	rows := make([][]ElementType, g.height)
	for y := range rows {
		rows[y] = append([]ElementType(nil), g.cells[y*g.width:(y+1)*g.width]...)
	}
	return rows
}

func (g *Grid) Clone() *Grid {
	c := *g
	c.cells = append([]ElementType(nil), g.cells...)
	return &c
}

// Equal reports whether both grids have the same shape, cells and goal.
func (g *Grid) Equal(o *Grid) bool {
	if g.width != o.width || g.height != o.height || g.hasGoal != o.hasGoal || g.goal != o.goal {
		return false
	}
	for i := range g.cells {
		if g.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}
