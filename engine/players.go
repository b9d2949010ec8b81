package engine

import (
	"github.com/cmars/mazewar/grid"
)

// Offense is the player walking to the goal.
type Offense struct {
	Position    grid.Position
	largeVision bool
}

// TakeLargeVision reports whether the next view is unbounded, and resets
// the flag.
func (o *Offense) TakeLargeVision() bool {
	v := o.largeVision
	o.largeVision = false
	return v
}

// enterable is the rule for offense moves. Armed bombs stay passable for
// path checks, but the offense cannot stand on one.
func enterable(e grid.ElementType) bool {
	switch e {
	case grid.Background, grid.Goal, grid.VisionPickup:
		return true
	}
	return false
}

// Step moves the offense to target. It returns true when target is the goal.
func (o *Offense) Step(g *grid.Grid, target grid.Position) (bool, error) {
	if !g.InBounds(target) {
		return false, ErrOutOfBounds
	}
	dest := g.At(target)
	if !enterable(dest) {
		return false, ErrNotWalkable
	}

	g.Set(o.Position.X, o.Position.Y, grid.Background)
	o.Position = target

	if dest == grid.Goal {
		return true, nil
	}
	if dest == grid.VisionPickup {
		o.largeVision = true
	}
	g.Set(target.X, target.Y, grid.PlayerOffense)
	return false, nil
}

// Defense is the player placing walls and bombs.
type Defense struct {
	WallsLeft int
}

// PlaceWall puts a wall at p, provided the goal stays reachable from
// offense.
func (d *Defense) PlaceWall(g *grid.Grid, p, offense grid.Position) error {
	if d.WallsLeft <= 0 {
		return ErrNoWallsLeft
	}
	if !g.InBounds(p) {
		return ErrOutOfBounds
	}
	if g.At(p) != grid.Background {
		return ErrOccupied
	}

	g.Set(p.X, p.Y, grid.Wall)
	if !g.PathExists(offense) {
		g.Set(p.X, p.Y, grid.Background)
		return ErrPathBlocked
	}
	d.WallsLeft--
	return nil
}
