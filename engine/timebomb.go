package engine

import (
	"github.com/cmars/mazewar/grid"
)

const (
	// BombCooldown is the number of idle rounds required before a bomb can
	// be armed again.
	BombCooldown = 3
	// BombCountdown is the number of rounds between arming and detonation.
	BombCountdown = 3
	// BombPenalty is taken from the offense move budget when caught in a
	// blast.
	BombPenalty = 10
)

type BombState int

const (
	BombCooldownWait BombState = iota
	BombIdle
	BombArmed
)

func (s BombState) String() string {
	switch s {
	case BombCooldownWait:
		return "cooldown"
	case BombIdle:
		return "idle"
	case BombArmed:
		return "armed"
	}
	return "unknown"
}

// TickResult reports what happened to the bomb at the start of a round.
type TickResult struct {
	// SkipOffense is set on the detonation round; the offense does not
	// play.
	SkipOffense bool
	Detonated   bool
	// Hit is set when the offense was within one cell of the blast.
	Hit      bool
	Position grid.Position
}

// Timebomb is the single bomb a defense may have armed at a time.
type Timebomb struct {
	grid      *grid.Grid
	armed     bool
	pos       grid.Position
	countdown int
	sinceLast int
}

func NewTimebomb(g *grid.Grid) *Timebomb {
	return &Timebomb{grid: g}
}

func (t *Timebomb) State() BombState {
	switch {
	case t.armed:
		return BombArmed
	case t.sinceLast < BombCooldown:
		return BombCooldownWait
	}
	return BombIdle
}

// Countdown returns the rounds left before detonation, zero when unarmed.
func (t *Timebomb) Countdown() int {
	if !t.armed {
		return 0
	}
	return t.countdown
}

// At reports whether the armed bomb sits at p.
func (t *Timebomb) At(p grid.Position) bool {
	return t.armed && t.pos == p
}

// Stage is the element showing the bomb's current countdown.
func (t *Timebomb) Stage() grid.ElementType {
	switch {
	case !t.armed:
		return grid.Background
	case t.countdown >= BombCountdown:
		return grid.Timebomb
	case t.countdown == BombCountdown-1:
		return grid.TimebombArmedStage2
	}
	return grid.TimebombArmedStage3
}

// Tick advances the bomb by one round. offense is the offense position
// checked against the blast.
func (t *Timebomb) Tick(offense grid.Position) TickResult {
	if !t.armed {
		t.sinceLast++
		return TickResult{}
	}

	t.countdown--
	if t.countdown > 0 {
		t.restamp(t.Stage())
		return TickResult{Position: t.pos}
	}

	res := TickResult{
		SkipOffense: true,
		Detonated:   true,
		Hit:         t.pos.Chebyshev(offense) <= 1,
		Position:    t.pos,
	}
	t.restamp(grid.Background)
	t.armed = false
	t.countdown = 0
	t.sinceLast = 0
	return res
}

// restamp only touches the cell while the bomb is still on it.
func (t *Timebomb) restamp(e grid.ElementType) {
	if t.grid.At(t.pos).IsTimebomb() {
		t.grid.Set(t.pos.X, t.pos.Y, e)
	}
}

// Drop arms the bomb at p. The goal must stay reachable from offense.
func (t *Timebomb) Drop(p, offense grid.Position) error {
	if t.State() != BombIdle {
		return ErrBombUnavailable
	}
	if !t.grid.InBounds(p) {
		return ErrOutOfBounds
	}
	if t.grid.At(p) != grid.Background {
		return ErrOccupied
	}

	t.grid.Set(p.X, p.Y, grid.Timebomb)
	if !t.grid.PathExists(offense) {
		t.grid.Set(p.X, p.Y, grid.Background)
		return ErrPathBlocked
	}
	t.armed = true
	t.pos = p
	t.countdown = BombCountdown
	t.sinceLast = 0
	return nil
}
