// Package seeker is an offense bot that heads for the goal when it can see
// it, and otherwise explores east, where goals are placed.
package seeker

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"math/rand"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/grid"
)

var errNotStarted = errors.New("game not started")

func New() api.OffenseBot {
	return NewWithRand(rand.New(rand.NewSource(seed())))
}

// NewWithRand uses rng to break ties between equally good moves.
func NewWithRand(rng *rand.Rand) api.OffenseBot {
	return &seeker{rng: rng}
}

func seed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UTC().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

type seeker struct {
	rng     *rand.Rand
	started bool
	moves   int
}

func (s *seeker) Start(req *api.StartRequest) error {
	if !req.IsOffense {
		return errors.New("seeker only plays offense")
	}
	s.started = true
	s.moves = 0
	return nil
}

func (s *seeker) Move(view *grid.Grid) (api.OffenseMove, error) {
	if !s.started {
		return api.OffenseSkip, errNotStarted
	}
	s.moves++
	m := s.decide(view)
	log.WithFields(log.Fields{"move": s.moves, "dir": m}).Debug("seeker moved")
	return m, nil
}

func (s *seeker) End() error {
	if !s.started {
		return errNotStarted
	}
	s.started = false
	return nil
}

func (s *seeker) decide(view *grid.Grid) api.OffenseMove {
	mine := view.Find(grid.PlayerOffense)
	if len(mine) != 1 {
		return api.OffenseSkip
	}
	me := mine[0]
	r := route{view: view, cautious: avoidBombs(view, me)}

	if goal, ok := view.Goal(); ok {
		if path, ok := r.to(me, goal); ok {
			return step(view, me, path)
		}
	}
	// More vision is worth a detour.
	if path, ok := r.nearest(me, view.Find(grid.VisionPickup)); ok {
		return step(view, me, path)
	}
	if path, ok := s.explore(r, me); ok {
		return step(view, me, path)
	}
	return api.OffenseSkip
}

// blastRadius is how close to an armed bomb a cell is unsafe.
const blastRadius = 1

// avoidBombs returns a copy of view with every cell in reach of an armed
// bomb walled off, except the player's own.
func avoidBombs(view *grid.Grid, me grid.Position) *grid.Grid {
	masked := view.Clone()
	for _, e := range []grid.ElementType{grid.Timebomb, grid.TimebombArmedStage2, grid.TimebombArmedStage3} {
		for _, b := range view.Find(e) {
			for dy := -blastRadius; dy <= blastRadius; dy++ {
				for dx := -blastRadius; dx <= blastRadius; dx++ {
					if p := b.Add(grid.Position{X: dx, Y: dy}); p != me {
						masked.Set(p.X, p.Y, grid.Wall)
					}
				}
			}
		}
	}
	return masked
}

type route struct {
	view, cautious *grid.Grid
}

// to prefers a path clear of bombs, and falls back to any walkable one.
func (r route) to(from, target grid.Position) ([]grid.Position, bool) {
	if path, ok := r.cautious.PathTo(from, target, grid.Walkable); ok {
		return path, true
	}
	return r.view.PathTo(from, target, grid.Walkable)
}

func (r route) nearest(from grid.Position, targets []grid.Position) ([]grid.Position, bool) {
	var best []grid.Position
	for _, t := range targets {
		path, ok := r.to(from, t)
		if ok && len(path) > 0 && (best == nil || len(path) < len(best)) {
			best = path
		}
	}
	return best, best != nil
}

type candidate struct {
	path   []grid.Position
	target grid.Position
	jitter int
}

// explore walks toward the edge of the view, preferring the easternmost
// reachable edge cell and then the shortest walk.
func (s *seeker) explore(r route, me grid.Position) ([]grid.Position, bool) {
	var cs []candidate
	view := r.view
	w, h := view.Width(), view.Height()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x != 0 && y != 0 && x != w-1 && y != h-1 {
				continue
			}
			p := grid.Position{X: x, Y: y}
			if p == me || !grid.Walkable(view.At(p)) {
				continue
			}
			if path, ok := r.to(me, p); ok {
				cs = append(cs, candidate{path: path, target: p, jitter: s.rng.Int()})
			}
		}
	}
	if len(cs) == 0 {
		return nil, false
	}
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].target.X != cs[j].target.X {
			return cs[i].target.X > cs[j].target.X
		}
		if len(cs[i].path) != len(cs[j].path) {
			return len(cs[i].path) < len(cs[j].path)
		}
		return cs[i].jitter < cs[j].jitter
	})
	return cs[0].path, true
}

// step is the move onto the first cell of path. A bomb cannot be entered,
// so the seeker waits for it to go off instead.
func step(view *grid.Grid, me grid.Position, path []grid.Position) api.OffenseMove {
	if len(path) == 0 || view.At(path[0]).IsTimebomb() {
		return api.OffenseSkip
	}
	delta := path[0].Sub(me)
	for _, d := range []grid.Direction{grid.Right, grid.Left, grid.Down, grid.Up} {
		if d.Delta() == delta {
			return api.OffenseMoveFor(d)
		}
	}
	return api.OffenseSkip
}
