// Package random has simple reference bots: a random walker, a random wall
// builder and a blocker that walls off the offense's shortest path.
package random

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/grid"
)

var errNotStarted = errors.New("game not started")

func newRand() *rand.Rand {
	var b [8]byte
	seed := time.Now().UTC().UnixNano()
	if _, err := crand.Read(b[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(b[:]))
	}
	return rand.New(rand.NewSource(seed))
}

// session tracks whether a game is in progress.
type session struct {
	started bool
}

func (s *session) start() {
	s.started = true
}

func (s *session) check() error {
	if !s.started {
		return errNotStarted
	}
	return nil
}

func (s *session) End() error {
	if err := s.check(); err != nil {
		return err
	}
	s.started = false
	return nil
}

func NewOffense() api.OffenseBot {
	return NewOffenseWithRand(newRand())
}

func NewOffenseWithRand(rng *rand.Rand) api.OffenseBot {
	return &offense{rng: rng}
}

type offense struct {
	session
	rng *rand.Rand
}

func (o *offense) Start(*api.StartRequest) error {
	o.start()
	return nil
}

// Move steps onto a random open neighbour, or skips when there is none.
func (o *offense) Move(view *grid.Grid) (api.OffenseMove, error) {
	if err := o.check(); err != nil {
		return api.OffenseSkip, err
	}
	mine := view.Find(grid.PlayerOffense)
	if len(mine) != 1 {
		return api.OffenseSkip, nil
	}
	var open []grid.Direction
	for _, n := range view.NearbyTiles(mine[0].X, mine[0].Y) {
		if grid.Walkable(n.Element) && !n.Element.IsTimebomb() {
			open = append(open, n.Direction)
		}
	}
	if len(open) == 0 {
		return api.OffenseSkip, nil
	}
	return api.OffenseMoveFor(open[o.rng.Intn(len(open))]), nil
}

func NewDefense() api.DefenseBot {
	return NewDefenseWithRand(newRand())
}

func NewDefenseWithRand(rng *rand.Rand) api.DefenseBot {
	return &defense{rng: rng}
}

type defense struct {
	session
	rng *rand.Rand
}

func (d *defense) Start(*api.StartRequest) error {
	d.start()
	return nil
}

// Move puts a wall on a random empty cell. The engine rejects walls that
// would cut the offense off from the goal.
func (d *defense) Move(view *grid.Grid) (api.DefenseMove, error) {
	if err := d.check(); err != nil {
		return api.DefenseMove{}, err
	}
	free := view.Find(grid.Background)
	if len(free) == 0 {
		return api.DefenseMove{Action: api.DefenseSkip}, nil
	}
	return api.DefenseMove{Action: api.DefenseWall, Position: free[d.rng.Intn(len(free))]}, nil
}

func NewBlocker() api.DefenseBot {
	return &blocker{}
}

// blocker walls off whichever cell of the offense's shortest path
// lengthens it the most. Once out of walls it drops bombs ahead of the
// offense.
type blocker struct {
	session
	wallsLeft int
	// unlimited is set when the engine did not announce a wall budget.
	unlimited bool
}

func (b *blocker) Start(req *api.StartRequest) error {
	if req.IsOffense {
		return errors.New("blocker only plays defense")
	}
	b.start()
	b.unlimited = req.NWalls == nil
	if req.NWalls != nil {
		b.wallsLeft = *req.NWalls
	}
	return nil
}

func (b *blocker) Move(view *grid.Grid) (api.DefenseMove, error) {
	if err := b.check(); err != nil {
		return api.DefenseMove{}, err
	}
	skip := api.DefenseMove{Action: api.DefenseSkip}
	mine := view.Find(grid.PlayerOffense)
	if len(mine) != 1 {
		return skip, nil
	}
	me := mine[0]
	path, ok := view.ShortestPath(me)
	if !ok || len(path) < 2 {
		return skip, nil
	}

	if b.unlimited || b.wallsLeft > 0 {
		if p, ok := bestWall(view, me, path); ok {
			b.wallsLeft--
			return api.DefenseMove{Action: api.DefenseWall, Position: p}, nil
		}
	}
	// A bomb two cells ahead goes off as the offense walks into it.
	if len(path) > 2 && view.At(path[1]) == grid.Background {
		return api.DefenseMove{Action: api.DefenseTimebomb, Position: path[1]}, nil
	}
	log.Debug("blocker has nothing to play")
	return skip, nil
}

// bestWall tries a wall on each empty cell of path and returns the one that
// leaves the longest remaining path.
func bestWall(view *grid.Grid, me grid.Position, path []grid.Position) (grid.Position, bool) {
	var best grid.Position
	bestLen := len(path)
	for _, p := range path {
		if view.At(p) != grid.Background {
			continue
		}
		trial := view.Clone()
		trial.Set(p.X, p.Y, grid.Wall)
		if next, ok := trial.ShortestPath(me); ok && len(next) > bestLen {
			best, bestLen = p, len(next)
		}
	}
	return best, bestLen > len(path)
}
