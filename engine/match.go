package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/grid"
	"github.com/cmars/mazewar/retry"
)

// Options tune a match. Zero MaxMoves and NWalls are derived from the grid
// size.
type Options struct {
	VisionRadius int
	MaxMoves     int
	NWalls       int
	Generate     grid.GenerateOptions
}

var DefaultOptions = Options{
	VisionRadius: 3,
	Generate:     grid.DefaultGenerateOptions,
}

var startPolicy = retry.Policy{Attempts: 3, Delay: 200 * time.Millisecond}

// SeedValue maps a seed string onto a generator seed.
func SeedValue(seed string) int64 {
	h := fnv.New64a()
	h.Write([]byte(seed))
	return int64(h.Sum64())
}

// Match is the state of one game between an offense and a defense bot. It
// is driven by a single goroutine.
type Match struct {
	seed string
	opts Options

	grid    *grid.Grid
	goal    grid.Position
	offense Offense
	defense Defense
	bomb    *Timebomb

	offenseBot Bot
	defenseBot Bot

	maxMoves       int
	availableMoves int
	round          int
	visionRadius   int
	score          int
	over           bool
	errMsg         *string

	steps []api.Step
	log   stepLog
}

// NewMatch generates a grid from seed and prepares a match on it.
func NewMatch(seed string, offenseBot, defenseBot Bot, opts Options) (*Match, error) {
	rng := rand.New(rand.NewSource(SeedValue(seed)))
	layout, err := grid.Generate(rng, opts.Generate)
	if err != nil {
		return nil, fmt.Errorf("failed to generate grid: %w", err)
	}
	return newMatch(seed, layout, offenseBot, defenseBot, opts)
}

func newMatch(seed string, layout *grid.Layout, offenseBot, defenseBot Bot, opts Options) (*Match, error) {
	g := layout.Grid
	goal, ok := g.Goal()
	if !ok {
		return nil, grid.ErrNoGoal
	}
	if !g.PathExists(layout.Start) {
		return nil, ErrPathBlocked
	}
	g.Set(layout.Start.X, layout.Start.Y, grid.PlayerOffense)

	m := &Match{
		seed:         seed,
		opts:         opts,
		grid:         g,
		goal:         goal,
		offense:      Offense{Position: layout.Start},
		bomb:         NewTimebomb(g),
		offenseBot:   offenseBot,
		defenseBot:   defenseBot,
		maxMoves:     opts.MaxMoves,
		visionRadius: opts.VisionRadius,
		log:          stepLog{entry: log.WithField("seed", seed)},
	}
	if m.maxMoves <= 0 {
		m.maxMoves = 4 * (g.Width() + g.Height())
	}
	m.availableMoves = m.maxMoves
	m.defense.WallsLeft = opts.NWalls
	if m.defense.WallsLeft <= 0 {
		m.defense.WallsLeft = g.Width()
		if g.Height() > g.Width() {
			m.defense.WallsLeft = g.Height()
		}
	}
	m.score = m.computeScore()
	return m, nil
}

func (m *Match) Seed() string           { return m.seed }
func (m *Match) Grid() *grid.Grid       { return m.grid }
func (m *Match) Offense() grid.Position { return m.offense.Position }
func (m *Match) WallsLeft() int         { return m.defense.WallsLeft }
func (m *Match) AvailableMoves() int    { return m.availableMoves }
func (m *Match) MaxMoves() int          { return m.maxMoves }
func (m *Match) Round() int             { return m.round }
func (m *Match) Over() bool             { return m.over }
func (m *Match) Score() int             { return m.score }
func (m *Match) Bomb() *Timebomb        { return m.bomb }

// Setup sends /start to both bots and records the initial step. A bot that
// will not start ends the match with an error.
func (m *Match) Setup(ctx context.Context) error {
	colors := grid.ColorTable()
	maxMoves, nWalls := m.maxMoves, m.defense.WallsLeft
	starts := []struct {
		role string
		bot  Bot
		req  *api.StartRequest
	}{
		{"offense", m.offenseBot, &api.StartRequest{IsOffense: true, MaxMoves: &maxMoves, ElementTypesColor: colors}},
		{"defense", m.defenseBot, &api.StartRequest{MaxMoves: &maxMoves, NWalls: &nWalls, ElementTypesColor: colors}},
	}
	for _, s := range starts {
		err := retry.Do(ctx, startPolicy, func(ctx context.Context) error {
			return s.bot.Start(ctx, s.req)
		})
		if err != nil {
			msg := fmt.Sprintf("%s bot failed to start: %v", s.role, err)
			m.log.add(log.ErrorLevel, "%s", msg)
			m.errMsg = &msg
			m.over = true
			m.recordStep()
			return fmt.Errorf("%s bot failed to start: %w", s.role, err)
		}
	}
	m.log.info("match started on a %dx%d grid, offense at %v, goal at %v, %d moves, %d walls",
		m.grid.Width(), m.grid.Height(), m.offense.Position, m.goal, m.maxMoves, m.defense.WallsLeft)
	m.recordStep()
	return nil
}

// PlayRound plays one round: bomb tick, defense, then offense. It returns
// the recorded step.
func (m *Match) PlayRound(ctx context.Context) api.Step {
	if m.over {
		return m.steps[len(m.steps)-1]
	}
	m.round++
	m.log.entry = m.log.entry.WithField("round", m.round)

	tick := m.bomb.Tick(m.offense.Position)
	if tick.Detonated {
		if tick.Hit {
			m.availableMoves -= BombPenalty
			if m.availableMoves < 0 {
				m.availableMoves = 0
			}
			m.log.info("timebomb at %v exploded, offense was caught in the blast", tick.Position)
		} else {
			m.log.info("timebomb at %v exploded, offense escaped the blast", tick.Position)
		}
	} else if m.bomb.State() == BombArmed {
		m.log.info("timebomb at %v will explode in %d rounds", tick.Position, m.bomb.Countdown())
	}

	m.playDefense(ctx)

	switch {
	case tick.SkipOffense:
		m.log.info("offense is stunned by the explosion")
	case m.availableMoves <= 0:
		m.log.info("offense has no moves left")
	default:
		m.playOffense(ctx)
	}

	switch {
	case m.offense.Position == m.goal:
		m.over = true
		m.log.info("offense reached the goal in %d rounds", m.round)
	case m.availableMoves <= 0:
		m.over = true
		m.log.info("offense ran out of moves")
	case m.round >= m.maxMoves:
		m.over = true
		m.log.info("round limit reached")
	}
	return m.recordStep()
}

func (m *Match) playDefense(ctx context.Context) {
	view, err := m.grid.RenderBase64(m.offense.Position, grid.Unbounded)
	if err != nil {
		m.log.add(log.ErrorLevel, "failed to render defense view: %v", err)
		return
	}
	move, err := m.defenseBot.NextDefense(ctx, view)
	if err != nil {
		m.log.warn("defense bot failed to move: %v", err)
		return
	}

	switch move.Action {
	case api.DefenseSkip:
		m.log.info("defense skipped")
		return
	case api.DefenseWall:
		err = m.defense.PlaceWall(m.grid, move.Position, m.offense.Position)
	case api.DefenseTimebomb:
		err = m.bomb.Drop(move.Position, m.offense.Position)
	}
	if err != nil {
		m.log.info("defense move %v rejected: %v", move, err)
		return
	}
	m.log.info("defense played %v", move)
}

func (m *Match) playOffense(ctx context.Context) {
	radius := m.opts.VisionRadius
	if m.offense.TakeLargeVision() {
		radius = grid.Unbounded
	}
	m.visionRadius = radius

	view, err := m.grid.RenderBase64(m.offense.Position, radius)
	if err != nil {
		m.log.add(log.ErrorLevel, "failed to render offense view: %v", err)
		return
	}
	move, err := m.offenseBot.NextOffense(ctx, view)
	if err != nil {
		m.log.warn("offense bot failed to move: %v", err)
		return
	}
	delta, ok := move.Delta()
	if !ok {
		m.log.info("offense skipped")
		return
	}

	m.availableMoves--
	target := m.offense.Position.Add(delta)
	if _, err := m.offense.Step(m.grid, target); err != nil {
		m.log.info("offense move %v to %v rejected: %v", move, target, err)
		return
	}
	if m.offense.largeVision {
		m.log.info("offense picked up vision at %v", target)
	} else {
		m.log.debug("offense moved %v to %v", move, target)
	}
}

// computeScore rewards being close to the goal and getting there quickly.
func (m *Match) computeScore() int {
	dist := m.maxMoves
	if path, ok := m.grid.ShortestPath(m.offense.Position); ok {
		dist = len(path)
	}
	return m.maxMoves - dist + (m.maxMoves - m.round)
}

func (m *Match) recordStep() api.Step {
	m.score = m.computeScore()
	step := api.Step{
		Round:          m.round,
		Map:            m.grid.Rows(),
		Score:          m.score,
		VisionRadius:   m.visionRadius,
		AvailableMoves: m.availableMoves,
		Logs:           m.log.flush(),
	}
	m.steps = append(m.steps, step)
	return step
}

// Status snapshots the match for the status endpoint. Recorded steps are
// never modified, so the snapshot shares them.
func (m *Match) Status() *api.Status {
	steps := make([]api.Step, len(m.steps))
	copy(steps, m.steps)
	return &api.Status{
		IsRunning: true,
		IsOver:    m.over,
		Score:     float64(m.score),
		GameData: &api.GameData{
			Steps:        steps,
			ErrorMessage: m.errMsg,
			MaxMoveCount: m.maxMoves,
			Seed:         m.seed,
			Width:        m.grid.Width(),
			Height:       m.grid.Height(),
			Goal:         m.goal,
		},
	}
}

// Abort ends the match early without a result.
func (m *Match) Abort(reason string) {
	if m.over {
		return
	}
	m.over = true
	m.errMsg = &reason
	m.log.warn("match aborted: %s", reason)
	m.recordStep()
}

// End notifies both bots that the match is over.
func (m *Match) End(ctx context.Context) {
	if err := m.offenseBot.End(ctx); err != nil {
		m.log.entry.WithError(err).Debug("offense bot did not acknowledge end of game")
	}
	if err := m.defenseBot.End(ctx); err != nil {
		m.log.entry.WithError(err).Debug("defense bot did not acknowledge end of game")
	}
}
