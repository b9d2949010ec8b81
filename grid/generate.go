package grid

import "fmt"

// GenerateOptions shapes a generated board.
type GenerateOptions struct {
	MinSize, MaxSize int
	VisionPickups    int
	// WallPercent is the share of cells, 0-100, to try to fill with walls.
	WallPercent int
	// MaxSegment is the longest straight wall run.
	MaxSegment int
}

var DefaultGenerateOptions = GenerateOptions{
	MinSize:       20,
	MaxSize:       40,
	VisionPickups: 2,
	WallPercent:   20,
	MaxSegment:    4,
}

// Layout is a generated board and the offense start cell on its west edge.
type Layout struct {
	Grid  *Grid
	Start Position
}

// Generate builds a random board from rng. Walls are laid in short straight
// runs; a wall cell is only kept while the goal stays reachable from Start.
func Generate(rng Rand, opts GenerateOptions) (*Layout, error) {
	if opts.MinSize <= 0 || opts.MaxSize < opts.MinSize {
		return nil, fmt.Errorf("size range [%d, %d]: %w", opts.MinSize, opts.MaxSize, ErrInvalidShape)
	}
	span := opts.MaxSize - opts.MinSize + 1
	w := opts.MinSize + rng.Intn(span)
	h := opts.MinSize + rng.Intn(span)
	g := New(w, h)

	if _, err := g.SetGoal(rng); err != nil {
		return nil, fmt.Errorf("placing goal: %w", err)
	}
	for i := 0; i < opts.VisionPickups; i++ {
		if _, err := g.SetVisionPickup(rng); err != nil {
			return nil, fmt.Errorf("placing vision pickup: %w", err)
		}
	}
	start, err := westEdgeStart(g, rng)
	if err != nil {
		return nil, err
	}

	maxSegment := max(opts.MaxSegment, 1)
	target := w * h * opts.WallPercent / 100
	placed := 0
	for attempt := 0; attempt < target*10 && placed < target; attempt++ {
		p := Position{X: rng.Intn(w), Y: rng.Intn(h)}
		step := Position{X: 1}
		if rng.Intn(2) == 0 {
			step = Position{Y: 1}
		}
		length := 1 + rng.Intn(maxSegment)
		for i := 0; i < length && placed < target; i++ {
			if p == start || g.At(p) != Background {
				break
			}
			g.Set(p.X, p.Y, Wall)
			if !g.PathExists(start) {
				g.Set(p.X, p.Y, Background)
				break
			}
			placed++
			p = p.Add(step)
		}
	}
	return &Layout{Grid: g, Start: start}, nil
}

func westEdgeStart(g *Grid, rng Rand) (Position, error) {
	for i := 0; i < maxPlacementAttempts; i++ {
		p := Position{X: 0, Y: rng.Intn(g.height)}
		if g.At(p) == Background {
			return p, nil
		}
	}
	for y := 0; y < g.height; y++ {
		if p := (Position{X: 0, Y: y}); g.At(p) == Background {
			return p, nil
		}
	}
	return Position{}, fmt.Errorf("offense start: %w", ErrNoFreeCell)
}
