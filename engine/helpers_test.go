package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/cmars/mazewar/api"
	"github.com/cmars/mazewar/grid"
)

var errNotReady = errors.New("not ready")

// scriptedBot plays a fixed list of moves, then skips.
type scriptedBot struct {
	mu       sync.Mutex
	offense  []api.OffenseMove
	defense  []api.DefenseMove
	startErr error

	starts   int
	ends     int
	startReq *api.StartRequest
	views    []*grid.Grid
}

func (b *scriptedBot) Start(ctx context.Context, req *api.StartRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.starts++
	b.startReq = req
	return b.startErr
}

func (b *scriptedBot) record(view string) {
	g, err := grid.DecodeBase64(view)
	if err != nil {
		panic(err)
	}
	b.views = append(b.views, g)
}

func (b *scriptedBot) NextOffense(ctx context.Context, view string) (api.OffenseMove, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(view)
	if len(b.offense) == 0 {
		return api.OffenseSkip, nil
	}
	m := b.offense[0]
	b.offense = b.offense[1:]
	return m, nil
}

func (b *scriptedBot) NextDefense(ctx context.Context, view string) (api.DefenseMove, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.record(view)
	if len(b.defense) == 0 {
		return api.DefenseMove{}, nil
	}
	m := b.defense[0]
	b.defense = b.defense[1:]
	return m, nil
}

func (b *scriptedBot) End(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ends++
	return nil
}

func (b *scriptedBot) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.views)
}

func testLayout(s string) *grid.Layout {
	g := grid.MustParse(s)
	return &grid.Layout{Grid: g, Start: g.Find(grid.PlayerOffense)[0]}
}

func wall(x, y int) api.DefenseMove {
	return api.DefenseMove{Action: api.DefenseWall, Position: grid.Position{X: x, Y: y}}
}

func bomb(x, y int) api.DefenseMove {
	return api.DefenseMove{Action: api.DefenseTimebomb, Position: grid.Position{X: x, Y: y}}
}

func repeat(m api.OffenseMove, n int) []api.OffenseMove {
	ms := make([]api.OffenseMove, n)
	for i := range ms {
		ms[i] = m
	}
	return ms
}
