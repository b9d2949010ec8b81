package grid

// Passable decides whether a search may step onto a cell.
type Passable func(ElementType) bool

// Walkable is the traversal rule for the goal-reachability invariant. Armed
// bombs do not block a path; they only delay the player.
func Walkable(e ElementType) bool {
	switch e {
	case Background, Goal, VisionPickup:
		return true
	}
	return e.IsTimebomb()
}

// PathExists reports whether the goal is reachable from start.
func (g *Grid) PathExists(start Position) bool {
	_, ok := g.ShortestPath(start)
	return ok
}

// ShortestPath returns the cells walked from start to the goal, excluding
// start and including the goal. Ties are broken by the fixed neighbour order,
// so the same grid always yields the same path.
func (g *Grid) ShortestPath(start Position) ([]Position, bool) {
	if !g.hasGoal {
		return nil, false
	}
	return g.PathTo(start, g.goal, Walkable)
}

// PathTo runs a breadth-first search from start to target over cells
// accepted by passable. The start cell itself is never checked. Cells are
// marked in a scratch buffer; the grid is not modified.
func (g *Grid) PathTo(start, target Position, passable Passable) ([]Position, bool) {
	if !g.InBounds(start) || !g.InBounds(target) {
		return nil, false
	}
	if start == target {
		return []Position{}, true
	}

	const unvisited = -1
	parent := make([]int, len(g.cells))
	for i := range parent {
		parent[i] = unvisited
	}
	startIdx := g.index(start)
	parent[startIdx] = startIdx

	queue := []Position{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range searchOrder {
			next := cur.Add(d.Delta())
			if !g.InBounds(next) {
				continue
			}
			idx := g.index(next)
			if parent[idx] != unvisited || !passable(g.cells[idx]) {
				continue
			}
			parent[idx] = g.index(cur)
			if next == target {
				return g.unwind(parent, startIdx, idx), true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

func (g *Grid) unwind(parent []int, startIdx, endIdx int) []Position {
	var rev []Position
	for idx := endIdx; idx != startIdx; idx = parent[idx] {
		rev = append(rev, Position{X: idx % g.width, Y: idx / g.width})
	}
	path := make([]Position, len(rev))
	for i := range rev {
		path[i] = rev[len(rev)-1-i]
	}
	return path
}
