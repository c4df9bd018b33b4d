package physics

import (
	"math"
	"sort"
)

const (
	DefaultCellSize = 128.0 // grid cell edge, about one brick plus margin
	gridEpsilon     = 0.5   // AABB expansion so touching bodies share a cell
)

// GridConfig configures the spatial hash broadphase
type GridConfig struct {
	CellSize float64
}

// DefaultGridConfig returns the default grid settings
func DefaultGridConfig() GridConfig {
	return GridConfig{CellSize: DefaultCellSize}
}

type cellKey struct {
	X, Y int
}

type pairKey struct {
	lo, hi int
}

// GridBroadphase buckets bodies into unbounded square cells keyed by
// integer coordinates and pairs bodies that share a cell.
type GridBroadphase struct {
	cellSize float64
	cells    map[cellKey][]int
	bodies   []*Body
	seen     map[pairKey]struct{}
	pairs    []Pair
}

// NewGridBroadphase creates a grid broadphase. A non-positive cell size
// falls back to DefaultCellSize.
func NewGridBroadphase(cfg GridConfig) *GridBroadphase {
	if !(cfg.CellSize > 0) {
		cfg.CellSize = DefaultCellSize
	}
	return &GridBroadphase{
		cellSize: cfg.CellSize,
		cells:    make(map[cellKey][]int),
		seen:     make(map[pairKey]struct{}),
	}
}

// CellSize returns the configured cell edge
func (g *GridBroadphase) CellSize() float64 { return g.cellSize }

// Clear resets all cells (keeps allocated capacity)
func (g *GridBroadphase) Clear() {
	for k, v := range g.cells {
		g.cells[k] = v[:0]
	}
	g.bodies = g.bodies[:0]
}

func (g *GridBroadphase) cellRange(b *Body) (minCX, minCY, maxCX, maxCY int) {
	minCX = int(math.Floor((b.Pos.X - b.HW - gridEpsilon) / g.cellSize))
	maxCX = int(math.Floor((b.Pos.X + b.HW + gridEpsilon) / g.cellSize))
	minCY = int(math.Floor((b.Pos.Y - b.HH - gridEpsilon) / g.cellSize))
	maxCY = int(math.Floor((b.Pos.Y + b.HH + gridEpsilon) / g.cellSize))
	return
}

// Insert adds a body to all cells overlapping its expanded bounding box
func (g *GridBroadphase) Insert(b *Body) {
	idx := len(g.bodies)
	g.bodies = append(g.bodies, b)
	minCX, minCY, maxCX, maxCY := g.cellRange(b)
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			k := cellKey{cx, cy}
			g.cells[k] = append(g.cells[k], idx)
		}
	}
}

// Build clears the grid and inserts every body
func (g *GridBroadphase) Build(bodies []*Body) {
	g.Clear()
	for _, b := range bodies {
		g.Insert(b)
	}
}

// Query returns the bodies sharing any cell with the given bounding box.
// Bodies spanning several cells may appear more than once.
func (g *GridBroadphase) Query(x, y, hw, hh float64) []*Body {
	query := Body{Pos: Vec2{x, y}, HW: hw, HH: hh}
	minCX, minCY, maxCX, maxCY := g.cellRange(&query)
	var result []*Body
	for cy := minCY; cy <= maxCY; cy++ {
		for cx := minCX; cx <= maxCX; cx++ {
			for _, idx := range g.cells[cellKey{cx, cy}] {
				result = append(result, g.bodies[idx])
			}
		}
	}
	return result
}

// QueryPairs returns each pair of bodies sharing at least one cell exactly
// once. Pairs keep the insertion order of their bodies and are sorted by
// that order so the result does not depend on map iteration.
func (g *GridBroadphase) QueryPairs() []Pair {
	clear(g.seen)
	for _, members := range g.cells {
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				lo, hi := members[i], members[j]
				if lo > hi {
					lo, hi = hi, lo
				}
				g.seen[pairKey{lo, hi}] = struct{}{}
			}
		}
	}
	keys := make([]pairKey, 0, len(g.seen))
	for k := range g.seen {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].lo != keys[j].lo {
			return keys[i].lo < keys[j].lo
		}
		return keys[i].hi < keys[j].hi
	})
	g.pairs = g.pairs[:0]
	for _, k := range keys {
		g.pairs = append(g.pairs, Pair{g.bodies[k.lo], g.bodies[k.hi]})
	}
	return g.pairs
}
