package physics

import (
	"math"
	"sort"
)

const (
	DefaultOuterRadius = 350.0
	shrinkMaxPasses    = 5
	shrinkTolerance    = 0.0005
)

// Arena is the circular play area centered at the origin. An InnerRadius
// of zero means there is no hole.
type Arena struct {
	OuterRadius float64
	InnerRadius float64
}

// containmentContacts appends outer-circle and inner-hole contacts for every
// dynamic body. Each violating corner yields its own outer contact; the
// inner hole yields at most one contact per body, for its deepest corner.
func containmentContacts(dst []Contact, bodies []*Body, arena Arena) ([]Contact, bool) {
	clamped := false
	if arena.OuterRadius <= 0 {
		return dst, false
	}
	for _, b := range bodies {
		if b.Static() {
			continue
		}
		var deepest float64
		var deepestCorner Vec2
		var deepestDist float64
		found := false
		for _, p := range b.Corners() {
			dist := p.Len()
			if dist == 0 {
				dist = 0.0001
			}
			if dist > arena.OuterRadius {
				d, hit := clampDepth(dist - arena.OuterRadius)
				clamped = clamped || hit
				dst = append(dst, Contact{A: b, B: Env, NX: p.X / dist, NY: p.Y / dist, Depth: d})
			} else if arena.InnerRadius > 0 && dist < arena.InnerRadius {
				if d := arena.InnerRadius - dist; !found || d > deepest {
					deepest, deepestCorner, deepestDist, found = d, p, dist, true
				}
			}
		}
		if found {
			d, hit := clampDepth(deepest)
			clamped = clamped || hit
			dst = append(dst, Contact{
				A: b, B: Env,
				NX:    -deepestCorner.X / deepestDist,
				NY:    -deepestCorner.Y / deepestDist,
				Depth: d,
			})
		}
	}
	return dst, clamped
}

// centerWallContacts appends one contact for each dynamic body straddling
// y=0, pushing it toward the nearer side.
func centerWallContacts(dst []Contact, bodies []*Body) ([]Contact, bool) {
	clamped := false
	for _, b := range bodies {
		if b.Static() {
			continue
		}
		top := b.Pos.Y - b.HH
		bottom := b.Pos.Y + b.HH
		if !(top < 0 && bottom > 0) {
			continue
		}
		moveDown, moveUp := -top, bottom
		c := Contact{A: b, B: Env}
		var hit bool
		if moveDown <= moveUp {
			c.NY = -1
			c.Depth, hit = clampDepth(moveDown)
		} else {
			c.NY = 1
			c.Depth, hit = clampDepth(moveUp)
		}
		clamped = clamped || hit
		dst = append(dst, c)
	}
	return dst, clamped
}

// shrinkResult counts the outcome of a reposition pass
type shrinkResult struct {
	Repositioned int
	OutOfBounds  int
}

// shrinkInto slides dynamic bodies inward until every corner fits inside
// radius. Bodies whose half-diagonal exceeds radius are flagged and left.
func shrinkInto(bodies []*Body, radius float64) shrinkResult {
	ordered := make([]*Body, len(bodies))
	copy(ordered, bodies)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	var res shrinkResult
	for _, b := range ordered {
		if b.Static() {
			continue
		}
		if b.HalfDiagonal() > radius {
			b.OutOfBounds = true
			res.OutOfBounds++
			continue
		}
		adjusted := false
		for pass := 0; pass < shrinkMaxPasses; pass++ {
			overflow := 0.0
			for _, p := range b.Corners() {
				overflow = math.Max(overflow, p.Len()-radius)
			}
			if overflow <= shrinkTolerance {
				break
			}
			dir := Vec2{1, 0}
			if l := b.Pos.Len(); l >= 1e-6 {
				dir = b.Pos.Scale(1 / l)
			}
			b.Pos = b.Pos.Sub(dir.Scale(overflow))
			adjusted = true
		}
		if adjusted {
			res.Repositioned++
			b.OutOfBounds = false
		}
	}
	return res
}
