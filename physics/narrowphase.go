package physics

import "math"

// RectRect tests two bodies for overlap and returns the minimum-translation
// contact. The smaller overlap axis wins; an exact tie resolves along y.
func RectRect(a, b *Body) (Contact, bool) {
	adx := math.Abs(a.Pos.X - b.Pos.X)
	ady := math.Abs(a.Pos.Y - b.Pos.Y)
	dx := (a.HW + b.HW) - adx
	dy := (a.HH + b.HH) - ady
	if dx < 0 || dy < 0 {
		return Contact{}, false
	}
	if dx < dy {
		nx := 1.0
		if a.Pos.X > b.Pos.X {
			nx = -1
		}
		return Contact{A: a, B: b, NX: nx, Depth: dx}, true
	}
	ny := 1.0
	if a.Pos.Y > b.Pos.Y {
		ny = -1
	}
	return Contact{A: a, B: b, NY: ny, Depth: dy}, true
}

// Overlaps reports whether the AABBs of a and b intersect or touch
func Overlaps(a, b *Body) bool {
	return math.Abs(a.Pos.X-b.Pos.X) <= a.HW+b.HW && math.Abs(a.Pos.Y-b.Pos.Y) <= a.HH+b.HH
}

// penetration returns the current minimum-axis overlap of two bodies, or 0
func penetration(a, b *Body) float64 {
	dx := (a.HW + b.HW) - math.Abs(a.Pos.X-b.Pos.X)
	dy := (a.HH + b.HH) - math.Abs(a.Pos.Y-b.Pos.Y)
	if dx <= 0 || dy <= 0 {
		return 0
	}
	return math.Min(dx, dy)
}
