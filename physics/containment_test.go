package physics

import (
	"math"
	"testing"
)

const containEps = 0.001

func maxCornerDist(b *Body) float64 {
	m := 0.0
	for _, p := range b.Corners() {
		m = math.Max(m, p.Len())
	}
	return m
}

func minCornerDist(b *Body) float64 {
	m := math.Inf(1)
	for _, p := range b.Corners() {
		m = math.Min(m, p.Len())
	}
	return m
}

func TestOuterContainment(t *testing.T) {
	w := isolatedWorld()
	b := NewBody(300, 0, 120, 80, 1)
	w.Add(b)
	w.Tick(w.TimeStep())
	if got := w.Metrics().ContactCount; got != 2 {
		t.Errorf("ContactCount = %d, want one per violating corner (2)", got)
	}
	if d := maxCornerDist(b); d > DefaultOuterRadius+containEps {
		t.Errorf("corner at %v outside radius %v", d, DefaultOuterRadius)
	}
}

func TestInnerHoleDeepestCornerOnly(t *testing.T) {
	w := isolatedWorld()
	w.SetArena(350, 100)
	b := NewBody(70, 0, 40, 40, 1)
	w.Add(b)
	before := minCornerDist(b)
	w.Tick(w.TimeStep())
	m := w.Metrics()
	if m.ContactCount != 1 {
		t.Errorf("ContactCount = %d, want 1", m.ContactCount)
	}
	want := 100 - math.Hypot(50, 20)
	if math.Abs(m.PreMaxPenetration-want) > 1e-9 {
		t.Errorf("PreMaxPenetration = %v, want %v", m.PreMaxPenetration, want)
	}
	if after := minCornerDist(b); after <= before {
		t.Errorf("body not pushed out of the hole: %v -> %v", before, after)
	}
}

func TestCenterWall(t *testing.T) {
	w := isolatedWorld()
	b := NewBody(0, 5, 40, 40, 1)
	w.Add(b)
	w.Tick(w.TimeStep())
	if b.Pos.Y != 5 {
		t.Fatalf("wall off: body moved to %v", b.Pos)
	}
	w.SetCenterWall(true)
	w.Tick(w.TimeStep())
	if b.Pos != (Vec2{0, 20}) {
		t.Errorf("body at %v, want (0,20)", b.Pos)
	}
}

func TestShrinkRepositions(t *testing.T) {
	w := isolatedWorld()
	w.SetArena(500, 0)
	b := NewBody(300, 0, 120, 80, 1)
	inside := NewBody(0, 100, 40, 40, 1)
	w.Add(b)
	w.Add(inside)
	w.SetArena(250, 0)
	m := w.Metrics()
	if m.ContainmentRepositions != 1 {
		t.Errorf("repositions = %d, want 1", m.ContainmentRepositions)
	}
	if d := maxCornerDist(b); d > 250+containEps {
		t.Errorf("corner at %v outside new radius", d)
	}
	if inside.Pos != (Vec2{0, 100}) {
		t.Errorf("contained body moved to %v", inside.Pos)
	}
}

func TestShrinkFlagsImpossibleBodies(t *testing.T) {
	w := isolatedWorld()
	big := NewBody(0, 0, 400, 400, 1)
	wall := NewBody(0, 300, 400, 400, 0)
	w.Add(big)
	w.Add(wall)
	w.SetArena(250, 0)
	if !big.OutOfBounds || w.Metrics().OutOfBoundsCount != 1 {
		t.Errorf("oversized body not flagged: %v %d", big.OutOfBounds, w.Metrics().OutOfBoundsCount)
	}
	if wall.OutOfBounds || wall.Pos != (Vec2{0, 300}) {
		t.Error("static bodies must not be touched")
	}
}

func TestGrowingArenaDoesNotReposition(t *testing.T) {
	w := isolatedWorld()
	w.Add(NewBody(300, 0, 120, 80, 1))
	w.SetArena(480, 0)
	if got := w.Metrics().ContainmentRepositions; got != 0 {
		t.Errorf("repositions = %d on growth", got)
	}
}
