package physics

import (
	"math"
	"sync/atomic"
)

// IDAllocator hands out strictly increasing body IDs starting at 1. It is
// safe for concurrent use.
type IDAllocator struct {
	last atomic.Int64
}

// NewIDAllocator returns an allocator whose first ID is 1
func NewIDAllocator() *IDAllocator { return &IDAllocator{} }

// Next returns the next ID
func (a *IDAllocator) Next() int { return int(a.last.Add(1)) }

// Reset restarts allocation at 1
func (a *IDAllocator) Reset() { a.last.Store(0) }

var defaultIDs IDAllocator

// ResetBodyIDs restarts the package-wide allocator used by NewBody. Worlds
// built with their own Config.IDs are unaffected.
func ResetBodyIDs() {
	defaultIDs.Reset()
}

// Body is an axis-aligned rectangle simulated by a World
type Body struct {
	ID      int
	Pos     Vec2
	W, H    float64
	HW, HH  float64
	Rot     int // 0 or 90 degrees
	Mass    float64
	InvMass float64

	Asleep      bool
	SleepFrames int
	PrevPos     Vec2
	hasPrev     bool

	// OutOfBounds is set when an arena shrink leaves no room for the body
	OutOfBounds bool

	lastFrameCorrection float64
}

// NewBody creates a body centered at (x, y) with an ID from the package-wide
// allocator. A mass of zero or less makes the body static.
func NewBody(x, y, w, h, mass float64) *Body {
	return newBody(defaultIDs.Next(), x, y, w, h, mass)
}

func newBody(id int, x, y, w, h, mass float64) *Body {
	b := &Body{
		ID:  id,
		Pos: Vec2{x, y},
	}
	b.setSize(w, h)
	if mass > 0 {
		b.Mass = mass
		b.InvMass = 1 / mass
	}
	return b
}

func (b *Body) setSize(w, h float64) {
	b.W, b.H = w, h
	b.HW, b.HH = w/2, h/2
}

// Static reports whether the body is immovable
func (b *Body) Static() bool { return b.InvMass == 0 }

// Rotate swaps the body's width and height, toggling Rot between 0 and 90
func (b *Body) Rotate() {
	b.setSize(b.H, b.W)
	b.Rot = (b.Rot + 90) % 180
}

// Corners returns the four corners in the order top-left, top-right,
// bottom-right, bottom-left.
func (b *Body) Corners() [4]Vec2 {
	return [4]Vec2{
		{b.Pos.X - b.HW, b.Pos.Y - b.HH},
		{b.Pos.X + b.HW, b.Pos.Y - b.HH},
		{b.Pos.X + b.HW, b.Pos.Y + b.HH},
		{b.Pos.X - b.HW, b.Pos.Y + b.HH},
	}
}

// HalfDiagonal returns the distance from the center to any corner
func (b *Body) HalfDiagonal() float64 {
	return math.Hypot(b.HW, b.HH)
}

// Contains reports whether the point lies inside the body's rectangle
func (b *Body) Contains(x, y float64) bool {
	return math.Abs(x-b.Pos.X) <= b.HW && math.Abs(y-b.Pos.Y) <= b.HH
}

// Env is the static environment sentinel used as the second body of every
// boundary and wall contact.
var Env = &Body{ID: 0}
