package physics

import "math"

// StiffnessCurve shapes adaptive spring stiffness over normalized distance
type StiffnessCurve string

const (
	CurveLinear StiffnessCurve = "linear"
	CurveQuad   StiffnessCurve = "quad"
	CurveCubic  StiffnessCurve = "cubic"
	CurveSqrt   StiffnessCurve = "sqrt"
)

// Apply maps norm in [0,1] through the curve. Unknown curves act as quad.
func (c StiffnessCurve) Apply(norm float64) float64 {
	switch c {
	case CurveLinear:
		return norm
	case CurveCubic:
		return norm * norm * norm
	case CurveSqrt:
		return math.Sqrt(norm)
	default:
		return norm * norm
	}
}

// MouseSpringConfig tunes the drag constraint
type MouseSpringConfig struct {
	Stiffness          float64
	Damping            float64
	MaxFrameMove       float64 // units per second
	CriticalRadius     float64
	Adaptive           bool
	AdaptiveRadius     float64
	StiffnessMinFactor float64
	Curve              StiffnessCurve
	MassScaling        bool
	ReferenceMass      float64
	MassPower          float64
}

// DefaultMouseSpringConfig returns the documented spring defaults
func DefaultMouseSpringConfig() MouseSpringConfig {
	return MouseSpringConfig{
		Stiffness:          200,
		Damping:            0.15,
		MaxFrameMove:       120,
		CriticalRadius:     20,
		Adaptive:           true,
		AdaptiveRadius:     120,
		StiffnessMinFactor: 0.25,
		Curve:              CurveQuad,
		ReferenceMass:      1,
		MassPower:          1,
	}
}

// normalize fills zero fields from DefaultMouseSpringConfig. Adaptive is a
// plain bool and keeps whatever the caller set.
func (c MouseSpringConfig) normalize() MouseSpringConfig {
	def := DefaultMouseSpringConfig()
	c.Stiffness = orDefault(c.Stiffness, def.Stiffness)
	c.Damping = orDefault(c.Damping, def.Damping)
	c.MaxFrameMove = orDefault(c.MaxFrameMove, def.MaxFrameMove)
	c.CriticalRadius = orDefault(c.CriticalRadius, def.CriticalRadius)
	c.AdaptiveRadius = orDefault(c.AdaptiveRadius, def.AdaptiveRadius)
	c.StiffnessMinFactor = orDefault(c.StiffnessMinFactor, def.StiffnessMinFactor)
	c.ReferenceMass = orDefault(c.ReferenceMass, def.ReferenceMass)
	c.MassPower = orDefault(c.MassPower, def.MassPower)
	if c.Curve == "" {
		c.Curve = def.Curve
	}
	if c.MaxFrameMove < 0 {
		c.MaxFrameMove = def.MaxFrameMove
	}
	if c.ReferenceMass < 0 {
		c.ReferenceMass = def.ReferenceMass
	}
	c.Damping = Clamp(c.Damping, 0, 1)
	return c
}

// massKey renders the mass scaling settings for diagnostics
func (c MouseSpringConfig) massKey() string {
	return round3(c.ReferenceMass) + ":" + round3(c.MassPower)
}

// MouseSpring pulls an attached body toward a target point
type MouseSpring struct {
	cfg     MouseSpringConfig
	enabled bool
	active  bool
	body    *Body
	target  Vec2
	last    Vec2
}

// Active reports whether a body is attached
func (m *MouseSpring) Active() bool { return m.enabled && m.active && m.body != nil }

// Body returns the attached body, if any
func (m *MouseSpring) Body() *Body {
	if !m.Active() {
		return nil
	}
	return m.body
}

// Target returns the current drag target
func (m *MouseSpring) Target() Vec2 { return m.target }

// EffectiveStiffness returns the stiffness used at distance dist for body b
func (m *MouseSpring) EffectiveStiffness(dist float64, b *Body) float64 {
	c := m.cfg
	eff := c.Stiffness
	if c.Adaptive {
		r := c.AdaptiveRadius
		if r <= 0 {
			r = c.CriticalRadius
		}
		if r <= 0 {
			r = 1
		}
		norm := math.Min(1, dist/math.Max(1e-6, r))
		eff = c.Stiffness * (c.StiffnessMinFactor + (1-c.StiffnessMinFactor)*c.Curve.Apply(norm))
	} else if dist < c.CriticalRadius {
		t := dist / math.Max(1e-6, c.CriticalRadius)
		eff = c.Stiffness * (0.35 + 0.65*t)
	}
	if c.MassScaling && b != nil {
		mass := b.Mass
		if mass <= 0 {
			mass = c.ReferenceMass
		}
		scale := math.Pow(mass/c.ReferenceMass, c.MassPower)
		eff /= math.Max(1e-6, scale)
	}
	return eff
}

// apply moves the attached body one tick toward the target and returns the
// distance it actually moved.
func (m *MouseSpring) apply(dt float64) float64 {
	b := m.Body()
	if b == nil || b.Static() {
		return 0
	}
	start := b.Pos
	vel := start.Sub(m.last)
	m.last = start

	before := m.target.Sub(start)
	k := 1 - math.Exp(-m.EffectiveStiffness(before.Len(), b)*dt)
	move := before.Scale(k).Sub(vel.Scale(m.cfg.Damping * 0.1))
	if maxMove, l := m.cfg.MaxFrameMove*dt, move.Len(); l > maxMove {
		move = move.Scale(maxMove / l)
	}
	b.Pos = start.Add(move)
	after := m.target.Sub(b.Pos)
	if after.Dot(after) > before.Dot(before) || before.Dot(after) < 0 {
		b.Pos = m.target
	}
	return b.Pos.Sub(start).Len()
}
