package physics

import "math"

const (
	DefaultSolverIterations = 8
	DefaultFriction         = 0.5
)

// FrictionConfig refines the tangential correction. When Enabled is false
// the solver uses DefaultFriction alone.
type FrictionConfig struct {
	Enabled          bool
	MuBase           float64
	Anisotropic      bool
	MuX, MuY         float64
	Dynamic          bool
	DynamicReduction float64 // fraction of mu removed at full slip
	SlipRef          float64 // slip at which the full reduction applies
}

// DefaultFrictionConfig returns the advanced friction defaults
func DefaultFrictionConfig() FrictionConfig {
	return FrictionConfig{
		Enabled:          true,
		MuBase:           DefaultFriction,
		MuX:              0.6,
		MuY:              0.4,
		DynamicReduction: 0.5,
		SlipRef:          60,
	}
}

// normalize fills zero coefficients from DefaultFrictionConfig
func (c FrictionConfig) normalize() FrictionConfig {
	def := DefaultFrictionConfig()
	c.MuBase = orDefault(c.MuBase, def.MuBase)
	c.MuX = orDefault(c.MuX, def.MuX)
	c.MuY = orDefault(c.MuY, def.MuY)
	c.DynamicReduction = orDefault(c.DynamicReduction, def.DynamicReduction)
	c.SlipRef = orDefault(c.SlipRef, def.SlipRef)
	return c
}

// Solver resolves contacts by direct position correction
type Solver struct {
	Iterations int
	Friction   FrictionConfig
}

// NewSolver creates a solver running the given number of passes
func NewSolver(iterations int) *Solver {
	if iterations < 1 {
		iterations = DefaultSolverIterations
	}
	fc := DefaultFrictionConfig()
	fc.Enabled = false
	return &Solver{Iterations: iterations, Friction: fc}
}

// CorrectionFunc receives each non-zero normal correction as it is applied
type CorrectionFunc func(c *Contact, magnitude float64)

// Solve runs Iterations passes over the contacts in order. Each pass
// corrects only the part of a contact's depth that earlier passes left
// unresolved, with each step capped at MaxStep. The iteration count
// therefore sets how far deep contacts converge within one tick, which
// changes final positions and the determinism hash.
func (s *Solver) Solve(contacts []Contact, onCorrection CorrectionFunc) {
	for i := range contacts {
		contacts[i].applied = 0
	}
	for it := 0; it < s.Iterations; it++ {
		for i := range contacts {
			s.resolve(&contacts[i], onCorrection)
		}
	}
}

func (s *Solver) resolve(c *Contact, onCorrection CorrectionFunc) {
	a, b := c.A, c.B
	totalInvMass := a.InvMass + b.InvMass
	if totalInvMass == 0 {
		return
	}
	remaining := c.Depth - c.applied
	if remaining <= 0 {
		return
	}
	corr := remaining / totalInvMass
	if a.InvMass != 0 && b.InvMass != 0 {
		corr *= 0.5
	}
	if corr > MaxStep {
		corr = MaxStep
	}
	a.Pos.X -= c.NX * corr * a.InvMass
	a.Pos.Y -= c.NY * corr * a.InvMass
	b.Pos.X += c.NX * corr * b.InvMass
	b.Pos.Y += c.NY * corr * b.InvMass
	c.applied += corr * totalInvMass
	if onCorrection != nil {
		onCorrection(c, corr)
	}

	tx, ty := -c.NY, c.NX
	relT := (b.Pos.X-a.Pos.X)*tx + (b.Pos.Y-a.Pos.Y)*ty
	if relT == 0 {
		return
	}
	tCorr := math.Min(math.Abs(relT), corr*s.EffectiveMu(tx, ty, relT))
	if relT > 0 {
		tCorr = -tCorr
	}
	a.Pos.X -= tx * tCorr * a.InvMass
	a.Pos.Y -= ty * tCorr * a.InvMass
	b.Pos.X += tx * tCorr * b.InvMass
	b.Pos.Y += ty * tCorr * b.InvMass
}

// EffectiveMu returns the friction coefficient for tangent (tx,ty) at the
// given slip.
func (s *Solver) EffectiveMu(tx, ty, slip float64) float64 {
	f := s.Friction
	if !f.Enabled {
		return DefaultFriction
	}
	mu := f.MuBase
	if f.Anisotropic {
		ax, ay := math.Abs(tx), math.Abs(ty)
		denom := ax + ay
		if denom == 0 {
			denom = 1
		}
		mu *= (ax*f.MuX + ay*f.MuY) / denom
	}
	if f.Dynamic {
		ref := math.Max(1e-6, f.SlipRef)
		ratio := math.Min(1, math.Abs(slip)/ref)
		mu *= math.Max(0, 1-f.DynamicReduction*ratio)
	}
	return mu
}
