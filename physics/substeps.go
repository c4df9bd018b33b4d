package physics

// SubstepConfig tunes the adaptive substep controller
type SubstepConfig struct {
	Base                      int
	Max                       int
	ContactDensityHigh        float64 // contacts per body to escalate
	ContactDensityLow         float64 // density below which a tick counts as low
	ConsecutiveLowNeeded      int
	CoolDownFrames            int
	PenetrationBoostThreshold float64
	DragDisplacementHigh      float64 // max per-step body displacement to escalate

	FreezeAfterFirstEscalation bool
	TrackSubstepSequence       bool
}

// DefaultSubstepConfig returns the documented controller defaults
func DefaultSubstepConfig() SubstepConfig {
	return SubstepConfig{
		Base:                      2,
		Max:                       4,
		ContactDensityHigh:        1.5,
		ContactDensityLow:         0.6,
		ConsecutiveLowNeeded:      10,
		CoolDownFrames:            8,
		PenetrationBoostThreshold: 20,
		DragDisplacementHigh:      2.0,
	}
}

// normalize fills zero numeric fields from DefaultSubstepConfig and
// repairs inconsistent bounds.
func (c SubstepConfig) normalize() SubstepConfig {
	def := DefaultSubstepConfig()
	c.Base = orDefault(c.Base, def.Base)
	c.Max = orDefault(c.Max, def.Max)
	c.ContactDensityHigh = orDefault(c.ContactDensityHigh, def.ContactDensityHigh)
	c.ContactDensityLow = orDefault(c.ContactDensityLow, def.ContactDensityLow)
	c.ConsecutiveLowNeeded = orDefault(c.ConsecutiveLowNeeded, def.ConsecutiveLowNeeded)
	c.CoolDownFrames = orDefault(c.CoolDownFrames, def.CoolDownFrames)
	c.PenetrationBoostThreshold = orDefault(c.PenetrationBoostThreshold, def.PenetrationBoostThreshold)
	c.DragDisplacementHigh = orDefault(c.DragDisplacementHigh, def.DragDisplacementHigh)
	if c.Base < 1 {
		c.Base = 1
	}
	if c.Max < c.Base {
		c.Max = c.Base
	}
	if c.ConsecutiveLowNeeded < 1 {
		c.ConsecutiveLowNeeded = 1
	}
	return c
}

// SubstepState is the controller's per-run state
type SubstepState struct {
	Current    int
	LowCounter int
	CoolDown   int
	Frozen     bool
}

// SubstepInput carries the previous tick's measurements
type SubstepInput struct {
	Density         float64
	Penetration     float64
	MaxDisplacement float64
}

// SubstepEvent describes what StepSubsteps did
type SubstepEvent int

const (
	SubstepUnchanged SubstepEvent = iota
	SubstepUp
	SubstepDown
)

// StepSubsteps advances the controller once per fixed step
func StepSubsteps(cfg SubstepConfig, s SubstepState, in SubstepInput) (SubstepState, SubstepEvent) {
	if s.Frozen {
		return s, SubstepUnchanged
	}
	escalate := in.Density > cfg.ContactDensityHigh ||
		in.Penetration > cfg.PenetrationBoostThreshold ||
		in.MaxDisplacement > cfg.DragDisplacementHigh
	if escalate {
		if s.Current < cfg.Max {
			s.Current++
			s.LowCounter = 0
			s.CoolDown = cfg.CoolDownFrames
			if cfg.FreezeAfterFirstEscalation {
				s.Frozen = true
			}
			return s, SubstepUp
		}
		return s, SubstepUnchanged
	}
	if s.CoolDown > 0 {
		s.CoolDown--
	}
	if in.Density < cfg.ContactDensityLow && in.Penetration < cfg.PenetrationBoostThreshold/2 {
		s.LowCounter++
		if s.LowCounter >= cfg.ConsecutiveLowNeeded && s.CoolDown == 0 {
			s.LowCounter = 0
			if s.Current > cfg.Base {
				s.Current--
				return s, SubstepDown
			}
		}
		return s, SubstepUnchanged
	}
	s.LowCounter = 0
	return s, SubstepUnchanged
}
