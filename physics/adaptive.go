package physics

const (
	iterationStep        = 8
	anomalyFramesToLatch = 3
)

// AdaptiveConfig tunes the adaptive solver iteration controller
type AdaptiveConfig struct {
	MinIter              int
	BaseIter             int
	MaxIter              int
	PenetrationHigh      float64
	PenetrationLow       float64
	ContactHigh          int
	ConsecutiveLowNeeded int
	CoolDownFrames       int
	AnomalySuspendFactor float64

	TrackIterationSequence       bool
	FreezeAfterFirstEscalation   bool
	DisableAnomaly               bool
	DownscaleBlockFrames         int
	InitialEscalationBlockFrames int
	PreserveExistingIterations   bool
}

// DefaultAdaptiveConfig returns the documented controller defaults
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		MinIter:              16,
		BaseIter:             32,
		MaxIter:              64,
		PenetrationHigh:      0.80,
		PenetrationLow:       0.15,
		ContactHigh:          60,
		ConsecutiveLowNeeded: 12,
		CoolDownFrames:       6,
		AnomalySuspendFactor: 0.5,
	}
}

// normalize fills zero numeric fields from DefaultAdaptiveConfig and
// repairs inconsistent bounds.
func (c AdaptiveConfig) normalize() AdaptiveConfig {
	def := DefaultAdaptiveConfig()
	c.MinIter = orDefault(c.MinIter, def.MinIter)
	c.BaseIter = orDefault(c.BaseIter, def.BaseIter)
	c.MaxIter = orDefault(c.MaxIter, def.MaxIter)
	c.PenetrationHigh = orDefault(c.PenetrationHigh, def.PenetrationHigh)
	c.PenetrationLow = orDefault(c.PenetrationLow, def.PenetrationLow)
	c.ContactHigh = orDefault(c.ContactHigh, def.ContactHigh)
	c.ConsecutiveLowNeeded = orDefault(c.ConsecutiveLowNeeded, def.ConsecutiveLowNeeded)
	c.CoolDownFrames = orDefault(c.CoolDownFrames, def.CoolDownFrames)
	c.AnomalySuspendFactor = orDefault(c.AnomalySuspendFactor, def.AnomalySuspendFactor)
	if c.MinIter < 1 {
		c.MinIter = 1
	}
	if c.MaxIter < c.MinIter {
		c.MaxIter = c.MinIter
	}
	c.BaseIter = min(max(c.BaseIter, c.MinIter), c.MaxIter)
	if c.ConsecutiveLowNeeded < 1 {
		c.ConsecutiveLowNeeded = 1
	}
	if c.CoolDownFrames < 0 {
		c.CoolDownFrames = 0
	}
	return c
}

// IterationState is the controller's per-run state
type IterationState struct {
	Iterations    int
	LowCounter    int
	CoolDown      int
	AnomalyFrames int
	Frozen        bool
	FrozenValue   int
	Suspended     bool
}

// IterationInput carries the tick's pre-solve measurements
type IterationInput struct {
	Frame       int
	Penetration float64
	Contacts    int
}

// IterationEvent describes what StepIterations did
type IterationEvent int

const (
	IterUnchanged IterationEvent = iota
	IterEscalated
	IterDownscaled
	IterSuspended
)

// StepIterations advances the controller by one tick. A controller that
// returns IterSuspended stays suspended until it is re-enabled; a frozen
// controller keeps FrozenValue regardless of input.
func StepIterations(cfg AdaptiveConfig, s IterationState, in IterationInput) (IterationState, IterationEvent) {
	if s.Suspended {
		return s, IterUnchanged
	}
	if !cfg.DisableAnomaly {
		if in.Penetration > cfg.AnomalySuspendFactor*MaxContactDepth {
			s.AnomalyFrames++
			if s.AnomalyFrames >= anomalyFramesToLatch {
				s.Suspended = true
				return s, IterSuspended
			}
		} else {
			s.AnomalyFrames = 0
		}
	}
	if s.Frozen {
		s.Iterations = s.FrozenValue
		return s, IterUnchanged
	}

	before := s.Iterations
	ev := IterUnchanged
	switch {
	case in.Frame >= cfg.InitialEscalationBlockFrames &&
		(in.Penetration > cfg.PenetrationHigh || in.Contacts > cfg.ContactHigh):
		if s.Iterations < cfg.MaxIter {
			s.Iterations = min(cfg.MaxIter, s.Iterations+iterationStep)
		}
		s.LowCounter = 0
		s.CoolDown = cfg.CoolDownFrames
	case in.Penetration < cfg.PenetrationLow:
		if s.CoolDown > 0 {
			s.CoolDown--
		}
		s.LowCounter++
		if in.Frame >= cfg.DownscaleBlockFrames && s.LowCounter >= cfg.ConsecutiveLowNeeded && s.CoolDown == 0 {
			if s.Iterations > cfg.MinIter {
				s.Iterations = max(cfg.MinIter, s.Iterations-iterationStep)
			}
			s.LowCounter = 0
		}
	default:
		s.LowCounter = 0
		if s.CoolDown > 0 {
			s.CoolDown--
		}
	}

	if s.Iterations != before {
		if s.Iterations > before {
			ev = IterEscalated
		} else {
			ev = IterDownscaled
		}
		if cfg.FreezeAfterFirstEscalation {
			s.Frozen = true
			s.FrozenValue = s.Iterations
		}
	}
	return s, ev
}
