package physics

import "math"

// SleepConfig tunes body dormancy
type SleepConfig struct {
	MinLinearVel     float64 // per second
	MinCorrection    float64 // per tick
	FramesRequired   int
	WakeLinearVel    float64
	WakeCorrection   float64
	WakeContactPen   float64
	MaxSleepingRatio float64
}

// DefaultSleepConfig returns the documented sleeping defaults
func DefaultSleepConfig() SleepConfig {
	return SleepConfig{
		MinLinearVel:     0.05,
		MinCorrection:    0.02,
		FramesRequired:   30,
		WakeLinearVel:    0.08,
		WakeCorrection:   0.04,
		WakeContactPen:   0.20,
		MaxSleepingRatio: 0.85,
	}
}

// normalize fills zero fields from DefaultSleepConfig
func (c SleepConfig) normalize() SleepConfig {
	def := DefaultSleepConfig()
	c.MinLinearVel = orDefault(c.MinLinearVel, def.MinLinearVel)
	c.MinCorrection = orDefault(c.MinCorrection, def.MinCorrection)
	c.FramesRequired = orDefault(c.FramesRequired, def.FramesRequired)
	c.WakeLinearVel = orDefault(c.WakeLinearVel, def.WakeLinearVel)
	c.WakeCorrection = orDefault(c.WakeCorrection, def.WakeCorrection)
	c.WakeContactPen = orDefault(c.WakeContactPen, def.WakeContactPen)
	c.MaxSleepingRatio = orDefault(c.MaxSleepingRatio, def.MaxSleepingRatio)
	if c.FramesRequired < 1 {
		c.FramesRequired = 1
	}
	return c
}

// valvePenetration is the pre-solve penetration above which a mostly
// sleeping world is partially woken.
const valvePenetration = PenetrationTol * 1.5

// sleepResult summarizes one evaluation pass
type sleepResult struct {
	Sleeping int
	Wakes    int
}

// awake filters out contacts whose bodies are both asleep
func awake(cs []Contact) []Contact {
	out := make([]Contact, 0, len(cs))
	for _, c := range cs {
		if c.A.Asleep && c.B.Asleep {
			continue
		}
		out = append(out, c)
	}
	return out
}

// evaluateSleep updates sleep counters for dynamic bodies after a solve,
// then wakes bodies touched by deep contacts.
func evaluateSleep(cfg SleepConfig, bodies []*Body, contacts []Contact, preMax, dt float64) sleepResult {
	var res sleepResult
	dynamic := 0
	wake := make(map[*Body]bool)
	for _, b := range bodies {
		if b.Static() {
			continue
		}
		dynamic++
		if !b.hasPrev {
			b.PrevPos = b.Pos
			b.hasPrev = true
		}
		vel := b.Pos.Sub(b.PrevPos).Len()
		if dt > 0 {
			vel /= dt
		}
		corr := b.lastFrameCorrection
		if b.Asleep {
			if vel > cfg.WakeLinearVel || corr > cfg.WakeCorrection {
				wake[b] = true
			}
		} else if vel < cfg.MinLinearVel && corr < cfg.MinCorrection {
			b.SleepFrames++
			if b.SleepFrames >= cfg.FramesRequired {
				b.Asleep = true
			}
		} else {
			b.SleepFrames = 0
		}
		b.PrevPos = b.Pos
	}

	for _, c := range contacts {
		if c.Depth <= cfg.WakeContactPen {
			continue
		}
		if c.A.Asleep && !c.B.Asleep {
			wake[c.A] = true
		}
		if c.B.Asleep && !c.A.Asleep {
			wake[c.B] = true
		}
	}
	for _, b := range bodies {
		if wake[b] {
			b.Asleep = false
			b.SleepFrames = 0
			res.Wakes++
		}
	}

	for _, b := range bodies {
		if b.Asleep && !b.Static() {
			res.Sleeping++
		}
	}
	if dynamic == 0 {
		return res
	}
	if float64(res.Sleeping)/float64(dynamic) > cfg.MaxSleepingRatio && preMax > valvePenetration {
		need := int(math.Ceil(float64(res.Sleeping) / 2))
		woke := 0
		for _, b := range bodies {
			if woke >= need {
				break
			}
			if b.Asleep {
				b.Asleep = false
				b.SleepFrames = 0
				woke++
			}
		}
		res.Wakes += woke
		res.Sleeping -= woke
	}
	return res
}
