package physics

import "testing"

func TestStepSubstepsEscalation(t *testing.T) {
	cfg := DefaultSubstepConfig()
	tests := []struct {
		name string
		in   SubstepInput
	}{
		{"density", SubstepInput{Density: 2}},
		{"penetration", SubstepInput{Penetration: 25}},
		{"drag", SubstepInput{MaxDisplacement: 3}},
	}
	for _, tt := range tests {
		s, ev := StepSubsteps(cfg, SubstepState{Current: 2}, tt.in)
		if ev != SubstepUp || s.Current != 3 || s.CoolDown != cfg.CoolDownFrames {
			t.Errorf("%s: got %+v ev=%d", tt.name, s, ev)
		}
	}
	s, ev := StepSubsteps(cfg, SubstepState{Current: cfg.Max}, SubstepInput{Density: 5})
	if ev != SubstepUnchanged || s.Current != cfg.Max {
		t.Errorf("escalation past max: %+v", s)
	}
}

func TestStepSubstepsDownscale(t *testing.T) {
	cfg := DefaultSubstepConfig()
	s := SubstepState{Current: 3}
	var ev SubstepEvent
	for i := 0; i < cfg.ConsecutiveLowNeeded; i++ {
		s, ev = StepSubsteps(cfg, s, SubstepInput{Density: 0.1})
		if i < cfg.ConsecutiveLowNeeded-1 && ev != SubstepUnchanged {
			t.Fatalf("downscaled early at tick %d", i)
		}
	}
	if ev != SubstepDown || s.Current != 2 {
		t.Errorf("got %+v ev=%d, want 2 down", s, ev)
	}

	for i := 0; i < cfg.ConsecutiveLowNeeded*2; i++ {
		s, ev = StepSubsteps(cfg, s, SubstepInput{})
		if ev != SubstepUnchanged || s.Current != cfg.Base {
			t.Fatalf("went below base: %+v", s)
		}
	}
}

func TestStepSubstepsMidZoneResets(t *testing.T) {
	cfg := DefaultSubstepConfig()
	s, _ := StepSubsteps(cfg, SubstepState{Current: 3, LowCounter: 5}, SubstepInput{Density: 1})
	if s.LowCounter != 0 {
		t.Errorf("low counter = %d, want 0", s.LowCounter)
	}
}

func TestStepSubstepsFreeze(t *testing.T) {
	cfg := DefaultSubstepConfig()
	cfg.FreezeAfterFirstEscalation = true
	s, _ := StepSubsteps(cfg, SubstepState{Current: 2}, SubstepInput{Density: 2})
	if !s.Frozen || s.Current != 3 {
		t.Fatalf("expected frozen at 3, got %+v", s)
	}
	for i := 0; i < 30; i++ {
		s, _ = StepSubsteps(cfg, s, SubstepInput{Density: float64(i % 3)})
	}
	if s.Current != 3 {
		t.Errorf("frozen substeps drifted to %d", s.Current)
	}
}
