package main

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/PixelParasite101/Packing-Lab/physics"
	"github.com/PixelParasite101/Packing-Lab/scenario"
)

// SleepRatioTolerance is the allowed absolute drift of the average
// sleeping ratio against the stored baseline.
const SleepRatioTolerance = 0.08

// SleepingReport is one sleeping efficiency measurement
type SleepingReport struct {
	AvgRatio float64 `json:"avg_ratio"`
	Frames   int     `json:"frames"`
	Bodies   int     `json:"bodies"`

	Baseline float64 `json:"baseline"`
	Diff     float64 `json:"diff"`
	Version  int     `json:"version"`
	Saved    bool    `json:"saved"`
	Warn     bool    `json:"warn"`
}

// String renders the report for the CLI
func (r SleepingReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "sleeping-eff: avg ratio=%.4f frames=%d bodies=%d", r.AvgRatio, r.Frames, r.Bodies)
	switch {
	case r.Saved:
		fmt.Fprintf(&b, " saved as baseline v%d", r.Version)
	case r.Version > 0:
		fmt.Fprintf(&b, " baseline v%d=%.4f diff=%.4f", r.Version, r.Baseline, r.Diff)
	}
	if r.Warn {
		fmt.Fprintf(&b, " WARN deviation exceeds %.2f", SleepRatioTolerance)
	}
	return b.String()
}

// MeasureSleeping plays the sleeping-eff scene and averages the share of
// sleeping bodies over every frame.
func MeasureSleeping(logger *log.Logger) (SleepingReport, error) {
	sc, ok := scenario.Lookup("sleeping-eff")
	if !ok {
		return SleepingReport{}, errors.New("sleeping-eff scenario missing")
	}
	cfg := sc.Config()
	cfg.Alarm = physics.NewPenetrationAlarm()
	cfg.Logger = logger
	w, bodies := sc.Build(cfg)

	var sum float64
	for f := 0; f < sc.Frames; f++ {
		if err := sc.Advance(f, w, bodies); err != nil {
			return SleepingReport{}, fmt.Errorf("%s frame %d: %w", sc.Name, f, err)
		}
		all := w.Bodies()
		asleep := 0
		for _, b := range all {
			if b.Asleep {
				asleep++
			}
		}
		if len(all) > 0 {
			sum += float64(asleep) / float64(len(all))
		}
	}
	return SleepingReport{
		AvgRatio: sum / float64(sc.Frames),
		Frames:   sc.Frames,
		Bodies:   len(w.Bodies()),
	}, nil
}

// CheckSleeping measures sleeping efficiency and compares it with the
// latest stored baseline. With no baseline, or when update is set, the
// measurement becomes the next baseline version. Drift beyond the
// tolerance only sets Warn.
func CheckSleeping(db *DB, update bool, createdBy string, logger *log.Logger) (SleepingReport, error) {
	rep, err := MeasureSleeping(logger)
	if err != nil {
		return rep, err
	}
	base, err := db.LatestSleepingBaseline()
	if err != nil && !errors.Is(err, ErrNoBaseline) {
		return rep, fmt.Errorf("load sleeping baseline: %w", err)
	}
	if base == nil || update {
		v, err := db.RecordSleepingBaseline(SleepingBaselineRow{
			AvgRatio: rep.AvgRatio, Frames: rep.Frames, Bodies: rep.Bodies, CreatedBy: createdBy,
		})
		if err != nil {
			return rep, fmt.Errorf("record sleeping baseline: %w", err)
		}
		rep.Version = v
		rep.Saved = true
		return rep, nil
	}
	rep.Version = base.Version
	rep.Baseline = base.AvgRatio
	rep.Diff = math.Abs(rep.AvgRatio - base.AvgRatio)
	rep.Warn = rep.Diff > SleepRatioTolerance
	return rep, nil
}

// EvalResult is the outcome of one quick invariance check
type EvalResult struct {
	Case   string `json:"case"`
	Pass   bool   `json:"pass"`
	Detail string `json:"detail"`
}

const evalOuterRadius = 400

// evalWorld builds the six-brick eval layout on its own alarm and allocator
func evalWorld(adaptive *physics.AdaptiveConfig) *physics.World {
	cfg := physics.DefaultConfig()
	cfg.OuterRadius = evalOuterRadius
	cfg.IDs = physics.NewIDAllocator()
	cfg.Alarm = physics.NewPenetrationAlarm()
	w := physics.NewWorld(cfg)
	for _, p := range scenario.SixBricks {
		w.NewBody(p[0], p[1], scenario.BrickW, scenario.BrickH, 1)
	}
	if adaptive != nil {
		w.EnableAdaptiveIterations(*adaptive)
	}
	return w
}

// evalFrames steps frames frames, pushing the first body for the first 25
func evalFrames(w *physics.World, frames int, pushX float64) error {
	first := w.Bodies()[0]
	for f := 0; f < frames; f++ {
		if pushX != 0 && f < 25 {
			first.Pos.X += pushX
		}
		if err := w.Step(w.LastTime() + scenario.FrameMs); err != nil {
			return err
		}
	}
	return nil
}

// evalHash runs build then frames and returns the determinism hash. Any
// error is folded into the returned string so a failing run never
// matches a passing one.
func evalHash(build func() *physics.World, frames int, pushX float64) string {
	w := build()
	if err := evalFrames(w, frames, pushX); err != nil {
		return "error: " + err.Error()
	}
	return physics.BuildDeterminismHash(w).Hash
}

func sameHash(name string, build func() *physics.World, frames int, pushX float64) EvalResult {
	h1 := evalHash(build, frames, pushX)
	h2 := evalHash(build, frames, pushX)
	return EvalResult{Case: name, Pass: h1 == h2 && !strings.HasPrefix(h1, "error"), Detail: h1 + " vs " + h2}
}

func frozenAdaptive(downscaleBlock, initialBlock int) *physics.AdaptiveConfig {
	return &physics.AdaptiveConfig{
		DisableAnomaly:               true,
		DownscaleBlockFrames:         downscaleBlock,
		InitialEscalationBlockFrames: initialBlock,
		PenetrationLow:               -1,
		TrackIterationSequence:       true,
		FreezeAfterFirstEscalation:   true,
	}
}

// RunMiniEvals runs the quick invariance suite. Every case uses its own
// world, allocator and alarm; the alarm case arms its alarm explicitly.
func RunMiniEvals() []EvalResult {
	var results []EvalResult

	results = append(results, sameHash("baseline-determinism", func() *physics.World {
		return evalWorld(nil)
	}, 60, 1.2))

	results = append(results, sameHash("iter-seq-flag", func() *physics.World {
		return evalWorld(frozenAdaptive(120, 5))
	}, 70, 0.9))

	{
		w := evalWorld(frozenAdaptive(200, 5))
		err := evalFrames(w, 90, 0.9)
		changes := len(w.IterationLog())
		results = append(results, EvalResult{
			Case: "freeze-after-first", Pass: err == nil && changes <= 1,
			Detail: fmt.Sprintf("changes=%d", changes),
		})
	}

	{
		w := evalWorld(&physics.AdaptiveConfig{
			DisableAnomaly: true, DownscaleBlockFrames: 120, PenetrationLow: -1, BaseIter: 32, MinIter: 16,
		})
		err := evalFrames(w, 60, 0)
		results = append(results, EvalResult{
			Case: "downscale-block-window", Pass: err == nil && w.Iterations() >= 32,
			Detail: fmt.Sprintf("iter=%d", w.Iterations()),
		})
	}

	{
		w := evalWorld(&physics.AdaptiveConfig{DisableAnomaly: true})
		err := evalFrames(w, 10, 2.5)
		results = append(results, EvalResult{
			Case: "anomaly-disabled", Pass: err == nil && w.AdaptiveIterationsEnabled(),
			Detail: fmt.Sprintf("adaptiveEnabled=%v", w.AdaptiveIterationsEnabled()),
		})
	}

	results = append(results, alarmEval())

	{
		run := func(substeps bool) string {
			return evalHash(func() *physics.World {
				w := evalWorld(frozenAdaptive(120, 0))
				if substeps {
					w.EnableAdaptiveSubsteps(physics.SubstepConfig{
						ContactDensityHigh:        9e9,
						DragDisplacementHigh:      9e9,
						PenetrationBoostThreshold: 9e9,
						TrackSubstepSequence:      true,
					})
				}
				return w
			}, 60, 0.4)
		}
		off, on := run(false), run(true)
		results = append(results, EvalResult{Case: "substeps-equivalence-inert", Pass: off == on, Detail: off + " vs " + on})
	}

	results = append(results, sameHash("substeps-determinism", func() *physics.World {
		w := evalWorld(frozenAdaptive(120, 0))
		w.EnableAdaptiveSubsteps(physics.SubstepConfig{
			TrackSubstepSequence:       true,
			FreezeAfterFirstEscalation: true,
			ContactDensityHigh:         0.5,
			DragDisplacementHigh:       50,
		})
		return w
	}, 70, 0.6))

	results = append(results, sameHash("metrics-hash-determinism", func() *physics.World {
		w := evalWorld(frozenAdaptive(120, 5))
		w.EnableDeterminismMetrics()
		return w
	}, 70, 0.9))

	return results
}

// alarmEval stacks two bricks on the same center and expects one step to
// trip an alarm armed at 0.5 with a run of 1.
func alarmEval() EvalResult {
	alarm := physics.NewPenetrationAlarm()
	alarm.Configure(0.5, 1)
	cfg := physics.DefaultConfig()
	cfg.OuterRadius = evalOuterRadius
	cfg.IDs = physics.NewIDAllocator()
	cfg.Alarm = alarm
	w := physics.NewWorld(cfg)
	w.NewBody(0, 0, scenario.BrickW, scenario.BrickH, 1)
	w.NewBody(0, 0, scenario.BrickW, scenario.BrickH, 1)

	err := w.Step(w.LastTime() + scenario.FrameMs + 0.01)
	triggered := errors.Is(err, physics.ErrPenetrationAlarm)
	return EvalResult{Case: "penetration-alarm", Pass: triggered, Detail: fmt.Sprintf("triggered=%v", triggered)}
}

// MiniEvalsPassed reports whether every result passed
func MiniEvalsPassed(results []EvalResult) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}
