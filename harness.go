package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PixelParasite101/Packing-Lab/physics"
	"github.com/PixelParasite101/Packing-Lab/scenario"
)

// ErrPairGate is returned when the spatial hash stops pruning enough pairs
var ErrPairGate = errors.New("pair gate failed")

// RunOptions adjusts a headless scenario run
type RunOptions struct {
	Grid   bool // force the spatial hash on
	Alarm  *physics.PenetrationAlarm
	Logger *log.Logger
}

// Report summarizes one headless run
type Report struct {
	RunID      string          `json:"run_id"`
	Scenario   string          `json:"scenario"`
	Frames     int             `json:"frames"`
	Ticks      int             `json:"ticks"`
	Hash       string          `json:"hash"`
	Parts      []string        `json:"parts"`
	Iterations int             `json:"iterations"`
	Substeps   int             `json:"substeps"`
	Broadphase string          `json:"broadphase"`
	Metrics    physics.Metrics `json:"metrics"`
	FrameBytes int             `json:"frame_bytes"`

	AvgBroadphaseMs  float64       `json:"avg_broadphase_ms"`
	AvgNarrowphaseMs float64       `json:"avg_narrowphase_ms"`
	AvgSolverMs      float64       `json:"avg_solver_ms"`
	Elapsed          time.Duration `json:"elapsed"`
}

// Sample converts the report into a telemetry sample
func (r Report) Sample() PerfSample {
	return PerfSample{
		Scenario:      r.Scenario,
		RunID:         r.RunID,
		BroadphaseMs:  r.AvgBroadphaseMs,
		NarrowphaseMs: r.AvgNarrowphaseMs,
		SolverMs:      r.AvgSolverMs,
		Pairs:         r.Metrics.BroadphasePairs,
		Iterations:    r.Iterations,
		Substeps:      r.Substeps,
		Sleeping:      r.Metrics.SleepingCount,
	}
}

// String renders the report for the CLI
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: hash=%s ticks=%s iterations=%d substeps=%d broadphase=%s\n",
		r.Scenario, r.Hash, FormatCount(r.Ticks), r.Iterations, r.Substeps, r.Broadphase)
	fmt.Fprintf(&b, "  pairs=%s contacts=%d postPen=%.3f sleeping=%d wakes=%d\n",
		FormatCount(r.Metrics.BroadphasePairs), r.Metrics.ContactCount,
		r.Metrics.PostMaxPenetration, r.Metrics.SleepingCount, r.Metrics.WakeEventsTotal)
	fmt.Fprintf(&b, "  avg broadphase=%s narrowphase=%s solver=%s elapsed=%s frame=%s",
		FormatMs(r.AvgBroadphaseMs), FormatMs(r.AvgNarrowphaseMs), FormatMs(r.AvgSolverMs),
		r.Elapsed.Round(time.Microsecond), FormatBytes(r.FrameBytes))
	return b.String()
}

// RunScenario plays a scenario on a fresh world and reports its outcome.
// An alarm error stops the run and is returned with the partial report.
func RunScenario(sc scenario.Scenario, opts RunOptions) (Report, error) {
	if opts.Grid {
		sc = sc.WithGrid(true)
	}
	cfg := sc.Config()
	cfg.Alarm = opts.Alarm
	if cfg.Alarm == nil {
		cfg.Alarm = physics.NewPenetrationAlarm()
	}
	cfg.Logger = opts.Logger

	start := time.Now()
	w, bodies := sc.Build(cfg)
	rep := Report{RunID: GenerateUUID(), Scenario: sc.Name, Frames: sc.Frames}

	var runErr error
	var sumB, sumN, sumS float64
	frames := 0
	for f := 0; f < sc.Frames; f++ {
		if err := sc.Advance(f, w, bodies); err != nil {
			runErr = fmt.Errorf("%s frame %d: %w", sc.Name, f, err)
			break
		}
		m := w.Metrics()
		sumB += m.BroadphaseMs
		sumN += m.NarrowphaseMs
		sumS += m.SolverMs
		frames++
	}
	rep.Elapsed = time.Since(start)

	h := physics.BuildDeterminismHash(w)
	rep.Hash = h.Hash
	rep.Parts = h.Parts
	rep.Ticks = w.Frame()
	rep.Iterations = w.Iterations()
	rep.Substeps = w.Substeps()
	rep.Broadphase = w.Mode().String()
	rep.Metrics = w.Metrics()
	if data, err := EncodeFrame(BuildFrame(w, uint64(rep.Ticks), runErr != nil)); err == nil {
		rep.FrameBytes = len(data)
	}
	if frames > 0 {
		rep.AvgBroadphaseMs = sumB / float64(frames)
		rep.AvgNarrowphaseMs = sumN / float64(frames)
		rep.AvgSolverMs = sumS / float64(frames)
	}
	return rep, runErr
}

// PairGateConfig holds the pair reduction gate thresholds
type PairGateConfig struct {
	MinReduction          float64
	ConsecutiveFailWindow int
	RegressionWindow      int
	MaxRegressionDrop     float64
}

// DefaultPairGateConfig returns the gate thresholds used in CI
func DefaultPairGateConfig() PairGateConfig {
	return PairGateConfig{
		MinReduction:          0.05,
		ConsecutiveFailWindow: 3,
		RegressionWindow:      5,
		MaxRegressionDrop:     0.15,
	}
}

// PairGateResult is the outcome of one gate run
type PairGateResult struct {
	NaivePairs int     `json:"naive_pairs"`
	GridPairs  int     `json:"grid_pairs"`
	Reduction  float64 `json:"reduction"`
	History    int     `json:"history"`
	Pass       bool    `json:"pass"`
	Reason     string  `json:"reason,omitempty"`
}

// PairReduction returns 1 - grid/naive, or 0 when the counts are unusable
func PairReduction(naive, grid int) float64 {
	if naive > 0 && grid > 0 && grid <= naive {
		return 1 - float64(grid)/float64(naive)
	}
	return 0
}

// MeasurePairReduction runs the staggered wall on both broadphases and
// compares their final-tick pair counts.
func MeasurePairReduction(logger *log.Logger) (naive, grid int, err error) {
	sc, ok := scenario.Lookup("staggered-wall")
	if !ok {
		return 0, 0, errors.New("staggered-wall scenario missing")
	}
	rn, err := RunScenario(sc, RunOptions{Logger: logger})
	if err != nil {
		return 0, 0, err
	}
	rg, err := RunScenario(sc, RunOptions{Grid: true, Logger: logger})
	if err != nil {
		return 0, 0, err
	}
	return rn.Metrics.BroadphasePairs, rg.Metrics.BroadphasePairs, nil
}

// EvaluatePairGate checks history, whose last entry is the current run.
// It fails when the last ConsecutiveFailWindow runs are all below the
// minimum, or when the current run drops more than MaxRegressionDrop
// below the median of the RegressionWindow runs before it.
func EvaluatePairGate(cfg PairGateConfig, history []float64) (bool, string) {
	n := len(history)
	if n == 0 {
		return true, ""
	}
	if w := cfg.ConsecutiveFailWindow; w > 0 && n >= w {
		below := true
		for _, r := range history[n-w:] {
			if r >= cfg.MinReduction {
				below = false
				break
			}
		}
		if below {
			return false, fmt.Sprintf("%d consecutive runs below minimum reduction %s", w, Percent(cfg.MinReduction))
		}
	}
	if w := cfg.RegressionWindow; w > 0 && n-1 >= w {
		med := median(history[n-1-w : n-1])
		if drop := med - history[n-1]; drop > cfg.MaxRegressionDrop {
			return false, fmt.Sprintf("reduction dropped %.2fpp vs median %s of previous %d runs",
				drop*100, Percent(med), w)
		}
	}
	return true, ""
}

// RunPairGate measures the current reduction, appends it to the stored
// history and evaluates the gate. db may be nil for a one-off check.
func RunPairGate(db *DB, cfg PairGateConfig, logger *log.Logger) (PairGateResult, error) {
	naive, grid, err := MeasurePairReduction(logger)
	if err != nil {
		return PairGateResult{}, err
	}
	res := PairGateResult{NaivePairs: naive, GridPairs: grid, Reduction: PairReduction(naive, grid)}

	var history []float64
	if db != nil {
		if history, err = db.PairHistory(); err != nil {
			return res, fmt.Errorf("load pair history: %w", err)
		}
	}
	history = append(history, res.Reduction)
	if len(history) > pairHistoryCap {
		history = history[len(history)-pairHistoryCap:]
	}
	res.History = len(history)
	res.Pass, res.Reason = EvaluatePairGate(cfg, history)

	if db != nil {
		if _, err := db.RecordPairRun(PairRunRow{
			NaivePairs: naive, GridPairs: grid, Reduction: res.Reduction, Passed: res.Pass,
		}); err != nil {
			return res, fmt.Errorf("record pair run: %w", err)
		}
	}
	if !res.Pass {
		return res, fmt.Errorf("%w: %s", ErrPairGate, res.Reason)
	}
	return res, nil
}
