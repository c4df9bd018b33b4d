package physics

import (
	"fmt"
	"log"
	"time"
)

const (
	DefaultTimeStep = 1.0 / 60
	DefaultSubsteps = 2
	maxAccumulator  = 0.25 // seconds of simulated time kept per Step
)

// Config holds World construction settings
type Config struct {
	TimeStep    float64 // fixed step in seconds
	OuterRadius float64
	Substeps    int // sub-ticks per fixed step when adaptive substeps are off
	Iterations  int // initial solver passes
	StartTimeMs float64

	// Alarm is checked every tick. Nil uses DefaultPenetrationAlarm.
	Alarm *PenetrationAlarm
	// Logger receives dev log lines. Nil uses the standard logger.
	Logger *log.Logger
	// IDs allocates IDs for World.NewBody. Nil uses the package-wide
	// allocator behind NewBody and ResetBodyIDs.
	IDs *IDAllocator
}

// DefaultConfig returns the default World settings
func DefaultConfig() Config {
	return Config{
		TimeStep:    DefaultTimeStep,
		OuterRadius: DefaultOuterRadius,
		Substeps:    DefaultSubsteps,
		Iterations:  DefaultSolverIterations,
	}
}

type adaptiveIterations struct {
	enabled bool
	cfg     AdaptiveConfig
	state   IterationState
	log     []string
	seq     int
}

type adaptiveSubsteps struct {
	enabled bool
	cfg     SubstepConfig
	state   SubstepState
	log     []string
	prev    map[int]Vec2
}

type sleeping struct {
	enabled bool
	cfg     SleepConfig
}

// World owns the bodies and runs the fixed-step simulation. It is not safe
// for concurrent use.
type World struct {
	cfg      Config
	bodies   []*Body
	contacts []Contact

	accumulator float64
	lastTime    float64
	frame       int

	mode       BroadphaseMode
	broadphase Broadphase
	solver     *Solver

	arena      Arena
	centerWall bool

	adaptive adaptiveIterations
	substeps adaptiveSubsteps
	sleeping sleeping
	spring   MouseSpring
	springOn bool // spring has been enabled at least once

	det     determinism
	metrics Metrics
	alarm   *PenetrationAlarm
	devlog  *DevLog
	ids     *IDAllocator
}

// NewWorld creates an empty world. Zero fields in cfg take their defaults.
func NewWorld(cfg Config) *World {
	def := DefaultConfig()
	if !(cfg.TimeStep > 0) {
		cfg.TimeStep = def.TimeStep
	}
	if !(cfg.OuterRadius > 0) {
		cfg.OuterRadius = def.OuterRadius
	}
	if cfg.Substeps < 1 {
		cfg.Substeps = def.Substeps
	}
	if cfg.Iterations < 1 {
		cfg.Iterations = def.Iterations
	}
	alarm := cfg.Alarm
	if alarm == nil {
		alarm = DefaultPenetrationAlarm()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	ids := cfg.IDs
	if ids == nil {
		ids = &defaultIDs
	}
	w := &World{
		cfg:        cfg,
		lastTime:   cfg.StartTimeMs,
		mode:       BroadphaseNaive,
		broadphase: NewNaiveBroadphase(),
		solver:     NewSolver(cfg.Iterations),
		arena:      Arena{OuterRadius: cfg.OuterRadius},
		alarm:      alarm,
		devlog:     newDevLog(logger),
		ids:        ids,
	}
	w.substeps.cfg = DefaultSubstepConfig()
	w.substeps.state.Current = w.substeps.cfg.Base
	w.sleeping.cfg = DefaultSleepConfig()
	w.spring.cfg = DefaultMouseSpringConfig()
	return w
}

// Add hands a body to the world
func (w *World) Add(b *Body) {
	w.bodies = append(w.bodies, b)
}

// NewBody creates a body with an ID from the world's allocator and adds it
func (w *World) NewBody(x, y, width, height, mass float64) *Body {
	b := newBody(w.ids.Next(), x, y, width, height, mass)
	w.Add(b)
	return b
}

// Remove detaches a body. Removing an unknown body is a no-op.
func (w *World) Remove(b *Body) {
	for i, e := range w.bodies {
		if e == b {
			w.bodies = append(w.bodies[:i], w.bodies[i+1:]...)
			break
		}
	}
	if w.spring.body == b {
		w.ReleaseMouseSpring()
	}
	if w.substeps.prev != nil {
		delete(w.substeps.prev, b.ID)
	}
}

// Bodies returns the attached bodies in insertion order
func (w *World) Bodies() []*Body {
	out := make([]*Body, len(w.bodies))
	copy(out, w.bodies)
	return out
}

// BodyByID looks up an attached body
func (w *World) BodyByID(id int) *Body {
	for _, b := range w.bodies {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// BodyAt returns the most recently added body containing the point
func (w *World) BodyAt(x, y float64) *Body {
	for i := len(w.bodies) - 1; i >= 0; i-- {
		if w.bodies[i].Contains(x, y) {
			return w.bodies[i]
		}
	}
	return nil
}

// Contacts returns a copy of the last tick's sorted contact list
func (w *World) Contacts() []Contact {
	out := make([]Contact, len(w.contacts))
	copy(out, w.contacts)
	return out
}

// Metrics returns a snapshot of the metrics
func (w *World) Metrics() Metrics {
	m := w.metrics
	m.TotalIterations = w.det.totalIterations
	m.FinalContactCount = w.det.finalContactCount
	return m
}

// Frame returns the number of ticks run so far
func (w *World) Frame() int { return w.frame }

// Iterations returns the solver pass count
func (w *World) Iterations() int { return w.solver.Iterations }

// SetIterations overrides the solver pass count
func (w *World) SetIterations(n int) {
	if n < 1 {
		n = 1
	}
	w.solver.Iterations = n
}

// Substeps returns the sub-ticks run per fixed step
func (w *World) Substeps() int {
	if w.substeps.enabled {
		return w.substeps.state.Current
	}
	return w.cfg.Substeps
}

// TimeStep returns the fixed step in seconds
func (w *World) TimeStep() float64 { return w.cfg.TimeStep }

// LastTime returns the timestamp of the last Step call in milliseconds
func (w *World) LastTime() float64 { return w.lastTime }

// SetLastTime rebases the step clock without simulating
func (w *World) SetLastTime(ms float64) { w.lastTime = ms }

// Mode returns the active broadphase strategy
func (w *World) Mode() BroadphaseMode { return w.mode }

// Arena returns the arena geometry
func (w *World) Arena() Arena { return w.arena }

// CenterWall reports whether the y=0 wall is active
func (w *World) CenterWall() bool { return w.centerWall }

// DevLog returns the world's dev log
func (w *World) DevLog() *DevLog { return w.devlog }

// EnableDevLogging turns on dev logging with optional category switches
func (w *World) EnableDevLogging(categories map[string]bool) { w.devlog.Enable(categories) }

// DisableDevLogging turns dev logging off
func (w *World) DisableDevLogging() { w.devlog.Disable() }

// IterationLog returns the tracked iteration changes as "seq:iterations"
func (w *World) IterationLog() []string { return append([]string(nil), w.adaptive.log...) }

// SubstepLog returns the tracked substep changes as "frame:up|down:n"
func (w *World) SubstepLog() []string { return append([]string(nil), w.substeps.log...) }

// SetArena changes the arena. A smaller outer radius immediately slides
// existing bodies inside it. innerRadius <= 0 removes the hole.
func (w *World) SetArena(outerRadius, innerRadius float64) {
	prev := w.arena.OuterRadius
	if innerRadius < 0 {
		innerRadius = 0
	}
	w.arena = Arena{OuterRadius: outerRadius, InnerRadius: innerRadius}
	if outerRadius > 0 && prev > 0 && outerRadius < prev {
		res := shrinkInto(w.bodies, outerRadius)
		w.metrics.ContainmentRepositions += res.Repositioned
		w.metrics.OutOfBoundsCount += res.OutOfBounds
		if res.Repositioned > 0 || res.OutOfBounds > 0 {
			w.devlog.Printf(LogWorld, "arena shrink %.1f -> %.1f repositioned=%d outOfBounds=%d",
				prev, outerRadius, res.Repositioned, res.OutOfBounds)
		}
	}
}

// SetCenterWall toggles the horizontal wall along y=0
func (w *World) SetCenterWall(on bool) { w.centerWall = on }

// EnableSpatialHash switches to the grid broadphase
func (w *World) EnableSpatialHash(cfg GridConfig) {
	if g, ok := w.broadphase.(*GridBroadphase); ok && g.CellSize() == cfg.CellSize {
		return
	}
	w.broadphase = NewGridBroadphase(cfg)
	w.mode = BroadphaseGrid
}

// DisableSpatialHash switches back to the naive broadphase
func (w *World) DisableSpatialHash() {
	if w.mode == BroadphaseNaive {
		return
	}
	w.broadphase = NewNaiveBroadphase()
	w.mode = BroadphaseNaive
}

// EnableAdaptiveIterations turns on the iteration controller, resetting its
// counters, freeze and suspension. Unless PreserveExistingIterations is set
// the solver restarts at BaseIter.
func (w *World) EnableAdaptiveIterations(cfg AdaptiveConfig) {
	cfg = cfg.normalize()
	w.adaptive = adaptiveIterations{enabled: true, cfg: cfg}
	if !cfg.PreserveExistingIterations {
		w.solver.Iterations = cfg.BaseIter
	}
}

// DisableAdaptiveIterations stops the controller, keeping the current count
func (w *World) DisableAdaptiveIterations() { w.adaptive.enabled = false }

// AdaptiveIterationsEnabled reports whether the controller is running
func (w *World) AdaptiveIterationsEnabled() bool { return w.adaptive.enabled }

// EnableAdaptiveSubsteps turns on the substep controller starting at Base
func (w *World) EnableAdaptiveSubsteps(cfg SubstepConfig) {
	cfg = cfg.normalize()
	w.substeps = adaptiveSubsteps{
		enabled: true,
		cfg:     cfg,
		state:   SubstepState{Current: cfg.Base},
		prev:    make(map[int]Vec2),
	}
}

// DisableAdaptiveSubsteps returns to the fixed substep count
func (w *World) DisableAdaptiveSubsteps() { w.substeps.enabled = false }

// EnableSleeping turns on dormancy tracking
func (w *World) EnableSleeping(cfg SleepConfig) {
	w.sleeping = sleeping{enabled: true, cfg: cfg.normalize()}
}

// DisableSleeping turns dormancy off and wakes every body
func (w *World) DisableSleeping() {
	w.sleeping.enabled = false
	for _, b := range w.bodies {
		b.Asleep = false
		b.SleepFrames = 0
	}
}

// SleepingEnabled reports whether dormancy tracking is on
func (w *World) SleepingEnabled() bool { return w.sleeping.enabled }

// WakeBody wakes a body while sleeping is enabled
func (w *World) WakeBody(b *Body) {
	if !w.sleeping.enabled {
		return
	}
	b.Asleep = false
	b.SleepFrames = 0
}

// EnableMouseSpringConstraint turns on drag handling
func (w *World) EnableMouseSpringConstraint(cfg MouseSpringConfig) {
	w.spring.cfg = cfg.normalize()
	w.spring.enabled = true
	w.springOn = true
}

// DisableMouseSpringConstraint turns drag handling off and detaches
func (w *World) DisableMouseSpringConstraint() {
	w.spring.enabled = false
	w.spring.active = false
	w.spring.body = nil
}

// MouseSpring returns the drag constraint state
func (w *World) MouseSpring() *MouseSpring { return &w.spring }

// AttachMouseSpring starts dragging b toward (x, y). It has no effect while
// the constraint is disabled.
func (w *World) AttachMouseSpring(b *Body, x, y float64) {
	if !w.spring.enabled || b == nil {
		return
	}
	w.spring.active = true
	w.spring.body = b
	w.spring.target = Vec2{x, y}
	w.spring.last = b.Pos
	w.WakeBody(b)
}

// MoveMouseSpring updates the drag target
func (w *World) MoveMouseSpring(x, y float64) {
	if w.spring.active {
		w.spring.target = Vec2{x, y}
	}
}

// ReleaseMouseSpring ends the drag
func (w *World) ReleaseMouseSpring() {
	w.spring.active = false
	w.spring.body = nil
}

// EnableAdvancedFriction replaces the solver's friction settings
func (w *World) EnableAdvancedFriction(cfg FrictionConfig) {
	cfg = cfg.normalize()
	cfg.Enabled = true
	w.solver.Friction = cfg
}

// DisableAdvancedFriction returns to the base friction coefficient
func (w *World) DisableAdvancedFriction() { w.solver.Friction.Enabled = false }

// EnableDeterminismMetrics starts accumulating the METRICS hash segment
func (w *World) EnableDeterminismMetrics() {
	w.det.metrics = true
	w.det.totalIterations = 0
	w.det.finalContactCount = 0
}

// DisableDeterminismMetrics stops accumulating the METRICS segment
func (w *World) DisableDeterminismMetrics() { w.det.metrics = false }

// EnableDeterminismDiagnostics adds the DIAG segment to the hash. It only
// records while determinism metrics are enabled.
func (w *World) EnableDeterminismDiagnostics() { w.det.diagnostics = true }

// DisableDeterminismDiagnostics drops the DIAG segment
func (w *World) DisableDeterminismDiagnostics() { w.det.diagnostics = false }

// Step advances the simulation to timeMs, running as many fixed steps as
// the accumulated time allows.
func (w *World) Step(timeMs float64) error {
	dt := w.cfg.TimeStep
	frameDt := (timeMs - w.lastTime) / 1000
	w.lastTime = timeMs
	if frameDt > 0 {
		w.accumulator += frameDt
	}
	if w.accumulator > maxAccumulator {
		w.accumulator = maxAccumulator
	}
	for w.accumulator >= dt {
		if w.substeps.enabled {
			w.decideSubsteps()
		}
		steps := w.Substeps()
		sub := dt / float64(steps)
		for s := 0; s < steps; s++ {
			if err := w.Tick(sub); err != nil {
				return err
			}
		}
		w.accumulator -= dt
	}
	return nil
}

func (w *World) decideSubsteps() {
	n := len(w.bodies)
	if n == 0 {
		n = 1
	}
	in := SubstepInput{
		Density:     float64(w.metrics.ContactCount) / float64(n),
		Penetration: w.metrics.PreMaxPenetration,
	}
	for _, b := range w.bodies {
		if prev, ok := w.substeps.prev[b.ID]; ok {
			if d := b.Pos.Sub(prev).Len(); d > in.MaxDisplacement {
				in.MaxDisplacement = d
			}
		}
		w.substeps.prev[b.ID] = b.Pos
	}
	before := w.substeps.state.Current
	var ev SubstepEvent
	w.substeps.state, ev = StepSubsteps(w.substeps.cfg, w.substeps.state, in)
	if ev == SubstepUnchanged {
		return
	}
	dir := "up"
	if ev == SubstepDown {
		dir = "down"
	}
	if w.substeps.cfg.TrackSubstepSequence {
		w.substeps.log = append(w.substeps.log, fmt.Sprintf("%d:%s:%d", w.frame, dir, w.substeps.state.Current))
	}
	w.devlog.Printf(LogAdaptive, "Substeps %d -> %d density=%.2f pen=%.2f maxDisp=%.2f",
		before, w.substeps.state.Current, in.Density, in.Penetration, in.MaxDisplacement)
}

// Tick runs exactly one simulation tick of length dt seconds. The only
// error it returns comes from the penetration alarm, in which case the
// tick stops after contact generation.
func (w *World) Tick(dt float64) error {
	t0 := time.Now()
	w.frame++

	if w.spring.Active() {
		w.metrics.MouseSpringDisplacement += w.spring.apply(dt)
	}

	w.broadphase.Build(w.bodies)
	t1 := time.Now()
	pairs := w.broadphase.QueryPairs()
	w.metrics.BroadphasePairs = len(pairs)

	w.contacts = w.contacts[:0]
	clampedAny := false
	for _, p := range pairs {
		c, ok := RectRect(p.A, p.B)
		if !ok {
			continue
		}
		var hit bool
		c.Depth, hit = clampDepth(c.Depth)
		clampedAny = clampedAny || hit
		w.contacts = append(w.contacts, c)
	}
	var hit bool
	w.contacts, hit = containmentContacts(w.contacts, w.bodies, w.arena)
	clampedAny = clampedAny || hit
	if w.centerWall {
		w.contacts, hit = centerWallContacts(w.contacts, w.bodies)
		clampedAny = clampedAny || hit
	}
	if clampedAny {
		w.devlog.Printf(LogWorld, "depth clamp applied")
	}
	t2 := time.Now()

	sortContacts(w.contacts)
	w.metrics.ContactCount = len(w.contacts)
	w.metrics.PreMaxPenetration = maxDepth(w.contacts)
	if w.sleeping.enabled {
		for _, b := range w.bodies {
			b.lastFrameCorrection = 0
		}
	}
	if err := w.alarm.Check(w.metrics.PreMaxPenetration); err != nil {
		return fmt.Errorf("tick %d: %w", w.frame, err)
	}

	if w.adaptive.enabled {
		w.adaptIterations()
	}
	if w.det.metrics {
		w.det.totalIterations += w.solver.Iterations
	}

	if w.sleeping.enabled {
		w.solver.Solve(awake(w.contacts), func(c *Contact, corr float64) {
			if !c.A.Static() {
				c.A.lastFrameCorrection += corr
			}
			if !c.B.Static() {
				c.B.lastFrameCorrection += corr
			}
		})
	} else {
		w.solver.Solve(w.contacts, nil)
	}

	post := 0.0
	for i := range w.contacts {
		c := &w.contacts[i]
		if c.Boundary() {
			continue
		}
		if d := penetration(c.A, c.B); d > post {
			post = d
		}
	}
	w.metrics.PostMaxPenetration = post
	t3 := time.Now()

	w.metrics.BroadphaseMs = ms(t1.Sub(t0))
	w.metrics.NarrowphaseMs = ms(t2.Sub(t1))
	w.metrics.SolverMs = ms(t3.Sub(t2))

	if w.det.metrics {
		w.det.finalContactCount = w.metrics.ContactCount
		if w.det.diagnostics {
			w.det.diagPairs = w.metrics.BroadphasePairs
			if w.springOn {
				w.det.diagDisp = w.metrics.MouseSpringDisplacement
				w.det.diagHasDisp = true
			}
			if w.spring.enabled && w.spring.cfg.MassScaling {
				w.det.diagMassKey = w.spring.cfg.massKey()
			}
		}
	}

	if w.sleeping.enabled {
		res := evaluateSleep(w.sleeping.cfg, w.bodies, w.contacts, w.metrics.PreMaxPenetration, dt)
		w.metrics.SleepingCount = res.Sleeping
		w.metrics.WakesThisFrame = res.Wakes
		w.metrics.WakeEventsTotal += res.Wakes
	}
	return nil
}

func (w *World) adaptIterations() {
	a := &w.adaptive
	before := w.solver.Iterations
	a.state.Iterations = before
	var ev IterationEvent
	a.state, ev = StepIterations(a.cfg, a.state, IterationInput{
		Frame:       w.frame,
		Penetration: w.metrics.PreMaxPenetration,
		Contacts:    w.metrics.ContactCount,
	})
	w.solver.Iterations = a.state.Iterations
	switch ev {
	case IterSuspended:
		a.enabled = false
		w.devlog.Printf(LogAdaptive, "Suspended due to anomalous penetration")
	case IterEscalated, IterDownscaled:
		w.devlog.Printf(LogAdaptive, "Iter %d -> %d pen=%.3f cc=%d lowCounter=%d",
			before, w.solver.Iterations, w.metrics.PreMaxPenetration, w.metrics.ContactCount, a.state.LowCounter)
		if a.cfg.TrackIterationSequence {
			a.log = append(a.log, fmt.Sprintf("%d:%d", a.seq, w.solver.Iterations))
			a.seq++
		}
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}
