package main

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/PixelParasite101/Packing-Lab/physics"
	"github.com/PixelParasite101/Packing-Lab/scenario"
)

const (
	TickRate       = 60 // fixed steps per second
	BroadcastRate  = 20 // state frames per second
	TickDuration   = time.Second / TickRate
	BroadcastEvery = TickRate / BroadcastRate
	TickMs         = 1000.0 / TickRate
)

const (
	maxBodiesPerSession  = 400
	maxClientsPerSession = 16
	perfSampleEvery      = 300 // ticks between live perf samples
)

var (
	ErrHalted   = errors.New("session halted by penetration alarm")
	ErrNoBody   = errors.New("no such body")
	ErrStatic   = errors.New("static bodies cannot be dragged")
	ErrTooMany  = errors.New("body limit reached")
	ErrBadArena = errors.New("invalid arena")
	ErrFeature  = errors.New("unknown feature")
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// Game runs one live world on a fixed ticker
type Game struct {
	mu       sync.Mutex
	scenario string
	world    *physics.World
	alarm    *physics.PenetrationAlarm
	journal  *MoveJournal
	clients  map[string]Broadcaster
	tick     uint64
	halted   bool
	stopped  bool
	stop     chan struct{}
	tel      *Telemetry

	perfTicks int
	perfB     float64
	perfN     float64
	perfS     float64
}

// NewGame creates a game seeded from a scenario's setup
func NewGame(sc scenario.Scenario, tel *Telemetry) *Game {
	alarm := physics.NewPenetrationAlarm()
	cfg := sc.Config()
	cfg.Alarm = alarm
	w, _ := sc.Build(cfg)
	w.EnableMouseSpringConstraint(physics.DefaultMouseSpringConfig())
	return &Game{
		scenario: sc.Name,
		world:    w,
		alarm:    alarm,
		journal:  NewMoveJournal(),
		clients:  make(map[string]Broadcaster),
		stop:     make(chan struct{}),
		tel:      tel,
	}
}

// Run starts the game loop
func (g *Game) Run() {
	ticker := time.NewTicker(TickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.update()
		case <-g.stop:
			return
		}
	}
}

// Stop terminates the game loop
func (g *Game) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.stopped {
		g.stopped = true
		close(g.stop)
	}
}

// AddClient associates a broadcaster with a client ID
func (g *Game) AddClient(id string, client Broadcaster) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.clients) >= maxClientsPerSession {
		return false
	}
	g.clients[id] = client
	return true
}

// RemoveClient drops a client
func (g *Game) RemoveClient(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.clients, id)
}

// ClientCount returns the number of attached clients
func (g *Game) ClientCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// BodyCount returns the number of bodies in the world
func (g *Game) BodyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.world.Bodies())
}

// Halted reports whether the alarm stopped the simulation
func (g *Game) Halted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halted
}

// Journal returns the session's move journal
func (g *Game) Journal() *MoveJournal { return g.journal }

// update runs one fixed step
func (g *Game) update() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.halted {
		return
	}
	g.tick++

	sp := g.world.MouseSpring()
	var dragged *physics.Body
	var from physics.Vec2
	if sp.Active() {
		dragged = sp.Body()
		from = dragged.Pos
	}

	err := g.world.Step(g.world.LastTime() + TickMs)
	if dragged != nil {
		g.journal.RegisterMove(dragged.ID, from, dragged.Pos)
	}
	if err != nil {
		g.halt(err)
		return
	}

	m := g.world.Metrics()
	g.perfTicks++
	g.perfB += m.BroadphaseMs
	g.perfN += m.NarrowphaseMs
	g.perfS += m.SolverMs
	if g.perfTicks >= perfSampleEvery {
		g.recordPerf(m)
	}

	if g.tick%BroadcastEvery == 0 {
		g.broadcastState()
	}
}

func (g *Game) halt(err error) {
	if !errors.Is(err, physics.ErrPenetrationAlarm) {
		log.Printf("game %s: step error: %v", g.scenario, err)
	}
	g.halted = true
	g.world.ReleaseMouseSpring()
	g.journal.Flush()
	if g.tel != nil {
		g.tel.AlarmTripped()
	}
	log.Printf("game %s halted at frame %d: %v", g.scenario, g.world.Frame(), err)
	g.broadcastMsg(Envelope{T: MsgAlarm, Data: AlarmMsg{Frame: g.world.Frame(), Error: err.Error()}})
	g.broadcastState()
}

func (g *Game) recordPerf(m physics.Metrics) {
	if g.tel != nil {
		n := float64(g.perfTicks)
		g.tel.Record(PerfSample{
			Scenario:      "live:" + g.scenario,
			BroadphaseMs:  g.perfB / n,
			NarrowphaseMs: g.perfN / n,
			SolverMs:      g.perfS / n,
			Pairs:         m.BroadphasePairs,
			Iterations:    g.world.Iterations(),
			Substeps:      g.world.Substeps(),
			Sleeping:      m.SleepingCount,
		})
	}
	g.perfTicks = 0
	g.perfB, g.perfN, g.perfS = 0, 0, 0
}

// Drag drives the mouse spring through a start, move, end sequence
func (g *Game) Drag(phase string, x, y float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.halted {
		return ErrHalted
	}
	switch phase {
	case DragStart:
		b := g.world.BodyAt(x, y)
		if b == nil {
			return fmt.Errorf("%w at (%.1f, %.1f)", ErrNoBody, x, y)
		}
		if b.Static() {
			return ErrStatic
		}
		g.journal.Flush()
		g.world.AttachMouseSpring(b, x, y)
	case DragMove:
		g.world.MoveMouseSpring(x, y)
	case DragEnd:
		g.world.ReleaseMouseSpring()
		g.journal.Flush()
	default:
		return fmt.Errorf("unknown drag phase %q", phase)
	}
	return nil
}

// Place adds a body and returns its ID
func (g *Game) Place(msg PlaceMsg) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.world.Bodies()) >= maxBodiesPerSession {
		return 0, ErrTooMany
	}
	w, h := msg.W, msg.H
	if !(w > 0) || !(h > 0) {
		w, h = scenario.BrickW, scenario.BrickH
	}
	mass := msg.Mass
	if mass == 0 {
		mass = 1
	}
	return g.world.NewBody(msg.X, msg.Y, w, h, mass).ID, nil
}

// Remove deletes a body
func (g *Game) Remove(id int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.world.BodyByID(id)
	if b == nil {
		return fmt.Errorf("%w: %d", ErrNoBody, id)
	}
	g.journal.Flush()
	g.world.Remove(b)
	return nil
}

// Rotate swaps a body's width and height
func (g *Game) Rotate(id int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.world.BodyByID(id)
	if b == nil {
		return fmt.Errorf("%w: %d", ErrNoBody, id)
	}
	g.journal.Flush()
	b.Rotate()
	g.world.WakeBody(b)
	return nil
}

// SetArena changes the arena radii and the center wall
func (g *Game) SetArena(msg ArenaMsg) error {
	if !(msg.Outer > 0) || msg.Inner < 0 || msg.Inner >= msg.Outer {
		return fmt.Errorf("%w: outer %.1f inner %.1f", ErrBadArena, msg.Outer, msg.Inner)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.world.SetArena(msg.Outer, msg.Inner)
	g.world.SetCenterWall(msg.CenterWall)
	return nil
}

// SetFeature toggles one world feature by name
func (g *Game) SetFeature(msg FeatureMsg) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	w := g.world
	switch msg.Name {
	case FeatureGrid:
		if msg.On {
			w.EnableSpatialHash(physics.DefaultGridConfig())
		} else {
			w.DisableSpatialHash()
		}
	case FeatureSleeping:
		if msg.On {
			w.EnableSleeping(physics.DefaultSleepConfig())
		} else {
			w.DisableSleeping()
		}
	case FeatureAdaptive:
		if msg.On {
			w.EnableAdaptiveIterations(physics.DefaultAdaptiveConfig())
		} else {
			w.DisableAdaptiveIterations()
		}
	case FeatureSubsteps:
		if msg.On {
			w.EnableAdaptiveSubsteps(physics.DefaultSubstepConfig())
		} else {
			w.DisableAdaptiveSubsteps()
		}
	case FeatureFriction:
		if msg.On {
			w.EnableAdvancedFriction(physics.DefaultFrictionConfig())
		} else {
			w.DisableAdvancedFriction()
		}
	case FeatureSpring:
		if msg.On {
			w.EnableMouseSpringConstraint(physics.DefaultMouseSpringConfig())
		} else {
			w.DisableMouseSpringConstraint()
		}
	case FeatureDeterminism:
		if msg.On {
			w.EnableDeterminismMetrics()
			w.EnableDeterminismDiagnostics()
		} else {
			w.DisableDeterminismMetrics()
			w.DisableDeterminismDiagnostics()
		}
	case FeatureAlarm:
		if msg.On {
			g.alarm.Configure(msg.Threshold, msg.Consecutive)
		} else {
			g.alarm.Disable()
		}
		g.halted = false
	default:
		return fmt.Errorf("%w %q", ErrFeature, msg.Name)
	}
	return nil
}

// Hash returns the determinism hash of the current world
func (g *Game) Hash() physics.DeterminismHash {
	g.mu.Lock()
	defer g.mu.Unlock()
	return physics.BuildDeterminismHash(g.world)
}

// Snapshot returns the current state frame
func (g *Game) Snapshot() StateFrame {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Game) snapshotLocked() StateFrame {
	return BuildFrame(g.world, g.tick, g.halted)
}

// BuildFrame captures a world as a state frame
func BuildFrame(w *physics.World, tick uint64, halted bool) StateFrame {
	m := w.Metrics()
	arena := w.Arena()
	bodies := w.Bodies()
	f := StateFrame{
		Tick:       tick,
		Frame:      w.Frame(),
		Outer:      arena.OuterRadius,
		Inner:      arena.InnerRadius,
		CenterWall: w.CenterWall(),
		Halted:     halted,
		Bodies:     make([]BodyState, 0, len(bodies)),
		Metrics: FrameMetrics{
			Pairs:      m.BroadphasePairs,
			Contacts:   m.ContactCount,
			PrePen:     m.PreMaxPenetration,
			PostPen:    m.PostMaxPenetration,
			Sleeping:   m.SleepingCount,
			Iterations: w.Iterations(),
			Substeps:   w.Substeps(),
			SolverMs:   m.SolverMs,
		},
	}
	for _, b := range bodies {
		f.Bodies = append(f.Bodies, BodyState{
			ID: b.ID, X: b.Pos.X, Y: b.Pos.Y, W: b.W, H: b.H,
			Rot: b.Rot, Static: b.Static(), Asleep: b.Asleep,
		})
	}
	if sp := w.MouseSpring(); sp.Active() {
		t := sp.Target()
		f.Spring = &SpringState{BodyID: sp.Body().ID, X: t.X, Y: t.Y}
	}
	return f
}

// broadcastState sends the current state frame to all clients
func (g *Game) broadcastState() {
	data, err := EncodeFrame(g.snapshotLocked())
	if err != nil {
		log.Printf("encode frame: %v", err)
		return
	}
	for _, c := range g.clients {
		c.SendBinary(data)
	}
}

// SendTo delivers a message to one client of the session
func (g *Game) SendTo(id string, msg Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if c, ok := g.clients[id]; ok {
		c.SendJSON(msg)
	}
}

// broadcastMsg sends a message to all clients in the session
func (g *Game) broadcastMsg(msg Envelope) {
	for _, c := range g.clients {
		c.SendJSON(msg)
	}
}
