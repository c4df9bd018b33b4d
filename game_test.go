package main

import (
	"errors"
	"sync"
	"testing"

	"github.com/PixelParasite101/Packing-Lab/physics"
	"github.com/PixelParasite101/Packing-Lab/scenario"
)

// mockBroadcaster captures sent messages for testing
type mockBroadcaster struct {
	mu       sync.Mutex
	messages []interface{}
	frames   [][]byte
}

func (m *mockBroadcaster) SendJSON(msg interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mockBroadcaster) SendBinary(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, data)
}

func (m *mockBroadcaster) envelopes(t string) []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Envelope
	for _, msg := range m.messages {
		if env, ok := msg.(Envelope); ok && env.T == t {
			out = append(out, env)
		}
	}
	return out
}

func newTestGame(t *testing.T, name string) *Game {
	t.Helper()
	sc, ok := scenario.Lookup(name)
	if !ok {
		t.Fatalf("scenario %q missing", name)
	}
	return NewGame(sc, nil)
}

func TestGameAddRemoveClient(t *testing.T) {
	g := newTestGame(t, "determinism")
	for i := 0; i < maxClientsPerSession; i++ {
		if !g.AddClient(GenerateID(4), &mockBroadcaster{}) {
			t.Fatalf("client %d rejected", i)
		}
	}
	if g.AddClient("extra", &mockBroadcaster{}) {
		t.Error("client beyond the limit should be rejected")
	}
	g.RemoveClient("extra")
	if g.ClientCount() != maxClientsPerSession {
		t.Errorf("expected %d clients, got %d", maxClientsPerSession, g.ClientCount())
	}
}

func TestGameUpdateBroadcastsState(t *testing.T) {
	g := newTestGame(t, "determinism")
	mb := &mockBroadcaster{}
	g.AddClient("c1", mb)

	for i := 0; i < BroadcastEvery*2; i++ {
		g.update()
	}
	if len(mb.frames) != 2 {
		t.Fatalf("expected 2 state frames, got %d", len(mb.frames))
	}
	f, err := DecodeFrame(mb.frames[1])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Tick != uint64(BroadcastEvery*2) {
		t.Errorf("tick = %d, want %d", f.Tick, BroadcastEvery*2)
	}
	if f.Frame != BroadcastEvery*2*physics.DefaultSubsteps {
		t.Errorf("frame = %d, want %d", f.Frame, BroadcastEvery*2*physics.DefaultSubsteps)
	}
	if len(f.Bodies) != len(scenario.SixBricks) {
		t.Errorf("expected %d bodies, got %d", len(scenario.SixBricks), len(f.Bodies))
	}
	if f.Outer != physics.DefaultOuterRadius {
		t.Errorf("outer radius = %v", f.Outer)
	}
}

func TestGameAlarmHalts(t *testing.T) {
	g := newTestGame(t, "determinism")
	mb := &mockBroadcaster{}
	g.AddClient("c1", mb)

	if err := g.SetFeature(FeatureMsg{Name: FeatureAlarm, On: true, Threshold: -1, Consecutive: 1}); err != nil {
		t.Fatal(err)
	}
	g.update()
	if !g.Halted() {
		t.Fatal("alarm should halt the game")
	}
	alarms := mb.envelopes(MsgAlarm)
	if len(alarms) != 1 {
		t.Fatalf("expected 1 alarm message, got %d", len(alarms))
	}
	if am := alarms[0].Data.(AlarmMsg); am.Frame != 1 {
		t.Errorf("alarm frame = %d, want 1", am.Frame)
	}
	if len(mb.frames) != 1 {
		t.Errorf("halt should push one state frame, got %d", len(mb.frames))
	}

	frame := g.Snapshot().Frame
	g.update()
	if g.Snapshot().Frame != frame {
		t.Error("halted game should not advance")
	}
	if err := g.Drag(DragStart, 0, 0); !errors.Is(err, ErrHalted) {
		t.Errorf("drag on halted game: %v", err)
	}

	if err := g.SetFeature(FeatureMsg{Name: FeatureAlarm, On: false}); err != nil {
		t.Fatal(err)
	}
	if g.Halted() {
		t.Error("disarming the alarm should resume the game")
	}
	g.update()
	if g.Snapshot().Frame == frame {
		t.Error("resumed game should advance")
	}
}

func TestGameDragRecordsJournal(t *testing.T) {
	g := newTestGame(t, "determinism")
	start := scenario.SixBricks[0]

	if err := g.Drag(DragStart, start[0], start[1]); err != nil {
		t.Fatal(err)
	}
	snap := g.Snapshot()
	if snap.Spring == nil {
		t.Fatal("spring should be active after drag start")
	}
	if err := g.Drag(DragMove, start[0], start[1]-60); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		g.update()
	}
	if !g.Journal().Pending() {
		t.Error("journal should hold an open batch mid-drag")
	}
	if err := g.Drag(DragEnd, 0, 0); err != nil {
		t.Fatal(err)
	}
	if g.Snapshot().Spring != nil {
		t.Error("spring should be released")
	}

	hist := g.Journal().History()
	if len(hist) != 1 {
		t.Fatalf("expected 1 journal entry, got %d", len(hist))
	}
	e := hist[0]
	if e.BodyID != snap.Spring.BodyID {
		t.Errorf("entry body = %d, want %d", e.BodyID, snap.Spring.BodyID)
	}
	if e.From == e.To {
		t.Error("entry should record a displacement")
	}
}

func TestGameDragMisses(t *testing.T) {
	g := newTestGame(t, "determinism")
	if err := g.Drag(DragStart, 0, 300); !errors.Is(err, ErrNoBody) {
		t.Errorf("drag on empty space: %v", err)
	}
	if err := g.Drag("fling", 0, 0); err == nil {
		t.Error("unknown phase should fail")
	}

	id, err := g.Place(PlaceMsg{X: 0, Y: -200, Mass: -1})
	if err != nil {
		t.Fatal(err)
	}
	if g.world.BodyByID(id) == nil || !g.world.BodyByID(id).Static() {
		t.Fatal("negative mass should place a static body")
	}
	if err := g.Drag(DragStart, 0, -200); !errors.Is(err, ErrStatic) {
		t.Errorf("drag on static body: %v", err)
	}
}

func TestGamePlaceRemoveRotate(t *testing.T) {
	g := newTestGame(t, "determinism")
	before := g.BodyCount()

	id, err := g.Place(PlaceMsg{X: 0, Y: -200})
	if err != nil {
		t.Fatal(err)
	}
	if g.BodyCount() != before+1 {
		t.Fatalf("expected %d bodies, got %d", before+1, g.BodyCount())
	}
	b := g.world.BodyByID(id)
	if b.W != scenario.BrickW || b.H != scenario.BrickH {
		t.Errorf("zero size should place a default brick, got %vx%v", b.W, b.H)
	}

	if err := g.Rotate(id); err != nil {
		t.Fatal(err)
	}
	if b.W != scenario.BrickH || b.Rot != 90 {
		t.Errorf("after rotate: w=%v rot=%d", b.W, b.Rot)
	}

	if err := g.Remove(id); err != nil {
		t.Fatal(err)
	}
	if g.BodyCount() != before {
		t.Errorf("expected %d bodies after remove, got %d", before, g.BodyCount())
	}
	if err := g.Remove(id); !errors.Is(err, ErrNoBody) {
		t.Errorf("second remove: %v", err)
	}
	if err := g.Rotate(id); !errors.Is(err, ErrNoBody) {
		t.Errorf("rotate removed body: %v", err)
	}
}

func TestGamePlaceUniqueAcrossHeadlessRuns(t *testing.T) {
	g := newTestGame(t, "determinism")
	first, err := g.Place(PlaceMsg{X: 0, Y: -200})
	if err != nil {
		t.Fatal(err)
	}

	sc, _ := scenario.Lookup("determinism")
	if _, err := RunScenario(sc, RunOptions{}); err != nil {
		t.Fatal(err)
	}
	physics.ResetBodyIDs()

	second, err := g.Place(PlaceMsg{X: 0, Y: 200})
	if err != nil {
		t.Fatal(err)
	}
	if second <= first {
		t.Errorf("placed id %d after %d", second, first)
	}
	seen := make(map[int]bool)
	for _, b := range g.world.Bodies() {
		if seen[b.ID] {
			t.Fatalf("duplicate body id %d", b.ID)
		}
		seen[b.ID] = true
	}
}

func TestGamePlaceLimit(t *testing.T) {
	g := newTestGame(t, "determinism")
	for g.BodyCount() < maxBodiesPerSession {
		if _, err := g.Place(PlaceMsg{X: 0, Y: 0}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := g.Place(PlaceMsg{}); !errors.Is(err, ErrTooMany) {
		t.Errorf("expected ErrTooMany, got %v", err)
	}
}

func TestGameSetArena(t *testing.T) {
	g := newTestGame(t, "determinism")
	bad := []ArenaMsg{
		{Outer: 0},
		{Outer: 300, Inner: -1},
		{Outer: 300, Inner: 300},
	}
	for _, m := range bad {
		if err := g.SetArena(m); !errors.Is(err, ErrBadArena) {
			t.Errorf("SetArena(%+v) = %v, want ErrBadArena", m, err)
		}
	}
	if err := g.SetArena(ArenaMsg{Outer: 500, Inner: 100, CenterWall: true}); err != nil {
		t.Fatal(err)
	}
	f := g.Snapshot()
	if f.Outer != 500 || f.Inner != 100 || !f.CenterWall {
		t.Errorf("arena not applied: %+v", f)
	}
}

func TestGameSetFeature(t *testing.T) {
	g := newTestGame(t, "determinism")
	if err := g.SetFeature(FeatureMsg{Name: FeatureGrid, On: true}); err != nil {
		t.Fatal(err)
	}
	if g.world.Mode() != physics.BroadphaseGrid {
		t.Errorf("mode = %v, want grid", g.world.Mode())
	}
	if err := g.SetFeature(FeatureMsg{Name: FeatureGrid}); err != nil {
		t.Fatal(err)
	}
	if g.world.Mode() == physics.BroadphaseGrid {
		t.Error("grid should be disabled")
	}

	for _, name := range []string{FeatureSleeping, FeatureAdaptive, FeatureSubsteps, FeatureFriction, FeatureSpring, FeatureDeterminism} {
		if err := g.SetFeature(FeatureMsg{Name: name, On: true}); err != nil {
			t.Errorf("enable %s: %v", name, err)
		}
	}
	g.update()

	if err := g.SetFeature(FeatureMsg{Name: "gravity", On: true}); !errors.Is(err, ErrFeature) {
		t.Errorf("unknown feature: %v", err)
	}
}

func TestGameHashMatchesHeadlessWorld(t *testing.T) {
	g := newTestGame(t, "determinism")
	if g.Hash().Hash != physics.BuildDeterminismHash(g.world).Hash {
		t.Error("game hash should come from its world")
	}
	h1 := g.Hash().Hash
	g.update()
	if g.Hash().Hash == h1 {
		t.Error("hash should change as the world steps")
	}
}

func TestGameStopBeforeRun(t *testing.T) {
	g := newTestGame(t, "determinism")
	g.Stop()
	g.Stop()
	done := make(chan struct{})
	go func() {
		g.Run()
		close(done)
	}()
	<-done
}
