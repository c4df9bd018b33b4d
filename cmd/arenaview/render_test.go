package main

import (
	"strings"
	"testing"

	"github.com/PixelParasite101/Packing-Lab/physics"
	"github.com/PixelParasite101/Packing-Lab/scenario"
	"github.com/gdamore/tcell/v2"
)

func newSimScreen(t *testing.T) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	if err := s.Init(); err != nil {
		t.Fatalf("init screen: %v", err)
	}
	s.SetSize(80, 24)
	t.Cleanup(s.Fini)
	return s
}

func newTestViewer(t *testing.T) *Viewer {
	t.Helper()
	sc, ok := scenario.Lookup("determinism")
	if !ok {
		t.Fatal("determinism scenario missing")
	}
	return NewViewer(sc, 80, 24, nil)
}

func rowText(s tcell.Screen, y, width int) string {
	var b strings.Builder
	for x := 0; x < width; x++ {
		r, _, _, _ := s.GetContent(x, y)
		b.WriteRune(r)
	}
	return b.String()
}

func TestFitViewportKeepsArenaOnScreen(t *testing.T) {
	vp := FitViewport(350, 80, 24)
	for _, p := range []physics.Vec2{{X: -350}, {X: 350}, {Y: -350}, {Y: 350}} {
		x, y := vp.ToScreen(p)
		if !vp.visible(x, y) {
			t.Errorf("arena edge %v maps off screen to (%d, %d)", p, x, y)
		}
	}
}

func TestViewportRoundTrip(t *testing.T) {
	vp := FitViewport(400, 100, 40)
	for _, c := range [][2]int{{0, 1}, {50, 20}, {99, 39}, {13, 7}} {
		x, y := vp.ToScreen(vp.ToWorld(c[0], c[1]))
		if x != c[0] || y != c[1] {
			t.Errorf("cell %v round trips to (%d, %d)", c, x, y)
		}
	}
}

func TestRenderDrawsBodiesAndStatus(t *testing.T) {
	s := newSimScreen(t)
	v := newTestViewer(t)
	v.Draw(s)

	for _, b := range v.world.Bodies() {
		x, y := v.vp.ToScreen(b.Pos)
		r, _, style, _ := s.GetContent(x, y)
		if r != '█' {
			t.Errorf("body %d center cell = %q", b.ID, r)
		}
		if style != styleBody {
			t.Errorf("body %d should use the awake style", b.ID)
		}
	}

	status := rowText(s, 0, 80)
	if !strings.Contains(status, "determinism") || !strings.Contains(status, "running") {
		t.Errorf("status = %q", status)
	}
}

func TestRenderCenterWall(t *testing.T) {
	s := newSimScreen(t)
	v := newTestViewer(t)
	v.HandleKey(tcell.KeyRune, 'w')
	v.Draw(s)

	_, y := v.vp.ToScreen(physics.Vec2{})
	x, _ := v.vp.ToScreen(physics.Vec2{X: -320})
	if r, _, _, _ := s.GetContent(x, y); r != '─' {
		t.Errorf("wall cell = %q", r)
	}
}

func TestKeysControlPlayback(t *testing.T) {
	v := newTestViewer(t)

	v.Advance()
	v.Advance()
	if v.frame != 2 || v.world.Frame() != 2*physics.DefaultSubsteps {
		t.Fatalf("frame = %d, ticks = %d", v.frame, v.world.Frame())
	}

	v.HandleKey(tcell.KeyRune, ' ')
	v.Advance()
	if v.frame != 2 {
		t.Error("paused viewer should not advance")
	}
	v.HandleKey(tcell.KeyRune, 'n')
	if v.frame != 3 {
		t.Error("n should step one frame while paused")
	}

	v.HandleKey(tcell.KeyRune, 'g')
	if v.world.Mode() != physics.BroadphaseGrid {
		t.Error("g should enable the spatial hash")
	}
	v.HandleKey(tcell.KeyRune, 's')
	if !v.world.SleepingEnabled() {
		t.Error("s should enable sleeping")
	}
	v.HandleKey(tcell.KeyRune, 'a')
	if v.world.AdaptiveIterationsEnabled() {
		t.Error("a should toggle the scenario's adaptive iterations off")
	}

	v.HandleKey(tcell.KeyRune, 'r')
	if v.frame != 0 || v.world.Frame() != 0 || v.world.Mode() != physics.BroadphaseNaive {
		t.Error("r should rebuild the scenario")
	}

	if v.HandleKey(tcell.KeyRune, 'q') {
		t.Error("q should quit")
	}
	if v.HandleKey(tcell.KeyEscape, 0) {
		t.Error("escape should quit")
	}
	if !v.HandleKey(tcell.KeyUp, 0) {
		t.Error("unbound keys should be ignored")
	}
}

func TestHashToggle(t *testing.T) {
	s := newSimScreen(t)
	v := newTestViewer(t)
	v.HandleKey(tcell.KeyRune, 'h')
	v.Draw(s)

	want := physics.BuildDeterminismHash(v.world).Hash
	if status := rowText(s, 0, 80); !strings.Contains(status, "hash") {
		t.Errorf("status should show hash %s: %q", want, status)
	}
}

func TestMouseDrag(t *testing.T) {
	v := newTestViewer(t)
	b := v.world.Bodies()[0]
	x, y := v.vp.ToScreen(b.Pos)

	v.HandleMouse(x, y, tcell.Button1)
	sp := v.world.MouseSpring()
	if !sp.Active() || sp.Body() != b {
		t.Fatal("press on a body should attach the spring")
	}

	v.HandleMouse(x+3, y, tcell.Button1)
	if got, want := sp.Target(), v.vp.ToWorld(x+3, y); got != want {
		t.Errorf("target = %v, want %v", got, want)
	}

	v.HandleMouse(x+3, y, tcell.ButtonNone)
	if sp.Active() {
		t.Error("release should detach the spring")
	}

	v.HandleMouse(0, 1, tcell.Button1)
	if sp.Active() {
		t.Error("press on empty space should not attach")
	}
}
