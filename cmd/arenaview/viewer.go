package main

import (
	"errors"
	"log"

	"github.com/PixelParasite101/Packing-Lab/physics"
	"github.com/PixelParasite101/Packing-Lab/scenario"
	"github.com/gdamore/tcell/v2"
)

// Viewer plays one scenario and lets the user poke at it
type Viewer struct {
	sc     scenario.Scenario
	world  *physics.World
	bodies []*physics.Body
	frame  int
	vp     Viewport

	paused   bool
	halted   bool
	showHash bool
	dragging bool
	logger   *log.Logger
}

// NewViewer builds the scenario world for a screen of the given size
func NewViewer(sc scenario.Scenario, width, height int, logger *log.Logger) *Viewer {
	v := &Viewer{sc: sc, logger: logger}
	v.reset()
	v.Resize(width, height)
	return v
}

func (v *Viewer) reset() {
	cfg := v.sc.Config()
	cfg.Logger = v.logger
	v.world, v.bodies = v.sc.Build(cfg)
	v.world.EnableMouseSpringConstraint(physics.DefaultMouseSpringConfig())
	v.frame = 0
	v.halted = false
	v.dragging = false
}

// Resize refits the viewport to the arena
func (v *Viewer) Resize(width, height int) {
	v.vp = FitViewport(v.world.Arena().OuterRadius, width, height)
}

// Advance runs one scripted frame unless paused or halted
func (v *Viewer) Advance() {
	if v.paused || v.halted {
		return
	}
	v.step()
}

func (v *Viewer) step() {
	if err := v.sc.Advance(v.frame, v.world, v.bodies); err != nil {
		v.halted = true
		if !errors.Is(err, physics.ErrPenetrationAlarm) && v.logger != nil {
			v.logger.Printf("step: %v", err)
		}
		return
	}
	v.frame++
}

// Draw renders the current state onto s
func (v *Viewer) Draw(s tcell.Screen) {
	st := Status{Scenario: v.sc.Name, Paused: v.paused, Halted: v.halted}
	if v.showHash {
		st.Hash = physics.BuildDeterminismHash(v.world).Hash
	}
	Render(s, v.world, v.vp, st)
}

// HandleKey applies a key press. It returns false when the viewer should quit.
func (v *Viewer) HandleKey(key tcell.Key, r rune) bool {
	switch key {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRune:
	default:
		return true
	}
	w := v.world
	switch r {
	case 'q':
		return false
	case ' ':
		v.paused = !v.paused
	case 'n':
		if v.paused && !v.halted {
			v.step()
		}
	case 'r':
		v.reset()
	case 'h':
		v.showHash = !v.showHash
	case 'g':
		if w.Mode() == physics.BroadphaseGrid {
			w.DisableSpatialHash()
		} else {
			w.EnableSpatialHash(physics.DefaultGridConfig())
		}
	case 's':
		if w.SleepingEnabled() {
			w.DisableSleeping()
		} else {
			w.EnableSleeping(physics.DefaultSleepConfig())
		}
	case 'a':
		if w.AdaptiveIterationsEnabled() {
			w.DisableAdaptiveIterations()
		} else {
			w.EnableAdaptiveIterations(physics.DefaultAdaptiveConfig())
		}
	case 'w':
		w.SetCenterWall(!w.CenterWall())
	}
	return true
}

// HandleMouse drives the drag spring from button 1
func (v *Viewer) HandleMouse(x, y int, buttons tcell.ButtonMask) {
	p := v.vp.ToWorld(x, y)
	w := v.world
	if buttons&tcell.Button1 == 0 {
		if v.dragging {
			w.ReleaseMouseSpring()
			v.dragging = false
		}
		return
	}
	if v.dragging {
		w.MoveMouseSpring(p.X, p.Y)
		return
	}
	if b := w.BodyAt(p.X, p.Y); b != nil && !b.Static() {
		w.AttachMouseSpring(b, p.X, p.Y)
		v.dragging = w.MouseSpring().Active()
	}
}
