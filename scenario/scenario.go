package scenario

import (
	"sort"

	"github.com/PixelParasite101/Packing-Lab/physics"
)

// FrameMs is the wall-clock advance fed to World.Step per scripted frame
const FrameMs = 1000.0 / 60

// Brick dimensions used by every built-in scene
const (
	BrickW = 120.0
	BrickH = 80.0
)

// Scenario is a scripted, repeatable run of a world
type Scenario struct {
	Name        string
	Description string
	Frames      int
	OuterRadius float64
	Grid        bool // run on the spatial hash broadphase

	// Setup adds bodies and enables features on a fresh world
	Setup func(w *physics.World) []*physics.Body
	// Drive is called before each frame's Step. May be nil.
	Drive func(frame int, w *physics.World, bodies []*physics.Body)
}

// Config returns the world settings the scene expects
func (s Scenario) Config() physics.Config {
	cfg := physics.DefaultConfig()
	if s.OuterRadius > 0 {
		cfg.OuterRadius = s.OuterRadius
	}
	return cfg
}

// Build returns a freshly populated world. Unless cfg.IDs is set, the world
// gets its own ID allocator, so body IDs start at 1 and never collide with
// other worlds in the process.
func (s Scenario) Build(cfg physics.Config) (*physics.World, []*physics.Body) {
	if cfg.IDs == nil {
		cfg.IDs = physics.NewIDAllocator()
	}
	w := physics.NewWorld(cfg)
	var bodies []*physics.Body
	if s.Setup != nil {
		bodies = s.Setup(w)
	}
	if s.Grid {
		w.EnableSpatialHash(physics.DefaultGridConfig())
	}
	return w, bodies
}

// Advance runs one scripted frame
func (s Scenario) Advance(frame int, w *physics.World, bodies []*physics.Body) error {
	if s.Drive != nil {
		s.Drive(frame, w, bodies)
	}
	return w.Step(w.LastTime() + FrameMs)
}

// Run builds the scene and plays every frame, stopping at the first error
func (s Scenario) Run(cfg physics.Config) (*physics.World, []*physics.Body, error) {
	w, bodies := s.Build(cfg)
	for f := 0; f < s.Frames; f++ {
		if err := s.Advance(f, w, bodies); err != nil {
			return w, bodies, err
		}
	}
	return w, bodies, nil
}

// WithGrid returns a copy of the scene on the given broadphase
func (s Scenario) WithGrid(on bool) Scenario {
	s.Grid = on
	return s
}

var registry = map[string]Scenario{}

func register(s Scenario) {
	registry[s.Name] = s
}

// Lookup finds a built-in scene by name
func Lookup(name string) (Scenario, bool) {
	s, ok := registry[name]
	return s, ok
}

// Names lists the built-in scenes in lexical order
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns the built-in scenes in lexical order
func All() []Scenario {
	out := make([]Scenario, 0, len(registry))
	for _, n := range Names() {
		out = append(out, registry[n])
	}
	return out
}

func addBricks(w *physics.World, pts [][2]float64) []*physics.Body {
	bodies := make([]*physics.Body, 0, len(pts))
	for _, p := range pts {
		bodies = append(bodies, w.NewBody(p[0], p[1], BrickW, BrickH, 1))
	}
	return bodies
}

func pushFirst(dx float64, frames int) func(int, *physics.World, []*physics.Body) {
	return func(frame int, _ *physics.World, bodies []*physics.Body) {
		if frame < frames && len(bodies) > 0 {
			bodies[0].Pos.X += dx
		}
	}
}
