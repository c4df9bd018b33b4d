package scenario

import (
	"math"

	"github.com/PixelParasite101/Packing-Lab/physics"
)

// SixBricks is the two-row layout shared by the determinism and perf scenes
var SixBricks = [][2]float64{
	{-150, -40}, {-10, -40}, {130, -40},
	{-120, 70}, {20, 70}, {160, 70},
}

// Staggered wall geometry
const (
	WallCols     = 20
	WallRows     = 20
	WallBricks   = 160
	WallSpacingX = 115.0
	WallSpacingY = 75.0
	WallRadius   = 700.0
	WallFrames   = 40
)

// StaggeredWall returns the brick centers of the pair-gate wall
func StaggeredWall() [][2]float64 {
	pts := make([][2]float64, 0, WallBricks)
	for r := 0; r < WallRows; r++ {
		for c := 0; c < WallCols; c++ {
			if len(pts) == WallBricks {
				return pts
			}
			off := 0.0
			if r%2 == 1 {
				off = WallSpacingX / 2
			}
			x := float64(c-WallCols/2)*WallSpacingX + off
			y := float64(r-WallRows/2) * WallSpacingY
			pts = append(pts, [2]float64{x, y})
		}
	}
	return pts
}

// Sleeping efficiency cluster geometry
const (
	ClusterCols     = 8
	ClusterRows     = 6
	ClusterSpacingX = 130.0
	ClusterSpacingY = 90.0
	ClusterFrames   = 180
)

// SleepCluster returns the 48 brick centers of the sleeping efficiency scene
func SleepCluster() [][2]float64 {
	pts := make([][2]float64, 0, ClusterCols*ClusterRows)
	for r := 0; r < ClusterRows; r++ {
		off := 0.0
		if r%2 == 1 {
			off = ClusterSpacingX / 2
		}
		for c := 0; c < ClusterCols; c++ {
			x := float64(c-ClusterCols/2)*ClusterSpacingX + off
			y := float64(r-ClusterRows/2) * ClusterSpacingY
			pts = append(pts, [2]float64{x, y})
		}
	}
	return pts
}

func perfAdaptive() physics.AdaptiveConfig {
	cfg := physics.DefaultAdaptiveConfig()
	cfg.DisableAnomaly = true
	cfg.DownscaleBlockFrames = 120
	cfg.PenetrationLow = -1
	cfg.FreezeAfterFirstEscalation = true
	return cfg
}

func perf(name, desc string, extra func(w *physics.World)) Scenario {
	return Scenario{
		Name:        name,
		Description: desc,
		Frames:      120,
		OuterRadius: 400,
		Setup: func(w *physics.World) []*physics.Body {
			bodies := addBricks(w, SixBricks)
			w.EnableAdaptiveIterations(perfAdaptive())
			if extra != nil {
				extra(w)
			}
			return bodies
		},
		Drive: pushFirst(0.8, 40),
	}
}

func init() {
	register(Scenario{
		Name:        "determinism",
		Description: "six bricks, first one pushed right, frozen adaptive iterations",
		Frames:      70,
		Setup: func(w *physics.World) []*physics.Body {
			bodies := addBricks(w, SixBricks)
			cfg := physics.DefaultAdaptiveConfig()
			cfg.FreezeAfterFirstEscalation = true
			cfg.TrackIterationSequence = true
			w.EnableAdaptiveIterations(cfg)
			w.EnableDeterminismMetrics()
			w.EnableDeterminismDiagnostics()
			return bodies
		},
		Drive: pushFirst(0.9, 25),
	})

	register(perf("perf-baseline", "perf snapshot, fixed substeps, naive broadphase", nil))
	register(perf("perf-substeps", "perf snapshot with adaptive substeps", func(w *physics.World) {
		cfg := physics.DefaultSubstepConfig()
		cfg.FreezeAfterFirstEscalation = true
		cfg.ContactDensityHigh = 0.5
		cfg.DragDisplacementHigh = 50
		w.EnableAdaptiveSubsteps(cfg)
	}))
	register(perf("perf-spatial", "perf snapshot on the spatial hash", func(w *physics.World) {
		w.EnableSpatialHash(physics.GridConfig{CellSize: 128})
	}))
	register(perf("perf-sleeping", "perf snapshot with sleeping", func(w *physics.World) {
		cfg := physics.DefaultSleepConfig()
		cfg.FramesRequired = 20
		w.EnableSleeping(cfg)
	}))

	register(Scenario{
		Name:        "sleeping-eff",
		Description: "48-brick staggered cluster settling under sleeping",
		Frames:      ClusterFrames,
		OuterRadius: 600,
		Setup: func(w *physics.World) []*physics.Body {
			bodies := addBricks(w, SleepCluster())
			w.EnableSleeping(physics.SleepConfig{
				FramesRequired: 25,
				MinLinearVel:   0.05,
				MinCorrection:  0.02,
				WakeLinearVel:  0.08,
			})
			return bodies
		},
		Drive: func(frame int, w *physics.World, _ []*physics.Body) {
			if frame >= 5 {
				return
			}
			for _, b := range w.Bodies() {
				b.Pos.X += math.Sin(float64(frame+b.ID)) * 0.3
			}
		},
	})

	register(Scenario{
		Name:        "staggered-wall",
		Description: "160 overlapping bricks in a staggered wall, pair gate workload",
		Frames:      WallFrames,
		OuterRadius: WallRadius,
		Setup: func(w *physics.World) []*physics.Body {
			return addBricks(w, StaggeredWall())
		},
	})

	register(Scenario{
		Name:        "push-chain",
		Description: "line of ten bricks, first one driven into the rest",
		Frames:      85,
		OuterRadius: 1500,
		Setup: func(w *physics.World) []*physics.Body {
			const n, spacing = 10, BrickW + 2
			pts := make([][2]float64, n)
			for i := range pts {
				pts[i] = [2]float64{-(n/2)*spacing + float64(i)*spacing, 0}
			}
			w.SetIterations(32)
			return addBricks(w, pts)
		},
		Drive: func(frame int, _ *physics.World, bodies []*physics.Body) {
			if frame >= 20 && frame < 50 {
				bodies[0].Pos.X += 2.5
			}
		},
	})

	register(Scenario{
		Name:        "center-wall",
		Description: "brick pressed onto the y=0 wall while gliding sideways",
		Frames:      95,
		OuterRadius: 450,
		Setup: func(w *physics.World) []*physics.Body {
			w.SetCenterWall(true)
			w.SetIterations(40)
			return addBricks(w, [][2]float64{{-200, -BrickH/2 - 10}})
		},
		Drive: func(frame int, _ *physics.World, bodies []*physics.Body) {
			if frame >= 15 && frame < 45 {
				bodies[0].Pos.Y += 1.2
				bodies[0].Pos.X += 2.5
			}
		},
	})

	register(Scenario{
		Name:        "inner-hole",
		Description: "brick driven toward an inner hole of radius 150",
		Frames:      120,
		OuterRadius: 450,
		Setup: func(w *physics.World) []*physics.Body {
			w.SetArena(450, 150)
			w.SetIterations(64)
			return addBricks(w, [][2]float64{{150 + BrickW/2 + 10, 0}})
		},
		Drive: func(frame int, _ *physics.World, bodies []*physics.Body) {
			if frame >= 20 && frame < 70 {
				bodies[0].Pos.X -= 1.2
			}
		},
	})
}
