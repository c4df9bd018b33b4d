package main

import (
	"fmt"
	"math"

	"github.com/PixelParasite101/Packing-Lab/physics"
	"github.com/gdamore/tcell/v2"
)

// cellAspect is how much taller a terminal cell is than it is wide
const cellAspect = 2.0

var (
	styleArena  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleWall   = tcell.StyleDefault.Foreground(tcell.ColorOlive)
	styleBody   = tcell.StyleDefault.Foreground(tcell.ColorGreen)
	styleAsleep = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	styleStatic = tcell.StyleDefault.Foreground(tcell.ColorSilver)
	styleDrag   = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	styleStatus = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
	styleAlarm  = tcell.StyleDefault.Foreground(tcell.ColorWhite).Background(tcell.ColorRed)
)

// Viewport maps world coordinates onto terminal cells. Row 0 is kept for
// the status line.
type Viewport struct {
	Width, Height int
	Scale         float64 // world units per cell column
}

// FitViewport sizes a viewport so the outer arena fits the screen
func FitViewport(outerRadius float64, width, height int) Viewport {
	vp := Viewport{Width: width, Height: height, Scale: 1}
	rows := float64(height - 1)
	if width <= 0 || rows <= 0 || !(outerRadius > 0) {
		return vp
	}
	byCols := 2 * outerRadius / float64(width-1)
	byRows := 2 * outerRadius / (rows - 1) / cellAspect
	vp.Scale = math.Max(byCols, byRows) * 1.02
	return vp
}

func (vp Viewport) center() (float64, float64) {
	return float64(vp.Width-1) / 2, 1 + float64(vp.Height-2)/2
}

// ToScreen returns the cell containing world point p
func (vp Viewport) ToScreen(p physics.Vec2) (int, int) {
	cx, cy := vp.center()
	x := cx + p.X/vp.Scale
	y := cy + p.Y/(vp.Scale*cellAspect)
	return int(math.Round(x)), int(math.Round(y))
}

// ToWorld returns the world point at the center of cell (x, y)
func (vp Viewport) ToWorld(x, y int) physics.Vec2 {
	cx, cy := vp.center()
	return physics.Vec2{
		X: (float64(x) - cx) * vp.Scale,
		Y: (float64(y) - cy) * vp.Scale * cellAspect,
	}
}

func (vp Viewport) visible(x, y int) bool {
	return x >= 0 && x < vp.Width && y >= 1 && y < vp.Height
}

// Status is the text and state of the top line
type Status struct {
	Scenario string
	Paused   bool
	Halted   bool
	Hash     string
}

// Render draws the world onto s. It only writes cells and never calls Show.
func Render(s tcell.Screen, w *physics.World, vp Viewport, st Status) {
	s.Clear()

	arena := w.Arena()
	drawCircle(s, vp, arena.OuterRadius, '·', styleArena)
	if arena.InnerRadius > 0 {
		drawCircle(s, vp, arena.InnerRadius, '·', styleArena)
	}
	if w.CenterWall() {
		_, y := vp.ToScreen(physics.Vec2{})
		x0, _ := vp.ToScreen(physics.Vec2{X: -arena.OuterRadius})
		x1, _ := vp.ToScreen(physics.Vec2{X: arena.OuterRadius})
		for x := x0; x <= x1; x++ {
			if vp.visible(x, y) {
				s.SetContent(x, y, '─', nil, styleWall)
			}
		}
	}

	var dragged *physics.Body
	if sp := w.MouseSpring(); sp.Active() {
		dragged = sp.Body()
	}
	for _, b := range w.Bodies() {
		style := styleBody
		switch {
		case b == dragged:
			style = styleDrag
		case b.Static():
			style = styleStatic
		case b.Asleep:
			style = styleAsleep
		}
		drawBody(s, vp, b, style)
	}

	drawStatus(s, w, vp, st)
}

func drawCircle(s tcell.Screen, vp Viewport, r float64, ch rune, style tcell.Style) {
	steps := int(2*math.Pi*r/vp.Scale) + 8
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		x, y := vp.ToScreen(physics.Vec2{X: r * math.Cos(a), Y: r * math.Sin(a)})
		if vp.visible(x, y) {
			s.SetContent(x, y, ch, nil, style)
		}
	}
}

func drawBody(s tcell.Screen, vp Viewport, b *physics.Body, style tcell.Style) {
	x0, y0 := vp.ToScreen(physics.Vec2{X: b.Pos.X - b.HW, Y: b.Pos.Y - b.HH})
	x1, y1 := vp.ToScreen(physics.Vec2{X: b.Pos.X + b.HW, Y: b.Pos.Y + b.HH})
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if !vp.visible(x, y) {
				continue
			}
			ch := '█'
			if x == x0 || x == x1 || y == y0 || y == y1 {
				ch = '▒'
			}
			s.SetContent(x, y, ch, nil, style)
		}
	}
}

func drawStatus(s tcell.Screen, w *physics.World, vp Viewport, st Status) {
	m := w.Metrics()
	state := "running"
	switch {
	case st.Halted:
		state = "HALTED"
	case st.Paused:
		state = "paused"
	}
	line := fmt.Sprintf(" %s  %s  frame %d  it %d  ss %d  %s pairs %d  contacts %d  pen %.3f  sleep %d",
		st.Scenario, state, w.Frame(), w.Iterations(), w.Substeps(), w.Mode(),
		m.BroadphasePairs, m.ContactCount, m.PostMaxPenetration, m.SleepingCount)
	if st.Hash != "" {
		line += "  hash " + st.Hash
	}
	style := styleStatus
	if st.Halted {
		style = styleAlarm
	}
	drawText(s, 0, 0, vp.Width, line, style)
}

func drawText(s tcell.Screen, x, y, maxX int, text string, style tcell.Style) {
	for _, r := range text {
		if x >= maxX {
			return
		}
		s.SetContent(x, y, r, nil, style)
		x++
	}
	for ; x < maxX; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}
