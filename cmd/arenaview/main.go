// Command arenaview plays a built-in scenario in the terminal.
//
// Keys: space pause, n single frame while paused, g grid, s sleeping,
// a adaptive iterations, w center wall, h hash, r reset, q quit.
// Drag a brick with the left mouse button.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/PixelParasite101/Packing-Lab/scenario"
	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-isatty"
)

func main() {
	name := flag.String("scenario", "determinism", "scenario to play")
	grid := flag.Bool("grid", false, "start on the spatial hash broadphase")
	fps := flag.Int("fps", 60, "frames per second")
	logPath := flag.String("log", "", "write dev logs to this file")
	flag.Parse()

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "arenaview needs a terminal; use packlab -run for headless runs")
		os.Exit(2)
	}

	sc, ok := scenario.Lookup(*name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q, have %v\n", *name, scenario.Names())
		os.Exit(2)
	}
	if *grid {
		sc = sc.WithGrid(true)
	}
	if *fps < 1 {
		*fps = 1
	}

	var out io.Writer = io.Discard
	if *logPath != "" {
		f, err := os.Create(*logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open log: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	logger := log.New(out, "", log.Lmicroseconds)

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()
	screen.EnableMouse()

	w, h := screen.Size()
	run(screen, NewViewer(sc, w, h, logger), time.Second/time.Duration(*fps))
}

func run(screen tcell.Screen, v *Viewer, frame time.Duration) {
	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev := ev.(type) {
			case *tcell.EventKey:
				if !v.HandleKey(ev.Key(), ev.Rune()) {
					return
				}
			case *tcell.EventMouse:
				x, y := ev.Position()
				v.HandleMouse(x, y, ev.Buttons())
			case *tcell.EventResize:
				v.Resize(screen.Size())
				screen.Sync()
			}
		case <-ticker.C:
			v.Advance()
			v.Draw(screen)
			screen.Show()
		}
	}
}
