package physics

import (
	"fmt"
	"log"
)

const devLogCapacity = 200

// Dev log categories
const (
	LogAdaptive = "adaptive"
	LogSolver   = "solver"
	LogWorld    = "world"
)

// DevLog keeps the most recent dev log lines in memory and mirrors them to
// a logger. Categories default to enabled; disable one by setting it false.
type DevLog struct {
	enabled    bool
	categories map[string]bool
	lines      []string
	logger     *log.Logger
}

func newDevLog(logger *log.Logger) *DevLog {
	return &DevLog{
		categories: map[string]bool{LogAdaptive: true, LogSolver: true, LogWorld: true},
		logger:     logger,
	}
}

// Enable turns logging on and merges the given category switches
func (d *DevLog) Enable(categories map[string]bool) {
	d.enabled = true
	for k, v := range categories {
		d.categories[k] = v
	}
}

// Disable turns logging off. Buffered lines are kept.
func (d *DevLog) Disable() { d.enabled = false }

// Enabled reports whether lines are being recorded
func (d *DevLog) Enabled() bool { return d.enabled }

// Printf records a line under category
func (d *DevLog) Printf(category, format string, args ...any) {
	if !d.enabled {
		return
	}
	if on, ok := d.categories[category]; ok && !on {
		return
	}
	line := fmt.Sprintf("[%s] %s", category, fmt.Sprintf(format, args...))
	d.lines = append(d.lines, line)
	if len(d.lines) > devLogCapacity {
		d.lines = d.lines[len(d.lines)-devLogCapacity:]
	}
	if d.logger != nil {
		d.logger.Print(line)
	}
}

// Lines returns a copy of the buffered lines, oldest first
func (d *DevLog) Lines() []string {
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}
