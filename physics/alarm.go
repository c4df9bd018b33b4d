package physics

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPenetrationAlarm is wrapped by every alarm failure
var ErrPenetrationAlarm = errors.New("[PenetrationAlarm]")

// AlarmState is a snapshot of a PenetrationAlarm
type AlarmState struct {
	Armed               bool
	Threshold           float64
	ConsecutiveRequired int
	CurrentRun          int
}

// PenetrationAlarm fails a run once pre-solve penetration stays above a
// threshold for a number of consecutive ticks. The zero value is disarmed.
type PenetrationAlarm struct {
	mu          sync.Mutex
	armed       bool
	threshold   float64
	consecutive int
	run         int
}

// NewPenetrationAlarm creates a disarmed alarm
func NewPenetrationAlarm() *PenetrationAlarm {
	return &PenetrationAlarm{consecutive: 1}
}

// Configure arms the alarm. consecutive values below 1 are treated as 1.
func (a *PenetrationAlarm) Configure(threshold float64, consecutive int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if consecutive < 1 {
		consecutive = 1
	}
	a.armed = true
	a.threshold = threshold
	a.consecutive = consecutive
	a.run = 0
}

// Set arms the alarm with a new threshold, keeping the consecutive count
func (a *PenetrationAlarm) Set(threshold float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.consecutive < 1 {
		a.consecutive = 1
	}
	a.armed = true
	a.threshold = threshold
	a.run = 0
}

// Disable disarms the alarm and resets the consecutive requirement to 1
func (a *PenetrationAlarm) Disable() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armed = false
	a.consecutive = 1
	a.run = 0
}

// State returns the current configuration and run counter
func (a *PenetrationAlarm) State() AlarmState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AlarmState{
		Armed:               a.armed,
		Threshold:           a.threshold,
		ConsecutiveRequired: max(a.consecutive, 1),
		CurrentRun:          a.run,
	}
}

// Check records one penetration sample and returns an error wrapping
// ErrPenetrationAlarm when the run reaches the required length.
func (a *PenetrationAlarm) Check(value float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.armed {
		return nil
	}
	if value <= a.threshold {
		a.run = 0
		return nil
	}
	a.run++
	need := max(a.consecutive, 1)
	if a.run >= need {
		return fmt.Errorf("%w preMaxPenetration %.3f > threshold %.3f (consec=%d/%d)",
			ErrPenetrationAlarm, value, a.threshold, a.run, need)
	}
	return nil
}

var defaultAlarm = NewPenetrationAlarm()

// DefaultPenetrationAlarm returns the process-wide alarm used by worlds
// created without their own.
func DefaultPenetrationAlarm() *PenetrationAlarm { return defaultAlarm }

// ConfigurePenetrationAlarm arms the process-wide alarm
func ConfigurePenetrationAlarm(threshold float64, consecutive int) {
	defaultAlarm.Configure(threshold, consecutive)
}

// SetPenetrationAlarm arms the process-wide alarm with a new threshold
func SetPenetrationAlarm(threshold float64) {
	defaultAlarm.Set(threshold)
}

// DisablePenetrationAlarm disarms the process-wide alarm
func DisablePenetrationAlarm() {
	defaultAlarm.Disable()
}

// GetPenetrationAlarmState returns the process-wide alarm state
func GetPenetrationAlarmState() AlarmState {
	return defaultAlarm.State()
}
