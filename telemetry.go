package main

import (
	"log"
	"sort"
	"sync"
	"time"
)

const (
	perfMedianWindow = 10 // samples compared against
	perfKeep         = 40 // samples retained per scenario
	telemetryBatch   = 50
)

// telemetryFlushEvery is the background writer's flush period
var telemetryFlushEvery = 5 * time.Second

// PerfSample is one timing measurement of a scenario run or live tick window
type PerfSample struct {
	Scenario      string    `json:"scenario"`
	RunID         string    `json:"run_id"`
	BroadphaseMs  float64   `json:"broadphase_ms"`
	NarrowphaseMs float64   `json:"narrowphase_ms"`
	SolverMs      float64   `json:"solver_ms"`
	Pairs         int       `json:"pairs"`
	Iterations    int       `json:"iterations"`
	Substeps      int       `json:"substeps"`
	Sleeping      int       `json:"sleeping"`
	Timestamp     time.Time `json:"ts"`
}

// TotalMs is the summed per-tick cost
func (s PerfSample) TotalMs() float64 {
	return s.BroadphaseMs + s.NarrowphaseMs + s.SolverMs
}

// PerfTrend compares the newest sample to the median of the ones before it
type PerfTrend struct {
	Scenario      string  `json:"scenario"`
	Samples       int     `json:"samples"`
	CurrentMs     float64 `json:"current_ms"`
	MedianMs      float64 `json:"median_ms"`
	DeltaPct      float64 `json:"delta_pct"`
	CurrentPairs  int     `json:"current_pairs"`
	MedianPairs   float64 `json:"median_pairs"`
	CurrentSolver float64 `json:"current_solver_ms"`
	MedianSolver  float64 `json:"median_solver_ms"`
}

// Telemetry persists perf samples with batched background writes
type Telemetry struct {
	db      *DB
	samples chan PerfSample
	stop    chan struct{}
	wg      sync.WaitGroup

	mu             sync.RWMutex
	liveSessions   int
	liveClients    int
	alarmsTripped  int
	samplesDropped int
}

// NewTelemetry creates and starts the telemetry background writer
func NewTelemetry(db *DB) *Telemetry {
	t := &Telemetry{
		db:      db,
		samples: make(chan PerfSample, 1024),
		stop:    make(chan struct{}),
	}
	t.wg.Add(1)
	go t.writer()
	return t
}

// Record enqueues a sample for async persistence (non-blocking)
func (t *Telemetry) Record(s PerfSample) {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now().UTC()
	}
	select {
	case t.samples <- s:
	default:
		t.mu.Lock()
		t.samplesDropped++
		t.mu.Unlock()
	}
}

// SetLive updates the live session and client counts
func (t *Telemetry) SetLive(sessions, clients int) {
	t.mu.Lock()
	t.liveSessions = sessions
	t.liveClients = clients
	t.mu.Unlock()
}

// AlarmTripped counts a live session halted by the penetration alarm
func (t *Telemetry) AlarmTripped() {
	t.mu.Lock()
	t.alarmsTripped++
	t.mu.Unlock()
}

// LiveStats is the in-memory counter snapshot
type LiveStats struct {
	Sessions int `json:"sessions"`
	Clients  int `json:"clients"`
	Alarms   int `json:"alarms"`
	Dropped  int `json:"dropped"`
}

// Live returns the current counters
func (t *Telemetry) Live() LiveStats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return LiveStats{t.liveSessions, t.liveClients, t.alarmsTripped, t.samplesDropped}
}

// Stop drains pending samples and shuts the writer down
func (t *Telemetry) Stop() {
	close(t.stop)
	t.wg.Wait()
}

func (t *Telemetry) writer() {
	defer t.wg.Done()

	batch := make([]PerfSample, 0, telemetryBatch)
	ticker := time.NewTicker(telemetryFlushEvery)
	defer ticker.Stop()

	for {
		select {
		case s := <-t.samples:
			batch = append(batch, s)
			if len(batch) >= telemetryBatch {
				t.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				t.flush(batch)
				batch = batch[:0]
			}
		case <-t.stop:
			for {
				select {
				case s := <-t.samples:
					batch = append(batch, s)
				default:
					t.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of samples and prunes old rows of the touched scenarios
func (t *Telemetry) flush(samples []PerfSample) {
	if t.db == nil || len(samples) == 0 {
		return
	}
	tx, err := t.db.conn.Begin()
	if err != nil {
		log.Printf("telemetry: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO perf_samples
		(scenario, run_id, broadphase_ms, narrowphase_ms, solver_ms, pairs, iterations, substeps, sleeping, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("telemetry: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	touched := map[string]bool{}
	for _, s := range samples {
		_, err := stmt.Exec(s.Scenario, s.RunID, s.BroadphaseMs, s.NarrowphaseMs, s.SolverMs,
			s.Pairs, s.Iterations, s.Substeps, s.Sleeping, s.Timestamp.Format(time.RFC3339Nano))
		if err != nil {
			log.Printf("telemetry: insert error: %v", err)
			continue
		}
		touched[s.Scenario] = true
	}
	for sc := range touched {
		_, err := tx.Exec(`DELETE FROM perf_samples WHERE scenario = ? AND id NOT IN
			(SELECT id FROM perf_samples WHERE scenario = ? ORDER BY id DESC LIMIT ?)`, sc, sc, perfKeep)
		if err != nil {
			log.Printf("telemetry: prune error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("telemetry: commit error: %v", err)
	}
}

// Samples returns up to limit stored samples of a scenario, oldest first
func (t *Telemetry) Samples(scenario string, limit int) ([]PerfSample, error) {
	if t.db == nil {
		return nil, nil
	}
	rows, err := t.db.conn.Query(`
		SELECT scenario, run_id, broadphase_ms, narrowphase_ms, solver_ms, pairs, iterations, substeps, sleeping, created_at
		FROM (SELECT * FROM perf_samples WHERE scenario = ? ORDER BY id DESC LIMIT ?)
		ORDER BY id`, scenario, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PerfSample
	for rows.Next() {
		var s PerfSample
		var ts string
		if err := rows.Scan(&s.Scenario, &s.RunID, &s.BroadphaseMs, &s.NarrowphaseMs, &s.SolverMs,
			&s.Pairs, &s.Iterations, &s.Substeps, &s.Sleeping, &ts); err != nil {
			return nil, err
		}
		s.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		result = append(result, s)
	}
	return result, rows.Err()
}

// Trend compares the newest stored sample with the median of up to
// perfMedianWindow samples before it.
func (t *Telemetry) Trend(scenario string) (PerfTrend, error) {
	samples, err := t.Samples(scenario, perfMedianWindow+1)
	if err != nil {
		return PerfTrend{}, err
	}
	return ComputeTrend(scenario, samples), nil
}

// ComputeTrend builds a trend from samples ordered oldest first
func ComputeTrend(scenario string, samples []PerfSample) PerfTrend {
	tr := PerfTrend{Scenario: scenario, Samples: len(samples)}
	if len(samples) == 0 {
		return tr
	}
	cur := samples[len(samples)-1]
	prev := samples[:len(samples)-1]
	if len(prev) > perfMedianWindow {
		prev = prev[len(prev)-perfMedianWindow:]
	}
	totals := make([]float64, len(prev))
	pairs := make([]float64, len(prev))
	solver := make([]float64, len(prev))
	for i, s := range prev {
		totals[i] = s.TotalMs()
		pairs[i] = float64(s.Pairs)
		solver[i] = s.SolverMs
	}
	tr.CurrentMs = cur.TotalMs()
	tr.CurrentPairs = cur.Pairs
	tr.CurrentSolver = cur.SolverMs
	tr.MedianMs = median(totals)
	tr.MedianPairs = median(pairs)
	tr.MedianSolver = median(solver)
	if tr.MedianMs != 0 {
		tr.DeltaPct = (tr.CurrentMs - tr.MedianMs) / tr.MedianMs * 100
	}
	return tr
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}
