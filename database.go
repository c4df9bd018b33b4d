package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"
)

// pairHistoryCap is how many pair gate runs are retained
const pairHistoryCap = 50

var (
	// ErrNoBaseline is returned when a scenario has never been recorded
	ErrNoBaseline = errors.New("no baseline recorded")
	// ErrHashDrift is returned when a run no longer matches its baseline
	ErrHashDrift = errors.New("determinism hash drift")
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// OperatorRow represents an operator account
type OperatorRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// BaselineRow is one recorded determinism baseline
type BaselineRow struct {
	ID         int64     `json:"id"`
	Scenario   string    `json:"scenario"`
	Hash       string    `json:"hash"`
	Parts      []string  `json:"parts,omitempty"`
	Iterations int       `json:"iterations"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// PairRunRow is one pair gate measurement
type PairRunRow struct {
	ID         int64     `json:"id"`
	NaivePairs int       `json:"naive_pairs"`
	GridPairs  int       `json:"grid_pairs"`
	Reduction  float64   `json:"reduction"`
	Passed     bool      `json:"passed"`
	CreatedAt  time.Time `json:"created_at"`
}

// SleepingBaselineRow is one recorded sleeping efficiency measurement
type SleepingBaselineRow struct {
	ID        int64     `json:"id"`
	Version   int       `json:"version"`
	AvgRatio  float64   `json:"avg_ratio"`
	Frames    int       `json:"frames"`
	Bodies    int       `json:"bodies"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// in-memory databases are per connection
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS operators (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS baselines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scenario TEXT NOT NULL,
		hash TEXT NOT NULL,
		parts BLOB,
		iterations INTEGER NOT NULL DEFAULT 0,
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS perf_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scenario TEXT NOT NULL,
		run_id TEXT NOT NULL DEFAULT '',
		broadphase_ms REAL NOT NULL DEFAULT 0,
		narrowphase_ms REAL NOT NULL DEFAULT 0,
		solver_ms REAL NOT NULL DEFAULT 0,
		pairs INTEGER NOT NULL DEFAULT 0,
		iterations INTEGER NOT NULL DEFAULT 0,
		substeps INTEGER NOT NULL DEFAULT 0,
		sleeping INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pair_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		naive_pairs INTEGER NOT NULL,
		grid_pairs INTEGER NOT NULL,
		reduction REAL NOT NULL,
		passed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sleeping_baselines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL,
		avg_ratio REAL NOT NULL,
		frames INTEGER NOT NULL,
		bodies INTEGER NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_baselines_scenario ON baselines(scenario, id);
	CREATE INDEX IF NOT EXISTS idx_perf_scenario ON perf_samples(scenario, id);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// GetSetting returns a stored setting or "" when absent
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting stores or replaces a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// CreateOperator creates an operator account (returns operator ID)
func (db *DB) CreateOperator(username, passHash string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO operators (username, pass_hash) VALUES (?, ?)",
		username, passHash,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetOperatorByUsername returns an operator by username, nil when missing
func (db *DB) GetOperatorByUsername(username string) (*OperatorRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM operators WHERE username = ?",
		username,
	)
	o := &OperatorRow{}
	err := row.Scan(&o.ID, &o.Username, &o.PassHash, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return o, err
}

// OperatorExists checks if a username is taken
func (db *DB) OperatorExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM operators WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// RecordBaseline stores a new baseline for its scenario
func (db *DB) RecordBaseline(b BaselineRow) (int64, error) {
	parts, err := msgpack.Marshal(b.Parts)
	if err != nil {
		return 0, fmt.Errorf("encode parts: %w", err)
	}
	res, err := db.conn.Exec(
		"INSERT INTO baselines (scenario, hash, parts, iterations, created_by) VALUES (?, ?, ?, ?, ?)",
		b.Scenario, b.Hash, parts, b.Iterations, b.CreatedBy,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanBaseline(row interface{ Scan(...any) error }) (*BaselineRow, error) {
	b := &BaselineRow{}
	var parts []byte
	if err := row.Scan(&b.ID, &b.Scenario, &b.Hash, &parts, &b.Iterations, &b.CreatedBy, &b.CreatedAt); err != nil {
		return nil, err
	}
	if len(parts) > 0 {
		if err := msgpack.Unmarshal(parts, &b.Parts); err != nil {
			return nil, fmt.Errorf("decode parts of baseline %d: %w", b.ID, err)
		}
	}
	return b, nil
}

// LatestBaseline returns the newest baseline for a scenario
func (db *DB) LatestBaseline(scenario string) (*BaselineRow, error) {
	row := db.conn.QueryRow(`
		SELECT id, scenario, hash, parts, iterations, created_by, created_at
		FROM baselines WHERE scenario = ? ORDER BY id DESC LIMIT 1`,
		scenario,
	)
	b, err := scanBaseline(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBaseline
	}
	return b, err
}

// ListBaselines returns the newest baseline of every scenario
func (db *DB) ListBaselines() ([]BaselineRow, error) {
	rows, err := db.conn.Query(`
		SELECT id, scenario, hash, parts, iterations, created_by, created_at
		FROM baselines WHERE id IN (SELECT MAX(id) FROM baselines GROUP BY scenario)
		ORDER BY scenario`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BaselineRow
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

// CheckBaseline compares hash against the latest baseline of scenario
func (db *DB) CheckBaseline(scenario, hash string) error {
	b, err := db.LatestBaseline(scenario)
	if err != nil {
		return fmt.Errorf("%s: %w", scenario, err)
	}
	if b.Hash != hash {
		return fmt.Errorf("%s: %w: baseline %s, got %s", scenario, ErrHashDrift, b.Hash, hash)
	}
	return nil
}

// RecordPairRun stores a pair gate run and trims history beyond the cap
func (db *DB) RecordPairRun(r PairRunRow) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"INSERT INTO pair_runs (naive_pairs, grid_pairs, reduction, passed) VALUES (?, ?, ?, ?)",
		r.NaivePairs, r.GridPairs, r.Reduction, r.Passed,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	_, err = tx.Exec(
		"DELETE FROM pair_runs WHERE id NOT IN (SELECT id FROM pair_runs ORDER BY id DESC LIMIT ?)",
		pairHistoryCap,
	)
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// PairHistory returns stored reductions, oldest first
func (db *DB) PairHistory() ([]float64, error) {
	rows, err := db.conn.Query("SELECT reduction FROM pair_runs ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []float64
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// PairRunCount returns how many pair runs are retained
func (db *DB) PairRunCount() (int, error) {
	var n int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM pair_runs").Scan(&n)
	return n, err
}

// RecordSleepingBaseline stores a measurement as the next baseline version
// and returns that version.
func (db *DB) RecordSleepingBaseline(r SleepingBaselineRow) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var version int
	if err := tx.QueryRow("SELECT COALESCE(MAX(version), 0) + 1 FROM sleeping_baselines").Scan(&version); err != nil {
		return 0, err
	}
	_, err = tx.Exec(
		"INSERT INTO sleeping_baselines (version, avg_ratio, frames, bodies, created_by) VALUES (?, ?, ?, ?, ?)",
		version, r.AvgRatio, r.Frames, r.Bodies, r.CreatedBy,
	)
	if err != nil {
		return 0, err
	}
	return version, tx.Commit()
}

// LatestSleepingBaseline returns the newest sleeping baseline
func (db *DB) LatestSleepingBaseline() (*SleepingBaselineRow, error) {
	r := &SleepingBaselineRow{}
	err := db.conn.QueryRow(`
		SELECT id, version, avg_ratio, frames, bodies, created_by, created_at
		FROM sleeping_baselines ORDER BY id DESC LIMIT 1`,
	).Scan(&r.ID, &r.Version, &r.AvgRatio, &r.Frames, &r.Bodies, &r.CreatedBy, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBaseline
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}
