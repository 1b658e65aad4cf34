// Package telemetry keeps a sqlite journal of pilot runs. Every control tick
// appends one entry holding the avoidance histogram, the chosen region, the
// blended steer and the action that went out on the wire.
package telemetry

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/avc/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUnknownRun is returned when recording against a run that was never
// started.
var ErrUnknownRun = errors.New("telemetry: unknown run")

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
}

// Journal is a run journal backed by a sqlite file.
type Journal struct {
	db *sql.DB

	mu    sync.Mutex
	known map[string]struct{} // run ids confirmed present
}

// Entry is one control tick.
type Entry struct {
	Seq         int64
	At          time.Time
	Histogram   []float64
	RegionStart int
	RegionEnd   int
	RegionScore float64
	Steer       float64
	Confidence  float64
	Throttle    uint8
	Steering    uint8
	Goal        int
	Next        int
	Position    r3.Vec
	Heading     r3.Vec
}

// Run summarises a journalled run.
type Run struct {
	ID      string
	Mode    string
	Started time.Time
	Entries int
}

// Open opens (creating if needed) the journal at path and brings its schema
// up to date.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; keeps the pragmas on the only connection.
	db.SetMaxOpenConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db, known: make(map[string]struct{})}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	// Don't close m: it would close db as well.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// StartRun registers a new run and returns its id.
func (j *Journal) StartRun(mode string, at time.Time) (string, error) {
	id := uuid.New().String()
	_, err := j.db.Exec(`INSERT INTO runs (run_id, mode, started_unix_nanos) VALUES (?, ?, ?)`,
		id, mode, at.UnixNano())
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	j.mu.Lock()
	j.known[id] = struct{}{}
	j.mu.Unlock()
	return id, nil
}

// checkRun looks runID up once and remembers it, so steady-state recording
// does not query the runs table.
func (j *Journal) checkRun(runID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.known[runID]; ok {
		return nil
	}
	var n int
	if err := j.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownRun, runID)
	}
	j.known[runID] = struct{}{}
	return nil
}

// Record appends e to run runID.
func (j *Journal) Record(runID string, e Entry) error {
	if err := j.checkRun(runID); err != nil {
		return err
	}

	hist := e.Histogram
	if hist == nil {
		hist = []float64{}
	}
	histJSON, err := json.Marshal(hist)
	if err != nil {
		return fmt.Errorf("failed to encode histogram: %w", err)
	}

	_, err = j.db.Exec(`INSERT INTO entries (
			run_id, seq, at_unix_nanos, histogram_json,
			region_start, region_end, region_score, steer, confidence,
			throttle, steering, goal, next_waypoint,
			pos_x, pos_y, pos_z, heading_x, heading_y, heading_z
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, e.Seq, e.At.UnixNano(), string(histJSON),
		e.RegionStart, e.RegionEnd, e.RegionScore, e.Steer, e.Confidence,
		int(e.Throttle), int(e.Steering), e.Goal, e.Next,
		e.Position.X, e.Position.Y, e.Position.Z,
		e.Heading.X, e.Heading.Y, e.Heading.Z,
	)
	if err != nil {
		return fmt.Errorf("failed to record entry %d: %w", e.Seq, err)
	}
	return nil
}

// Entries returns the entries of run runID in sequence order.
func (j *Journal) Entries(runID string) ([]Entry, error) {
	rows, err := j.db.Query(`SELECT seq, at_unix_nanos, histogram_json,
			region_start, region_end, region_score, steer, confidence,
			throttle, steering, goal, next_waypoint,
			pos_x, pos_y, pos_z, heading_x, heading_y, heading_z
		FROM entries WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			at                 int64
			histJSON           string
			throttle, steering int
		)
		if err := rows.Scan(&e.Seq, &at, &histJSON,
			&e.RegionStart, &e.RegionEnd, &e.RegionScore, &e.Steer, &e.Confidence,
			&throttle, &steering, &e.Goal, &e.Next,
			&e.Position.X, &e.Position.Y, &e.Position.Z,
			&e.Heading.X, &e.Heading.Y, &e.Heading.Z,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(histJSON), &e.Histogram); err != nil {
			return nil, fmt.Errorf("entry %d: bad histogram: %w", e.Seq, err)
		}
		e.At = time.Unix(0, at)
		e.Throttle = uint8(throttle)
		e.Steering = uint8(steering)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Runs lists every run, oldest first.
func (j *Journal) Runs() ([]Run, error) {
	rows, err := j.db.Query(`SELECT r.run_id, r.mode, r.started_unix_nanos, COUNT(e.seq)
		FROM runs r LEFT JOIN entries e ON e.run_id = r.run_id
		GROUP BY r.run_id
		ORDER BY r.started_unix_nanos, r.run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			started int64
		)
		if err := rows.Scan(&r.ID, &r.Mode, &started, &r.Entries); err != nil {
			return nil, err
		}
		r.Started = time.Unix(0, started)
		out = append(out, r)
	}
	return out, rows.Err()
}
