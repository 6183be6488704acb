package storage

import (
	"database/sql"
	"fmt"
	"time"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/san-kum/tanksim/internal/dynamo"
)

const defaultBatchSize = 1000

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id      TEXT PRIMARY KEY,
	name    TEXT,
	created TEXT
);
CREATE TABLE IF NOT EXISTS samples (
	run_id      TEXT,
	t           REAL,
	temperature REAL,
	command     REAL,
	setpoint    REAL
);
CREATE INDEX IF NOT EXISTS samples_run ON samples (run_id, t);`

// SQLiteRecorder is an observer that appends every sample of a run to a
// SQLite database. Samples are buffered and written in one transaction per
// batch.
type SQLiteRecorder struct {
	db        *sql.DB
	runID     string
	batchSize int
	pending   []dynamo.Sample
	err       error
}

// NewSQLiteRecorder opens (or creates) the database at path and registers
// runID in it. batchSize <= 0 selects the default.
func NewSQLiteRecorder(path, runID, name string, batchSize int) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema in %s: %w", path, err)
	}
	_, err = db.Exec(`INSERT INTO runs (id, name, created) VALUES (?, ?, ?)`,
		runID, name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: register run %s: %w", runID, err)
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &SQLiteRecorder{
		db:        db,
		runID:     runID,
		batchSize: batchSize,
	}, nil
}

func (r *SQLiteRecorder) RunID() string { return r.runID }

// OnSample buffers s. Write failures are kept and reported by Err and Close.
func (r *SQLiteRecorder) OnSample(s dynamo.Sample) {
	if r.err != nil {
		return
	}
	r.pending = append(r.pending, s)
	if len(r.pending) >= r.batchSize {
		r.err = r.Flush()
	}
}

// Flush writes all buffered samples.
func (r *SQLiteRecorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO samples VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, s := range r.pending {
		if _, err := stmt.Exec(r.runID, s.Time, s.Temperature, s.Command, s.Setpoint); err != nil {
			tx.Rollback()
			return fmt.Errorf("storage: insert sample t=%g: %w", s.Time, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	r.pending = r.pending[:0]
	return nil
}

func (r *SQLiteRecorder) Err() error { return r.err }

// Close flushes the remaining samples and closes the database.
func (r *SQLiteRecorder) Close() error {
	err := r.err
	if err == nil {
		err = r.Flush()
	}
	if cerr := r.db.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadSQLite returns the samples recorded for runID in time order.
func ReadSQLite(path, runID string) (dynamo.Trajectory, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT t, temperature, command, setpoint FROM samples
		WHERE run_id = ? ORDER BY t`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tr := dynamo.Trajectory{}
	for rows.Next() {
		var s dynamo.Sample
		if err := rows.Scan(&s.Time, &s.Temperature, &s.Command, &s.Setpoint); err != nil {
			return nil, err
		}
		tr = append(tr, s)
	}
	return tr, rows.Err()
}
