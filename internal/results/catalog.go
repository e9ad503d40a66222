package results

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/gwlsn/codecbench/internal/media"
)

const schemaVersion = 1

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	reference TEXT NOT NULL,
	output_dir TEXT NOT NULL,
	points INTEGER NOT NULL DEFAULT 0,
	written INTEGER NOT NULL DEFAULT 0,
	skipped INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	error TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS measurements (
	position INTEGER PRIMARY KEY,
	filename TEXT NOT NULL,
	filesize INTEGER NOT NULL,
	codec TEXT NOT NULL,
	compression_time REAL NOT NULL,
	compression_ratio REAL NOT NULL,
	resolution TEXT NOT NULL,
	bitrate_kbps INTEGER NOT NULL,
	psnr REAL
);

CREATE TABLE IF NOT EXISTS frame_counts (
	filename TEXT PRIMARY KEY,
	b_frames INTEGER NOT NULL,
	i_frames INTEGER NOT NULL,
	p_frames INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL,
	applied_at TEXT DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_measurements_filename ON measurements(filename);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// RunStatus is the lifecycle state of a recorded sweep run.
type RunStatus string

const (
	RunRunning  RunStatus = "running"
	RunComplete RunStatus = "complete"
	RunFailed   RunStatus = "failed"
)

// Run is one recorded sweep invocation.
type Run struct {
	ID         string    `json:"id"`
	Reference  string    `json:"reference"`
	OutputDir  string    `json:"output_dir"`
	Points     int       `json:"points"`
	Written    int       `json:"written"`
	Skipped    int       `json:"skipped"`
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// JoinedRow is a measurement with its frame composition, if one was
// recorded for the same filename.
type JoinedRow struct {
	Measurement
	Frames *FrameCount
}

// MergedHeader is the column layout written by WriteJoined.
var MergedHeader = append(append([]string{}, MeasurementHeader...), FrameHeader[1:]...)

// Catalog is a SQLite database holding run history and copies of the CSV
// tables so they can be joined on filename.
type Catalog struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// OpenCatalog opens the catalog at dbPath, creating it if it doesn't exist.
func OpenCatalog(dbPath string) (*Catalog, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			db.Close()
			return nil, fmt.Errorf("insert schema version: %w", err)
		}
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("check schema version: %w", err)
	case version > schemaVersion:
		db.Close()
		return nil, fmt.Errorf("catalog %s has schema version %d, this build supports %d", dbPath, version, schemaVersion)
	}

	return &Catalog{db: db, path: dbPath}, nil
}

// Close closes the catalog.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// BeginRun records the start of a sweep and returns it with a fresh ID.
func (c *Catalog) BeginRun(reference, outputDir string, points int) (*Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run := &Run{
		ID:        uuid.NewString(),
		Reference: reference,
		OutputDir: outputDir,
		Points:    points,
		Status:    RunRunning,
		StartedAt: time.Now(),
	}
	_, err := c.db.Exec(`
		INSERT INTO runs (id, reference, output_dir, points, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, run.ID, run.Reference, run.OutputDir, run.Points, string(run.Status), formatTime(run.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the outcome of run. A non-nil runErr marks it failed.
func (c *Catalog) FinishRun(run *Run, written, skipped int, runErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	run.Written = written
	run.Skipped = skipped
	run.FinishedAt = time.Now()
	run.Status = RunComplete
	run.Error = ""
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}

	res, err := c.db.Exec(`
		UPDATE runs SET written = ?, skipped = ?, status = ?, error = ?, finished_at = ?
		WHERE id = ?
	`, run.Written, run.Skipped, string(run.Status), nullString(run.Error), formatTime(run.FinishedAt), run.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// GetRun returns the run with the given ID, or nil if there is none.
func (c *Catalog) GetRun(id string) (*Run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	row := c.db.QueryRow(`
		SELECT id, reference, output_dir, points, written, skipped, status, error, started_at, finished_at
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// Runs returns every recorded run, oldest first.
func (c *Catalog) Runs() ([]*Run, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT id, reference, output_dir, points, written, skipped, status, error, started_at, finished_at
		FROM runs ORDER BY started_at ASC, rowid ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ImportMeasurements replaces the catalog's measurement rows with ms,
// keeping their order.
func (c *Catalog) ImportMeasurements(ms []Measurement) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM measurements"); err != nil {
		return fmt.Errorf("clear measurements: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO measurements (
			position, filename, filesize, codec, compression_time,
			compression_ratio, resolution, bitrate_kbps, psnr
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, m := range ms {
		_, err := stmt.Exec(i, m.Filename, m.FileSize, m.Codec, m.CompressionTime.Seconds(),
			m.CompressionRatio, m.Resolution.String(), m.BitrateKbps, m.PSNR)
		if err != nil {
			return fmt.Errorf("insert measurement %s: %w", m.Filename, err)
		}
	}

	return tx.Commit()
}

// ImportFrameCounts replaces the catalog's frame rows with fcs. When a
// filename appears more than once the last row wins.
func (c *Catalog) ImportFrameCounts(fcs []FrameCount) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM frame_counts"); err != nil {
		return fmt.Errorf("clear frame counts: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO frame_counts (filename, b_frames, i_frames, p_frames)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, fc := range fcs {
		if _, err := stmt.Exec(fc.Filename, fc.Bidirectional, fc.Intra, fc.Predicted); err != nil {
			return fmt.Errorf("insert frame count %s: %w", fc.Filename, err)
		}
	}

	return tx.Commit()
}

// Joined left-joins measurements with frame counts on filename, in
// measurement order. Measurements without a frame row get nil Frames.
func (c *Catalog) Joined() ([]JoinedRow, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows, err := c.db.Query(`
		SELECT m.filename, m.filesize, m.codec, m.compression_time, m.compression_ratio,
			m.resolution, m.bitrate_kbps, m.psnr,
			f.b_frames, f.i_frames, f.p_frames
		FROM measurements m
		LEFT JOIN frame_counts f ON m.filename = f.filename
		ORDER BY m.position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JoinedRow
	for rows.Next() {
		var jr JoinedRow
		var secs float64
		var res string
		var psnr sql.NullFloat64
		var b, i, p sql.NullInt64

		err := rows.Scan(&jr.Filename, &jr.FileSize, &jr.Codec, &secs, &jr.CompressionRatio,
			&res, &jr.BitrateKbps, &psnr, &b, &i, &p)
		if err != nil {
			return nil, err
		}
		jr.CompressionTime = time.Duration(secs * float64(time.Second))
		jr.PSNR = psnr.Float64
		if jr.Resolution, err = media.ParseResolution(res); err != nil {
			return nil, err
		}
		if b.Valid {
			jr.Frames = &FrameCount{
				Filename:      jr.Filename,
				Bidirectional: int(b.Int64),
				Intra:         int(i.Int64),
				Predicted:     int(p.Int64),
			}
		}
		out = append(out, jr)
	}
	return out, rows.Err()
}

// WriteJoined writes rows as a CSV with MergedHeader to path, replacing any
// existing file. Frame columns are left empty when absent.
func WriteJoined(path string, rows []JoinedRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create merged directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(MergedHeader); err != nil {
		return err
	}
	for _, jr := range rows {
		rec := jr.Measurement.Record()
		if jr.Frames != nil {
			rec = append(rec,
				strconv.Itoa(jr.Frames.Bidirectional),
				strconv.Itoa(jr.Frames.Intra),
				strconv.Itoa(jr.Frames.Predicted))
		} else {
			rec = append(rec, "", "", "")
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var status string
	var errStr, startedAt, finishedAt sql.NullString

	err := row.Scan(&run.ID, &run.Reference, &run.OutputDir, &run.Points, &run.Written,
		&run.Skipped, &status, &errStr, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	run.Error = errStr.String
	run.StartedAt = parseTime(startedAt.String)
	run.FinishedAt = parseTime(finishedAt.String)
	return &run, nil
}

// Helper functions for SQL values

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
