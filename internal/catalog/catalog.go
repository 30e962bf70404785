// Package catalog tracks the .pcl captures a machine has seen: where they
// live on disk, what decoding found inside them and when they were last
// scanned. It backs the replay tool's -catalog flag and the /debug admin
// surface.
package catalog

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/meridian-robotics/pointcloud.replay/internal/pcl"
)

// schema.sql holds the bootstrap DDL for the captures table. Every
// statement is idempotent; upgrades beyond the baseline run through the
// migrations directory instead.
//
//go:embed schema.sql
var schemaSQL string

type Catalog struct {
	*sql.DB
}

// Open opens the catalog at path, creating the file and applying the
// embedded schema when needed.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}

	return &Catalog{db}, nil
}

// Capture is one catalogued .pcl file.
type Capture struct {
	ID            string
	Path          string
	SizeBytes     int64
	Records       int
	Frames        int
	PointsKept    int
	PointsDropped int
	BytesConsumed int64
	StopReason    string
	ZMin          *float64
	ZMax          *float64
	FirstSeenUnix int64
	LastScanUnix  int64
	Notes         string
}

// ScanResult is what one decode pass learned about a capture file.
type ScanResult struct {
	Path      string
	SizeBytes int64
	Frames    int
	Stats     pcl.Stats
	ZMin      *float64
	ZMax      *float64
}

// RecordScan upserts the capture keyed by path and returns its id. The
// first scan assigns a fresh UUID and sets first_seen_unix; later scans
// refresh the decode columns and bump last_scan_unix, leaving id, the
// first-seen time and any operator notes alone.
func (c *Catalog) RecordScan(res ScanResult) (string, error) {
	now := time.Now().Unix()
	_, err := c.Exec(`
		INSERT INTO captures (
			id, path, size_bytes, records, frames, points_kept,
			points_dropped, bytes_consumed, stop_reason, z_min, z_max,
			first_seen_unix, last_scan_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size_bytes     = excluded.size_bytes,
			records        = excluded.records,
			frames         = excluded.frames,
			points_kept    = excluded.points_kept,
			points_dropped = excluded.points_dropped,
			bytes_consumed = excluded.bytes_consumed,
			stop_reason    = excluded.stop_reason,
			z_min          = excluded.z_min,
			z_max          = excluded.z_max,
			last_scan_unix = excluded.last_scan_unix
	`, uuid.NewString(), res.Path, res.SizeBytes, res.Stats.Records, res.Frames,
		res.Stats.PointsKept, res.Stats.PointsDropped, res.Stats.BytesConsumed,
		res.Stats.Reason.String(), res.ZMin, res.ZMax, now, now)
	if err != nil {
		return "", fmt.Errorf("record scan of %s: %w", res.Path, err)
	}

	// the conflict path keeps the original id, so read it back
	var id string
	if err := c.QueryRow("SELECT id FROM captures WHERE path = ?", res.Path).Scan(&id); err != nil {
		return "", fmt.Errorf("read capture id: %w", err)
	}
	return id, nil
}

const captureColumns = `id, path, size_bytes, records, frames, points_kept,
	points_dropped, bytes_consumed, stop_reason, z_min, z_max,
	first_seen_unix, last_scan_unix, notes`

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCapture(row rowScanner) (Capture, error) {
	var rec Capture
	err := row.Scan(
		&rec.ID, &rec.Path, &rec.SizeBytes, &rec.Records, &rec.Frames,
		&rec.PointsKept, &rec.PointsDropped, &rec.BytesConsumed,
		&rec.StopReason, &rec.ZMin, &rec.ZMax,
		&rec.FirstSeenUnix, &rec.LastScanUnix, &rec.Notes,
	)
	return rec, err
}

// GetByPath looks a capture up by its catalogued path. A missing path
// reports sql.ErrNoRows.
func (c *Catalog) GetByPath(path string) (*Capture, error) {
	row := c.QueryRow("SELECT "+captureColumns+" FROM captures WHERE path = ?", path)
	rec, err := scanCapture(row)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListCaptures returns catalogued captures, most recently scanned first.
// A non-positive limit falls back to 100.
func (c *Catalog) ListCaptures(limit int) ([]Capture, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := c.Query("SELECT "+captureColumns+" FROM captures ORDER BY last_scan_unix DESC, path LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []Capture
	for rows.Next() {
		rec, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return captures, nil
}

// SetNotes replaces the operator notes on a catalogued capture.
func (c *Catalog) SetNotes(path, notes string) error {
	res, err := c.Exec("UPDATE captures SET notes = ? WHERE path = ?", notes, path)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
