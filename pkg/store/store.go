// Package store keeps finalized batches in a SQLite database next to the CSV tables.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"fpgranules/pkg/aggregate"
)

//go:embed schema.sql
var schemaSQL string

// Run identifies one (batch, prominence) run
type Run struct {
	ID        string
	Date      string
	SourceDir string
	StartedAt time.Time
}

// Store wraps the database handle
type Store struct {
	*sql.DB
}

// Open opens (or creates) the database at path and applies the schema
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db}, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// SaveBatch inserts the run row and both tables in one transaction
func (s *Store) SaveBatch(ctx context.Context, run Run, b *aggregate.Batch) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, date, prominence, source_dir, started_unix_nanos, images, observations)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Date, b.Prominence, run.SourceDir, run.StartedAt.UnixNano(), len(b.Summaries), len(b.Observations)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	statStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO foci_stat (run_id, date, file_name, total_cell_number, foci_cell, pct_foci_cell, prominence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer statStmt.Close()
	for _, r := range b.Summaries {
		if _, err := statStmt.ExecContext(ctx, run.ID, r.Date, r.FileName, r.TotalCellNumber, r.FociCell,
			nullFloat(r.PctFociCell), r.Prominence); err != nil {
			return fmt.Errorf("insert summary %s: %w", r.FileName, err)
		}
	}

	dataStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO foci_data (run_id, date, image_file, observation, cell_number, withfoci, foci_serial,
		 foci_meanints, foci_x, foci_y, cell_area, prominences)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer dataStmt.Close()
	for _, o := range b.Observations {
		var serial sql.NullInt64
		var mean, x, y sql.NullFloat64
		if o.WithFoci() {
			serial = sql.NullInt64{Int64: int64(o.Foci.Serial), Valid: true}
			mean, x, y = nullFloat(o.Foci.MeanIntensity), nullFloat(o.Foci.X), nullFloat(o.Foci.Y)
		}
		if _, err := dataStmt.ExecContext(ctx, run.ID, o.Date, o.ImageFile, o.Observation, o.CellNumber,
			o.WithFoci(), serial, mean, x, y, o.CellArea, o.Prominence); err != nil {
			return fmt.Errorf("insert observation %d: %w", o.Observation, err)
		}
	}

	return tx.Commit()
}

// CountObservations returns the number of foci_data rows stored for a run
func (s *Store) CountObservations(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.QueryRowContext(ctx, `SELECT COUNT(*) FROM foci_data WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// CountFociCells sums foci_cell over the summaries of a run
func (s *Store) CountFociCells(ctx context.Context, runID string) (int, error) {
	var n sql.NullInt64
	err := s.QueryRowContext(ctx, `SELECT SUM(foci_cell) FROM foci_stat WHERE run_id = ?`, runID).Scan(&n)
	return int(n.Int64), err
}
