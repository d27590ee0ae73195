// Package report writes the summary and observation tables as CSV and charts the
// per-image percentages.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fpgranules/internal/models"
	"fpgranules/pkg/aggregate"
)

// SummaryHeader is the column order of the per-image table
var SummaryHeader = []string{"date", "file_name", "total_cell_number", "foci_cell", "pct_foci_cell", "prominence"}

// ObservationHeader is the column order of the long-format table
var ObservationHeader = []string{"date", "image_file", "observation", "cell_number", "withfoci", "foci_serial",
	"foci_meanints", "foci_x", "foci_y", "cell_area", "prominences"}

const notApplicable = "NaN"

// Options controls table formatting
type Options struct {
	// DateGuard prefixes the date with a blank so spreadsheets keep it as text
	DateGuard bool
}

func (o Options) date(d string) string {
	if o.DateGuard && !strings.HasPrefix(d, " ") {
		return " " + d
	}
	return d
}

func formatFloat(v float64, prec int) string {
	if math.IsNaN(v) {
		return notApplicable
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}

// WriteSummaryCSV writes one row per image
func WriteSummaryCSV(w io.Writer, rows []models.ImageSummaryRecord, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			opts.date(r.Date),
			r.FileName,
			strconv.Itoa(r.TotalCellNumber),
			strconv.Itoa(r.FociCell),
			formatFloat(r.PctFociCell, 3),
			strconv.Itoa(r.Prominence),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteObservationsCSV writes one row per observation. Sentinel rows carry NaN in
// every granule column and FALSE in withfoci.
func WriteObservationsCSV(w io.Writer, rows []models.ObservationRecord, opts Options) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ObservationHeader); err != nil {
		return err
	}
	for _, r := range rows {
		withFoci := "FALSE"
		serial, mean, x, y := notApplicable, notApplicable, notApplicable, notApplicable
		if r.WithFoci() {
			withFoci = "TRUE"
			serial = strconv.Itoa(r.Foci.Serial)
			mean = formatFloat(r.Foci.MeanIntensity, 3)
			x = formatFloat(r.Foci.X, -1)
			y = formatFloat(r.Foci.Y, -1)
		}
		rec := []string{
			opts.date(r.Date),
			r.ImageFile,
			strconv.Itoa(r.Observation),
			strconv.Itoa(r.CellNumber),
			withFoci,
			serial,
			mean,
			x,
			y,
			strconv.Itoa(r.CellArea),
			strconv.Itoa(r.Prominence),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// CSVSink writes both tables of a batch into one directory
type CSVSink struct {
	Options Options
}

// SummaryFile and DataFile name the two tables for a run date
func SummaryFile(date string) string { return strings.TrimSpace(date) + "_foci_stat.csv" }
func DataFile(date string) string    { return strings.TrimSpace(date) + "_foci_data.csv" }

// WriteTables writes <date>_foci_stat.csv and <date>_foci_data.csv into dir
func (s CSVSink) WriteTables(dir string, b *aggregate.Batch) error {
	if err := writeFile(filepath.Join(dir, SummaryFile(b.Date)), func(w io.Writer) error {
		return WriteSummaryCSV(w, b.Summaries, s.Options)
	}); err != nil {
		return err
	}
	return writeFile(filepath.Join(dir, DataFile(b.Date)), func(w io.Writer) error {
		return WriteObservationsCSV(w, b.Observations, s.Options)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return &models.FilesystemError{Op: "create", Path: path, Err: err}
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return &models.FilesystemError{Op: "close", Path: path, Err: err}
	}
	return nil
}
