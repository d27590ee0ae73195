// Package aggregate turns per-cell detections into the per-image summary table and the
// long-format observation table of one prominence run.
package aggregate

import (
	"errors"
	"fmt"
	"math"

	"fpgranules/internal/models"
)

var (
	// ErrFinalized is returned by any call made after FinalizeBatch
	ErrFinalized = errors.New("aggregator already finalized")
	// ErrNoImage is returned when cells are recorded outside BeginImage/FinalizeImage
	ErrNoImage = errors.New("no image in progress")
	// ErrImageInProgress is returned when BeginImage is called before the previous image was finalized
	ErrImageInProgress = errors.New("previous image not finalized")
)

// Batch holds the two output tables of one prominence run
type Batch struct {
	Date         string
	Prominence   int
	Summaries    []models.ImageSummaryRecord
	Observations []models.ObservationRecord
}

// ImageResult carries the analysis of one image for Merge. Granules[i] belongs to Regions[i].
type ImageResult struct {
	Name     string
	Regions  []models.CellRegion
	Granules [][]models.Granule
}

type imageAcc struct {
	name      string
	cells     int
	fociCells int
	// firstRow is the index of the image's first observation row
	firstRow int
}

// Aggregator assigns observation and foci serial numbers for one (batch, prominence)
// run. It is single use and not safe for concurrent use.
type Aggregator struct {
	batch   *Batch
	current *imageAcc

	observationSerial int
	fociSerial        int
	finalized         bool
}

// New creates an empty aggregator. date is written verbatim into every row.
func New(date string, prominence int) *Aggregator {
	return &Aggregator{
		batch: &Batch{
			Date:         date,
			Prominence:   prominence,
			Summaries:    make([]models.ImageSummaryRecord, 0),
			Observations: make([]models.ObservationRecord, 0),
		},
	}
}

// BeginImage opens the accumulation for one image
func (a *Aggregator) BeginImage(name string) error {
	if a.finalized {
		return ErrFinalized
	}
	if a.current != nil {
		return fmt.Errorf("begin %s: %w", name, ErrImageInProgress)
	}
	a.current = &imageAcc{name: name, firstRow: len(a.batch.Observations)}
	return nil
}

// RecordCell appends one row per granule, or a single sentinel row when the cell has none
func (a *Aggregator) RecordCell(region models.CellRegion, granules []models.Granule) error {
	if a.finalized {
		return ErrFinalized
	}
	if a.current == nil {
		return ErrNoImage
	}
	a.current.cells++

	row := models.ObservationRecord{
		Date:       a.batch.Date,
		ImageFile:  a.current.name,
		CellNumber: region.Index,
		CellArea:   region.Area,
		Prominence: a.batch.Prominence,
	}
	if len(granules) == 0 {
		a.observationSerial++
		row.Observation = a.observationSerial
		a.batch.Observations = append(a.batch.Observations, row)
		return nil
	}

	a.current.fociCells++
	for _, g := range granules {
		a.observationSerial++
		a.fociSerial++
		r := row
		r.Observation = a.observationSerial
		r.Foci = &models.FociDetail{
			Serial:        a.fociSerial,
			MeanIntensity: g.MeanIntensity,
			X:             g.X,
			Y:             g.Y,
		}
		a.batch.Observations = append(a.batch.Observations, r)
	}
	return nil
}

// FinalizeImage closes the current image and appends its summary row.
// An image without cells gets a NaN percentage.
func (a *Aggregator) FinalizeImage() (models.ImageSummaryRecord, error) {
	if a.finalized {
		return models.ImageSummaryRecord{}, ErrFinalized
	}
	if a.current == nil {
		return models.ImageSummaryRecord{}, ErrNoImage
	}
	acc := a.current
	a.current = nil

	pct := math.NaN()
	if acc.cells > 0 {
		pct = 100 * float64(acc.fociCells) / float64(acc.cells)
	}
	s := models.ImageSummaryRecord{
		Date:            a.batch.Date,
		FileName:        acc.name,
		TotalCellNumber: acc.cells,
		FociCell:        acc.fociCells,
		PctFociCell:     pct,
		Prominence:      a.batch.Prominence,
	}
	a.batch.Summaries = append(a.batch.Summaries, s)
	return s, nil
}

// Merge feeds complete image results in the given order. Serial numbers are assigned
// here, so results produced by parallel workers stay sequentially numbered.
func (a *Aggregator) Merge(results ...ImageResult) ([]models.ImageSummaryRecord, error) {
	out := make([]models.ImageSummaryRecord, 0, len(results))
	for _, res := range results {
		if len(res.Granules) != len(res.Regions) {
			return out, fmt.Errorf("merge %s: %d regions but %d granule lists", res.Name, len(res.Regions), len(res.Granules))
		}
		if err := a.BeginImage(res.Name); err != nil {
			return out, err
		}
		for i, r := range res.Regions {
			if err := a.RecordCell(r, res.Granules[i]); err != nil {
				return out, err
			}
		}
		s, err := a.FinalizeImage()
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

// FinalizeBatch returns both tables. An image that was begun but never finalized is
// dropped together with its observation rows.
func (a *Aggregator) FinalizeBatch() (*Batch, error) {
	if a.finalized {
		return nil, ErrFinalized
	}
	a.finalized = true
	if a.current != nil {
		a.batch.Observations = a.batch.Observations[:a.current.firstRow]
		a.current = nil
	}
	b := a.batch
	a.batch = nil
	return b, nil
}
