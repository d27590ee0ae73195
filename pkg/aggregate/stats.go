package aggregate

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises a finalized batch
type Stats struct {
	Images    int
	Cells     int
	FociCells int
	Granules  int

	// GranulesPerCell is the mean and standard deviation over all cells
	GranulesPerCellMean float64
	GranulesPerCellStd  float64

	// FociIntensity is the mean and standard deviation of granule window means
	FociIntensityMean float64
	FociIntensityStd  float64

	// PctFociCellMean averages pct_foci_cell over images that have cells
	PctFociCellMean float64
}

type cellKey struct {
	image string
	cell  int
}

// Stats computes batch-level statistics. Values without samples are NaN.
func (b *Batch) Stats() Stats {
	s := Stats{
		Images:              len(b.Summaries),
		GranulesPerCellMean: math.NaN(),
		GranulesPerCellStd:  math.NaN(),
		FociIntensityMean:   math.NaN(),
		FociIntensityStd:    math.NaN(),
		PctFociCellMean:     math.NaN(),
	}

	var pcts []float64
	for _, r := range b.Summaries {
		s.Cells += r.TotalCellNumber
		s.FociCells += r.FociCell
		if !r.Degenerate() {
			pcts = append(pcts, r.PctFociCell)
		}
	}
	if len(pcts) > 0 {
		s.PctFociCellMean = stat.Mean(pcts, nil)
	}

	counts := make(map[cellKey]float64)
	order := make([]cellKey, 0)
	var intensities []float64
	for _, o := range b.Observations {
		k := cellKey{image: o.ImageFile, cell: o.CellNumber}
		if _, ok := counts[k]; !ok {
			order = append(order, k)
			counts[k] = 0
		}
		if o.WithFoci() {
			counts[k]++
			intensities = append(intensities, o.Foci.MeanIntensity)
		}
	}
	s.Granules = len(intensities)

	if len(order) > 0 {
		perCell := make([]float64, len(order))
		for i, k := range order {
			perCell[i] = counts[k]
		}
		s.GranulesPerCellMean, s.GranulesPerCellStd = meanStd(perCell)
	}
	if len(intensities) > 0 {
		s.FociIntensityMean, s.FociIntensityStd = meanStd(intensities)
	}
	return s
}

// meanStd returns the mean and the sample standard deviation (0 for a single value)
func meanStd(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
