package models

import (
	"image"
	"math"
)

// CellRegion represents one segmented cell interior
type CellRegion struct {
	// Index is the 1-based cell number, assigned in discovery order
	Index int

	// Area is the pixel count of the region
	Area int

	// Bounds is the bounding rectangle (Max exclusive)
	Bounds image.Rectangle

	// Pixels lists the region pixels in row-major order
	Pixels []image.Point

	inside map[image.Point]struct{}
}

// NewCellRegion builds a region from its pixels
func NewCellRegion(index int, pixels []image.Point) CellRegion {
	r := CellRegion{
		Index:  index,
		Area:   len(pixels),
		Pixels: pixels,
		inside: make(map[image.Point]struct{}, len(pixels)),
	}
	if len(pixels) == 0 {
		return r
	}
	minX, minY := pixels[0].X, pixels[0].Y
	maxX, maxY := minX, minY
	for _, p := range pixels {
		r.inside[p] = struct{}{}
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	r.Bounds = image.Rect(minX, minY, maxX+1, maxY+1)
	return r
}

// Contains reports whether (x, y) belongs to the region
func (r CellRegion) Contains(x, y int) bool {
	_, ok := r.inside[image.Point{X: x, Y: y}]
	return ok
}

// Granule is one detected local maximum inside a cell
type Granule struct {
	// CellIndex is the owning region's index
	CellIndex int

	// X, Y locate the maximum (pixel precision)
	X, Y float64

	// Peak is the intensity at the maximum
	Peak float64

	// MeanIntensity is the mean over the 4x4 window around the maximum
	MeanIntensity float64

	// Prominence is the threshold the granule was detected with
	Prominence float64
}

// FociDetail holds the granule-specific columns of an observation
type FociDetail struct {
	Serial        int
	MeanIntensity float64
	X             float64
	Y             float64
}

// ObservationRecord is one row of the long-format table. A cell without granules
// yields a single record with Foci == nil.
type ObservationRecord struct {
	Date        string
	ImageFile   string
	Observation int
	CellNumber  int
	CellArea    int
	Prominence  int
	Foci        *FociDetail
}

// WithFoci reports whether the record describes a granule
func (o ObservationRecord) WithFoci() bool {
	return o.Foci != nil
}

// ImageSummaryRecord is one row of the per-image table
type ImageSummaryRecord struct {
	Date            string
	FileName        string
	TotalCellNumber int
	FociCell        int
	// PctFociCell is NaN when TotalCellNumber is zero
	PctFociCell float64
	Prominence  int
}

// Degenerate reports whether no cell survived segmentation
func (s ImageSummaryRecord) Degenerate() bool {
	return s.TotalCellNumber == 0 || math.IsNaN(s.PctFociCell)
}
