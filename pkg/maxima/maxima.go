// Package maxima finds prominent local intensity maxima ("granules") inside a cell region.
//
// A candidate maximum is accepted when the area reachable from it without dropping below
// peak - prominence contains no higher pixel and no previously accepted maximum. The
// flood runs over the whole image, only the maxima themselves are restricted to the region.
package maxima

import (
	"image"
	"sort"

	"gonum.org/v1/gonum/floats"

	"fpgranules/internal/models"
)

// pixel flags used while flooding
const (
	processed uint8 = 1 << iota // plateau of an already evaluated candidate
	maxArea                     // belongs to an accepted maximum
	listed                      // part of the current flood
)

var neighbours8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// Detector runs maxima detection on one signal image. The image minimum is computed
// once so that all cells of an image share it.
type Detector struct {
	signal *models.Image
	min    float64
}

// NewDetector prepares detection on signal
func NewDetector(signal *models.Image) *Detector {
	d := &Detector{signal: signal}
	if len(signal.Pix) > 0 {
		d.min = floats.Min(signal.Pix)
	}
	return d
}

// DetectGranules is a shorthand for NewDetector(signal).Detect(region, prominence)
func DetectGranules(signal *models.Image, region models.CellRegion, prominence float64) []models.Granule {
	return NewDetector(signal).Detect(region, prominence)
}

// Count returns the number of granules in a result
func Count(granules []models.Granule) int {
	return len(granules)
}

type candidate struct {
	idx int
	v   float64
}

// Detect returns the granules inside region, sorted by peak value descending with
// row-major tie-break. An empty result is valid.
func (d *Detector) Detect(region models.CellRegion, prominence float64) []models.Granule {
	img := d.signal
	if len(img.Pix) == 0 || len(region.Pixels) == 0 {
		return nil
	}
	w := img.Width

	cands := make([]candidate, 0, 16)
	for _, p := range region.Pixels {
		if !img.InBounds(p.X, p.Y) {
			continue
		}
		v := img.At(p.X, p.Y)
		if v <= d.min || !d.isLocalMax(p.X, p.Y, v) {
			continue
		}
		cands = append(cands, candidate{idx: p.Y*w + p.X, v: v})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].v != cands[j].v {
			return cands[i].v > cands[j].v
		}
		return cands[i].idx < cands[j].idx
	})

	flags := make([]uint8, len(img.Pix))
	var granules []models.Granule
	list := make([]int, 0, 256)

	for _, c := range cands {
		if flags[c.idx]&(processed|maxArea) != 0 {
			continue
		}
		v0 := c.v
		floor := v0 - prominence

		// strict: a flood that never drops below the floor would cover the whole image
		accept := v0-d.min > prominence

		list = append(list[:0], c.idx)
		flags[c.idx] |= listed
		for k := 0; k < len(list) && accept; k++ {
			x, y := list[k]%w, list[k]/w
			for _, dd := range neighbours8 {
				nx, ny := x+dd[0], y+dd[1]
				if !img.InBounds(nx, ny) {
					continue
				}
				ni := ny*w + nx
				if flags[ni]&listed != 0 {
					continue
				}
				v := img.Pix[ni]
				if v > v0 {
					accept = false
					break
				}
				if v < floor {
					continue
				}
				if flags[ni]&maxArea != 0 {
					accept = false
					break
				}
				flags[ni] |= listed
				list = append(list, ni)
			}
		}

		var plateau []int
		for _, i := range list {
			flags[i] &^= listed
			if img.Pix[i] == v0 {
				flags[i] |= processed
				plateau = append(plateau, i)
			}
			if accept {
				flags[i] |= maxArea
			}
		}
		if !accept {
			continue
		}

		pos, ok := plateauPosition(plateau, w, region)
		if !ok {
			continue
		}
		granules = append(granules, models.Granule{
			CellIndex:     region.Index,
			X:             float64(pos.X),
			Y:             float64(pos.Y),
			Peak:          v0,
			MeanIntensity: d.windowMean(pos.X, pos.Y),
			Prominence:    prominence,
		})
	}

	sort.SliceStable(granules, func(i, j int) bool {
		if granules[i].Peak != granules[j].Peak {
			return granules[i].Peak > granules[j].Peak
		}
		if granules[i].Y != granules[j].Y {
			return granules[i].Y < granules[j].Y
		}
		return granules[i].X < granules[j].X
	})
	return granules
}

func (d *Detector) isLocalMax(x, y int, v float64) bool {
	for _, dd := range neighbours8 {
		nx, ny := x+dd[0], y+dd[1]
		if d.signal.InBounds(nx, ny) && d.signal.At(nx, ny) > v {
			return false
		}
	}
	return true
}

// plateauPosition picks the in-region plateau pixel nearest the plateau centroid
func plateauPosition(plateau []int, w int, region models.CellRegion) (image.Point, bool) {
	var cx, cy float64
	for _, i := range plateau {
		cx += float64(i % w)
		cy += float64(i / w)
	}
	n := float64(len(plateau))
	cx, cy = cx/n, cy/n

	sort.Ints(plateau)
	best := image.Point{}
	bestDist := -1.0
	for _, i := range plateau {
		x, y := i%w, i/w
		if !region.Contains(x, y) {
			continue
		}
		dx, dy := float64(x)-cx, float64(y)-cy
		if dist := dx*dx + dy*dy; bestDist < 0 || dist < bestDist {
			best, bestDist = image.Point{X: x, Y: y}, dist
		}
	}
	return best, bestDist >= 0
}

// windowMean averages the 4x4 window [x-2, x+1] x [y-2, y+1], clipped to the image
func (d *Detector) windowMean(x, y int) float64 {
	img := d.signal
	sum, n := 0.0, 0
	for yy := y - 2; yy <= y+1; yy++ {
		for xx := x - 2; xx <= x+1; xx++ {
			if img.InBounds(xx, yy) {
				sum += img.At(xx, yy)
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
