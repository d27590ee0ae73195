// Package segment splits a cell-interior mask into numbered, size-filtered cell regions.
package segment

import (
	"image"

	"fpgranules/internal/models"
)

// Options bounds the accepted region size in pixels (inclusive)
type Options struct {
	MinArea int
	MaxArea int
}

// DefaultOptions returns the size window for yeast cells at 60x
func DefaultOptions() Options {
	return Options{MinArea: 400, MaxArea: 3000}
}

var neighbours8 = [8][2]int{
	{-1, -1}, {0, -1}, {1, -1},
	{-1, 0}, {1, 0},
	{-1, 1}, {0, 1}, {1, 1},
}

// ExtractRegions labels 8-connected components of mask in row-major discovery order,
// drops components touching the image border or with an area outside
// [MinArea, MaxArea], and numbers the survivors from 1.
func ExtractRegions(mask *models.Mask, opts Options) []models.CellRegion {
	w, h := mask.Width, mask.Height
	seen := make([]bool, len(mask.Pix))
	regions := make([]models.CellRegion, 0)

	for start := range mask.Pix {
		if !mask.Pix[start] || seen[start] {
			continue
		}
		seen[start] = true
		comp := []int{start}
		touchesBorder := false
		for k := 0; k < len(comp); k++ {
			x, y := comp[k]%w, comp[k]/w
			if x == 0 || y == 0 || x == w-1 || y == h-1 {
				touchesBorder = true
			}
			for _, d := range neighbours8 {
				nx, ny := x+d[0], y+d[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if mask.Pix[ni] && !seen[ni] {
					seen[ni] = true
					comp = append(comp, ni)
				}
			}
		}

		if touchesBorder || len(comp) < opts.MinArea || len(comp) > opts.MaxArea {
			continue
		}
		regions = append(regions, models.NewCellRegion(len(regions)+1, toPoints(comp, w)))
	}
	return regions
}

// toPoints converts pixel indices to points sorted row-major
func toPoints(comp []int, w int) []image.Point {
	marks := make(map[int]struct{}, len(comp))
	lo, hi := comp[0], comp[0]
	for _, i := range comp {
		marks[i] = struct{}{}
		if i < lo {
			lo = i
		}
		if i > hi {
			hi = i
		}
	}
	pts := make([]image.Point, 0, len(comp))
	for i := lo; i <= hi; i++ {
		if _, ok := marks[i]; ok {
			pts = append(pts, image.Point{X: i % w, Y: i / w})
		}
	}
	return pts
}

// Outline returns the region pixels that have a 4-connected neighbour outside the region
func Outline(r models.CellRegion) []image.Point {
	var out []image.Point
	for _, p := range r.Pixels {
		if !r.Contains(p.X, p.Y-1) || !r.Contains(p.X+1, p.Y) ||
			!r.Contains(p.X, p.Y+1) || !r.Contains(p.X-1, p.Y) {
			out = append(out, p)
		}
	}
	return out
}

// Label paints each region's index into a label image (0 = background)
func Label(width, height int, regions []models.CellRegion) []int {
	labels := make([]int, width*height)
	for _, r := range regions {
		for _, p := range r.Pixels {
			labels[p.Y*width+p.X] = r.Index
		}
	}
	return labels
}
