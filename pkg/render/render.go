// Package render converts processed channels, regions and granules into the images
// written next to the tables.
package render

import (
	"image"
	"image/color"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"fpgranules/internal/models"
	"fpgranules/pkg/segment"
)

// Gray16 converts a processed channel to 16 bit, clamping to [0, 65535]
func Gray16(img *models.Image) *image.Gray16 {
	out := image.NewGray16(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			v := math.Round(img.At(x, y))
			if v < 0 {
				v = 0
			} else if v > 65535 {
				v = 65535
			}
			out.SetGray16(x, y, color.Gray16{Y: uint16(v)})
		}
	}
	return out
}

// Outlines draws every region's outline in black on a white canvas and writes the
// cell number at the region centre
func Outlines(width, height int, regions []models.CellRegion) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, width, height))
	for i := range out.Pix {
		out.Pix[i] = 255
	}

	for _, r := range regions {
		for _, p := range segment.Outline(r) {
			out.SetGray(p.X, p.Y, color.Gray{Y: 0})
		}
	}

	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.Gray{Y: 0}),
		Face: basicfont.Face7x13,
	}
	for _, r := range regions {
		if r.Area == 0 {
			continue
		}
		var cx, cy int
		for _, p := range r.Pixels {
			cx += p.X
			cy += p.Y
		}
		cx /= r.Area
		cy /= r.Area

		label := strconv.Itoa(r.Index)
		w := d.MeasureString(label).Ceil()
		d.Dot = fixed.P(cx-w/2, cy+basicfont.Face7x13.Ascent/2)
		d.DrawString(label)
	}
	return out
}

// Composite overlays the boundary channel in cyan and the signal channel in magenta.
// Each channel is stretched to 8 bit between its own minimum and maximum.
func Composite(signal, boundary *models.Image) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, signal.Width, signal.Height))
	s := autoscale(signal)
	b := autoscale(boundary)
	for i := range s {
		o := i * 4
		out.Pix[o] = s[i]
		out.Pix[o+1] = b[i]
		out.Pix[o+2] = uint8(min(int(s[i])+int(b[i]), 255))
		out.Pix[o+3] = 255
	}
	return out
}

func autoscale(img *models.Image) []uint8 {
	out := make([]uint8, len(img.Pix))
	if len(img.Pix) == 0 {
		return out
	}
	lo, hi := img.Pix[0], img.Pix[0]
	for _, v := range img.Pix {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi == lo {
		return out
	}
	scale := 255 / (hi - lo)
	for i, v := range img.Pix {
		out[i] = uint8(math.Round((v - lo) * scale))
	}
	return out
}

// GranuleMask marks each granule with a filled 4x4 oval (corners cut) of value 255
// whose top-left corner is at (x-2, y-2)
func GranuleMask(width, height int, granules []models.Granule) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, width, height))
	for _, g := range granules {
		x0, y0 := int(g.X)-2, int(g.Y)-2
		for dy := 0; dy < 4; dy++ {
			for dx := 0; dx < 4; dx++ {
				if (dx == 0 || dx == 3) && (dy == 0 || dy == 3) {
					continue
				}
				x, y := x0+dx, y0+dy
				if x >= 0 && y >= 0 && x < width && y < height {
					out.SetGray(x, y, color.Gray{Y: 255})
				}
			}
		}
	}
	return out
}
