package preprocess

import (
	"math"

	"fpgranules/internal/models"
)

// rollingBall is the structuring element rolled beneath the (shrunk) image
type rollingBall struct {
	// offsets and heights of every ball point, centre included
	dx, dy []int
	z      []float64

	// halfWidth bounds |dx| and |dy|
	halfWidth int

	// shrink is the factor the image is reduced by before rolling
	shrink int
}

// newRollingBall builds the ball for the given radius. Large balls are rolled on a
// reduced image; the reduction factor and the trimming of the ball's flat rim follow
// the usual rolling-ball background tables.
func newRollingBall(radius float64) rollingBall {
	var shrink, arcTrimPer int
	switch {
	case radius <= 10:
		shrink, arcTrimPer = 1, 24
	case radius <= 30:
		shrink, arcTrimPer = 2, 24
	case radius <= 100:
		shrink, arcTrimPer = 4, 32
	default:
		shrink, arcTrimPer = 8, 40
	}

	small := radius / float64(shrink)
	if small < 1 {
		small = 1
	}
	rsquare := small * small
	xtrim := int(float64(arcTrimPer)*small) / 100
	halfWidth := int(math.Round(small - float64(xtrim)))
	if halfWidth < 1 {
		halfWidth = 1
	}

	b := rollingBall{shrink: shrink, halfWidth: halfWidth}
	for y := -halfWidth; y <= halfWidth; y++ {
		for x := -halfWidth; x <= halfWidth; x++ {
			temp := rsquare - float64(x*x) - float64(y*y)
			if temp <= 0 {
				continue
			}
			b.dx = append(b.dx, x)
			b.dy = append(b.dy, y)
			b.z = append(b.z, math.Sqrt(temp))
		}
	}
	return b
}

// SubtractBackground removes a smooth dark background with a rolling ball and
// returns a new image. Negative differences are clamped to zero.
func SubtractBackground(img *models.Image, radius float64) *models.Image {
	out := img.Clone()
	if radius <= 0 {
		return out
	}
	bg := Background(img, radius)
	for i, v := range img.Pix {
		d := v - bg[i]
		if d < 0 {
			d = 0
		}
		out.Pix[i] = d
	}
	return out
}

// Background estimates the rolling-ball background surface of img.
//
// The image is reduced by taking block minima, the ball is rolled beneath the reduced
// image (a grey-scale opening with the ball as structuring element), and the result is
// enlarged back to full size by bilinear interpolation.
func Background(img *models.Image, radius float64) []float64 {
	ball := newRollingBall(radius)
	small, sw, sh := shrinkImage(img, ball.shrink)
	rolled := rollBall(small, sw, sh, ball)
	if ball.shrink == 1 {
		return rolled
	}
	return enlargeImage(rolled, sw, sh, img.Width, img.Height, ball.shrink)
}

// shrinkImage reduces img by factor using the minimum of each block
func shrinkImage(img *models.Image, factor int) ([]float64, int, int) {
	if factor == 1 {
		buf := make([]float64, len(img.Pix))
		copy(buf, img.Pix)
		return buf, img.Width, img.Height
	}
	sw := (img.Width + factor - 1) / factor
	sh := (img.Height + factor - 1) / factor
	small := make([]float64, sw*sh)
	for sy := 0; sy < sh; sy++ {
		for sx := 0; sx < sw; sx++ {
			m := math.Inf(1)
			for y := sy * factor; y < (sy+1)*factor && y < img.Height; y++ {
				for x := sx * factor; x < (sx+1)*factor && x < img.Width; x++ {
					if v := img.Pix[y*img.Width+x]; v < m {
						m = v
					}
				}
			}
			small[sy*sw+sx] = m
		}
	}
	return small, sw, sh
}

// rollBall computes the opening of data with the ball: the erosion gives the
// height each ball centre can rise to, the dilation takes the highest ball
// surface over every pixel. Ball centres may sit up to halfWidth outside the
// image so that edge pixels are reached from every side.
func rollBall(data []float64, w, h int, ball rollingBall) []float64 {
	hw := ball.halfWidth
	ew, eh := w+2*hw, h+2*hw

	eroded := make([]float64, ew*eh)
	for ey := 0; ey < eh; ey++ {
		cy := ey - hw
		for ex := 0; ex < ew; ex++ {
			cx := ex - hw
			m := math.Inf(1)
			for k := range ball.z {
				x, y := cx+ball.dx[k], cy+ball.dy[k]
				if x < 0 || y < 0 || x >= w || y >= h {
					continue
				}
				if v := data[y*w+x] - ball.z[k]; v < m {
					m = v
				}
			}
			eroded[ey*ew+ex] = m
		}
	}

	background := make([]float64, len(data))
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			m := math.Inf(-1)
			for k := range ball.z {
				// centre c = p - d, shifted into the extended grid
				ex, ey := px-ball.dx[k]+hw, py-ball.dy[k]+hw
				e := eroded[ey*ew+ex]
				if math.IsInf(e, 1) {
					continue
				}
				if v := e + ball.z[k]; v > m {
					m = v
				}
			}
			background[py*w+px] = m
		}
	}
	return background
}

// enlargeImage interpolates a shrunk surface back to full resolution
func enlargeImage(small []float64, sw, sh, w, h, factor int) []float64 {
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		fy := (float64(y)+0.5)/float64(factor) - 0.5
		y0, ty := split(fy, sh)
		y1 := y0 + 1
		if y1 >= sh {
			y1 = sh - 1
		}
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/float64(factor) - 0.5
			x0, tx := split(fx, sw)
			x1 := x0 + 1
			if x1 >= sw {
				x1 = sw - 1
			}
			top := small[y0*sw+x0]*(1-tx) + small[y0*sw+x1]*tx
			bottom := small[y1*sw+x0]*(1-tx) + small[y1*sw+x1]*tx
			out[y*w+x] = top*(1-ty) + bottom*ty
		}
	}
	return out
}

// split returns the integer cell and fractional offset of f, clamped to [0, n-1]
func split(f float64, n int) (int, float64) {
	if f <= 0 {
		return 0, 0
	}
	if f >= float64(n-1) {
		return n - 1, 0
	}
	i := int(f)
	return i, f - float64(i)
}
