package morphology

import (
	"fpgranules/internal/models"
)

// neighbours8 lists the 8-connected offsets clockwise from north
var neighbours8 = [8][2]int{
	{0, -1}, {1, -1}, {1, 0}, {1, 1},
	{0, 1}, {-1, 1}, {-1, 0}, {-1, -1},
}

// neighbours4 lists the 4-connected offsets
var neighbours4 = [4][2]int{
	{0, -1}, {1, 0}, {0, 1}, {-1, 0},
}

// Dilate sets every background pixel that touches the foreground (3x3).
// Pixels outside the image count as background.
func Dilate(m *models.Mask) *models.Mask {
	out := m.Clone()
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if m.Pix[y*m.Width+x] {
				continue
			}
			for _, d := range neighbours8 {
				if m.Get(x+d[0], y+d[1]) {
					out.Pix[y*m.Width+x] = true
					break
				}
			}
		}
	}
	return out
}

// Erode clears every foreground pixel that touches the background (3x3).
// Pixels outside the image count as background.
func Erode(m *models.Mask) *models.Mask {
	out := m.Clone()
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.Pix[y*m.Width+x] {
				continue
			}
			for _, d := range neighbours8 {
				if !m.Get(x+d[0], y+d[1]) {
					out.Pix[y*m.Width+x] = false
					break
				}
			}
		}
	}
	return out
}

// Close is a dilation followed by an erosion
func Close(m *models.Mask) *models.Mask {
	return Erode(Dilate(m))
}

// FillHoles sets every background pixel that cannot reach the image border
// through 4-connected background
func FillHoles(m *models.Mask) *models.Mask {
	w, h := m.Width, m.Height
	reached := make([]bool, len(m.Pix))
	queue := make([]int, 0, 2*(w+h))

	seed := func(x, y int) {
		i := y*w + x
		if !m.Pix[i] && !reached[i] {
			reached[i] = true
			queue = append(queue, i)
		}
	}
	for x := 0; x < w; x++ {
		seed(x, 0)
		seed(x, h-1)
	}
	for y := 0; y < h; y++ {
		seed(0, y)
		seed(w-1, y)
	}

	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		x, y := i%w, i/w
		for _, d := range neighbours4 {
			nx, ny := x+d[0], y+d[1]
			if nx < 0 || ny < 0 || nx >= w || ny >= h {
				continue
			}
			seed(nx, ny)
		}
	}

	out := models.NewMask(w, h)
	for i := range out.Pix {
		out.Pix[i] = !reached[i]
	}
	return out
}

// Subtract returns a AND NOT b
func Subtract(a, b *models.Mask) *models.Mask {
	out := models.NewMask(a.Width, a.Height)
	for i := range out.Pix {
		out.Pix[i] = a.Pix[i] && !b.Pix[i]
	}
	return out
}
