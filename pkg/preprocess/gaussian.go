package preprocess

import (
	"math"

	"fpgranules/internal/models"
)

// kernelRadius returns the number of kernel taps on one side including the
// centre, so that the discarded Gaussian tail stays below accuracy
func kernelRadius(sigma, accuracy float64) int {
	return int(math.Ceil(sigma*math.Sqrt(-2*math.Log(accuracy)))) + 1
}

// gaussianKernel creates a one-sided normalised kernel.
// kernel[0] is the centre weight, kernel[i] the weight at offset ±i.
func gaussianKernel(sigma, accuracy float64) []float64 {
	r := kernelRadius(sigma, accuracy)
	kernel := make([]float64, r)
	sum := 0.0
	for i := 0; i < r; i++ {
		kernel[i] = math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		if i == 0 {
			sum += kernel[i]
		} else {
			sum += 2 * kernel[i]
		}
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

// GaussianBlur applies a separable Gaussian filter and returns a new image.
// Pixels beyond the image edge take the value of the nearest edge pixel.
//
// Parameters:
//   - img: Source image, left untouched
//   - sigma: Standard deviation in pixels
//   - accuracy: Relative weight below which kernel taps are dropped
//
// Returns:
//   - The blurred image
func GaussianBlur(img *models.Image, sigma, accuracy float64) *models.Image {
	out := img.Clone()
	if sigma <= 0 {
		return out
	}
	kernel := gaussianKernel(sigma, accuracy)
	w, h := img.Width, img.Height

	// Horizontal pass into tmp
	tmp := make([]float64, len(img.Pix))
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			acc := kernel[0] * img.Pix[row+x]
			for k := 1; k < len(kernel); k++ {
				acc += kernel[k] * (img.Pix[row+clamp(x-k, w)] + img.Pix[row+clamp(x+k, w)])
			}
			tmp[row+x] = acc
		}
	}

	// Vertical pass into out
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := kernel[0] * tmp[y*w+x]
			for k := 1; k < len(kernel); k++ {
				acc += kernel[k] * (tmp[clamp(y-k, h)*w+x] + tmp[clamp(y+k, h)*w+x])
			}
			out.Pix[y*w+x] = acc
		}
	}
	return out
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
