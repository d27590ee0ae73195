package morphology

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"fpgranules/internal/models"
)

// histogramBins is the resolution automatic thresholds are computed at
const histogramBins = 256

// histogram bins img into 256 bins spanning [min, max]
func histogram(img *models.Image) (hist []int, min, max float64) {
	hist = make([]int, histogramBins)
	min, max = floats.Min(img.Pix), floats.Max(img.Pix)
	if max <= min {
		hist[0] = len(img.Pix)
		return hist, min, max
	}
	scale := float64(histogramBins) / (max - min)
	for _, v := range img.Pix {
		hist[binOf(v, min, scale)]++
	}
	return hist, min, max
}

func binOf(v, min, scale float64) int {
	b := int((v - min) * scale)
	if b >= histogramBins {
		b = histogramBins - 1
	}
	if b < 0 {
		b = 0
	}
	return b
}

// LiThreshold returns the histogram bin selected by Li's iterative minimum
// cross-entropy method. Bins above the returned value are object.
func LiThreshold(hist []int) int {
	const tolerance = 0.5

	var numPixels, sum float64
	for ih, count := range hist {
		numPixels += float64(count)
		sum += float64(ih) * float64(count)
	}
	if numPixels == 0 {
		return 0
	}

	newThresh := sum / numPixels
	var oldThresh float64
	threshold := 0
	for iter := 0; iter < 1000; iter++ {
		oldThresh = newThresh
		threshold = int(oldThresh + 0.5)

		var sumBack, numBack float64
		for ih := 0; ih <= threshold && ih < len(hist); ih++ {
			sumBack += float64(ih) * float64(hist[ih])
			numBack += float64(hist[ih])
		}
		meanBack := 0.0
		if numBack > 0 {
			meanBack = sumBack / numBack
		}

		var sumObj, numObj float64
		for ih := threshold + 1; ih < len(hist); ih++ {
			sumObj += float64(ih) * float64(hist[ih])
			numObj += float64(hist[ih])
		}
		meanObj := 0.0
		if numObj > 0 {
			meanObj = sumObj / numObj
		}

		temp := (meanBack - meanObj) / (math.Log(meanBack) - math.Log(meanObj))
		if math.IsNaN(temp) {
			break
		}
		if temp < -2.220446049250313e-16 {
			newThresh = float64(int(temp - 0.5))
		} else {
			newThresh = float64(int(temp + 0.5))
		}
		if math.Abs(newThresh-oldThresh) <= tolerance {
			break
		}
	}
	return threshold
}

// ThresholdLiDark converts img to a mask with Li's method, treating bright
// structures on a dark background as foreground
func ThresholdLiDark(img *models.Image) *models.Mask {
	mask := models.NewMask(img.Width, img.Height)
	hist, min, max := histogram(img)
	if max <= min {
		return mask
	}
	level := LiThreshold(hist)
	scale := float64(histogramBins) / (max - min)
	for i, v := range img.Pix {
		mask.Pix[i] = binOf(v, min, scale) > level
	}
	return mask
}
