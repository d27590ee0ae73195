// Package preprocess implements the per-channel denoising and background
// subtraction applied before segmentation and granule detection.
package preprocess

import (
	"fmt"

	"fpgranules/internal/models"
)

// Options holds the filter parameters for both channel roles
type Options struct {
	// Sigma is the Gaussian standard deviation applied to the boundary channel
	Sigma float64

	// Accuracy bounds the truncated Gaussian tail
	Accuracy float64

	// BoundaryBallRadius is the rolling-ball radius for the phase-contrast channel
	BoundaryBallRadius float64

	// SignalBallRadius is the rolling-ball radius for the fluorescence channel.
	// It is kept small so that fine granule peaks survive the subtraction.
	SignalBallRadius float64
}

// DefaultOptions returns the parameters the pipeline is tuned for (60x objective)
func DefaultOptions() Options {
	return Options{
		Sigma:              1,
		Accuracy:           0.01,
		BoundaryBallRadius: 25,
		SignalBallRadius:   10,
	}
}

// Preprocess returns a processed copy of a channel according to its role.
// The boundary channel is smoothed then background subtracted; the signal channel is
// only background subtracted.
func Preprocess(img *models.Image, role models.Role, opts Options) (*models.Image, error) {
	if img == nil || len(img.Pix) != img.Width*img.Height || len(img.Pix) == 0 {
		return nil, fmt.Errorf("preprocess %s: empty image", role)
	}

	switch role {
	case models.Boundary:
		smoothed := GaussianBlur(img, opts.Sigma, opts.Accuracy)
		return SubtractBackground(smoothed, opts.BoundaryBallRadius), nil
	case models.Signal:
		return SubtractBackground(img, opts.SignalBallRadius), nil
	default:
		return nil, fmt.Errorf("preprocess: unknown role %v", role)
	}
}
