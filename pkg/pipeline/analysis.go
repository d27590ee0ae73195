package pipeline

import (
	"fmt"

	"fpgranules/internal/models"
	"fpgranules/pkg/aggregate"
	"fpgranules/pkg/maxima"
	"fpgranules/pkg/preprocess"
	"fpgranules/pkg/segment"
)

// MaskBuilder turns the processed boundary channel into a cell-interior mask
type MaskBuilder func(boundary *models.Image) (*models.Mask, error)

// Analysis is everything derived from one image at one prominence
type Analysis struct {
	Name string

	// Signal and Boundary are the processed channels
	Signal   *models.Image
	Boundary *models.Image

	Regions []models.CellRegion

	// Granules[i] holds the granules of Regions[i]
	Granules [][]models.Granule
}

// Width of the analysed image
func (a *Analysis) Width() int { return a.Signal.Width }

// Height of the analysed image
func (a *Analysis) Height() int { return a.Signal.Height }

// AllGranules flattens the per-cell granules in cell order
func (a *Analysis) AllGranules() []models.Granule {
	var out []models.Granule
	for _, g := range a.Granules {
		out = append(out, g...)
	}
	return out
}

// Result converts the analysis into the aggregator's input
func (a *Analysis) Result() aggregate.ImageResult {
	return aggregate.ImageResult{Name: a.Name, Regions: a.Regions, Granules: a.Granules}
}

// Analyse runs preprocessing, mask building, region extraction and granule detection on
// one stack. The raw channels are not modified.
func Analyse(stack *models.Stack, prominence float64, opts preprocess.Options, segOpts segment.Options, build MaskBuilder) (*Analysis, error) {
	if err := stack.Validate(); err != nil {
		return nil, err
	}

	signal, err := preprocess.Preprocess(stack.Signal(), models.Signal, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stack.Name, err)
	}
	boundary, err := preprocess.Preprocess(stack.Boundary(), models.Boundary, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stack.Name, err)
	}

	mask, err := build(boundary)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", stack.Name, err)
	}
	regions := segment.ExtractRegions(mask, segOpts)

	detector := maxima.NewDetector(signal)
	granules := make([][]models.Granule, len(regions))
	for i, r := range regions {
		granules[i] = detector.Detect(r, prominence)
	}

	return &Analysis{
		Name:     stack.Name,
		Signal:   signal,
		Boundary: boundary,
		Regions:  regions,
		Granules: granules,
	}, nil
}
