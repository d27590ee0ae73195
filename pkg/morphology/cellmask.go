// Package morphology builds the binary cell-interior mask from the processed
// phase-contrast channel.
//
// Phase-contrast cell boundaries show up as bright halos. They are thresholded,
// thinned to clean 1-pixel contours, closed, and the contours are removed from the
// filled shapes so that only cell interiors remain.
package morphology

import (
	"fmt"

	"fpgranules/internal/models"
)

// Stages keeps every intermediate mask of BuildCellMaskStages for inspection
type Stages struct {
	Threshold *models.Mask
	Dilated   *models.Mask
	Skeleton  *models.Mask
	Pruned    *models.Mask
	Boundary  *models.Mask
	Filled    *models.Mask
	Interior  *models.Mask
}

// BuildCellMask turns a smoothed, background-subtracted boundary channel into a
// mask of cell interiors
func BuildCellMask(boundary *models.Image) (*models.Mask, error) {
	st, err := BuildCellMaskStages(boundary)
	if err != nil {
		return nil, err
	}
	return st.Interior, nil
}

// BuildCellMaskStages runs the fixed mask sequence and returns all stages:
//  1. Li threshold, bright objects on dark background
//  2. Dilate
//  3. Skeletonize
//  4. Prune side branches
//  5. Dilate, then close
//  6. Fill holes on a copy
//  7. Filled minus boundary
func BuildCellMaskStages(boundary *models.Image) (*Stages, error) {
	if boundary == nil || boundary.Width == 0 || boundary.Height == 0 {
		return nil, fmt.Errorf("build cell mask: empty boundary image")
	}

	st := &Stages{}
	st.Threshold = ThresholdLiDark(boundary)
	st.Dilated = Dilate(st.Threshold)
	st.Skeleton = Skeletonize(st.Dilated)
	st.Pruned = PruneSkeleton(st.Skeleton)
	st.Boundary = Close(Dilate(st.Pruned))
	st.Filled = FillHoles(st.Boundary)
	st.Interior = Subtract(st.Filled, st.Boundary)
	return st, nil
}
