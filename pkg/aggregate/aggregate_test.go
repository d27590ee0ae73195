package aggregate

import (
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpgranules/internal/models"
)

func region(index, area int) models.CellRegion {
	pts := make([]image.Point, area)
	for i := range pts {
		pts[i] = image.Point{X: i % 40, Y: i / 40}
	}
	return models.NewCellRegion(index, pts)
}

func granules(cell int, peaks ...float64) []models.Granule {
	out := make([]models.Granule, len(peaks))
	for i, p := range peaks {
		out[i] = models.Granule{CellIndex: cell, X: float64(10 + i), Y: 5, Peak: p, MeanIntensity: p - 10, Prominence: 50}
	}
	return out
}

func TestRecordCellRowsAndSerials(t *testing.T) {
	a := New(" 230603", 50)
	require.NoError(t, a.BeginImage("img_b"))
	require.NoError(t, a.RecordCell(region(1, 900), granules(1, 120, 100, 80)))
	require.NoError(t, a.RecordCell(region(2, 1500), nil))
	require.NoError(t, a.RecordCell(region(3, 600), granules(3, 90)))
	s, err := a.FinalizeImage()
	require.NoError(t, err)

	assert.Equal(t, 3, s.TotalCellNumber)
	assert.Equal(t, 2, s.FociCell)
	assert.InDelta(t, 66.6667, s.PctFociCell, 1e-3)
	assert.Equal(t, 50, s.Prominence)

	b, err := a.FinalizeBatch()
	require.NoError(t, err)
	require.Len(t, b.Observations, 5)

	perCell := map[int]int{}
	lastObs, lastFoci := 0, 0
	for _, o := range b.Observations {
		perCell[o.CellNumber]++
		assert.Greater(t, o.Observation, lastObs)
		lastObs = o.Observation
		if o.WithFoci() {
			assert.Greater(t, o.Foci.Serial, lastFoci)
			lastFoci = o.Foci.Serial
		}
		assert.Equal(t, " 230603", o.Date)
		assert.Equal(t, "img_b", o.ImageFile)
	}
	assert.Equal(t, map[int]int{1: 3, 2: 1, 3: 1}, perCell)
	assert.Equal(t, 4, lastFoci)

	sentinel := b.Observations[3]
	assert.False(t, sentinel.WithFoci())
	assert.Equal(t, 2, sentinel.CellNumber)
	assert.Equal(t, 1500, sentinel.CellArea)
}

func TestSerialsContinueAcrossImages(t *testing.T) {
	a := New("d", 20)
	_, err := a.Merge(
		ImageResult{Name: "z", Regions: []models.CellRegion{region(1, 500)}, Granules: [][]models.Granule{granules(1, 50, 40)}},
		ImageResult{Name: "y", Regions: []models.CellRegion{region(1, 500), region(2, 700)}, Granules: [][]models.Granule{nil, granules(2, 70)}},
	)
	require.NoError(t, err)
	b, err := a.FinalizeBatch()
	require.NoError(t, err)

	var obs, foci []int
	for _, o := range b.Observations {
		obs = append(obs, o.Observation)
		if o.WithFoci() {
			foci = append(foci, o.Foci.Serial)
		}
	}
	if diff := cmp.Diff([]int{1, 2, 3, 4}, obs); diff != "" {
		t.Errorf("observation serials (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, foci); diff != "" {
		t.Errorf("foci serials (-want +got):\n%s", diff)
	}
	require.Len(t, b.Summaries, 2)
	assert.Equal(t, "z", b.Summaries[0].FileName)
	assert.Equal(t, 100.0, b.Summaries[0].PctFociCell)
	assert.Equal(t, 50.0, b.Summaries[1].PctFociCell)
}

func TestZeroCellImageIsNaN(t *testing.T) {
	a := New("d", 50)
	require.NoError(t, a.BeginImage("empty"))
	s, err := a.FinalizeImage()
	require.NoError(t, err)

	assert.Equal(t, 0, s.TotalCellNumber)
	assert.True(t, math.IsNaN(s.PctFociCell))
	assert.True(t, s.Degenerate())

	b, err := a.FinalizeBatch()
	require.NoError(t, err)
	assert.Len(t, b.Summaries, 1)
	assert.Empty(t, b.Observations)
}

func TestFinalizeBatchDropsTrailingImage(t *testing.T) {
	a := New("d", 50)
	_, err := a.Merge(ImageResult{Name: "done", Regions: []models.CellRegion{region(1, 450)}, Granules: [][]models.Granule{granules(1, 60)}})
	require.NoError(t, err)

	require.NoError(t, a.BeginImage("partial"))
	require.NoError(t, a.RecordCell(region(1, 800), granules(1, 70, 65)))

	b, err := a.FinalizeBatch()
	require.NoError(t, err)
	assert.Len(t, b.Summaries, 1)
	require.Len(t, b.Observations, 1)
	assert.Equal(t, "done", b.Observations[0].ImageFile)
}

func TestLifecycleErrors(t *testing.T) {
	a := New("d", 50)
	assert.ErrorIs(t, a.RecordCell(region(1, 450), nil), ErrNoImage)
	_, err := a.FinalizeImage()
	assert.ErrorIs(t, err, ErrNoImage)

	require.NoError(t, a.BeginImage("a"))
	assert.ErrorIs(t, a.BeginImage("b"), ErrImageInProgress)

	_, err = a.Merge(ImageResult{Name: "bad", Regions: []models.CellRegion{region(1, 450)}})
	assert.Error(t, err)

	_, err = a.FinalizeBatch()
	require.NoError(t, err)
	_, err = a.FinalizeBatch()
	assert.ErrorIs(t, err, ErrFinalized)
	assert.ErrorIs(t, a.BeginImage("c"), ErrFinalized)
	assert.ErrorIs(t, a.RecordCell(region(1, 450), nil), ErrFinalized)
}

func TestBatchStats(t *testing.T) {
	a := New("d", 50)
	_, err := a.Merge(
		ImageResult{Name: "a", Regions: []models.CellRegion{region(1, 450), region(2, 450)}, Granules: [][]models.Granule{granules(1, 30, 50), nil}},
		ImageResult{Name: "b", Regions: nil, Granules: nil},
	)
	require.NoError(t, err)
	b, err := a.FinalizeBatch()
	require.NoError(t, err)

	st := b.Stats()
	assert.Equal(t, 2, st.Images)
	assert.Equal(t, 2, st.Cells)
	assert.Equal(t, 1, st.FociCells)
	assert.Equal(t, 2, st.Granules)
	assert.InDelta(t, 1.0, st.GranulesPerCellMean, 1e-9)
	assert.InDelta(t, math.Sqrt2, st.GranulesPerCellStd, 1e-9)
	assert.InDelta(t, 30.0, st.FociIntensityMean, 1e-9)
	assert.InDelta(t, 50.0, st.PctFociCellMean, 1e-9)

	empty := (&Batch{}).Stats()
	assert.True(t, math.IsNaN(empty.GranulesPerCellMean))
	assert.True(t, math.IsNaN(empty.PctFociCellMean))
}
