package maxima

import (
	"image"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"fpgranules/internal/models"
)

// regionWhere collects the pixels satisfying in as a region, row-major
func regionWhere(index, width, height int, in func(x, y int) bool) models.CellRegion {
	var pts []image.Point
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if in(x, y) {
				pts = append(pts, image.Point{X: x, Y: y})
			}
		}
	}
	return models.NewCellRegion(index, pts)
}

func disc(cx, cy, r float64) func(x, y int) bool {
	return func(x, y int) bool {
		return math.Hypot(float64(x)-cx, float64(y)-cy) <= r
	}
}

// blobImage draws Gaussian blobs {x, y, peak} with the given sigma on a flat background
func blobImage(width, height int, background, sigma float64, blobs [][3]float64) *models.Image {
	img := models.NewImage(width, height, 1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := background
			for _, b := range blobs {
				dx, dy := float64(x)-b[0], float64(y)-b[1]
				v += b[2] * math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma))
			}
			img.Set(x, y, v)
		}
	}
	return img
}

func TestDetectSingleBlob(t *testing.T) {
	img := blobImage(60, 60, 20, 3, [][3]float64{{30, 30, 180}})
	region := regionWhere(1, 60, 60, disc(30, 30, 17))

	granules := DetectGranules(img, region, 50)
	if len(granules) != 1 {
		t.Fatalf("Expected 1 granule at prominence 50, got %d", len(granules))
	}
	g := granules[0]
	if g.X != 30 || g.Y != 30 {
		t.Errorf("Expected granule at (30,30), got (%v,%v)", g.X, g.Y)
	}
	if g.CellIndex != 1 || g.Prominence != 50 {
		t.Errorf("Unexpected granule metadata: %+v", g)
	}
	if g.MeanIntensity < 170 || g.MeanIntensity > 177 {
		t.Errorf("Expected 4x4 window mean near 173.4, got %v", g.MeanIntensity)
	}

	if n := Count(DetectGranules(img, region, 500)); n != 0 {
		t.Errorf("Expected no granules at prominence 500, got %d", n)
	}
}

func TestDetectMonotonicInProminence(t *testing.T) {
	img := blobImage(60, 60, 0, 2.5, [][3]float64{
		{15, 15, 150}, {45, 15, 120}, {15, 45, 90}, {45, 45, 60},
	})
	region := regionWhere(1, 60, 60, func(x, y int) bool {
		return x > 0 && y > 0 && x < 59 && y < 59
	})
	d := NewDetector(img)

	want := map[float64]int{10: 4, 70: 3, 100: 2, 130: 1, 500: 0}
	prev := math.MaxInt
	for _, p := range []float64{10, 30, 50, 70, 100, 130, 200, 500} {
		n := Count(d.Detect(region, p))
		if n > prev {
			t.Errorf("Granule count increased from %d to %d at prominence %v", prev, n, p)
		}
		if exp, ok := want[p]; ok && n != exp {
			t.Errorf("Prominence %v: expected %d granules, got %d", p, exp, n)
		}
		prev = n
	}

	granules := d.Detect(region, 10)
	if len(granules) == 4 && (granules[0].X != 15 || granules[0].Y != 15 || granules[3].Peak > granules[2].Peak) {
		t.Errorf("Expected granules sorted by peak, got %+v", granules)
	}
}

func TestDetectSaddleSeparation(t *testing.T) {
	img := models.NewImage(30, 20, 1)
	for x := 11; x <= 19; x++ {
		img.Set(x, 10, 70)
	}
	img.Set(10, 10, 100)
	img.Set(20, 10, 90)
	region := regionWhere(3, 30, 20, func(x, y int) bool { return y >= 5 && y <= 15 && x >= 5 && x <= 25 })

	if n := Count(DetectGranules(img, region, 10)); n != 2 {
		t.Errorf("Expected two maxima separated by the saddle at prominence 10, got %d", n)
	}
	granules := DetectGranules(img, region, 25)
	if len(granules) != 1 || granules[0].X != 10 {
		t.Errorf("Expected only the higher maximum at prominence 25, got %+v", granules)
	}

	// saddle exactly at peak - prominence does not separate
	granules = DetectGranules(img, region, 20)
	if len(granules) != 1 || granules[0].X != 10 {
		t.Errorf("Expected saddle at 90-20 to merge the maxima, got %+v", granules)
	}
}

func TestDetectSaddleAtFloorMerges(t *testing.T) {
	img := models.NewImage(12, 3, 1)
	for x, v := range []float64{0, 100, 60, 50, 60, 120, 0} {
		img.Set(x, 1, v)
	}
	full := regionWhere(1, 12, 3, func(x, y int) bool { return true })

	granules := DetectGranules(img, full, 50)
	if len(granules) != 1 || granules[0].X != 5 {
		t.Errorf("Expected one granule at x=5, got %+v", granules)
	}
	if n := Count(DetectGranules(img, full, 49)); n != 2 {
		t.Errorf("Expected two granules once the saddle is below the floor, got %d", n)
	}
}

func TestDetectStrictRejectsPeakAtProminence(t *testing.T) {
	img := models.NewImage(9, 9, 1)
	img.Set(4, 4, 50)
	full := regionWhere(1, 9, 9, func(x, y int) bool { return true })

	if n := Count(DetectGranules(img, full, 50)); n != 0 {
		t.Errorf("Expected no granule when peak - minimum equals the prominence, got %d", n)
	}
	if n := Count(DetectGranules(img, full, 49)); n != 1 {
		t.Errorf("Expected one granule below that prominence, got %d", n)
	}
}

func TestDetectPlateau(t *testing.T) {
	img := models.NewImage(20, 20, 1)
	for x := 8; x <= 10; x++ {
		img.Set(x, 10, 100)
	}

	full := regionWhere(1, 20, 20, disc(9, 10, 5))
	granules := DetectGranules(img, full, 20)
	if len(granules) != 1 {
		t.Fatalf("Expected plateau merged into one granule, got %d", len(granules))
	}
	if granules[0].X != 9 || granules[0].Y != 10 {
		t.Errorf("Expected plateau centre (9,10), got (%v,%v)", granules[0].X, granules[0].Y)
	}

	// centre pixel outside the region: nearest in-region plateau pixel, row-major first
	holed := regionWhere(1, 20, 20, func(x, y int) bool {
		return disc(9, 10, 5)(x, y) && !(x == 9 && y == 10)
	})
	granules = DetectGranules(img, holed, 20)
	if len(granules) != 1 || granules[0].X != 8 {
		t.Errorf("Expected granule moved to (8,10), got %+v", granules)
	}
}

func TestDetectOutsideRegionIgnored(t *testing.T) {
	img := blobImage(60, 60, 0, 2, [][3]float64{{10, 10, 100}, {40, 40, 100}})
	region := regionWhere(2, 60, 60, disc(40, 40, 8))

	granules := DetectGranules(img, region, 20)
	if len(granules) != 1 || granules[0].X != 40 {
		t.Errorf("Expected only the in-region maximum, got %+v", granules)
	}
}

func TestWindowMeanClampsAtEdge(t *testing.T) {
	img := models.NewImage(10, 10, 1)
	img.Set(0, 0, 100)
	region := regionWhere(1, 10, 10, func(x, y int) bool { return x < 3 && y < 3 })

	granules := DetectGranules(img, region, 50)
	if len(granules) != 1 {
		t.Fatalf("Expected corner granule, got %d", len(granules))
	}
	if granules[0].MeanIntensity != 25 {
		t.Errorf("Expected mean over the clipped 2x2 window = 25, got %v", granules[0].MeanIntensity)
	}
}

func TestDetectDeterministic(t *testing.T) {
	img := blobImage(50, 50, 5, 2, [][3]float64{{12, 20, 80}, {30, 25, 120}, {36, 30, 95}})
	region := regionWhere(1, 50, 50, func(x, y int) bool { return x > 2 && y > 2 && x < 47 && y < 47 })

	first := DetectGranules(img, region, 15)
	second := DetectGranules(img, region, 15)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Detection is not deterministic (-first +second):\n%s", diff)
	}
}

func TestDetectEmptyInputs(t *testing.T) {
	img := models.NewImage(10, 10, 1)
	if g := DetectGranules(img, models.CellRegion{}, 10); len(g) != 0 {
		t.Errorf("Expected no granules for an empty region")
	}
	flat := regionWhere(1, 10, 10, func(x, y int) bool { return true })
	if g := DetectGranules(img, flat, 10); len(g) != 0 {
		t.Errorf("Expected no granules on a flat image")
	}
}
