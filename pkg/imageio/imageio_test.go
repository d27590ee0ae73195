package imageio

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpgranules/internal/models"
)

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{R: uint8(10 * x), G: uint8(20 * y), B: 7, A: 255})
		}
	}

	require.NoError(t, TIFFSaver{}.Save(src, dir, "cells_01"))
	stack, err := TIFFLoader{}.Load(filepath.Join(dir, "cells_01.tif"))
	require.NoError(t, err)

	assert.Equal(t, "cells_01", stack.Name)
	require.Len(t, stack.Channels, 2)
	assert.Equal(t, 1, stack.Signal().Channel)
	assert.Equal(t, 2, stack.Boundary().Channel)
	assert.Equal(t, 70.0, stack.Signal().At(7, 3))
	assert.Equal(t, 100.0, stack.Boundary().At(2, 5))
}

func TestLoadSixteenBit(t *testing.T) {
	dir := t.TempDir()
	src := image.NewRGBA64(image.Rect(0, 0, 4, 4))
	src.SetRGBA64(1, 2, color.RGBA64{R: 4000, G: 1200, A: 0xffff})
	require.NoError(t, TIFFSaver{}.Save(src, dir, "deep"))

	stack, err := TIFFLoader{}.Load(filepath.Join(dir, "deep.tif"))
	require.NoError(t, err)
	assert.Equal(t, 4000.0, stack.Signal().At(1, 2))
	assert.Equal(t, 1200.0, stack.Boundary().At(1, 2))
}

func TestLoadGrayscaleRejected(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, TIFFSaver{}.Save(image.NewGray(image.Rect(0, 0, 5, 5)), dir, "mono"))

	_, err := TIFFLoader{}.Load(filepath.Join(dir, "mono.tif"))
	var shapeErr *models.InputShapeError
	require.True(t, errors.As(err, &shapeErr), "expected InputShapeError, got %v", err)
	assert.Contains(t, shapeErr.Reason, "2 channels")
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	_, err := TIFFLoader{}.Load(filepath.Join(dir, "absent.tif"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.tif")
	require.NoError(t, os.WriteFile(bad, []byte("not a tiff"), 0644))
	_, err = TIFFLoader{}.Load(bad)
	var shapeErr *models.InputShapeError
	assert.True(t, errors.As(err, &shapeErr))
}

func TestListImagesDescending(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.tif", "c.TIF", "b.tif", "notes.txt", "d.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "z.tif"), 0755))

	names, err := ListImages(dir, "tif")
	require.NoError(t, err)
	assert.Equal(t, []string{"c.TIF", "b.tif", "a.tif"}, names)

	names, err = ListImages(dir, ".png")
	require.NoError(t, err)
	assert.Equal(t, []string{"d.png"}, names)

	_, err = ListImages(filepath.Join(dir, "missing"), "tif")
	var fsErr *models.FilesystemError
	assert.True(t, errors.As(err, &fsErr))
}

func TestSplitReadsEightBitModelsAsEightBit(t *testing.T) {
	pal := image.NewPaletted(image.Rect(0, 0, 3, 3), color.Palette{
		color.RGBA{A: 255},
		color.RGBA{R: 200, G: 50, A: 255},
	})
	pal.SetColorIndex(1, 1, 1)
	stack, err := Split(pal)
	require.NoError(t, err)
	assert.Equal(t, 200.0, stack.Signal().At(1, 1))
	assert.Equal(t, 50.0, stack.Boundary().At(1, 1))

	ycc := image.NewYCbCr(image.Rect(0, 0, 2, 2), image.YCbCrSubsampleRatio444)
	for i := range ycc.Y {
		ycc.Y[i], ycc.Cb[i], ycc.Cr[i] = 128, 128, 128
	}
	stack, err = Split(ycc)
	require.NoError(t, err)
	assert.InDelta(t, 128, stack.Signal().At(0, 0), 1)
	assert.InDelta(t, 128, stack.Boundary().At(0, 0), 1)

	// premultiplied samples are divided back by alpha
	rgba := image.NewRGBA(image.Rect(0, 0, 2, 2))
	rgba.SetRGBA(0, 0, color.RGBA{R: 50, G: 25, A: 128})
	stack, err = Split(rgba)
	require.NoError(t, err)
	assert.InDelta(t, 99.6, stack.Signal().At(0, 0), 1)
	assert.InDelta(t, 49.8, stack.Boundary().At(0, 0), 1)
}

func TestLoadRejectsMultiPageTIFF(t *testing.T) {
	dir := t.TempDir()
	// header plus two empty IFDs chained together
	data := []byte{
		'I', 'I', 42, 0, 8, 0, 0, 0,
		0, 0, 14, 0, 0, 0,
		0, 0, 0, 0, 0, 0,
	}
	path := filepath.Join(dir, "zstack.tif")
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err := TIFFLoader{}.Load(path)
	var shapeErr *models.InputShapeError
	require.True(t, errors.As(err, &shapeErr), "expected InputShapeError, got %v", err)
	assert.Contains(t, shapeErr.Reason, "2 pages")

	require.NoError(t, TIFFSaver{}.Save(image.NewRGBA(image.Rect(0, 0, 4, 4)), dir, "single"))
	f, err := os.Open(filepath.Join(dir, "single.tif"))
	require.NoError(t, err)
	defer f.Close()
	pages, err := countPages(f)
	require.NoError(t, err)
	assert.Equal(t, 1, pages)
}
