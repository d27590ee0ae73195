// Package imageio loads two-channel microscopy images and writes the per-image artifacts.
package imageio

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/tiff"

	"fpgranules/internal/models"
)

// Loader decodes one source file into its channels
type Loader interface {
	Load(path string) (*models.Stack, error)
}

// Saver writes one rendered image as dir/name.<ext>
type Saver interface {
	Save(img image.Image, dir, name string) error
}

// TIFFLoader reads TIFF or PNG files. Colour images carry the fluorescence channel in
// red and the phase-contrast channel in green.
type TIFFLoader struct{}

// Load decodes path and splits it into channel 1 (red) and channel 2 (green)
func (TIFFLoader) Load(path string) (*models.Stack, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &models.InputShapeError{Path: path, Reason: err.Error()}
	}
	defer file.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		img, err = png.Decode(file)
	default:
		pages, perr := countPages(file)
		if perr == nil && pages > 1 {
			return nil, &models.InputShapeError{Path: path, Reason: fmt.Sprintf("%d pages: project z-planes to one image first", pages)}
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, &models.FilesystemError{Op: "seek", Path: path, Err: err}
		}
		img, err = tiff.Decode(file)
	}
	if err != nil {
		return nil, &models.InputShapeError{Path: path, Reason: fmt.Sprintf("decode: %v", err)}
	}

	stack, err := Split(img)
	if err != nil {
		return nil, &models.InputShapeError{Path: path, Reason: err.Error()}
	}
	stack.Path = path
	stack.Name = BaseName(path)
	if err := stack.Validate(); err != nil {
		return nil, err
	}
	return stack, nil
}

// Split separates a decoded image into signal (red) and boundary (green) planes.
// 16-bit colour models keep their 0-65535 range, every other colour model is read
// as non-premultiplied 8-bit samples.
func Split(img image.Image) (*models.Stack, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	signal := models.NewImage(w, h, 1)
	boundary := models.NewImage(w, h, 2)

	switch src := img.(type) {
	case *image.Gray, *image.Gray16:
		return nil, fmt.Errorf("expected 2 channels, got 1")
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				o := src.PixOffset(b.Min.X+x, b.Min.Y+y)
				signal.Set(x, y, float64(src.Pix[o]))
				boundary.Set(x, y, float64(src.Pix[o+1]))
			}
		}
	case *image.RGBA64, *image.NRGBA64:
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				signal.Set(x, y, float64(c.R))
				boundary.Set(x, y, float64(c.G))
			}
		}
	default:
		// RGBA (premultiplied), paletted, YCbCr and CMYK all carry 8-bit samples
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				signal.Set(x, y, float64(c.R))
				boundary.Set(x, y, float64(c.G))
			}
		}
	}
	return &models.Stack{Channels: []*models.Image{signal, boundary}}, nil
}

// countPages follows the IFD chain of a classic TIFF file. The decoder only reads the
// first page, so z-stacks have to be recognised before decoding.
func countPages(r io.ReadSeeker) (int, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	var order binary.ByteOrder
	switch string(hdr[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 0, fmt.Errorf("not a TIFF header")
	}
	if order.Uint16(hdr[2:4]) != 42 {
		return 0, fmt.Errorf("unsupported TIFF variant")
	}

	seen := make(map[uint32]bool)
	pages := 0
	for off := order.Uint32(hdr[4:8]); off != 0; {
		if seen[off] {
			break
		}
		seen[off] = true
		pages++

		var n [2]byte
		if _, err := r.Seek(int64(off), io.SeekStart); err != nil {
			return pages, err
		}
		if _, err := io.ReadFull(r, n[:]); err != nil {
			return pages, err
		}
		if _, err := r.Seek(int64(order.Uint16(n[:]))*12, io.SeekCurrent); err != nil {
			return pages, err
		}
		var next [4]byte
		if _, err := io.ReadFull(r, next[:]); err != nil {
			return pages, err
		}
		off = order.Uint32(next[:])
	}
	return pages, nil
}

// BaseName strips the directory and the extension
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// TIFFSaver writes deflate-compressed TIFF files
type TIFFSaver struct{}

// Save writes img to dir/name.tif
func (TIFFSaver) Save(img image.Image, dir, name string) error {
	path := filepath.Join(dir, name+".tif")
	file, err := os.Create(path)
	if err != nil {
		return &models.FilesystemError{Op: "create", Path: path, Err: err}
	}
	if err := tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate}); err != nil {
		file.Close()
		return &models.FilesystemError{Op: "encode", Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return &models.FilesystemError{Op: "close", Path: path, Err: err}
	}
	return nil
}

// ListImages returns the names of files in dir with extension ext (case-insensitive,
// leading dot optional), sorted in reverse alphabetical order
func ListImages(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &models.FilesystemError{Op: "read dir", Path: dir, Err: err}
	}
	want := "." + strings.TrimPrefix(strings.ToLower(ext), ".")

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.ToLower(filepath.Ext(e.Name())) == want {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}
