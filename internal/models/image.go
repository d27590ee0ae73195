package models

import (
	"fmt"
)

// Role identifies what a channel is used for in the pipeline
type Role int

const (
	// Signal is the fluorescence channel (channel 1)
	Signal Role = iota
	// Boundary is the phase-contrast channel (channel 2)
	Boundary
)

func (r Role) String() string {
	switch r {
	case Signal:
		return "signal"
	case Boundary:
		return "boundary"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Image represents a single channel of a microscopy image
type Image struct {
	// Width is the number of columns
	Width int

	// Height is the number of rows
	Height int

	// Channel is the 1-based channel index this plane came from
	Channel int

	// Pix holds intensities in row-major order
	Pix []float64
}

// NewImage allocates a zeroed image
func NewImage(width, height, channel int) *Image {
	return &Image{
		Width:   width,
		Height:  height,
		Channel: channel,
		Pix:     make([]float64, width*height),
	}
}

// Index returns the offset of (x, y) in Pix
func (im *Image) Index(x, y int) int {
	return y*im.Width + x
}

// InBounds reports whether (x, y) lies inside the image
func (im *Image) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < im.Width && y < im.Height
}

// At returns the intensity at (x, y)
func (im *Image) At(x, y int) float64 {
	return im.Pix[y*im.Width+x]
}

// Set stores v at (x, y)
func (im *Image) Set(x, y int, v float64) {
	im.Pix[y*im.Width+x] = v
}

// Clone returns a deep copy
func (im *Image) Clone() *Image {
	out := &Image{
		Width:   im.Width,
		Height:  im.Height,
		Channel: im.Channel,
		Pix:     make([]float64, len(im.Pix)),
	}
	copy(out.Pix, im.Pix)
	return out
}

// Stack is one source file split into its channels
type Stack struct {
	// Name is the file name without extension, used to name every output
	Name string

	// Path is where the stack was loaded from
	Path string

	// Channels holds the planes in file order; index 0 is channel 1
	Channels []*Image
}

// Validate checks that the stack carries exactly two equally sized channels
func (s *Stack) Validate() error {
	if len(s.Channels) != 2 {
		return &InputShapeError{Path: s.Path, Reason: fmt.Sprintf("expected 2 channels, got %d", len(s.Channels))}
	}
	a, b := s.Channels[0], s.Channels[1]
	if a == nil || b == nil {
		return &InputShapeError{Path: s.Path, Reason: "missing channel data"}
	}
	if a.Width != b.Width || a.Height != b.Height {
		return &InputShapeError{Path: s.Path, Reason: fmt.Sprintf("channel sizes differ: %dx%d vs %dx%d",
			a.Width, a.Height, b.Width, b.Height)}
	}
	if a.Width == 0 || a.Height == 0 || len(a.Pix) != a.Width*a.Height || len(b.Pix) != b.Width*b.Height {
		return &InputShapeError{Path: s.Path, Reason: "empty or truncated channel"}
	}
	return nil
}

// Signal returns the fluorescence channel
func (s *Stack) Signal() *Image {
	return s.Channels[0]
}

// Boundary returns the phase-contrast channel
func (s *Stack) Boundary() *Image {
	return s.Channels[1]
}

// Release drops the pixel buffers so they can be collected
func (s *Stack) Release() {
	for i := range s.Channels {
		s.Channels[i] = nil
	}
	s.Channels = nil
}
