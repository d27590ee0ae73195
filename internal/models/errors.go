package models

import (
	"errors"
	"fmt"
)

// ErrDegenerateImage marks an image in which no cell survived filtering.
// It is informational: the summary row is still emitted with a NaN percentage.
var ErrDegenerateImage = errors.New("no cell regions survived filtering")

// InputShapeError is returned when a source file does not decode into two usable channels
type InputShapeError struct {
	Path   string
	Reason string
}

func (e *InputShapeError) Error() string {
	return fmt.Sprintf("invalid input %s: %s", e.Path, e.Reason)
}

// FilesystemError wraps failures creating or writing output locations
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}
