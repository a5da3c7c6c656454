package capture

import (
	"errors"
	"fmt"
)

// Sentinel errors for capture failures.
var (
	// ErrNoImage is returned when the capture binary left no file behind.
	ErrNoImage = errors.New("capture: no image written")

	// ErrDecode is returned when the file exists but is not a decodable image.
	ErrDecode = errors.New("capture: image could not be decoded")

	// ErrTimeout is returned when the capture binary did not finish in time.
	ErrTimeout = errors.New("capture: timed out")
)

// CaptureError describes a failed frame request.
type CaptureError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *CaptureError) Unwrap() error {
	return e.Err
}
