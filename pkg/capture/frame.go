package capture

import (
	"os"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a single grayscale still. It is owned by the cycle that
// captured it and must be closed once scoring and recognition are done.
type Frame struct {
	Mat        gocv.Mat
	Path       string
	CapturedAt time.Time
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int { return f.Mat.Cols() }

// Height returns the frame height in pixels.
func (f *Frame) Height() int { return f.Mat.Rows() }

// Close releases the image memory.
func (f *Frame) Close() error {
	if f == nil {
		return nil
	}
	return f.Mat.Close()
}

// Load reads and decodes the image at path as grayscale.
func Load(path string) (*Frame, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, &CaptureError{Path: path, Err: ErrNoImage}
	}

	mat := gocv.IMRead(path, gocv.IMReadGrayScale)
	if mat.Empty() {
		mat.Close()
		return nil, &CaptureError{Path: path, Err: ErrDecode}
	}

	return &Frame{Mat: mat, Path: path, CapturedAt: time.Now()}, nil
}
