package motion

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Detector maintains the background model and scores frames against it.
// It is not safe for concurrent use; the control loop owns it.
type Detector struct {
	config Config

	background  gocv.Mat // CV_32FC1 rolling average
	initialized bool

	// Scratch buffers reused across frames.
	gray    gocv.Mat
	blurred gocv.Mat
	rounded gocv.Mat
	delta   gocv.Mat
	mask    gocv.Mat
}

// New creates a detector with an empty background.
func New(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid motion config: %w", err)
	}
	return &Detector{
		config:     cfg,
		background: gocv.NewMat(),
		gray:       gocv.NewMat(),
		blurred:    gocv.NewMat(),
		rounded:    gocv.NewMat(),
		delta:      gocv.NewMat(),
		mask:       gocv.NewMat(),
	}, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.config
}

// Initialized reports whether the background has been seeded.
func (d *Detector) Initialized() bool {
	return d.initialized
}

// Score returns the number of moving pixels in frame and folds the frame
// into the background. The first frame only seeds the background and
// always scores 0.
func (d *Detector) Score(frame gocv.Mat) int {
	if frame.Empty() {
		return 0
	}

	src := frame
	if frame.Channels() > 1 {
		gocv.CvtColor(frame, &d.gray, gocv.ColorBGRToGray)
		src = d.gray
	}

	k := d.config.BlurKernel
	gocv.GaussianBlur(src, &d.blurred, image.Pt(k, k), 0, 0, gocv.BorderDefault)

	if !d.initialized || !sameSize(d.background, d.blurred) {
		d.blurred.ConvertTo(&d.background, gocv.MatTypeCV32F)
		d.initialized = true
		return 0
	}

	gocv.AccumulatedWeighted(d.blurred, &d.background, d.config.Alpha)
	gocv.ConvertScaleAbs(d.background, &d.rounded, 1, 0)
	gocv.AbsDiff(d.blurred, d.rounded, &d.delta)
	gocv.Threshold(d.delta, &d.mask, float32(d.config.PixelThreshold), 255, gocv.ThresholdBinary)

	return gocv.CountNonZero(d.mask)
}

// Background returns a copy of the background rounded to 8-bit, or an
// empty Mat before the first frame. The caller must close it.
func (d *Detector) Background() gocv.Mat {
	out := gocv.NewMat()
	if d.initialized {
		gocv.ConvertScaleAbs(d.background, &out, 1, 0)
	}
	return out
}

// Reset drops the background so the next frame re-seeds it.
func (d *Detector) Reset() {
	d.initialized = false
}

// Close releases the background and scratch buffers.
func (d *Detector) Close() error {
	for _, m := range []*gocv.Mat{&d.background, &d.gray, &d.blurred, &d.rounded, &d.delta, &d.mask} {
		m.Close()
	}
	d.initialized = false
	return nil
}

// sameSize reports whether the background matches the incoming frame.
// A resolution change re-seeds the model instead of failing the diff.
func sameSize(a, b gocv.Mat) bool {
	return a.Rows() == b.Rows() && a.Cols() == b.Cols()
}
