package motion

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

const (
	width  = 640
	height = 480
)

// scene returns a flat gray frame, optionally with a bright "vehicle" block.
func scene(t *testing.T, level float64, vehicle image.Rectangle) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(level, 0, 0, 0), height, width, gocv.MatTypeCV8U)
	if !vehicle.Empty() {
		gocv.Rectangle(&m, vehicle, color.RGBA{255, 255, 255, 0}, -1)
	}
	return m
}

func newDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := New(DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func TestFirstFrameNeverScores(t *testing.T) {
	tests := []struct {
		name    string
		level   float64
		vehicle image.Rectangle
	}{
		{"dark empty scene", 10, image.Rectangle{}},
		{"bright empty scene", 240, image.Rectangle{}},
		{"vehicle already present", 50, image.Rect(100, 100, 500, 400)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := newDetector(t)
			frame := scene(t, tc.level, tc.vehicle)
			defer frame.Close()

			assert.False(t, d.Initialized())
			assert.Equal(t, 0, d.Score(frame))
			assert.True(t, d.Initialized())
		})
	}
}

func TestStaticSceneStaysQuiet(t *testing.T) {
	d := newDetector(t)
	frame := scene(t, 90, image.Rect(200, 150, 300, 250))
	defer frame.Close()

	for i := 0; i < 20; i++ {
		score := d.Score(frame)
		assert.LessOrEqual(t, score, 500, "cycle %d", i)
		assert.Equal(t, 0, score, "identical frames must not move")
	}
}

func TestVehicleEnteringScores(t *testing.T) {
	d := newDetector(t)

	empty := scene(t, 50, image.Rectangle{})
	defer empty.Close()
	vehicle := scene(t, 50, image.Rect(200, 150, 400, 350))
	defer vehicle.Close()

	d.Score(empty)
	d.Score(empty)

	score := d.Score(vehicle)
	assert.Greater(t, score, 500)
	assert.LessOrEqual(t, score, width*height)
}

func TestParkedVehicleIsAbsorbed(t *testing.T) {
	d := newDetector(t)

	empty := scene(t, 50, image.Rectangle{})
	defer empty.Close()
	vehicle := scene(t, 50, image.Rect(200, 150, 400, 350))
	defer vehicle.Close()

	d.Score(empty)
	first := d.Score(vehicle)
	require.Greater(t, first, 500)

	// With alpha 0.5 the gap halves every frame, so a stopped vehicle
	// fades into the background after a handful of cycles.
	var last int
	for i := 0; i < 10; i++ {
		last = d.Score(vehicle)
	}
	assert.Equal(t, 0, last)
}

func TestSmallNoiseIsBlurredAway(t *testing.T) {
	d := newDetector(t)

	clean := scene(t, 100, image.Rectangle{})
	defer clean.Close()
	noisy := scene(t, 100, image.Rectangle{})
	defer noisy.Close()

	// Scattered single hot pixels, the kind a sensor produces at night.
	for y := 10; y < height; y += 40 {
		for x := 10; x < width; x += 40 {
			noisy.SetUCharAt(y, x, 255)
		}
	}

	d.Score(clean)
	assert.Equal(t, 0, d.Score(noisy))
}

func TestColorFramesAreConverted(t *testing.T) {
	d := newDetector(t)

	bgr := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 60, 90, 0), height, width, gocv.MatTypeCV8UC3)
	defer bgr.Close()

	assert.Equal(t, 0, d.Score(bgr))
	assert.Equal(t, 0, d.Score(bgr))
}

func TestResetReseeds(t *testing.T) {
	d := newDetector(t)

	empty := scene(t, 50, image.Rectangle{})
	defer empty.Close()
	vehicle := scene(t, 50, image.Rect(0, 0, 320, 240))
	defer vehicle.Close()

	d.Score(empty)
	d.Reset()
	assert.False(t, d.Initialized())
	assert.Equal(t, 0, d.Score(vehicle), "first frame after reset seeds the background")
}

func TestBackgroundCopy(t *testing.T) {
	d := newDetector(t)

	bg := d.Background()
	assert.True(t, bg.Empty())
	bg.Close()

	frame := scene(t, 77, image.Rectangle{})
	defer frame.Close()
	d.Score(frame)

	bg = d.Background()
	defer bg.Close()
	assert.Equal(t, width, bg.Cols())
	assert.Equal(t, uint8(77), bg.GetUCharAt(240, 320))
}

func TestEmptyFrame(t *testing.T) {
	d := newDetector(t)
	empty := gocv.NewMat()
	defer empty.Close()

	assert.Equal(t, 0, d.Score(empty))
	assert.False(t, d.Initialized())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"even kernel", Config{BlurKernel: 20, Alpha: 0.5, PixelThreshold: 25}, true},
		{"zero kernel", Config{BlurKernel: 0, Alpha: 0.5, PixelThreshold: 25}, true},
		{"zero alpha", Config{BlurKernel: 21, Alpha: 0, PixelThreshold: 25}, true},
		{"alpha above one", Config{BlurKernel: 21, Alpha: 1.5, PixelThreshold: 25}, true},
		{"threshold too high", Config{BlurKernel: 21, Alpha: 0.5, PixelThreshold: 300}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
				_, newErr := New(tc.cfg)
				assert.Error(t, newErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
