// Package motion scores frames against a rolling background model.
//
// Each frame is blurred to suppress sensor noise and compared with an
// exponentially weighted average of past frames. The motion score is the
// number of pixels whose difference from that average exceeds a per-pixel
// threshold. The average adapts to slow lighting drift while a vehicle
// entering the frame still produces a large score.
package motion

import "fmt"

// Config holds motion detection parameters.
type Config struct {
	// BlurKernel is the side of the square Gaussian kernel. Must be odd.
	BlurKernel int `yaml:"blur_kernel" json:"blur_kernel"`

	// Alpha is the weight of the newest frame in the background average.
	Alpha float64 `yaml:"alpha" json:"alpha"`

	// PixelThreshold is the 0-255 difference a pixel must exceed to count.
	PixelThreshold float64 `yaml:"pixel_threshold" json:"pixel_threshold"`
}

// DefaultConfig returns the tuned defaults for a 640x480 gate camera.
func DefaultConfig() Config {
	return Config{
		BlurKernel:     21,
		Alpha:          0.5,
		PixelThreshold: 25,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BlurKernel < 1 || c.BlurKernel%2 == 0 {
		return fmt.Errorf("blur kernel must be a positive odd number, got %d", c.BlurKernel)
	}
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0, 1], got %v", c.Alpha)
	}
	if c.PixelThreshold < 0 || c.PixelThreshold > 255 {
		return fmt.Errorf("pixel threshold must be in [0, 255], got %v", c.PixelThreshold)
	}
	return nil
}
