// Package capture provides the frame source for the LPR agent.
// A frame is requested from an external still-capture binary (rpicam-still on
// the Raspberry Pi) which writes a JPEG to a well-known path; the file is then
// decoded as a grayscale image.
package capture

import (
	"fmt"
	"strconv"
	"time"
)

// Defaults for the Raspberry Pi camera module.
const (
	DefaultCommand = "rpicam-still"
	DefaultPath    = "/dev/shm/plate_capture.jpg"
	DefaultWidth   = 640
	DefaultHeight  = 480
	DefaultTimeout = 3 * time.Second
)

// Config holds capture parameters.
type Config struct {
	// Command is the still-capture binary.
	Command string `yaml:"command" json:"command"`

	// Path is where the binary writes the JPEG. A tmpfs path keeps the
	// SD card out of the hot loop.
	Path string `yaml:"path" json:"path"`

	// Resolution of the captured still.
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// Orientation correction for an upside-down mount.
	VFlip bool `yaml:"vflip" json:"vflip"`
	HFlip bool `yaml:"hflip" json:"hflip"`

	// Timeout bounds a single capture invocation.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns the configuration used at the access point.
func DefaultConfig() Config {
	return Config{
		Command: DefaultCommand,
		Path:    DefaultPath,
		Width:   DefaultWidth,
		Height:  DefaultHeight,
		VFlip:   true,
		HFlip:   true,
		Timeout: DefaultTimeout,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("capture command is required")
	}
	if c.Path == "" {
		return fmt.Errorf("capture path is required")
	}
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("capture size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("capture timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// Args returns the arguments passed to the capture binary: a single
// immediate shot without preview.
func (c *Config) Args() []string {
	args := []string{
		"-t", "1",
		"-o", c.Path,
		"--width", strconv.Itoa(c.Width),
		"--height", strconv.Itoa(c.Height),
		"--immediate",
		"--nopreview",
	}
	if c.VFlip {
		args = append(args, "--vflip")
	}
	if c.HFlip {
		args = append(args, "--hflip")
	}
	return args
}
