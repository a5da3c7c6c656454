// Package gate runs the capture, detect, recognize, publish control loop.
//
// Each cycle captures one still, scores it against the rolling background,
// and, when the scene changed enough and the loop is not cooling down,
// asks the recognizer for plates. An accepted plate is published once and
// the loop then ignores further triggers until the cooldown expires.
package gate

import (
	"fmt"
	"time"
)

// Defaults matching the access point's timing.
const (
	DefaultCooldown = 5 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Config holds control loop timing.
type Config struct {
	// Topic receives published plates. Empty means the caller's default
	// plate topic is filled in before New.
	Topic string `yaml:"topic" json:"topic"`

	// Cooldown is how long triggers are ignored after a publish.
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`

	// Interval is the delay between cycles.
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// DefaultConfig returns the default loop timing.
func DefaultConfig() Config {
	return Config{
		Cooldown: DefaultCooldown,
		Interval: DefaultInterval,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("topic is required")
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative, got %v", c.Cooldown)
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative, got %v", c.Interval)
	}
	return nil
}
