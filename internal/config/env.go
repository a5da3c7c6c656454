package config

import (
	"os"
	"strconv"
	"time"
)

// Environment variables read by ApplyEnv.
const (
	EnvBroker              = "MQTT_BROKER"
	EnvPort                = "MQTT_PORT"
	EnvUser                = "MQTT_USER"
	EnvPass                = "MQTT_PASS"
	EnvTopic               = "MQTT_TOPIC"
	EnvMotionThreshold     = "MOTION_THRESHOLD"
	EnvConfidenceThreshold = "CONFIDENCE_THRESHOLD"
	EnvCooldown            = "COOLDOWN"
	EnvLogLevel            = "LOG_LEVEL"
	EnvWebAddr             = "WEB_ADDR"
)

// ApplyEnv overrides settings from the environment. Unset variables
// leave the current value alone.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvBroker); ok {
		c.MQTT.Host = v
	}
	if v, ok := os.LookupEnv(EnvUser); ok {
		c.MQTT.Username = v
	}
	if v, ok := os.LookupEnv(EnvPass); ok {
		c.MQTT.Password = v
	}
	if v, ok := os.LookupEnv(EnvTopic); ok {
		c.Gate.Topic = v
	}
	if v, ok := os.LookupEnv(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := os.LookupEnv(EnvWebAddr); ok {
		c.Web.Addr = v
	}

	if v, ok := os.LookupEnv(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: EnvPort, Err: err}
		}
		c.MQTT.Port = port
	}
	if v, ok := os.LookupEnv(EnvMotionThreshold); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: EnvMotionThreshold, Err: err}
		}
		c.Policy.MotionThreshold = n
	}
	if v, ok := os.LookupEnv(EnvConfidenceThreshold); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return &ConfigError{Field: EnvConfidenceThreshold, Err: err}
		}
		c.Policy.ConfidenceThreshold = f
	}
	if v, ok := os.LookupEnv(EnvCooldown); ok {
		d, err := ParseDuration(v)
		if err != nil {
			return &ConfigError{Field: EnvCooldown, Err: err}
		}
		c.Gate.Cooldown = d
	}
	return nil
}

// ParseDuration accepts a Go duration ("5s", "1500ms") or a bare number
// of seconds ("5", "0.5").
func ParseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
