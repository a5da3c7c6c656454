// Package config loads the LPR agent configuration.
//
// Values are resolved in order: built-in defaults, the YAML file,
// environment variables, then command-line flags applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-lpr/pkg/capture"
	"github.com/teslashibe/go-lpr/pkg/gate"
	"github.com/teslashibe/go-lpr/pkg/motion"
	"github.com/teslashibe/go-lpr/pkg/mqttclient"
	"github.com/teslashibe/go-lpr/pkg/policy"
	"github.com/teslashibe/go-lpr/pkg/recognition"
	"github.com/teslashibe/go-lpr/pkg/snapshot"
	"github.com/teslashibe/go-lpr/pkg/web"
)

// DefaultPath is where the agent looks for its config file.
const DefaultPath = "/etc/lpr/config.yaml"

// Config is the complete agent configuration.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level"`

	Capture     capture.Config     `yaml:"capture" json:"capture"`
	Motion      motion.Config      `yaml:"motion" json:"motion"`
	Recognition recognition.Config `yaml:"recognition" json:"recognition"`
	Policy      policy.Policy      `yaml:"policy" json:"policy"`
	Gate        gate.Config        `yaml:"gate" json:"gate"`
	MQTT        mqttclient.Config  `yaml:"mqtt" json:"mqtt"`
	Web         web.Config         `yaml:"web" json:"web"`
	Snapshot    snapshot.Config    `yaml:"snapshot" json:"snapshot"`
}

// ConfigError reports an invalid or unparseable setting.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel:    "info",
		Capture:     capture.DefaultConfig(),
		Motion:      motion.DefaultConfig(),
		Recognition: recognition.DefaultConfig(),
		Policy:      policy.Default(),
		Gate:        gate.DefaultConfig(),
		MQTT:        mqttclient.DefaultConfig(),
		Web:         web.DefaultConfig(),
		Snapshot:    snapshot.DefaultConfig(),
	}
}

// Load returns the defaults overlaid with the YAML file at path.
// A missing file, or an empty path, yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, &ConfigError{Field: "file", Err: err}
	}

	if err := Decode(bytes.NewReader(data), &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Decode overlays YAML from r onto cfg. Unknown keys are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return &ConfigError{Field: "file", Err: err}
	}
	return nil
}

// Resolve fills settings derived from others.
func (c *Config) Resolve() {
	if c.Gate.Topic == "" {
		c.Gate.Topic = mqttclient.NewTopics(c.MQTT.Prefix).LicensePlate()
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	checks := []struct {
		field string
		fn    func() error
	}{
		{"capture", c.Capture.Validate},
		{"motion", c.Motion.Validate},
		{"recognition", c.Recognition.Validate},
		{"policy", c.Policy.Validate},
		{"gate", c.Gate.Validate},
		{"mqtt", c.MQTT.Validate},
		{"web", c.Web.Validate},
		{"snapshot", c.Snapshot.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			return &ConfigError{Field: check.field, Err: err}
		}
	}
	return nil
}
