// Package mqttclient provides a high-level wrapper around the paho MQTT
// client for the LPR agent.
//
// This package handles:
//   - Connection management with bounded retry at startup and paho's
//     automatic reconnection afterwards
//   - Publishing recognized plates
//   - Publishing a retained status document for dashboards
package mqttclient

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds MQTT client configuration.
type Config struct {
	// Host and Port of the broker.
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// ClientID identifies this agent to the broker.
	ClientID string `yaml:"client_id" json:"client_id"`

	// Credentials. Both empty means anonymous.
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`

	// Prefix is the topic prefix for all topics.
	// Default: "parking"
	Prefix string `yaml:"prefix" json:"prefix"`

	// QoS for published messages.
	QoS byte `yaml:"qos" json:"qos"`

	// KeepAlive is the MQTT keep-alive interval.
	KeepAlive time.Duration `yaml:"keep_alive" json:"keep_alive"`

	// ConnectTimeout bounds a single connection attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`

	// PublishTimeout bounds how long a publish waits for the broker.
	PublishTimeout time.Duration `yaml:"publish_timeout" json:"publish_timeout"`

	// ReconnectInterval is the pause between startup connection attempts.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`

	// MaxReconnectAttempts is the maximum number of startup connection
	// attempts. 0 means unlimited.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts" json:"max_reconnect_attempts"`

	// PublishStatus enables the retained status document.
	PublishStatus bool `yaml:"publish_status" json:"publish_status"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:                 "localhost",
		Port:                 1883,
		ClientID:             "alpr-client",
		Prefix:               "parking",
		QoS:                  0,
		KeepAlive:            60 * time.Second,
		ConnectTimeout:       10 * time.Second,
		PublishTimeout:       5 * time.Second,
		ReconnectInterval:    2 * time.Second,
		MaxReconnectAttempts: 5,
		PublishStatus:        true,
	}
}

// Broker returns the broker URL.
func (c *Config) Broker() string {
	return "tcp://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1-65535, got %d", c.Port)
	}
	if c.ClientID == "" {
		return fmt.Errorf("client id is required")
	}
	if c.Prefix == "" {
		return fmt.Errorf("prefix is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish timeout must be positive, got %v", c.PublishTimeout)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max reconnect attempts must not be negative, got %d", c.MaxReconnectAttempts)
	}
	return nil
}
