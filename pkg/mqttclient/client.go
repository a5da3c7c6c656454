package mqttclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-lpr/internal/log"
)

// Sentinel errors for transport failures.
var (
	// ErrNotConnected is returned when publishing without a broker connection.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrPublishTimeout is returned when the broker did not acknowledge in time.
	ErrPublishTimeout = errors.New("mqtt: publish timed out")

	// ErrConnect is returned when the broker refused or could not be reached.
	ErrConnect = errors.New("mqtt: connect failed")
)

// quiesce is how long Close waits for in-flight work, in milliseconds.
const quiesce = 250

// Client provides a high-level interface to the MQTT broker.
// It is created once at startup and shared by every publisher.
type Client struct {
	cfg    Config
	logger *slog.Logger
	topics *Topics

	mu     sync.RWMutex
	conn   mqtt.Client
	closed bool

	// Stats
	messagesSent    atomic.Int64
	publishFailures atomic.Int64
	connectionsLost atomic.Int64
	reconnectCount  atomic.Int64
}

// New creates a new MQTT client.
// Call Connect() or ConnectWithRetry() to establish the session.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		logger: log.Or(logger, "mqtt"),
		topics: NewTopics(cfg.Prefix),
	}
	c.conn = mqtt.NewClient(c.Options())
	return c, nil
}

// NewWithConn wraps an existing paho client. Used by tests and by callers
// that need custom paho options.
func NewWithConn(cfg Config, conn mqtt.Client, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		cfg:    cfg,
		logger: log.Or(logger, "mqtt"),
		topics: NewTopics(cfg.Prefix),
		conn:   conn,
	}, nil
}

// Options returns the paho options derived from the config.
func (c *Client) Options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.Broker()).
		SetClientID(c.cfg.ClientID).
		SetKeepAlive(c.cfg.KeepAlive).
		SetConnectTimeout(c.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.logger.Info("connected to broker", "broker", c.cfg.Broker(), "client_id", c.cfg.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.connectionsLost.Add(1)
		c.logger.Warn("broker connection lost", "error", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.reconnectCount.Add(1)
		c.logger.Info("reconnecting to broker", "broker", c.cfg.Broker())
	})

	return opts
}

// Connect establishes the broker session.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.RLock()
	conn, closed := c.conn, c.closed
	c.mu.RUnlock()

	if closed {
		return io.ErrClosedPipe
	}
	if conn.IsConnected() {
		return nil
	}

	c.logger.Info("connecting to broker", "broker", c.cfg.Broker())

	token := conn.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnect, err)
	}
	return nil
}

// ConnectWithRetry connects with retry on failure, up to
// MaxReconnectAttempts attempts.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	attempts := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, io.ErrClosedPipe) {
			return err
		}

		attempts++
		if c.cfg.MaxReconnectAttempts > 0 && attempts >= c.cfg.MaxReconnectAttempts {
			return fmt.Errorf("max connect attempts (%d) reached: %w", c.cfg.MaxReconnectAttempts, err)
		}

		c.logger.Warn("broker connection failed, retrying",
			"error", err,
			"attempt", attempts,
			"retry_in", c.cfg.ReconnectInterval,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectInterval):
		}
	}
}

// Topics returns the topics helper.
func (c *Client) Topics() *Topics {
	return c.topics
}

// IsConnected returns true if the client has a live broker session.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.closed && c.conn.IsConnected()
}

// Publish sends payload to topic once. It waits at most PublishTimeout
// for the broker.
func (c *Client) Publish(topic string, payload []byte) error {
	return c.publish(topic, payload, false)
}

// PublishRetained sends payload as the topic's retained message.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.publish(topic, payload, true)
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	c.mu.RLock()
	conn, closed := c.conn, c.closed
	c.mu.RUnlock()

	if closed || !conn.IsConnected() {
		c.publishFailures.Add(1)
		return fmt.Errorf("publish to %s: %w", topic, ErrNotConnected)
	}

	token := conn.Publish(topic, c.cfg.QoS, retained, payload)
	if !token.WaitTimeout(c.cfg.PublishTimeout) {
		c.publishFailures.Add(1)
		return fmt.Errorf("publish to %s: %w", topic, ErrPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.publishFailures.Add(1)
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	c.messagesSent.Add(1)
	return nil
}

// Close disconnects from the broker.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if c.conn.IsConnectionOpen() {
		c.conn.Disconnect(quiesce)
	}

	c.logger.Info("mqtt client closed")
	return nil
}

// Stats returns client statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		Connected:       c.IsConnected(),
		MessagesSent:    c.messagesSent.Load(),
		PublishFailures: c.publishFailures.Load(),
		ConnectionsLost: c.connectionsLost.Load(),
		ReconnectCount:  c.reconnectCount.Load(),
	}
}

// ClientStats contains client statistics.
type ClientStats struct {
	Connected       bool  `json:"connected"`
	MessagesSent    int64 `json:"messages_sent"`
	PublishFailures int64 `json:"publish_failures"`
	ConnectionsLost int64 `json:"connections_lost"`
	ReconnectCount  int64 `json:"reconnect_count"`
}
