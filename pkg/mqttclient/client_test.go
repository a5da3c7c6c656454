package mqttclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-lpr/internal/log"
)

// fakeToken is a paho token that is either already complete or never completes.
type fakeToken struct {
	err  error
	done chan struct{}
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

type sent struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeConn implements mqtt.Client without a broker.
type fakeConn struct {
	mu           sync.Mutex
	connected    bool
	connectErrs  []error
	connects     int
	publishErr   error
	hangPublish  bool
	sent         []sent
	disconnected bool
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeConn) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return doneToken(err)
		}
	}
	f.connected = true
	return doneToken(nil)
}

func (f *fakeConn) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeConn) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hangPublish {
		return pendingToken()
	}
	if f.publishErr != nil {
		return doneToken(f.publishErr)
	}
	f.sent = append(f.sent, sent{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken(nil)
}

func (f *fakeConn) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token { return doneToken(nil) }
func (f *fakeConn) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken(nil)
}
func (f *fakeConn) Unsubscribe(...string) mqtt.Token { return doneToken(nil) }
func (f *fakeConn) AddRoute(string, mqtt.MessageHandler) {}
func (f *fakeConn) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReconnectInterval = time.Millisecond
	cfg.PublishTimeout = 50 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, conn *fakeConn) *Client {
	t.Helper()
	c, err := NewWithConn(testConfig(), conn, log.Discard())
	require.NoError(t, err)
	return c
}

func TestOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "192.168.0.100"
	cfg.Username = "gate"
	cfg.Password = "secret"

	c, err := New(cfg, log.Discard())
	require.NoError(t, err)

	opts := c.Options()
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://192.168.0.100:1883", opts.Servers[0].String())
	assert.Equal(t, "alpr-client", opts.ClientID)
	assert.Equal(t, "gate", opts.Username)
	assert.Equal(t, "secret", opts.Password)
	assert.True(t, opts.AutoReconnect)
	assert.False(t, c.IsConnected())
}

func TestConnect(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(t, conn)

	require.NoError(t, c.Connect(context.Background()))
	assert.True(t, c.IsConnected())

	// Already connected is a no-op.
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, conn.connects)
}

func TestConnectRefused(t *testing.T) {
	conn := &fakeConn{connectErrs: []error{errors.New("not authorized")}}
	c := newTestClient(t, conn)

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, ErrConnect)
	assert.False(t, c.IsConnected())
}

func TestConnectWithRetry(t *testing.T) {
	refused := errors.New("connection refused")

	t.Run("succeeds after failures", func(t *testing.T) {
		conn := &fakeConn{connectErrs: []error{refused, refused}}
		c := newTestClient(t, conn)

		require.NoError(t, c.ConnectWithRetry(context.Background()))
		assert.Equal(t, 3, conn.connects)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		conn := &fakeConn{connectErrs: []error{refused, refused, refused, refused, refused, refused}}
		c := newTestClient(t, conn)

		err := c.ConnectWithRetry(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConnect)
		assert.Equal(t, DefaultConfig().MaxReconnectAttempts, conn.connects)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		conn := &fakeConn{connectErrs: []error{refused}}
		c := newTestClient(t, conn)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, c.ConnectWithRetry(ctx), context.Canceled)
	})
}

func TestPublish(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(t, conn)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Publish(c.Topics().LicensePlate(), []byte("MAB1234")))
	require.NoError(t, c.PublishRetained(c.Topics().Status(), []byte(`{"status":"Idle"}`)))

	require.Len(t, conn.sent, 2)
	assert.Equal(t, sent{topic: "parking/access/licensePlate", qos: 0, retained: false, payload: []byte("MAB1234")}, conn.sent[0])
	assert.Equal(t, "parking/access/lpr/status", conn.sent[1].topic)
	assert.True(t, conn.sent[1].retained)

	stats := c.Stats()
	assert.True(t, stats.Connected)
	assert.Equal(t, int64(2), stats.MessagesSent)
	assert.Equal(t, int64(0), stats.PublishFailures)
}

func TestPublishFailures(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		c := newTestClient(t, &fakeConn{})
		assert.ErrorIs(t, c.Publish("t", []byte("x")), ErrNotConnected)
	})

	t.Run("timeout", func(t *testing.T) {
		conn := &fakeConn{hangPublish: true}
		c := newTestClient(t, conn)
		require.NoError(t, c.Connect(context.Background()))
		assert.ErrorIs(t, c.Publish("t", []byte("x")), ErrPublishTimeout)
	})

	t.Run("broker error", func(t *testing.T) {
		brokerErr := errors.New("packet too large")
		conn := &fakeConn{publishErr: brokerErr}
		c := newTestClient(t, conn)
		require.NoError(t, c.Connect(context.Background()))

		err := c.Publish("t", []byte("x"))
		assert.ErrorIs(t, err, brokerErr)
		assert.Equal(t, int64(1), c.Stats().PublishFailures)
	})
}

func TestClose(t *testing.T) {
	conn := &fakeConn{}
	c := newTestClient(t, conn)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, conn.disconnected)
	assert.False(t, c.IsConnected())

	assert.ErrorIs(t, c.Connect(context.Background()), io.ErrClosedPipe)
	assert.ErrorIs(t, c.Publish("t", []byte("x")), ErrNotConnected)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"no host", func(c *Config) { c.Host = "" }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"no client id", func(c *Config) { c.ClientID = "" }, true},
		{"no prefix", func(c *Config) { c.Prefix = "" }, true},
		{"bad qos", func(c *Config) { c.QoS = 3 }, true},
		{"zero publish timeout", func(c *Config) { c.PublishTimeout = 0 }, true},
		{"negative attempts", func(c *Config) { c.MaxReconnectAttempts = -1 }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestTopics(t *testing.T) {
	topics := NewTopics("campus")
	assert.Equal(t, "campus/access/licensePlate", topics.LicensePlate())
	assert.Equal(t, "campus/access/lpr/status", topics.Status())
}
