// Package web provides the read-only status dashboard API for the LPR agent.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/gate"
	"github.com/teslashibe/go-lpr/pkg/hub"
	"github.com/teslashibe/go-lpr/pkg/mqttclient"
	"github.com/teslashibe/go-lpr/pkg/snapshot"
)

// ErrClosed is returned by Serve after Shutdown.
var ErrClosed = errors.New("web: server closed")

// Config holds dashboard settings.
type Config struct {
	// Addr is the listen address, e.g. ":8080". Empty disables the server.
	Addr string `yaml:"addr" json:"addr"`

	// LogLimit is the most log entries /api/logs returns.
	LogLimit int `yaml:"log_limit" json:"log_limit"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig returns the default dashboard settings.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		LogLimit:        200,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.LogLimit <= 0 {
		return fmt.Errorf("log limit must be positive, got %d", c.LogLimit)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got %v", c.ShutdownTimeout)
	}
	return nil
}

// StatusProvider exposes the control loop's read-only state.
// *gate.Loop implements it.
type StatusProvider interface {
	Latest() gate.LatestResult
	State() gate.State
	Stats() gate.Stats
}

// BrokerStatus exposes the transport's state. *mqttclient.Client implements it.
type BrokerStatus interface {
	Stats() mqttclient.ClientStats
}

// SnapshotProvider exposes the latest thumbnail. *snapshot.Encoder implements it.
type SnapshotProvider interface {
	Latest() *snapshot.Snapshot
}

// Deps are the data sources behind the dashboard.
type Deps struct {
	Status StatusProvider

	// Optional.
	Broker    BrokerStatus
	Logs      *log.Ring
	Snapshots SnapshotProvider

	// Hubs created by the caller, e.g. so a snapshot encoder can hold the
	// camera hub before the server exists. Created here when nil.
	StatusHub *hub.Hub
	CameraHub *hub.Hub
}

// StatusView is the status document served over HTTP and websockets.
type StatusView struct {
	Plate     string `json:"plate"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
	State     string `json:"state"`
}

// Server is the web dashboard server
type Server struct {
	cfg    Config
	app    *fiber.App
	deps   Deps
	logger *slog.Logger

	started time.Time

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	cameraHub *hub.Hub

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// NewServer creates a new dashboard server.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid web config: %w", err)
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status provider is required")
	}

	logger = log.Or(logger, "web")
	if deps.StatusHub == nil {
		deps.StatusHub = hub.New("status", hub.WithLogger(logger))
	}
	if deps.CameraHub == nil {
		deps.CameraHub = hub.New("camera", hub.WithRetain(), hub.WithLogger(logger))
	}

	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		started:   time.Now(),
		statusHub: deps.StatusHub,
		cameraHub: deps.CameraHub,
	}

	app := fiber.New(fiber.Config{
		AppName:               "LPR Dashboard",
		DisableStartupMessage: true,
	})

	// CORS for dashboards served from elsewhere
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/logs", s.handleGetLogs)
	api.Get("/snapshot", s.handleSnapshot)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve starts the hubs and serves on ln until Shutdown is called.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.startHubs(ctx) {
		ln.Close()
		return ErrClosed
	}

	s.logger.Info("web dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// StartAsync starts the hubs, then serves in a goroutine. A Shutdown
// that races the listener still stops the hubs.
func (s *Server) StartAsync(ctx context.Context) {
	if !s.startHubs(ctx) {
		return
	}
	go func() {
		if err := s.Start(ctx); err != nil && !errors.Is(err, ErrClosed) {
			s.logger.Error("web server error", "error", err)
		}
	}()
}

// startHubs runs the hubs once under a context that Shutdown cancels.
// It reports false after Shutdown.
func (s *Server) startHubs(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	if s.cancel == nil {
		ctx, s.cancel = context.WithCancel(ctx)
		go s.statusHub.Run(ctx)
		go s.cameraHub.Run(ctx)
	}
	return true
}

// PublishStatus broadcasts r to status websocket clients.
// It matches the signature of gate.Loop.OnStatus.
func (s *Server) PublishStatus(r gate.LatestResult) {
	if err := s.statusHub.BroadcastJSON(s.view(r)); err != nil {
		s.logger.Warn("status broadcast failed", "error", err)
	}
}

// CameraHub returns the hub that carries thumbnails.
func (s *Server) CameraHub() *hub.Hub {
	return s.cameraHub
}

// StatusHub returns the hub that carries status updates.
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Shutdown gracefully stops the web server and its hubs.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	return s.app.ShutdownWithTimeout(s.cfg.ShutdownTimeout)
}

func (s *Server) view(r gate.LatestResult) StatusView {
	return StatusView{
		Plate:     r.Plate,
		Timestamp: r.Timestamp,
		Status:    r.Status,
		State:     s.deps.Status.State().String(),
	}
}
