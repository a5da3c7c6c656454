package web

import (
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/gate"
	"github.com/teslashibe/go-lpr/pkg/hub"
	"github.com/teslashibe/go-lpr/pkg/mqttclient"
)

// StatsView is the document served by /api/stats.
type StatsView struct {
	Loop     gate.Stats              `json:"loop"`
	MQTT     *mqttclient.ClientStats `json:"mqtt,omitempty"`
	Uptime   string                  `json:"uptime"`
	Viewers  int                     `json:"viewers"`
	LogCount int                     `json:"log_count"`
}

// handleHealth reports liveness. It fails while the broker is unreachable.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.deps.Broker != nil && !s.deps.Broker.Stats().Connected {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "degraded",
			"mqtt":   "disconnected",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the latest result and gating state
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.view(s.deps.Status.Latest()))
}

// handleStats returns loop and transport counters
func (s *Server) handleStats(c *fiber.Ctx) error {
	view := StatsView{
		Loop:    s.deps.Status.Stats(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
		Viewers: s.statusHub.ClientCount() + s.cameraHub.ClientCount(),
	}
	if s.deps.Broker != nil {
		st := s.deps.Broker.Stats()
		view.MQTT = &st
	}
	if s.deps.Logs != nil {
		view.LogCount = s.deps.Logs.Len()
	}
	return c.JSON(view)
}

// handleGetLogs returns recent log entries, oldest first
func (s *Server) handleGetLogs(c *fiber.Ctx) error {
	if s.deps.Logs == nil {
		return c.JSON([]log.Entry{})
	}

	limit := c.QueryInt("limit", s.cfg.LogLimit)
	if limit <= 0 || limit > s.cfg.LogLimit {
		limit = s.cfg.LogLimit
	}

	entries := s.deps.Logs.Entries()
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return c.JSON(entries)
}

// handleSnapshot returns the latest thumbnail as JPEG
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	if s.deps.Snapshots == nil {
		return fiber.ErrNotFound
	}
	snap := s.deps.Snapshots.Latest()
	if snap == nil {
		return fiber.ErrNotFound
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set("X-Motion-Score", strconv.Itoa(snap.Score))
	return c.Send(snap.JPEG)
}

// handleStatusWS sends the current status, then every change
func (s *Server) handleStatusWS(c *websocket.Conn) {
	if err := c.WriteJSON(s.view(s.deps.Status.Latest())); err != nil {
		return
	}
	hub.NewClient(s.statusHub, c).Run()
}

// handleCameraWS streams thumbnails of triggering frames
func (s *Server) handleCameraWS(c *websocket.Conn) {
	hub.NewClient(s.cameraHub, c).Run()
}
