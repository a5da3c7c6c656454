// Package agent wires the LPR components into a running process.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"

	"github.com/teslashibe/go-lpr/internal/config"
	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/capture"
	"github.com/teslashibe/go-lpr/pkg/gate"
	"github.com/teslashibe/go-lpr/pkg/hub"
	"github.com/teslashibe/go-lpr/pkg/motion"
	"github.com/teslashibe/go-lpr/pkg/mqttclient"
	"github.com/teslashibe/go-lpr/pkg/recognition"
	"github.com/teslashibe/go-lpr/pkg/snapshot"
	"github.com/teslashibe/go-lpr/pkg/web"
)

// Overrides replace the hardware-facing collaborators. Zero values use
// rpicam-still, alpr and a real broker connection.
type Overrides struct {
	Source     capture.Source
	Recognizer recognition.Recognizer
	Conn       mqtt.Client
	Clock      clockwork.Clock
}

// App is the LPR agent.
type App struct {
	cfg    config.Config
	ovr    Overrides
	logs   *log.Ring
	logger *slog.Logger

	detector  *motion.Detector
	mqtt      *mqttclient.Client
	reporter  *mqttclient.Reporter
	snapshots *snapshot.Encoder
	web       *web.Server
	loop      *gate.Loop
}

// New validates cfg and returns an uninitialized App. logs may be nil.
func New(cfg config.Config, logs *log.Ring, ovr Overrides) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &App{
		cfg:    cfg,
		ovr:    ovr,
		logs:   logs,
		logger: log.Component("agent"),
	}, nil
}

// Init builds every component and connects to the broker. Failing to
// reach the broker within the configured attempts is an error.
func (a *App) Init(ctx context.Context) error {
	var err error

	a.detector, err = motion.New(a.cfg.Motion)
	if err != nil {
		return err
	}

	if a.ovr.Conn != nil {
		a.mqtt, err = mqttclient.NewWithConn(a.cfg.MQTT, a.ovr.Conn, nil)
	} else {
		a.mqtt, err = mqttclient.New(a.cfg.MQTT, nil)
	}
	if err != nil {
		return err
	}
	if err := a.mqtt.ConnectWithRetry(ctx); err != nil {
		return fmt.Errorf("broker %s: %w", a.cfg.MQTT.Broker(), err)
	}

	source := a.ovr.Source
	if source == nil {
		if source, err = capture.NewRPiCam(a.cfg.Capture, nil, nil); err != nil {
			return err
		}
	}

	recognizer := a.ovr.Recognizer
	if recognizer == nil {
		if recognizer, err = recognition.NewALPR(a.cfg.Recognition, nil, nil); err != nil {
			return err
		}
	}

	var cameraHub *hub.Hub
	var thumbs snapshot.Broadcaster
	if a.cfg.Web.Addr != "" {
		cameraHub = hub.New("camera", hub.WithRetain())
		thumbs = cameraHub
	}
	a.snapshots, err = snapshot.New(a.cfg.Snapshot, thumbs, nil)
	if err != nil {
		return err
	}

	a.loop, err = gate.New(a.cfg.Gate, a.cfg.Policy, gate.Deps{
		Source:     source,
		Motion:     a.detector,
		Recognizer: recognizer,
		Publisher:  a.mqtt,
		Clock:      a.ovr.Clock,
		Snapshots:  a.snapshots,
	})
	if err != nil {
		return err
	}

	if a.cfg.MQTT.PublishStatus {
		a.reporter = mqttclient.NewReporter(a.mqtt, a.mqtt.Topics().Status(), nil)
		a.loop.OnStatus(func(r gate.LatestResult) { a.reporter.Update(r) })
	}

	if a.cfg.Web.Addr != "" {
		a.web, err = web.NewServer(a.cfg.Web, web.Deps{
			Status:    a.loop,
			Broker:    a.mqtt,
			Logs:      a.logs,
			Snapshots: a.snapshots,
			CameraHub: cameraHub,
		}, nil)
		if err != nil {
			return err
		}
		a.loop.OnStatus(a.web.PublishStatus)
	}

	a.logger.Info("agent initialized",
		"broker", a.cfg.MQTT.Broker(),
		"topic", a.cfg.Gate.Topic,
		"web", a.cfg.Web.Addr,
	)
	return nil
}

// Run starts the status surfaces and blocks in the control loop until
// ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.loop == nil {
		return errors.New("agent: Init not called")
	}

	if a.reporter != nil {
		a.reporter.Update(a.loop.Latest())
		go a.reporter.Run(ctx)
	}
	if a.web != nil {
		a.web.StartAsync(ctx)
	}

	return a.loop.Run(ctx)
}

// Loop returns the control loop, or nil before Init.
func (a *App) Loop() *gate.Loop {
	return a.loop
}

// Shutdown releases resources. It is safe to call after a failed Init.
func (a *App) Shutdown() {
	if a.web != nil {
		if err := a.web.Shutdown(); err != nil {
			a.logger.Warn("web shutdown failed", "error", err)
		}
	}
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			a.logger.Warn("detector close failed", "error", err)
		}
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	a.logger.Info("agent stopped")
}
