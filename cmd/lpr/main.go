// lpr - motion-gated license plate recognition for an access-control point.
// Captures stills, runs recognition when the scene changes and publishes
// accepted plates to MQTT.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-lpr/internal/config"
	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/agent"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}

	ring := log.NewRing(cfg.Web.LogLimit)
	log.InitWithRing(cfg.LogLevel, ring)

	app, err := agent.New(cfg, ring, agent.Overrides{})
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Init(ctx); err != nil {
		log.Error("initialization failed", "error", err)
		app.Shutdown()
		os.Exit(1)
	}
	defer app.Shutdown()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
	}
}

// loadConfig resolves defaults, the config file, the environment and
// finally any flags given on the command line.
func loadConfig() (config.Config, error) {
	path := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	debug := flag.Bool("debug", false, "Shorthand for -log-level debug")
	broker := flag.String("broker", "", "MQTT broker host")
	port := flag.Int("port", 0, "MQTT broker port")
	topic := flag.String("topic", "", "Topic for recognized plates")
	webAddr := flag.String("web", "", "Dashboard listen address, empty string disables it")
	motionThreshold := flag.Int("motion-threshold", 0, "Changed pixels needed to run recognition")
	confidence := flag.Float64("confidence", 0, "Confidence a plate must exceed to be published")
	cooldown := flag.Duration("cooldown", 0, "Pause after a publish")
	interval := flag.Duration("interval", 0, "Delay between capture cycles")
	region := flag.String("region", "", "alpr country code")
	flag.Parse()

	cfg, err := config.Load(*path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			cfg.LogLevel = *logLevel
		case "broker":
			cfg.MQTT.Host = *broker
		case "port":
			cfg.MQTT.Port = *port
		case "topic":
			cfg.Gate.Topic = *topic
		case "web":
			cfg.Web.Addr = *webAddr
		case "motion-threshold":
			cfg.Policy.MotionThreshold = *motionThreshold
		case "confidence":
			cfg.Policy.ConfidenceThreshold = *confidence
		case "cooldown":
			cfg.Gate.Cooldown = *cooldown
		case "interval":
			cfg.Gate.Interval = *interval
		case "region":
			cfg.Recognition.Region = *region
		}
	})
	if *debug {
		cfg.LogLevel = "debug"
	}

	cfg.Resolve()
	return cfg, cfg.Validate()
}
