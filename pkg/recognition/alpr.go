package recognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/capture"
)

// Defaults for the openalpr CLI.
const (
	DefaultCommand = "alpr"
	DefaultRegion  = "eu"
	DefaultTimeout = 10 * time.Second
)

// Config holds recognition engine settings.
type Config struct {
	// Command is the alpr binary.
	Command string `yaml:"command" json:"command"`

	// Region is the plate-format hint passed with -c.
	Region string `yaml:"region" json:"region"`

	// Timeout bounds a single recognition call.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns the European plate configuration.
func DefaultConfig() Config {
	return Config{
		Command: DefaultCommand,
		Region:  DefaultRegion,
		Timeout: DefaultTimeout,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("recognition command is required")
	}
	if c.Region == "" {
		return fmt.Errorf("recognition region is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("recognition timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// Runner executes a command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs the command and collects stdout. Stderr is kept for the
// error message only.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return stdout.Bytes(), fmt.Errorf("%w: %s", err, msg)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

// ALPR runs the openalpr command line tool.
type ALPR struct {
	cfg    Config
	run    Runner
	logger *slog.Logger
}

// NewALPR creates an openalpr recognizer. A nil runner uses ExecRunner.
func NewALPR(cfg Config, run Runner, logger *slog.Logger) (*ALPR, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid recognition config: %w", err)
	}
	if run == nil {
		run = ExecRunner
	}
	return &ALPR{
		cfg:    cfg,
		run:    run,
		logger: log.Or(logger, "recognition"),
	}, nil
}

// Args returns the alpr arguments for the image at path.
func (a *ALPR) Args(path string) []string {
	return []string{"-c", a.cfg.Region, "-j", path}
}

// Recognize runs alpr on the frame's file.
func (a *ALPR) Recognize(ctx context.Context, frame *capture.Frame) ([]Candidate, error) {
	if frame == nil || frame.Path == "" {
		return nil, WrapError("alpr", ErrNoFrame)
	}

	runCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	start := time.Now()
	out, err := a.run(runCtx, a.cfg.Command, a.Args(frame.Path)...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, WrapError("alpr", ErrTimeout)
		}
		return nil, WrapError("alpr", err)
	}

	cands, err := Parse(out)
	if err != nil {
		return nil, WrapError("alpr", err)
	}

	a.logger.Debug("alpr finished",
		"candidates", len(cands),
		"took", time.Since(start),
	)
	return cands, nil
}
