package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/teslashibe/go-lpr/internal/log"
)

// Source produces frames on request.
type Source interface {
	// Capture requests one still and returns it decoded, or a *CaptureError.
	Capture(ctx context.Context) (*Frame, error)
}

// Runner executes an external command and waits for it to exit.
type Runner func(ctx context.Context, name string, args ...string) error

// ExecRunner runs the command with its output discarded.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run()
}

// RPiCam captures stills with rpicam-still.
type RPiCam struct {
	cfg    Config
	run    Runner
	logger *slog.Logger
}

// NewRPiCam creates a capture source. A nil runner uses ExecRunner.
func NewRPiCam(cfg Config, run Runner, logger *slog.Logger) (*RPiCam, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if run == nil {
		run = ExecRunner
	}
	return &RPiCam{
		cfg:    cfg,
		run:    run,
		logger: log.Or(logger, "capture"),
	}, nil
}

// Config returns the capture configuration.
func (c *RPiCam) Config() Config {
	return c.cfg
}

// Capture triggers a single shot and decodes the result.
// The previous file is removed first so a failed shot is never mistaken
// for a fresh frame.
func (c *RPiCam) Capture(ctx context.Context) (*Frame, error) {
	if err := os.Remove(c.cfg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Debug("could not remove previous frame", "path", c.cfg.Path, "error", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.run(runCtx, c.cfg.Command, c.cfg.Args()...); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &CaptureError{Path: c.cfg.Path, Err: ErrTimeout}
		}
		if ctx.Err() != nil {
			return nil, &CaptureError{Path: c.cfg.Path, Err: ctx.Err()}
		}
		// rpicam-still sometimes exits non-zero after writing a usable
		// file, so the file check below decides.
		c.logger.Debug("capture command exited with error", "command", c.cfg.Command, "error", err)
	}

	return Load(c.cfg.Path)
}
