// Package snapshot turns frames that triggered recognition into small
// JPEG thumbnails for the dashboard.
package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/gift"

	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/capture"
)

// Config holds thumbnail settings.
type Config struct {
	// Width of the thumbnail in pixels. Height keeps the aspect ratio.
	Width int `yaml:"width" json:"width"`

	// Quality is the JPEG quality, 1-100.
	Quality int `yaml:"quality" json:"quality"`
}

// DefaultConfig returns half-size thumbnails of a 640x480 frame.
func DefaultConfig() Config {
	return Config{Width: 320, Quality: 70}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Width <= 0 {
		return fmt.Errorf("width must be positive, got %d", c.Width)
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("quality must be in 1-100, got %d", c.Quality)
	}
	return nil
}

// Broadcaster fans binary messages out to viewers. *hub.Hub implements it.
type Broadcaster interface {
	BroadcastBinary(data []byte)
}

// Snapshot is an encoded thumbnail.
type Snapshot struct {
	JPEG  []byte
	Score int
	Taken time.Time
}

// Encoder resizes frames and pushes them to a Broadcaster.
type Encoder struct {
	cfg    Config
	filter *gift.GIFT
	out    Broadcaster
	logger *slog.Logger

	mu     sync.RWMutex
	latest *Snapshot

	encoded atomic.Int64
	failed  atomic.Int64
}

// New creates an encoder. out may be nil, in which case thumbnails are
// only kept for Latest.
func New(cfg Config, out Broadcaster, logger *slog.Logger) (*Encoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot config: %w", err)
	}
	return &Encoder{
		cfg:    cfg,
		filter: gift.New(gift.Resize(cfg.Width, 0, gift.LinearResampling)),
		out:    out,
		logger: log.Or(logger, "snapshot"),
	}, nil
}

// Encode resizes img and encodes it as JPEG.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	bounds := e.filter.Bounds(img.Bounds())

	var dst draw.Image
	if _, ok := img.(*image.Gray); ok {
		dst = image.NewGray(bounds)
	} else {
		dst = image.NewRGBA(bounds)
	}
	e.filter.Draw(dst, img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: e.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Snapshot encodes frame and broadcasts it. Failures are logged and
// otherwise ignored; the frame is not retained.
func (e *Encoder) Snapshot(frame *capture.Frame, score int) {
	if frame == nil || frame.Mat.Empty() {
		return
	}

	img, err := frame.Mat.ToImage()
	if err != nil {
		e.failed.Add(1)
		e.logger.Warn("frame conversion failed", "error", err)
		return
	}

	data, err := e.Encode(img)
	if err != nil {
		e.failed.Add(1)
		e.logger.Warn("thumbnail failed", "error", err)
		return
	}
	e.encoded.Add(1)

	taken := frame.CapturedAt
	if taken.IsZero() {
		taken = time.Now()
	}

	e.mu.Lock()
	e.latest = &Snapshot{JPEG: data, Score: score, Taken: taken}
	e.mu.Unlock()

	if e.out != nil {
		e.out.BroadcastBinary(data)
	}
}

// Latest returns the most recent thumbnail, or nil.
func (e *Encoder) Latest() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Stats returns how many thumbnails were encoded and how many failed.
func (e *Encoder) Stats() (encoded, failed int64) {
	return e.encoded.Load(), e.failed.Load()
}
