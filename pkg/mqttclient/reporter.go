package mqttclient

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/teslashibe/go-lpr/internal/log"
)

// RetainedPublisher publishes retained messages.
type RetainedPublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Reporter publishes the latest value of a status document as a retained
// message. Update never blocks; if the broker is slow, intermediate values
// are dropped and only the newest one is sent.
type Reporter struct {
	pub     RetainedPublisher
	topic   string
	logger  *slog.Logger
	updates chan []byte
}

// NewReporter creates a status reporter for topic.
func NewReporter(pub RetainedPublisher, topic string, logger *slog.Logger) *Reporter {
	return &Reporter{
		pub:     pub,
		topic:   topic,
		logger:  log.Or(logger, "status-reporter"),
		updates: make(chan []byte, 1),
	}
}

// Update queues v for publishing, replacing any value not yet sent.
func (r *Reporter) Update(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("cannot encode status", "error", err)
		return
	}

	select {
	case r.updates <- data:
		return
	default:
	}

	// Drop the stale value and queue the new one.
	select {
	case <-r.updates:
	default:
	}
	select {
	case r.updates <- data:
	default:
	}
}

// Run publishes queued values until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-r.updates:
			if err := r.pub.PublishRetained(r.topic, data); err != nil {
				r.logger.Warn("status publish failed", "topic", r.topic, "error", err)
			}
		}
	}
}
