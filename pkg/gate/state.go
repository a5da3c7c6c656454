package gate

import (
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-lpr/pkg/recognition"
)

// State is the gating state.
type State int

const (
	// Idle means a trigger will run recognition.
	Idle State = iota
	// Cooldown means triggers are ignored until the deadline passes.
	Cooldown
)

// String returns the state name.
func (s State) String() string {
	if s == Cooldown {
		return "cooldown"
	}
	return "idle"
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status values shown in LatestResult.
const (
	StatusIdle              = "Idle"
	StatusPublished         = "Published"
	StatusPublishFailed     = "Publish failed"
	StatusRejected          = "Rejected"
	StatusCaptureFailed     = "Capture failed"
	StatusRecognitionFailed = "Recognition failed"
)

// TimestampLayout formats LatestResult timestamps (HH:MM:SS).
const TimestampLayout = "15:04:05"

// LatestResult is the read-only view of the last notable outcome.
type LatestResult struct {
	Plate     string `json:"plate"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status"`
}

// InitialResult is the value before anything has happened.
func InitialResult() LatestResult {
	return LatestResult{Plate: "Waiting...", Timestamp: "-", Status: StatusIdle}
}

// Outcome classifies a cycle.
type Outcome string

const (
	OutcomeQuiet         Outcome = "quiet"
	OutcomeSuppressed    Outcome = "suppressed"
	OutcomeRejected      Outcome = "rejected"
	OutcomePublished     Outcome = "published"
	OutcomeCaptureFailed Outcome = "capture_failed"
	OutcomeCancelled     Outcome = "cancelled"
)

// PublishEvent is an accepted plate handed to the publisher.
type PublishEvent struct {
	ID         string    `json:"id"`
	Plate      string    `json:"plate"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

func newPublishEvent(c recognition.Candidate, at time.Time) *PublishEvent {
	return &PublishEvent{
		ID:         uuid.NewString(),
		Plate:      c.Plate,
		Confidence: c.Confidence,
		Timestamp:  at,
	}
}

// CycleResult describes what one cycle did.
type CycleResult struct {
	Cycle     uint64                 `json:"cycle"`
	Outcome   Outcome                `json:"outcome"`
	Score     int                    `json:"score"`
	State     State                  `json:"state"`
	Candidate *recognition.Candidate `json:"candidate,omitempty"`
	Event     *PublishEvent          `json:"event,omitempty"`
	Reason    string                 `json:"reason,omitempty"`
	Err       error                  `json:"-"`
}

// Stats contains loop counters.
type Stats struct {
	Cycles              int64  `json:"cycles"`
	CaptureFailures     int64  `json:"capture_failures"`
	RecognitionCalls    int64  `json:"recognition_calls"`
	RecognitionFailures int64  `json:"recognition_failures"`
	Rejected            int64  `json:"rejected"`
	Published           int64  `json:"published"`
	PublishFailures     int64  `json:"publish_failures"`
	Suppressed          int64  `json:"suppressed"`
	LastScore           int64  `json:"last_score"`
	State               string `json:"state"`
}
