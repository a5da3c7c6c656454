// Package policy decides whether a recognized plate is published.
package policy

import (
	"fmt"

	"github.com/teslashibe/go-lpr/pkg/recognition"
)

// Default thresholds.
const (
	DefaultMotionThreshold     = 500
	DefaultConfidenceThreshold = 75.0
)

// Action is the outcome of a decision.
type Action int

const (
	// Reject means nothing is published.
	Reject Action = iota
	// Publish means the plate is sent to the transport.
	Publish
)

// String returns the action name.
func (a Action) String() string {
	if a == Publish {
		return "publish"
	}
	return "reject"
}

// Reasons attached to a Reject.
const (
	ReasonBelowMotion   = "below motion threshold"
	ReasonNoCandidate   = "no candidate"
	ReasonLowConfidence = "low confidence"
)

// Decision is the result of Decide.
type Decision struct {
	Action Action
	Plate  string
	Reason string
}

// Policy holds the tunable gates.
type Policy struct {
	// MotionThreshold is the motion score that must be exceeded before
	// recognition runs.
	MotionThreshold int `yaml:"motion_threshold" json:"motion_threshold"`

	// ConfidenceThreshold is the confidence (0-100) a plate must exceed
	// to be published. The comparison is strict.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
}

// Default returns the policy used at the gate.
func Default() Policy {
	return Policy{
		MotionThreshold:     DefaultMotionThreshold,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// Validate checks the thresholds.
func (p *Policy) Validate() error {
	if p.MotionThreshold < 0 {
		return fmt.Errorf("motion threshold must not be negative, got %d", p.MotionThreshold)
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 100 {
		return fmt.Errorf("confidence threshold must be in [0, 100], got %v", p.ConfidenceThreshold)
	}
	return nil
}

// Triggered reports whether score is enough motion to run recognition.
func (p Policy) Triggered(score int) bool {
	return score > p.MotionThreshold
}

// Decide applies the gates to a motion score and the best candidate.
func (p Policy) Decide(score int, best *recognition.Candidate) Decision {
	switch {
	case !p.Triggered(score):
		return Decision{Action: Reject, Reason: ReasonBelowMotion}
	case best == nil:
		return Decision{Action: Reject, Reason: ReasonNoCandidate}
	case best.Confidence <= p.ConfidenceThreshold:
		return Decision{Action: Reject, Plate: best.Plate, Reason: ReasonLowConfidence}
	default:
		return Decision{Action: Publish, Plate: best.Plate}
	}
}
