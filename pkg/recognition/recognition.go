// Package recognition wraps the plate-recognition engine.
//
// The engine is an external process (openalpr's `alpr` CLI) that prints a
// JSON document with zero or more plate candidates for an image. A call
// either succeeds with a (possibly empty) candidate list or fails with a
// *RecognitionError; callers treat both "no candidates" and failure as
// "nothing to publish" but log them differently.
package recognition

import (
	"context"

	"github.com/teslashibe/go-lpr/pkg/capture"
)

// Candidate is a single plate reading.
type Candidate struct {
	Plate      string  `json:"plate"`
	Confidence float64 `json:"confidence"` // 0-100
}

// Recognizer is the interface for plate-recognition backends.
type Recognizer interface {
	// Recognize reads plates in frame. An empty slice with a nil error
	// means the engine ran and found nothing.
	Recognize(ctx context.Context, frame *capture.Frame) ([]Candidate, error)
}

// SelectBest picks the highest-confidence candidate. The first candidate
// wins ties. Returns nil for an empty list.
func SelectBest(cands []Candidate) *Candidate {
	if len(cands) == 0 {
		return nil
	}

	best := &cands[0]
	for i := 1; i < len(cands); i++ {
		if cands[i].Confidence > best.Confidence {
			best = &cands[i]
		}
	}
	return best
}
