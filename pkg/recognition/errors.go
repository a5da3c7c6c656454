package recognition

import (
	"errors"
	"fmt"
)

// Sentinel errors for recognition failures.
var (
	// ErrMalformedOutput is returned when the engine output is not the
	// expected JSON document.
	ErrMalformedOutput = errors.New("recognition: malformed output")

	// ErrTimeout is returned when the engine did not finish in time.
	ErrTimeout = errors.New("recognition: timed out")

	// ErrNoFrame is returned when there is no image to recognize.
	ErrNoFrame = errors.New("recognition: no frame")
)

// RecognitionError wraps a failed recognition call with the engine name.
type RecognitionError struct {
	Engine string
	Err    error
}

// Error implements the error interface.
func (e *RecognitionError) Error() string {
	return fmt.Sprintf("recognition [%s]: %v", e.Engine, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecognitionError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with engine context.
func WrapError(engine string, err error) error {
	if err == nil {
		return nil
	}
	return &RecognitionError{Engine: engine, Err: err}
}
