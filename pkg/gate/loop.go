package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/capture"
	"github.com/teslashibe/go-lpr/pkg/policy"
	"github.com/teslashibe/go-lpr/pkg/recognition"
)

// ErrRunning is returned when Run is called on a loop that is already running.
var ErrRunning = errors.New("gate: loop already running")

// Scorer rates how much a frame differs from the background.
// *motion.Detector implements it.
type Scorer interface {
	Score(frame gocv.Mat) int
}

// Publisher sends a payload to a topic.
// *mqttclient.Client implements it.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// SnapshotSink receives frames that triggered recognition. The frame is
// only valid for the duration of the call.
type SnapshotSink interface {
	Snapshot(frame *capture.Frame, score int)
}

// Deps are the collaborators of a Loop.
type Deps struct {
	Source     capture.Source
	Motion     Scorer
	Recognizer recognition.Recognizer
	Publisher  Publisher

	// Optional.
	Clock     clockwork.Clock
	Snapshots SnapshotSink
	Logger    *slog.Logger
}

// Loop is the control loop. Step and Run must be called from a single
// goroutine; Latest, State and Stats are safe to call from anywhere.
type Loop struct {
	cfg    Config
	policy policy.Policy

	source     capture.Source
	motion     Scorer
	recognizer recognition.Recognizer
	publisher  Publisher
	snapshots  SnapshotSink
	clock      clockwork.Clock
	logger     *slog.Logger

	// Owned by the loop goroutine.
	state    State
	deadline time.Time
	base     string // last status other than capture failed

	mu       sync.RWMutex
	latest   LatestResult
	view     State
	onStatus []func(LatestResult)
	onCycle  []func(CycleResult)

	running atomic.Bool

	cycles              atomic.Int64
	captureFailures     atomic.Int64
	recognitionCalls    atomic.Int64
	recognitionFailures atomic.Int64
	rejected            atomic.Int64
	published           atomic.Int64
	publishFailures     atomic.Int64
	suppressed          atomic.Int64
	lastScore           atomic.Int64
}

// New creates a loop in the Idle state.
func New(cfg Config, pol policy.Policy, deps Deps) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gate config: %w", err)
	}
	if err := pol.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	switch {
	case deps.Source == nil:
		return nil, fmt.Errorf("frame source is required")
	case deps.Motion == nil:
		return nil, fmt.Errorf("motion scorer is required")
	case deps.Recognizer == nil:
		return nil, fmt.Errorf("recognizer is required")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	}

	clk := deps.Clock
	if clk == nil {
		clk = clockwork.NewRealClock()
	}

	return &Loop{
		cfg:        cfg,
		policy:     pol,
		source:     deps.Source,
		motion:     deps.Motion,
		recognizer: deps.Recognizer,
		publisher:  deps.Publisher,
		snapshots:  deps.Snapshots,
		clock:      clk,
		logger:     log.Or(deps.Logger, "gate"),
		state:      Idle,
		base:       StatusIdle,
		latest:     InitialResult(),
		view:       Idle,
	}, nil
}

// OnStatus registers fn to be called from the loop goroutine whenever
// LatestResult changes.
func (l *Loop) OnStatus(fn func(LatestResult)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onStatus = append(l.onStatus, fn)
}

// OnCycle registers fn to be called from the loop goroutine after every cycle.
func (l *Loop) OnCycle(fn func(CycleResult)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onCycle = append(l.onCycle, fn)
}

// Latest returns a copy of the latest result.
func (l *Loop) Latest() LatestResult {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.latest
}

// State returns the current gating state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.view
}

// Stats returns loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Cycles:              l.cycles.Load(),
		CaptureFailures:     l.captureFailures.Load(),
		RecognitionCalls:    l.recognitionCalls.Load(),
		RecognitionFailures: l.recognitionFailures.Load(),
		Rejected:            l.rejected.Load(),
		Published:           l.published.Load(),
		PublishFailures:     l.publishFailures.Load(),
		Suppressed:          l.suppressed.Load(),
		LastScore:           l.lastScore.Load(),
		State:               l.State().String(),
	}
}

// Run executes cycles until ctx is cancelled, waiting Interval between
// them. It returns nil on cancellation.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer l.running.Store(false)

	l.logger.Info("lpr loop started",
		"topic", l.cfg.Topic,
		"motion_threshold", l.policy.MotionThreshold,
		"confidence_threshold", l.policy.ConfidenceThreshold,
		"cooldown", l.cfg.Cooldown,
		"interval", l.cfg.Interval,
	)

	for ctx.Err() == nil {
		l.Step(ctx)

		select {
		case <-ctx.Done():
		case <-l.clock.After(l.cfg.Interval):
		}
	}

	l.logger.Info("lpr loop stopped", "cycles", l.cycles.Load())
	return nil
}

// Step runs exactly one cycle.
func (l *Loop) Step(ctx context.Context) CycleResult {
	res := CycleResult{Cycle: uint64(l.cycles.Add(1))}
	defer func() { l.notifyCycle(res) }()

	frame, err := l.source.Capture(ctx)
	if err != nil && ctx.Err() != nil {
		// Shutting down; a capture cut short is not a camera fault.
		res.Outcome = OutcomeCancelled
		res.State = l.state
		res.Err = ctx.Err()
		return res
	}
	if err != nil {
		l.captureFailures.Add(1)
		l.logger.Warn("capture failed", "cycle", res.Cycle, "error", err)
		l.setStatus(StatusCaptureFailed)
		res.Outcome = OutcomeCaptureFailed
		res.State = l.state
		res.Err = err
		return res
	}
	defer frame.Close()

	now := l.clock.Now()
	if l.state == Cooldown && now.After(l.deadline) {
		l.enter(Idle)
		l.setStatus(StatusIdle)
		l.logger.Debug("cooldown expired", "cycle", res.Cycle)
	} else if l.Latest().Status == StatusCaptureFailed {
		l.setStatus(l.base)
	}

	res.Score = l.motion.Score(frame.Mat)
	l.lastScore.Store(int64(res.Score))

	if l.state == Cooldown {
		l.suppressed.Add(1)
		res.Outcome = OutcomeSuppressed
		res.State = l.state
		return res
	}

	if !l.policy.Triggered(res.Score) {
		res.Outcome = OutcomeQuiet
		res.State = l.state
		return res
	}

	l.logger.Debug("motion detected", "cycle", res.Cycle, "score", res.Score)
	if l.snapshots != nil {
		l.snapshots.Snapshot(frame, res.Score)
	}

	l.recognitionCalls.Add(1)
	cands, err := l.recognizer.Recognize(ctx, frame)
	if err != nil {
		l.recognitionFailures.Add(1)
		l.logger.Warn("recognition failed", "cycle", res.Cycle, "error", err)
		l.setStatus(StatusRecognitionFailed)
		cands = nil
		res.Err = err
	}

	best := recognition.SelectBest(cands)
	res.Candidate = best
	decision := l.policy.Decide(res.Score, best)

	if decision.Action != policy.Publish {
		l.rejected.Add(1)
		res.Outcome = OutcomeRejected
		res.Reason = decision.Reason
		res.State = l.state
		switch {
		case err != nil:
		case best == nil:
			l.logger.Debug("no plate found", "cycle", res.Cycle, "score", res.Score)
		default:
			l.logger.Info("plate rejected",
				"cycle", res.Cycle,
				"plate", best.Plate,
				"confidence", best.Confidence,
				"reason", decision.Reason,
			)
			l.setStatus(StatusRejected)
		}
		return res
	}

	event := newPublishEvent(*best, now)
	res.Event = event
	res.Outcome = OutcomePublished

	status := StatusPublished
	if err := l.publisher.Publish(l.cfg.Topic, []byte(event.Plate)); err != nil {
		l.publishFailures.Add(1)
		l.logger.Error("publish failed",
			"cycle", res.Cycle,
			"event_id", event.ID,
			"plate", event.Plate,
			"error", err,
		)
		status = StatusPublishFailed
		res.Err = err
	} else {
		l.published.Add(1)
		l.logger.Info("plate published",
			"cycle", res.Cycle,
			"event_id", event.ID,
			"plate", event.Plate,
			"confidence", event.Confidence,
			"topic", l.cfg.Topic,
		)
	}

	l.deadline = now.Add(l.cfg.Cooldown)
	l.enter(Cooldown)
	l.setResult(LatestResult{
		Plate:     event.Plate,
		Timestamp: now.Format(TimestampLayout),
		Status:    status,
	})
	res.State = l.state
	return res
}

func (l *Loop) enter(s State) {
	l.state = s
	l.mu.Lock()
	l.view = s
	l.mu.Unlock()
}

func (l *Loop) setStatus(status string) {
	r := l.Latest()
	r.Status = status
	l.setResult(r)
}

func (l *Loop) setResult(r LatestResult) {
	if r.Status != StatusCaptureFailed {
		l.base = r.Status
	}

	l.mu.Lock()
	if l.latest == r {
		l.mu.Unlock()
		return
	}
	l.latest = r
	hooks := l.onStatus
	l.mu.Unlock()

	for _, fn := range hooks {
		fn(r)
	}
}

func (l *Loop) notifyCycle(res CycleResult) {
	l.mu.RLock()
	hooks := l.onCycle
	l.mu.RUnlock()

	for _, fn := range hooks {
		fn(res)
	}
}
