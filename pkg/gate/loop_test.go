package gate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-lpr/internal/log"
	"github.com/teslashibe/go-lpr/pkg/capture"
	"github.com/teslashibe/go-lpr/pkg/policy"
	"github.com/teslashibe/go-lpr/pkg/recognition"
)

const plateTopic = "parking/access/licensePlate"

var start = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

// scriptedScorer returns scores in order, then 0.
type scriptedScorer struct {
	scores []int
	calls  int
}

func (s *scriptedScorer) Score(gocv.Mat) int {
	i := s.calls
	s.calls++
	if i < len(s.scores) {
		return s.scores[i]
	}
	return 0
}

type recordingPublisher struct {
	mu       sync.Mutex
	err      error
	topics   []string
	payloads []string
}

func (p *recordingPublisher) Publish(topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, string(payload))
	return p.err
}

type recordingSink struct {
	scores []int
}

func (s *recordingSink) Snapshot(frame *capture.Frame, score int) {
	s.scores = append(s.scores, score)
}

type fixture struct {
	loop   *Loop
	clock  *clockwork.FakeClock
	scorer *scriptedScorer
	rec    *recognition.Mock
	pub    *recordingPublisher
	src    *capture.Mock
	sink   *recordingSink
}

func newFixture(t *testing.T, cooldown time.Duration, scores []int, rec *recognition.Mock) *fixture {
	t.Helper()
	f := &fixture{
		clock:  clockwork.NewFakeClockAt(start),
		scorer: &scriptedScorer{scores: scores},
		rec:    rec,
		pub:    &recordingPublisher{},
		src:    capture.NewMock(),
		sink:   &recordingSink{},
	}

	cfg := DefaultConfig()
	cfg.Topic = plateTopic
	cfg.Cooldown = cooldown

	loop, err := New(cfg, policy.Default(), Deps{
		Source:     f.src,
		Motion:     f.scorer,
		Recognizer: f.rec,
		Publisher:  f.pub,
		Clock:      f.clock,
		Snapshots:  f.sink,
		Logger:     log.Discard(),
	})
	require.NoError(t, err)
	f.loop = loop
	return f
}

// step runs one cycle and then advances the clock by one second.
func (f *fixture) step() CycleResult {
	res := f.loop.Step(context.Background())
	f.clock.Advance(time.Second)
	return res
}

func TestInitialResult(t *testing.T) {
	f := newFixture(t, time.Second, nil, recognition.NewMock())
	assert.Equal(t, LatestResult{Plate: "Waiting...", Timestamp: "-", Status: "Idle"}, f.loop.Latest())
	assert.Equal(t, Idle, f.loop.State())
}

func TestCooldownScenario(t *testing.T) {
	f := newFixture(t, 2*time.Second, []int{0, 600, 600, 600, 600},
		recognition.WithCandidates(recognition.Candidate{Plate: "MAB1234", Confidence: 80}))

	want := []Outcome{
		OutcomeQuiet,
		OutcomePublished,
		OutcomeSuppressed,
		OutcomeSuppressed,
		OutcomePublished,
	}

	var got []Outcome
	for range want {
		got = append(got, f.step().Outcome)
	}

	assert.Equal(t, want, got)
	assert.Equal(t, 2, f.rec.Calls())
	assert.Equal(t, []string{"MAB1234", "MAB1234"}, f.pub.payloads)
	assert.Equal(t, []string{plateTopic, plateTopic}, f.pub.topics)
	assert.Equal(t, []int{600, 600}, f.sink.scores)
	assert.Equal(t, 5, f.scorer.calls, "background must be updated during cooldown")

	stats := f.loop.Stats()
	assert.Equal(t, int64(5), stats.Cycles)
	assert.Equal(t, int64(2), stats.Published)
	assert.Equal(t, int64(2), stats.Suppressed)
	assert.Equal(t, "cooldown", stats.State)
}

func TestPublishUpdatesLatest(t *testing.T) {
	f := newFixture(t, 5*time.Second, []int{600},
		recognition.WithCandidates(
			recognition.Candidate{Plate: "LOW1", Confidence: 60},
			recognition.Candidate{Plate: "MAB1234", Confidence: 91.5},
		))

	res := f.loop.Step(context.Background())

	require.Equal(t, OutcomePublished, res.Outcome)
	require.NotNil(t, res.Event)
	assert.Equal(t, "MAB1234", res.Event.Plate)
	assert.Equal(t, 91.5, res.Event.Confidence)
	assert.NotEmpty(t, res.Event.ID)
	assert.Equal(t, start, res.Event.Timestamp)
	assert.Equal(t, Cooldown, res.State)

	assert.Equal(t, LatestResult{Plate: "MAB1234", Timestamp: "08:30:00", Status: StatusPublished}, f.loop.Latest())
}

func TestConfidenceGate(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       Outcome
		wantState  State
	}{
		{"exactly threshold rejected", 75, OutcomeRejected, Idle},
		{"below threshold rejected", 40, OutcomeRejected, Idle},
		{"above threshold published", 76, OutcomePublished, Cooldown},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, time.Second, []int{600},
				recognition.WithCandidates(recognition.Candidate{Plate: "AB12CD", Confidence: tc.confidence}))

			res := f.loop.Step(context.Background())
			assert.Equal(t, tc.want, res.Outcome)
			assert.Equal(t, tc.wantState, res.State)
			assert.Equal(t, tc.wantState, f.loop.State())

			if tc.want == OutcomeRejected {
				assert.Empty(t, f.pub.payloads)
				assert.Equal(t, policy.ReasonLowConfidence, res.Reason)
				assert.Equal(t, StatusRejected, f.loop.Latest().Status)
			} else {
				assert.Equal(t, []string{"AB12CD"}, f.pub.payloads)
			}
		})
	}
}

func TestQuietSceneSkipsRecognition(t *testing.T) {
	f := newFixture(t, time.Second, []int{0, 120, 500},
		recognition.WithCandidates(recognition.Candidate{Plate: "AB12CD", Confidence: 99}))

	for i := 0; i < 3; i++ {
		assert.Equal(t, OutcomeQuiet, f.step().Outcome)
	}
	assert.Equal(t, 0, f.rec.Calls())
	assert.Empty(t, f.sink.scores)
	assert.Equal(t, int64(500), f.loop.Stats().LastScore)
}

func TestCaptureFailureLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t, time.Second, []int{600, 600},
		recognition.WithCandidates(recognition.Candidate{Plate: "AB12CD", Confidence: 90}))

	require.Equal(t, OutcomePublished, f.step().Outcome)

	camErr := &capture.CaptureError{Path: "/dev/shm/plate_capture.jpg", Err: capture.ErrNoImage}
	f.src.CaptureFunc = func(ctx context.Context) (*capture.Frame, error) { return nil, camErr }
	f.clock.Advance(5 * time.Second)

	res := f.step()
	assert.Equal(t, OutcomeCaptureFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, capture.ErrNoImage)
	assert.Equal(t, Cooldown, res.State, "no transition on capture failure")
	assert.Equal(t, Cooldown, f.loop.State())
	assert.Equal(t, 1, f.scorer.calls, "background must not be updated")
	assert.Equal(t, StatusCaptureFailed, f.loop.Latest().Status)
	assert.Equal(t, "AB12CD", f.loop.Latest().Plate)

	f.src.CaptureFunc = nil
	res = f.step()
	assert.Equal(t, OutcomePublished, res.Outcome)
	assert.Equal(t, int64(1), f.loop.Stats().CaptureFailures)
}

func TestCaptureRecoveryRestoresStatus(t *testing.T) {
	f := newFixture(t, time.Second, nil, recognition.NewMock())

	f.src.CaptureFunc = func(ctx context.Context) (*capture.Frame, error) {
		return nil, &capture.CaptureError{Err: capture.ErrTimeout}
	}
	f.step()
	assert.Equal(t, StatusCaptureFailed, f.loop.Latest().Status)

	f.src.CaptureFunc = nil
	f.step()
	assert.Equal(t, InitialResult(), f.loop.Latest())
}

func TestCaptureRecoveryKeepsRejectedStatus(t *testing.T) {
	f := newFixture(t, time.Second, []int{600, 0},
		recognition.WithCandidates(recognition.Candidate{Plate: "AB12CD", Confidence: 40}))

	require.Equal(t, OutcomeRejected, f.step().Outcome)
	require.Equal(t, StatusRejected, f.loop.Latest().Status)

	f.src.CaptureFunc = func(ctx context.Context) (*capture.Frame, error) {
		return nil, &capture.CaptureError{Err: capture.ErrNoImage}
	}
	f.step()
	require.Equal(t, StatusCaptureFailed, f.loop.Latest().Status)

	f.src.CaptureFunc = nil
	assert.Equal(t, OutcomeQuiet, f.step().Outcome)
	assert.Equal(t, StatusRejected, f.loop.Latest().Status)
	assert.Equal(t, "AB12CD", f.loop.Latest().Plate)
}

func TestCancelledCaptureIsNotAFailure(t *testing.T) {
	f := newFixture(t, time.Second, nil, recognition.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	f.src.CaptureFunc = func(ctx context.Context) (*capture.Frame, error) {
		cancel()
		return nil, &capture.CaptureError{Err: ctx.Err()}
	}

	var statuses []string
	f.loop.OnStatus(func(r LatestResult) { statuses = append(statuses, r.Status) })

	res := f.loop.Step(ctx)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, int64(0), f.loop.Stats().CaptureFailures)
	assert.Equal(t, InitialResult(), f.loop.Latest())
	assert.Empty(t, statuses)
}

func TestRecognitionFailureIsRejection(t *testing.T) {
	f := newFixture(t, time.Second, []int{600, 600}, recognition.WithError(recognition.ErrMalformedOutput))

	res := f.step()
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, policy.ReasonNoCandidate, res.Reason)
	assert.ErrorIs(t, res.Err, recognition.ErrMalformedOutput)
	assert.Equal(t, Idle, res.State)
	assert.Equal(t, StatusRecognitionFailed, f.loop.Latest().Status)

	// Still eligible on the next trigger.
	res = f.step()
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, 2, f.rec.Calls())

	stats := f.loop.Stats()
	assert.Equal(t, int64(2), stats.RecognitionFailures)
	assert.Equal(t, int64(2), stats.Rejected)
	assert.Empty(t, f.pub.payloads)
}

func TestNoCandidates(t *testing.T) {
	f := newFixture(t, time.Second, []int{600}, recognition.NewMock())

	res := f.step()
	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, policy.ReasonNoCandidate, res.Reason)
	assert.NoError(t, res.Err)
	assert.Nil(t, res.Candidate)
	assert.Equal(t, InitialResult(), f.loop.Latest())
}

func TestPublishFailureStillCoolsDown(t *testing.T) {
	f := newFixture(t, 2*time.Second, []int{600, 600},
		recognition.WithCandidates(recognition.Candidate{Plate: "AB12CD", Confidence: 90}))
	brokerDown := errors.New("mqtt: not connected")
	f.pub.err = brokerDown

	res := f.step()
	assert.Equal(t, OutcomePublished, res.Outcome)
	assert.ErrorIs(t, res.Err, brokerDown)
	assert.Equal(t, Cooldown, res.State)
	assert.Equal(t, StatusPublishFailed, f.loop.Latest().Status)

	assert.Equal(t, OutcomeSuppressed, f.step().Outcome)

	stats := f.loop.Stats()
	assert.Equal(t, int64(1), stats.PublishFailures)
	assert.Equal(t, int64(0), stats.Published)
}

func TestCooldownExpiryReturnsToIdle(t *testing.T) {
	f := newFixture(t, 2*time.Second, []int{600, 0, 0, 0},
		recognition.WithCandidates(recognition.Candidate{Plate: "AB12CD", Confidence: 90}))

	var statuses []string
	f.loop.OnStatus(func(r LatestResult) { statuses = append(statuses, r.Status) })

	for i := 0; i < 4; i++ {
		f.step()
	}

	assert.Equal(t, Idle, f.loop.State())
	assert.Equal(t, []string{StatusPublished, StatusIdle}, statuses)
	assert.Equal(t, "AB12CD", f.loop.Latest().Plate)
}

func TestOnCycle(t *testing.T) {
	f := newFixture(t, time.Second, []int{0, 0}, recognition.NewMock())

	var cycles []uint64
	f.loop.OnCycle(func(r CycleResult) { cycles = append(cycles, r.Cycle) })

	f.step()
	f.step()
	assert.Equal(t, []uint64{1, 2}, cycles)
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, time.Second, nil, recognition.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	// Wait for the first inter-cycle delay.
	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	require.NoError(t, f.clock.BlockUntilContext(waitCtx, 1))
	assert.ErrorIs(t, f.loop.Run(ctx), ErrRunning)

	f.clock.Advance(DefaultInterval)
	require.Eventually(t, func() bool { return f.loop.Stats().Cycles >= 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewValidation(t *testing.T) {
	valid := Deps{
		Source:     capture.NewMock(),
		Motion:     &scriptedScorer{},
		Recognizer: recognition.NewMock(),
		Publisher:  &recordingPublisher{},
	}
	cfg := DefaultConfig()
	cfg.Topic = plateTopic

	_, err := New(cfg, policy.Default(), valid)
	assert.NoError(t, err)

	noTopic := DefaultConfig()
	_, err = New(noTopic, policy.Default(), valid)
	assert.Error(t, err)

	badPolicy := policy.Default()
	badPolicy.ConfidenceThreshold = 120
	_, err = New(cfg, badPolicy, valid)
	assert.Error(t, err)

	missing := valid
	missing.Publisher = nil
	_, err = New(cfg, policy.Default(), missing)
	assert.Error(t, err)
}
