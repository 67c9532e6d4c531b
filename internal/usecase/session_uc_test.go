package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var scenarioLines = []model.LineValue{1, 0, 2, 1, 3, 2}

func newTestSession(t *testing.T, b *fakeBackend, clock *fakeClock, profile model.ProviderProfile, opts SessionOptions) (*Session, *recordingObserver) {
	t.Helper()
	obs := &recordingObserver{}
	nop := zerolog.Nop()
	s, err := NewSession(model.ModeHexagram, b, profile, clock, obs, opts, &nop)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(s.Close)
	return s, obs
}

func drawAndConfirm(t *testing.T, s *Session) {
	t.Helper()
	if err := s.BeginDraw(); err != nil {
		t.Fatalf("BeginDraw: %v", err)
	}
	if err := s.ConfirmDraw(model.HexagramDraw(model.Hexagram{Lines: scenarioLines})); err != nil {
		t.Fatalf("ConfirmDraw: %v", err)
	}
}

func startPolling(t *testing.T, s *Session) {
	t.Helper()
	drawAndConfirm(t, s)
	if _, err := s.Submit(context.Background(), "Will the harvest be good?", model.Metadata{Gender: "female", Target: "self"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

// settled reports that no status request is outstanding.
func settled(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run == nil || !s.run.poller.InFlight()
}

func waitPolls(t *testing.T, s *Session, b *fakeBackend, n int) {
	t.Helper()
	waitFor(t, fmt.Sprintf("%d status polls", n), func() bool { return b.calls() == n && settled(s) })
}

func waitState(t *testing.T, s *Session, want model.SessionState) {
	t.Helper()
	waitFor(t, "state "+string(want), func() bool { return s.Snapshot().State == want })
}

func cloud() model.ProviderProfile { return model.NewProviderProfile("gemini", model.ProviderCloud) }

func TestSessionCompletesAfterProcessingPolls(t *testing.T) {
	b := &fakeBackend{replies: []statusReply{
		{status: model.JobStatusProcessing},
		{status: model.JobStatusProcessing},
		{status: model.JobStatusProcessing},
		{status: model.JobStatusCompleted, interpretation: "Thunder over the lake."},
	}}
	clock := newFakeClock()
	s, obs := newTestSession(t, b, clock, cloud(), SessionOptions{})
	startPolling(t, s)

	// The first poll is immediate.
	waitPolls(t, s, b, 1)
	for i := 2; i <= 3; i++ {
		if st := s.Snapshot().State; st != model.SessionPolling {
			t.Fatalf("expected polling after %d polls, got %s", i-1, st)
		}
		clock.Advance(2 * time.Second)
		waitPolls(t, s, b, i)
	}
	clock.Advance(2 * time.Second)
	waitState(t, s, model.SessionCompleted)

	snap := s.Snapshot()
	if snap.Message != "Thunder over the lake." || snap.JobStatus != model.JobStatusCompleted {
		t.Fatalf("unexpected terminal snapshot %+v", snap)
	}
	waitFor(t, "timers released", func() bool { return clock.activeTickers() == 0 })

	for i := 0; i < 3; i++ {
		clock.Advance(2 * time.Second)
	}
	if got := b.calls(); got != 4 {
		t.Fatalf("expected no polls after completion, got %d total", got)
	}
	if n := obs.count(model.SessionCompleted); n != 1 {
		t.Fatalf("expected exactly one terminal transition, got %d", n)
	}
	if s.Cancel() {
		t.Fatal("cancel after completion must be a no-op")
	}
	if b.cancelCalls() != 0 {
		t.Fatal("no backend cancel expected after completion")
	}
}

func TestSessionCancelFreezesProgress(t *testing.T) {
	b := &fakeBackend{}
	clock := newFakeClock()
	s, _ := newTestSession(t, b, clock, cloud(), SessionOptions{})
	startPolling(t, s)
	waitPolls(t, s, b, 1)

	clock.Advance(45 * time.Second)
	if !s.Cancel() {
		t.Fatal("expected cancel to apply while polling")
	}

	snap := s.Snapshot()
	if snap.State != model.SessionCancelled {
		t.Fatalf("expected cancelled, got %s", snap.State)
	}
	if snap.Progress != 75 {
		t.Fatalf("expected progress frozen at 75, got %v", snap.Progress)
	}
	if snap.JobID != "" {
		t.Fatalf("expected job reference cleared, got %q", snap.JobID)
	}
	if s.Cancel() {
		t.Fatal("second cancel must be a no-op")
	}

	waitFor(t, "poll timer stopped", func() bool { return clock.activeTickers() == 0 })
	waitFor(t, "backend cancel", func() bool { return b.cancelCalls() == 1 })
	waitFor(t, "cancel acknowledged", func() bool { return !s.Snapshot().Cancelling })

	clock.Advance(30 * time.Second)
	snap = s.Snapshot()
	if snap.State != model.SessionCancelled || snap.Progress != 75 {
		t.Fatalf("cancelled session changed after cancel: %+v", snap)
	}

	if !s.Reset() {
		t.Fatal("expected reset from cancelled")
	}
	if snap := s.Snapshot(); snap.State != model.SessionIdle || snap.Progress != 0 || snap.Draw != nil {
		t.Fatalf("expected clean idle session, got %+v", snap)
	}
}

func TestSessionCancelSucceedsLocallyWhenBackendFails(t *testing.T) {
	b := &fakeBackend{cancelErr: errNetwork}
	clock := newFakeClock()
	s, _ := newTestSession(t, b, clock, cloud(), SessionOptions{})
	startPolling(t, s)
	waitPolls(t, s, b, 1)

	if !s.Cancel() {
		t.Fatal("expected cancel to apply")
	}
	waitFor(t, "backend cancel attempt", func() bool { return b.cancelCalls() == 1 })
	if st := s.Snapshot().State; st != model.SessionCancelled {
		t.Fatalf("expected cancelled despite backend failure, got %s", st)
	}
}

func TestSessionCancelWinsOverInFlightPoll(t *testing.T) {
	gate := make(chan struct{})
	b := &fakeBackend{gate: gate, replies: []statusReply{{status: model.JobStatusCompleted, interpretation: "late"}}}
	clock := newFakeClock()
	s, obs := newTestSession(t, b, clock, cloud(), SessionOptions{})
	startPolling(t, s)

	waitFor(t, "poll in flight", func() bool { return !settled(s) })
	if !s.Cancel() {
		t.Fatal("expected cancel to apply")
	}
	close(gate)
	waitFor(t, "late poll response", func() bool { return b.calls() == 1 })
	time.Sleep(20 * time.Millisecond)

	if st := s.Snapshot().State; st != model.SessionCancelled {
		t.Fatalf("late response must be discarded, state is %s", st)
	}
	if obs.count(model.SessionCompleted) != 0 {
		t.Fatal("completed must never be observed after cancel")
	}
}

func TestSessionHardTimeoutLeavesJobRunning(t *testing.T) {
	b := &fakeBackend{}
	clock := newFakeClock()
	s, _ := newTestSession(t, b, clock, cloud(), SessionOptions{PollInterval: time.Minute})
	startPolling(t, s)
	waitPolls(t, s, b, 1)

	for i := 2; i <= 5; i++ {
		clock.Advance(time.Minute)
		waitPolls(t, s, b, i)
		if st := s.Snapshot().State; st != model.SessionPolling {
			t.Fatalf("expected polling at %d minutes, got %s", i-1, st)
		}
	}
	clock.Advance(time.Minute) // 300s
	waitState(t, s, model.SessionTimedOut)

	snap := s.Snapshot()
	if snap.Message != MsgTimedOut {
		t.Fatalf("expected timeout message, got %q", snap.Message)
	}
	if snap.Progress != 100 {
		t.Fatalf("expected progress capped at 100, got %v", snap.Progress)
	}
	if b.cancelCalls() != 0 {
		t.Fatal("hard timeout must not cancel the backend job")
	}
	waitFor(t, "timers released", func() bool { return clock.activeTickers() == 0 })
}

func TestSessionTransientPollFailure(t *testing.T) {
	b := &fakeBackend{replies: []statusReply{
		{status: model.JobStatusProcessing},
		{err: errNetwork},
		{status: model.JobStatusCompleted, interpretation: "ok"},
	}}
	clock := newFakeClock()
	s, obs := newTestSession(t, b, clock, cloud(), SessionOptions{})
	startPolling(t, s)
	waitPolls(t, s, b, 1)

	clock.Advance(2 * time.Second)
	waitPolls(t, s, b, 2)
	snap := s.Snapshot()
	if snap.State != model.SessionPolling || snap.Message != "" {
		t.Fatalf("transient failure must stay invisible, got %+v", snap)
	}

	clock.Advance(2 * time.Second)
	waitState(t, s, model.SessionCompleted)
	if got := s.Snapshot().Elapsed; got != 4*time.Second {
		t.Fatalf("elapsed clock must not reset on failures, got %s", got)
	}
	if obs.count(model.SessionError) != 0 {
		t.Fatal("no error state expected")
	}
}

func TestSessionBackendJobError(t *testing.T) {
	t.Run("verbatim text", func(t *testing.T) {
		b := &fakeBackend{replies: []statusReply{{status: model.JobStatusError, interpretation: "AI generation failed: quota"}}}
		s, _ := newTestSession(t, b, newFakeClock(), cloud(), SessionOptions{})
		startPolling(t, s)
		waitState(t, s, model.SessionError)
		if msg := s.Snapshot().Message; msg != "AI generation failed: quota" {
			t.Fatalf("expected backend text, got %q", msg)
		}
	})
	t.Run("default text", func(t *testing.T) {
		b := &fakeBackend{replies: []statusReply{{status: model.JobStatusError}}}
		s, _ := newTestSession(t, b, newFakeClock(), cloud(), SessionOptions{})
		startPolling(t, s)
		waitState(t, s, model.SessionError)
		if msg := s.Snapshot().Message; msg != MsgJobFailed {
			t.Fatalf("expected default failure text, got %q", msg)
		}
	})
	t.Run("cancelled elsewhere", func(t *testing.T) {
		b := &fakeBackend{replies: []statusReply{{status: model.JobStatusCancelled}}}
		s, _ := newTestSession(t, b, newFakeClock(), cloud(), SessionOptions{})
		startPolling(t, s)
		waitState(t, s, model.SessionCancelled)
		if msg := s.Snapshot().Message; msg != MsgJobCancelled {
			t.Fatalf("expected cancelled text, got %q", msg)
		}
	})
}

func TestSessionSubmitFailure(t *testing.T) {
	b := &fakeBackend{submitErr: fmt.Errorf("%w: 503 service unavailable", domain.ErrBackendRequest)}
	clock := newFakeClock()
	s, _ := newTestSession(t, b, clock, cloud(), SessionOptions{})
	drawAndConfirm(t, s)

	_, err := s.Submit(context.Background(), "Should I move?", model.Metadata{})
	if !errors.Is(err, domain.ErrBackendRequest) {
		t.Fatalf("expected backend error, got %v", err)
	}
	snap := s.Snapshot()
	if snap.State != model.SessionError || snap.JobID != "" {
		t.Fatalf("expected error state without job, got %+v", snap)
	}
	if clock.activeTickers() != 0 {
		t.Fatal("no timers may start for a failed submission")
	}
	if _, err := s.Submit(context.Background(), "Should I move?", model.Metadata{}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("resubmitting from error must be rejected, got %v", err)
	}
	if len(b.submits) != 1 {
		t.Fatalf("expected exactly one submission, got %d", len(b.submits))
	}
	if !s.Reset() || s.Snapshot().State != model.SessionIdle {
		t.Fatal("expected reset to idle")
	}
}

func TestSessionSubmitValidation(t *testing.T) {
	cases := []struct {
		name     string
		profile  model.ProviderProfile
		question string
		want     error
	}{
		{"empty question", cloud(), "   ", domain.ErrEmptyQuestion},
		{"question too long", cloud(), strings.Repeat("ä", 501), domain.ErrQuestionTooLong},
		{"missing provider", model.ProviderProfile{}, "Is it time?", domain.ErrMissingProvider},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := &fakeBackend{}
			s, _ := newTestSession(t, b, newFakeClock(), c.profile, SessionOptions{})
			drawAndConfirm(t, s)
			if _, err := s.Submit(context.Background(), c.question, model.Metadata{}); !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
			if st := s.Snapshot().State; st != model.SessionAwaitingSubmission {
				t.Fatalf("validation must not change state, got %s", st)
			}
			if len(b.submits) != 0 {
				t.Fatal("nothing may be sent on validation errors")
			}
		})
	}

	t.Run("500 characters is accepted", func(t *testing.T) {
		b := &fakeBackend{}
		s, _ := newTestSession(t, b, newFakeClock(), cloud(), SessionOptions{})
		drawAndConfirm(t, s)
		if _, err := s.Submit(context.Background(), strings.Repeat("ä", 500), model.Metadata{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestSessionOutOfOrderEvents(t *testing.T) {
	b := &fakeBackend{}
	s, obs := newTestSession(t, b, newFakeClock(), cloud(), SessionOptions{})

	if s.Cancel() || s.Reset() {
		t.Fatal("cancel and reset must be no-ops while idle")
	}
	if err := s.ConfirmDraw(model.HexagramDraw(model.Hexagram{Lines: scenarioLines})); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := s.Submit(context.Background(), "q", model.Metadata{}); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := s.BeginDraw(); err != nil {
		t.Fatalf("BeginDraw: %v", err)
	}
	if err := s.BeginDraw(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second BeginDraw to be rejected, got %v", err)
	}
	tarot := model.TarotDraw(model.TarotSpread{Spread: model.SpreadSingle})
	if err := s.ConfirmDraw(tarot); !errors.Is(err, domain.ErrInvalidDraw) {
		t.Fatalf("expected ErrInvalidDraw for a foreign mode, got %v", err)
	}
	if st := s.Snapshot().State; st != model.SessionDrawing {
		t.Fatalf("rejected draw must keep drawing, got %s", st)
	}
	if n := obs.count(model.SessionDrawing); n != 1 {
		t.Fatalf("expected one drawing notification, got %d", n)
	}
}

func TestSessionProgressIsMonotonicAndBounded(t *testing.T) {
	b := &fakeBackend{}
	clock := newFakeClock()
	profile := cloud()
	profile.MaxWait = 5 * time.Second
	s, obs := newTestSession(t, b, clock, profile, SessionOptions{PollInterval: time.Minute})
	startPolling(t, s)
	waitPolls(t, s, b, 1)

	for i := 1; i <= 8; i++ {
		clock.Advance(time.Second)
		waitFor(t, "progress refresh", func() bool { return len(obs.progressValues()) >= i })
	}
	vals := obs.progressValues()
	for i, v := range vals {
		if v < 0 || v > 100 {
			t.Fatalf("progress %v out of bounds", v)
		}
		if i > 0 && v < vals[i-1] {
			t.Fatalf("progress went backwards: %v", vals)
		}
	}
	if vals[len(vals)-1] != 100 {
		t.Fatalf("expected progress to reach 100 past max wait, got %v", vals)
	}
}

func TestSessionCloseReleasesEverything(t *testing.T) {
	b := &fakeBackend{}
	clock := newFakeClock()
	s, _ := newTestSession(t, b, clock, cloud(), SessionOptions{})
	startPolling(t, s)
	waitPolls(t, s, b, 1)

	s.Close()
	if clock.activeTickers() != 0 {
		t.Fatal("timers must be stopped by Close")
	}
	if st := s.Snapshot().State; st != model.SessionIdle {
		t.Fatalf("expected idle after Close, got %s", st)
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done must be closed after Close")
	}
	if b.cancelCalls() != 0 {
		t.Fatal("Close must not cancel the backend job")
	}
	if err := s.BeginDraw(); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("closed session must reject new draws, got %v", err)
	}
}

func TestNewSessionUnknownMode(t *testing.T) {
	nop := zerolog.Nop()
	if _, err := NewSession("runes", &fakeBackend{}, cloud(), nil, nil, SessionOptions{}, &nop); !errors.Is(err, domain.ErrUnknownMode) {
		t.Fatalf("expected ErrUnknownMode, got %v", err)
	}
}
