// File: internal/usecase/session_uc.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/adapter"
	"divination-ai/internal/infra/metrics"
)

// Messages surfaced through SessionSnapshot.Message.
const (
	MsgTimedOut     = "still processing, check history later"
	MsgJobFailed    = "interpretation failed"
	MsgJobCancelled = "divination was cancelled"
	MsgCancelled    = "cancelled"
)

var errSessionClosed = fmt.Errorf("%w: session closed", domain.ErrInvalidTransition)

// SessionObserver receives snapshots after every change. Calls come from
// several goroutines, never while the session lock is held.
type SessionObserver interface {
	OnState(snap model.SessionSnapshot)
	OnProgress(snap model.SessionSnapshot)
}

type nopObserver struct{}

func (nopObserver) OnState(model.SessionSnapshot)    {}
func (nopObserver) OnProgress(model.SessionSnapshot) {}

type SessionOptions struct {
	PollInterval    time.Duration
	RefreshInterval time.Duration
	CancelTimeout   time.Duration // bounds the best-effort backend cancel
	MaxQuestionLen  int
}

func (o SessionOptions) withDefaults() SessionOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = time.Second
	}
	if o.CancelTimeout <= 0 {
		o.CancelTimeout = 10 * time.Second
	}
	if o.MaxQuestionLen <= 0 {
		o.MaxQuestionLen = DefaultMaxQuestionLen
	}
	return o
}

// Session runs one divination at a time through the session state machine.
// It owns the poll and refresh timers of the job it submitted; they are
// released on every exit from polling and on Close.
type Session struct {
	mode     ModeStrategy
	backend  adapter.JobBackend
	profile  model.ProviderProfile
	clock    Clock
	observer SessionObserver
	opts     SessionOptions
	log      *zerolog.Logger

	mu         sync.Mutex
	state      model.SessionState
	draw       *model.Draw
	job        *model.Job
	message    string
	progress   ProgressTracker
	startedAt  time.Time
	stoppedAt  time.Time
	run        *pollRun
	done       chan struct{}
	submitting bool
	cancelling bool
	closed     bool

	wg sync.WaitGroup
}

// pollRun is the timer scope of one submitted job.
type pollRun struct {
	ctx     context.Context
	cancel  context.CancelFunc
	poller  *JobPoller
	results chan pollResult
	pollT   Ticker
	refresh Ticker
}

type pollResult struct {
	job *model.Job
	err error
}

func NewSession(mode model.Mode, backend adapter.JobBackend, profile model.ProviderProfile, clock Clock, observer SessionObserver, opts SessionOptions, logger *zerolog.Logger) (*Session, error) {
	strategy, err := StrategyFor(mode)
	if err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if observer == nil {
		observer = nopObserver{}
	}
	l := logger.With().Str("component", "Session").Str("mode", string(mode)).Logger()
	done := make(chan struct{})
	close(done)
	return &Session{
		mode:     strategy,
		backend:  backend,
		profile:  profile.WithDefaults(),
		clock:    clock,
		observer: observer,
		opts:     opts.withDefaults(),
		log:      &l,
		state:    model.SessionIdle,
		done:     done,
	}, nil
}

func invalidTransition(state model.SessionState, event model.SessionEvent) error {
	return fmt.Errorf("%w: %s in state %s", domain.ErrInvalidTransition, event, state)
}

// apply runs the state machine and stores the result.
func (s *Session) apply(event model.SessionEvent) bool {
	next, ok := model.Transition(s.state, event)
	if ok {
		s.state = next
	}
	return ok
}

// BeginDraw starts a new draw from idle.
func (s *Session) BeginDraw() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	if !s.apply(model.EventBeginDraw) {
		err := invalidTransition(s.state, model.EventBeginDraw)
		s.mu.Unlock()
		return err
	}
	s.draw = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.observer.OnState(snap)
	return nil
}

// ConfirmDraw fixes the draw that will be submitted. An invalid draw leaves
// the session in drawing.
func (s *Session) ConfirmDraw(d model.Draw) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	if _, ok := model.Transition(s.state, model.EventDrawConfirmed); !ok {
		err := invalidTransition(s.state, model.EventDrawConfirmed)
		s.mu.Unlock()
		return err
	}
	if d.Mode != s.mode.Mode() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s draw for %s session", domain.ErrInvalidDraw, d.Mode, s.mode.Mode())
	}
	if err := d.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.apply(model.EventDrawConfirmed)
	s.draw = &d
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.observer.OnState(snap)
	return nil
}

// Submit sends the confirmed draw once. Validation errors leave the state
// untouched; a backend failure moves the session to error and is not retried.
// On success polling starts immediately.
func (s *Session) Submit(ctx context.Context, question string, meta model.Metadata) (model.Job, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.Job{}, errSessionClosed
	}
	if s.state != model.SessionAwaitingSubmission || s.submitting {
		err := invalidTransition(s.state, model.EventSubmitSucceeded)
		s.mu.Unlock()
		return model.Job{}, err
	}
	if err := s.profile.Validate(); err != nil {
		s.mu.Unlock()
		return model.Job{}, err
	}
	params, err := BuildSubmit(s.mode, question, s.opts.MaxQuestionLen, *s.draw, meta, s.profile.Name)
	if err != nil {
		s.mu.Unlock()
		return model.Job{}, err
	}
	s.submitting = true
	s.mu.Unlock()

	job, err := s.backend.Submit(ctx, params)
	if err == nil && job.ID == "" {
		err = fmt.Errorf("%w: backend returned no job id", domain.ErrBackendRequest)
	}

	s.mu.Lock()
	s.submitting = false
	if s.closed {
		s.mu.Unlock()
		return model.Job{}, errSessionClosed
	}
	if err != nil {
		s.apply(model.EventSubmitFailed)
		s.message = err.Error()
		snap := s.snapshotLocked()
		s.mu.Unlock()

		s.log.Warn().Err(err).Msg("submission failed")
		metrics.IncSessionOutcome(string(s.mode.Mode()), string(model.SessionError))
		s.observer.OnState(snap)
		return model.Job{}, err
	}

	s.apply(model.EventSubmitSucceeded)
	mirror := job
	s.job = &mirror
	s.message = ""
	s.startedAt = s.clock.Now()
	s.stoppedAt = time.Time{}
	s.progress.Reset()
	s.startRunLocked(job.ID)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().Str("job_id", job.ID).Str("provider", s.profile.Name).Msg("job submitted")
	s.observer.OnState(snap)
	return job, nil
}

func (s *Session) startRunLocked(jobID string) {
	ctx, cancel := context.WithCancel(context.Background())
	run := &pollRun{
		ctx:     ctx,
		cancel:  cancel,
		poller:  NewJobPoller(jobID, s.startedAt, s.profile.HardTimeout),
		results: make(chan pollResult, 1),
		pollT:   s.clock.NewTicker(s.opts.PollInterval),
		refresh: s.clock.NewTicker(s.opts.RefreshInterval),
	}
	s.run = run
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop(run)
}

// stopRunLocked ends the timer scope of run. Responses still in flight are
// dropped because run is no longer current.
func (s *Session) stopRunLocked(run *pollRun, now time.Time) {
	run.poller.Stop()
	run.cancel()
	if s.run == run {
		s.run = nil
		s.stoppedAt = now
		close(s.done)
	}
}

func (s *Session) loop(run *pollRun) {
	defer s.wg.Done()
	defer run.pollT.Stop()
	defer run.refresh.Stop()

	s.pollTick(run)
	for {
		select {
		case <-run.ctx.Done():
			return
		case <-run.pollT.C():
			s.pollTick(run)
		case <-run.refresh.C():
			s.refreshTick(run)
		case res := <-run.results:
			s.resolve(run, res)
		}
	}
}

func (s *Session) pollTick(run *pollRun) {
	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		return
	}
	now := s.clock.Now()
	switch run.poller.Tick(now) {
	case PollSkip:
		s.mu.Unlock()
		metrics.IncPollResult("skipped")
	case PollIssue:
		s.wg.Add(1)
		go s.fetch(run)
		s.mu.Unlock()
	case PollTimeout:
		snap := s.timeoutLocked(run, now)
		s.mu.Unlock()
		s.observer.OnState(snap)
	}
}

func (s *Session) fetch(run *pollRun) {
	defer s.wg.Done()
	job, err := s.backend.GetStatus(run.ctx, run.poller.JobID())
	res := pollResult{err: err}
	if err == nil {
		res.job = &job
	}
	select {
	case run.results <- res:
	case <-run.ctx.Done():
		metrics.IncPollResult("discarded")
	}
}

func (s *Session) resolve(run *pollRun, res pollResult) {
	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		metrics.IncPollResult("discarded")
		return
	}
	now := s.clock.Now()
	var snap model.SessionSnapshot
	switch run.poller.Resolve(now, res.job, res.err) {
	case PollIgnored:
		s.mu.Unlock()
		return
	case PollContinue:
		if res.err != nil {
			s.mu.Unlock()
			s.log.Debug().Err(res.err).Str("job_id", run.poller.JobID()).Msg("status poll failed, retrying on next tick")
			metrics.IncPollResult("failed")
			return
		}
		s.job.Status = res.job.Status
		s.mu.Unlock()
		metrics.IncPollResult("ok")
		return
	case PollTerminal:
		metrics.IncPollResult("ok")
		snap = s.finishLocked(run, *res.job, now)
	case PollTimedOut:
		snap = s.timeoutLocked(run, now)
	}
	s.mu.Unlock()
	s.observer.OnState(snap)
}

func (s *Session) refreshTick(run *pollRun) {
	s.mu.Lock()
	if s.run != run {
		s.mu.Unlock()
		return
	}
	s.progress.Update(s.clock.Now().Sub(s.startedAt), s.profile.MaxWait)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.observer.OnProgress(snap)
}

func (s *Session) freezeProgressLocked(now time.Time) {
	s.progress.Update(now.Sub(s.startedAt), s.profile.MaxWait)
	s.progress.Freeze()
}

func (s *Session) finishLocked(run *pollRun, job model.Job, now time.Time) model.SessionSnapshot {
	event, _ := model.JobEvent(job.Status)
	s.apply(event)
	s.freezeProgressLocked(now)
	s.stopRunLocked(run, now)

	s.job = &job
	switch job.Status {
	case model.JobStatusCompleted:
		s.message = job.Interpretation
	case model.JobStatusError:
		s.message = job.Interpretation
		if s.message == "" {
			s.message = MsgJobFailed
		}
	case model.JobStatusCancelled:
		s.message = MsgJobCancelled
	}
	s.log.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Msg("job finished")
	metrics.IncSessionOutcome(string(s.mode.Mode()), string(s.state))
	return s.snapshotLocked()
}

// timeoutLocked gives up on the job locally. The backend job is left running;
// its result shows up in history later.
func (s *Session) timeoutLocked(run *pollRun, now time.Time) model.SessionSnapshot {
	s.apply(model.EventHardTimeout)
	s.freezeProgressLocked(now)
	s.stopRunLocked(run, now)
	s.message = MsgTimedOut
	s.log.Info().Str("job_id", run.poller.JobID()).Dur("hard_timeout", s.profile.HardTimeout).Msg("hard timeout reached, job left running")
	metrics.IncSessionOutcome(string(s.mode.Mode()), string(s.state))
	return s.snapshotLocked()
}

// Cancel stops polling before returning, then notifies the backend in the
// background. It reports false, changing nothing, unless the session is
// polling.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	if !s.apply(model.EventCancel) {
		s.mu.Unlock()
		return false
	}
	now := s.clock.Now()
	if s.run != nil {
		s.stopRunLocked(s.run, now)
	}
	s.freezeProgressLocked(now)
	jobID := s.job.ID
	s.job = nil
	s.message = MsgCancelled
	s.cancelling = true
	s.wg.Add(1)
	go s.sendCancel(jobID)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.log.Info().Str("job_id", jobID).Msg("session cancelled")
	metrics.IncSessionOutcome(string(s.mode.Mode()), string(model.SessionCancelled))
	s.observer.OnState(snap)
	return true
}

func (s *Session) sendCancel(jobID string) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CancelTimeout)
	defer cancel()
	if err := s.backend.Cancel(ctx, jobID); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("backend cancel failed")
	}

	s.mu.Lock()
	s.cancelling = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.observer.OnState(snap)
}

// Reset returns a finished session to idle. It reports false unless the
// session is in a terminal state.
func (s *Session) Reset() bool {
	s.mu.Lock()
	if s.closed || !s.apply(model.EventReset) {
		s.mu.Unlock()
		return false
	}
	s.draw = nil
	s.job = nil
	s.message = ""
	s.startedAt = time.Time{}
	s.stoppedAt = time.Time{}
	s.progress.Reset()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.observer.OnState(snap)
	return true
}

// Close tears the session down: timers stop, the state goes to idle and every
// goroutine started by the session has returned when Close returns. A job
// still being processed is left to the backend.
func (s *Session) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		if s.run != nil {
			s.stopRunLocked(s.run, s.clock.Now())
		}
		s.state = model.SessionIdle
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Done is closed when the current job stops being polled.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) Snapshot() model.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// PositionLabels describes the confirmed draw.
func (s *Session) PositionLabels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draw == nil {
		return nil
	}
	return s.mode.PositionLabels(*s.draw)
}

func (s *Session) snapshotLocked() model.SessionSnapshot {
	snap := model.SessionSnapshot{
		Mode:       s.mode.Mode(),
		State:      s.state,
		Provider:   s.profile.Name,
		Progress:   s.progress.Value(),
		Message:    s.message,
		Cancelling: s.cancelling,
	}
	if s.draw != nil {
		d := *s.draw
		snap.Draw = &d
	}
	if s.job != nil {
		snap.JobID = s.job.ID
		snap.JobStatus = s.job.Status
	}
	if !s.startedAt.IsZero() {
		end := s.stoppedAt
		if end.IsZero() {
			end = s.clock.Now()
		}
		snap.Elapsed = end.Sub(s.startedAt)
	}
	return snap
}
