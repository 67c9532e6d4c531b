// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/adapter"
	"divination-ai/internal/domain/ports/repository"
)

// --- clock ---

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

type fakeTicker struct {
	clock   *fakeClock
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{clock: c, c: make(chan time.Time, 1), period: d, next: c.now.Add(d)}
	c.tickers = append(c.tickers, t)
	return t
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

// Advance moves time forward firing every ticker due on the way. Like
// time.Ticker, a tick is dropped when the previous one was not consumed.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := c.now.Add(d)
	for {
		due := make([]*fakeTicker, 0, len(c.tickers))
		for _, t := range c.tickers {
			if !t.stopped && !t.next.After(target) {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			break
		}
		sort.Slice(due, func(i, j int) bool { return due[i].next.Before(due[j].next) })
		t := due[0]
		c.now = t.next
		t.next = t.next.Add(t.period)
		select {
		case t.c <- c.now:
		default:
		}
	}
	c.now = target
}

func (c *fakeClock) activeTickers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// --- backend ---

type statusReply struct {
	status         model.JobStatus
	interpretation string
	err            error
}

// fakeBackend replays scripted status replies; the last reply repeats.
type fakeBackend struct {
	mu          sync.Mutex
	submitErr   error
	replies     []statusReply
	gate        chan struct{} // when set, GetStatus waits for it
	submits     []adapter.SubmitParams
	statusCalls int
	cancelled   []string
	cancelErr   error
}

func (b *fakeBackend) Submit(ctx context.Context, p adapter.SubmitParams) (model.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits = append(b.submits, p)
	if b.submitErr != nil {
		return model.Job{}, b.submitErr
	}
	return model.Job{ID: "job-1", Mode: p.Mode, Status: model.JobStatusPending, Provider: p.Provider}, nil
}

func (b *fakeBackend) GetStatus(ctx context.Context, jobID string) (model.Job, error) {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	r := statusReply{status: model.JobStatusProcessing}
	if len(b.replies) > 0 {
		i := b.statusCalls
		if i >= len(b.replies) {
			i = len(b.replies) - 1
		}
		r = b.replies[i]
	}
	b.statusCalls++
	if r.err != nil {
		return model.Job{}, r.err
	}
	return model.Job{ID: jobID, Status: r.status, Interpretation: r.interpretation}, nil
}

func (b *fakeBackend) Cancel(ctx context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cancelled = append(b.cancelled, jobID)
	return b.cancelErr
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCalls
}

func (b *fakeBackend) cancelCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cancelled)
}

// --- observer ---

type recordingObserver struct {
	mu       sync.Mutex
	states   []model.SessionState
	progress []float64
}

func (o *recordingObserver) OnState(s model.SessionSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s.State)
}

func (o *recordingObserver) OnProgress(s model.SessionSnapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, s.Progress)
}

func (o *recordingObserver) count(state model.SessionState) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, s := range o.states {
		if s == state {
			n++
		}
	}
	return n
}

func (o *recordingObserver) progressValues() []float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]float64(nil), o.progress...)
}

// --- job repository ---

type memJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	createErr error
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{jobs: map[string]*model.Job{}} }

func (r *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.Job, error) {
	return nil, domain.ErrNotFound
}

func (r *memJobRepo) Finish(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, interpretation, aiProvider, aiModel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.JobStatusProcessing {
		return domain.ErrJobTerminal
	}
	j.Status, j.Interpretation = status, interpretation
	return nil
}

func (r *memJobRepo) Cancel(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if j.Status.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}
	j.Status = model.JobStatusCancelled
	cp := *j
	return &cp, nil
}

func (r *memJobRepo) FailStale(ctx context.Context, cutoff time.Time, interpretation string) ([]string, error) {
	return nil, nil
}

func (r *memJobRepo) setStatus(id string, s model.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Status = s
}

type noTxManager struct{}

func (noTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

type stubLimiter struct {
	allow bool
	err   error
}

func (l stubLimiter) Allow(ctx context.Context, key string) (bool, error) { return l.allow, l.err }

var errNetwork = errors.New("connection reset by peer")

// --- helpers ---

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
