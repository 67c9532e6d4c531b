package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Task is the periodic unit of work. It reports how many items it touched.
type Task interface {
	RunOnce(ctx context.Context) (int, error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context) (int, error)

func (f TaskFunc) RunOnce(ctx context.Context) (int, error) { return f(ctx) }

// Scheduler periodically runs a Task, each run bounded by runTimeout.
type Scheduler struct {
	name       string
	interval   time.Duration
	runTimeout time.Duration
	task       Task
	log        *zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler that runs task every interval.
// If interval <= 0 it defaults to 1 minute.
func NewScheduler(name string, interval time.Duration, task Task, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "Scheduler").Str("task", name).Logger()
	return &Scheduler{
		name:       name,
		interval:   interval,
		runTimeout: 30 * time.Second,
		task:       task,
		log:        &l,
		done:       make(chan struct{}),
	}
}

// Start begins the scheduler loop in a background goroutine.
// Calling Start on a running scheduler has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	if s.ctx != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancel = cancel

	go s.loop()
}

func (s *Scheduler) loop() {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(s.done)
	}()

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-s.ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	runCtx, cancel := context.WithTimeout(s.ctx, s.runTimeout)
	defer cancel()
	n, err := s.task.RunOnce(runCtx)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled run failed")
		return
	}
	if n > 0 {
		s.log.Info().Int("count", n).Msg("scheduled run done")
	}
}

// Stop cancels the scheduler and waits for the loop to finish. It is idempotent.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.ctx = nil
	s.cancel = nil
	s.done = make(chan struct{})
}
