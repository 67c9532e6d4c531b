package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"divination-ai/internal/domain/ports/repository"
	"divination-ai/internal/infra/metrics"
)

// StaleInterpretation is stored on jobs whose worker never reported back.
const StaleInterpretation = "AI generation failed: the worker stopped before the interpretation finished"

// StaleJobReaper fails jobs left in processing for longer than maxAge, which
// only happens when a worker died mid-call. Clients polling such a job see an
// error instead of waiting for their hard timeout.
type StaleJobReaper struct {
	jobs   repository.JobRepository
	maxAge time.Duration
	now    func() time.Time
	log    *zerolog.Logger
}

func NewStaleJobReaper(jobs repository.JobRepository, maxAge time.Duration, logger *zerolog.Logger) *StaleJobReaper {
	l := logger.With().Str("component", "StaleJobReaper").Logger()
	return &StaleJobReaper{jobs: jobs, maxAge: maxAge, now: time.Now, log: &l}
}

// RunOnce implements scheduler.Task.
func (r *StaleJobReaper) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.jobs.FailStale(ctx, r.now().Add(-r.maxAge), StaleInterpretation)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		r.log.Warn().Str("job_id", id).Dur("max_age", r.maxAge).Msg("stale job failed")
	}
	metrics.AddJobsReaped(len(ids))
	return len(ids), nil
}
