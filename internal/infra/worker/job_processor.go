package worker

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/adapter"
	"divination-ai/internal/domain/ports/repository"
	"divination-ai/internal/infra/logging"
	"divination-ai/internal/infra/metrics"
)

const (
	defaultFetchInterval = 500 * time.Millisecond
	defaultAITimeout     = 5 * time.Minute
	finishTimeout        = 5 * time.Second
	failurePrefix        = "AI generation failed: "
)

// JobProcessor claims pending jobs and produces their interpretation.
type JobProcessor struct {
	jobs     repository.JobRepository
	ai       adapter.AIServiceAdapter
	interval time.Duration
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewJobProcessor(jobs repository.JobRepository, ai adapter.AIServiceAdapter, interval, timeout time.Duration, logger *zerolog.Logger) *JobProcessor {
	if interval <= 0 {
		interval = defaultFetchInterval
	}
	if timeout <= 0 {
		timeout = defaultAITimeout
	}
	l := logger.With().Str("component", "JobProcessor").Logger()
	return &JobProcessor{jobs: jobs, ai: ai, interval: interval, timeout: timeout, log: &l}
}

// Start runs the fetch loop until ctx is done. Run it in a goroutine.
func (p *JobProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Dur("interval", p.interval).Msg("job processor started")
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("job processor stopping")
			return
		case <-ticker.C:
			// A full queue just means this tick is skipped.
			_ = pool.Submit(func(ctx context.Context) error {
				p.processOne(ctx)
				return nil
			})
		}
	}
}

// processOne handles at most one job and reports whether one was claimed.
func (p *JobProcessor) processOne(ctx context.Context) bool {
	job, err := p.jobs.FetchAndMarkProcessing(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Error().Err(err).Msg("failed to fetch job")
		}
		return false
	}
	jctx := logging.WithUserID(logging.WithJobID(ctx, job.ID), job.UserID)
	log := logging.With(jctx, p.log)
	log.Info().Str("mode", string(job.Mode)).Str("provider", job.Provider).Msg("processing job")
	start := time.Now()

	status := model.JobStatusCompleted
	text, usage, err := p.interpret(jctx, job)
	if err != nil {
		status = model.JobStatusError
		text = failurePrefix + err.Error()
		log.Error().Err(err).Msg("interpretation failed")
	}

	// The claim context may already be done; the final write still has to land.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(jctx), finishTimeout)
	defer cancel()
	err = p.jobs.Finish(fctx, nil, job.ID, status, text, job.Provider, usage.Model)
	switch {
	case errors.Is(err, domain.ErrJobTerminal):
		log.Info().Msg("job cancelled while processing, result discarded")
		return true
	case err != nil:
		log.Error().Err(err).Msg("failed to store job result")
		return true
	}
	metrics.IncJobFinished(string(job.Mode), string(status))
	log.Info().Str("status", string(status)).Dur("duration", time.Since(start)).Msg("job finished")
	return true
}

func (p *JobProcessor) interpret(ctx context.Context, job *model.Job) (string, adapter.Usage, error) {
	msgs, err := BuildPrompt(job)
	if err != nil {
		return "", adapter.Usage{}, err
	}
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	callStart := time.Now()
	reply, usage, err := p.ai.ChatWithUsage(cctx, job.Provider, msgs)
	latency := time.Since(callStart)
	metrics.ObserveChatUsage(job.Provider, usage.Model, usage.PromptTokens, usage.CompletionTokens, latency.Milliseconds(), err == nil)
	if err != nil {
		return "", usage, err
	}
	return reply, usage, nil
}
