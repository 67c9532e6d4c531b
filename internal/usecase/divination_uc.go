// File: internal/usecase/divination_uc.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/repository"
	"divination-ai/internal/infra/logging"
	"divination-ai/internal/infra/metrics"
)

// Compile-time check
var _ DivinationUseCase = (*divinationUC)(nil)

// SubmitCommand is a divination request as received by the backend. Draw is
// the mode-specific payload, decoded by the mode's strategy.
type SubmitCommand struct {
	Mode     model.Mode
	Question string
	Draw     json.RawMessage
	Metadata model.Metadata
	Provider string
}

type DivinationUseCase interface {
	Submit(ctx context.Context, userID string, cmd SubmitCommand) (*model.Job, error)
	// Status never changes the job.
	Status(ctx context.Context, userID, jobID string) (*model.Job, error)
	Cancel(ctx context.Context, userID, jobID string) (*model.Job, error)
}

type DivinationOptions struct {
	Providers       []string // accepted provider names; empty accepts any
	DefaultProvider string
	MaxQuestionLen  int
	Dev             bool
}

type divinationUC struct {
	jobs    repository.JobRepository
	tm      repository.TransactionManager
	limiter repository.RateLimiter // optional
	opts    DivinationOptions
	log     *zerolog.Logger
}

func NewDivinationUseCase(jobs repository.JobRepository, tm repository.TransactionManager, limiter repository.RateLimiter, opts DivinationOptions, logger *zerolog.Logger) *divinationUC {
	if opts.MaxQuestionLen <= 0 {
		opts.MaxQuestionLen = DefaultMaxQuestionLen
	}
	l := logger.With().Str("component", "DivinationUseCase").Logger()
	return &divinationUC{jobs: jobs, tm: tm, limiter: limiter, opts: opts, log: &l}
}

func (u *divinationUC) provider(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = u.opts.DefaultProvider
	}
	if name == "" {
		return "", domain.ErrMissingProvider
	}
	if len(u.opts.Providers) > 0 && !slices.Contains(u.opts.Providers, name) {
		return "", fmt.Errorf("%w: %q", domain.ErrMissingProvider, name)
	}
	return name, nil
}

func (u *divinationUC) Submit(ctx context.Context, userID string, cmd SubmitCommand) (*model.Job, error) {
	defer logging.TraceDuration(u.log, "DivinationUseCase.Submit")()
	if userID == "" {
		return nil, domain.ErrUnauthorized
	}
	strategy, err := StrategyFor(cmd.Mode)
	if err != nil {
		return nil, err
	}
	draw, err := strategy.ParseDraw(cmd.Draw)
	if err != nil {
		return nil, err
	}
	provider, err := u.provider(cmd.Provider)
	if err != nil {
		return nil, err
	}
	params, err := BuildSubmit(strategy, cmd.Question, u.opts.MaxQuestionLen, draw, cmd.Metadata, provider)
	if err != nil {
		return nil, err
	}

	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, "submit:"+userID)
		switch {
		case err != nil:
			// Fail open when the limiter store is down.
			logging.With(ctx, u.log).Warn().Err(err).Msg("rate limiter unavailable")
		case !ok:
			metrics.IncRateLimited()
			return nil, domain.ErrRateLimited
		}
	}

	now := time.Now()
	job := &model.Job{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Mode:      params.Mode,
		Status:    model.JobStatusPending,
		Question:  params.Question,
		Draw:      params.Draw,
		Metadata:  params.Metadata,
		Provider:  params.Provider,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		return nil, err
	}
	metrics.IncJobSubmitted(string(job.Mode))
	logging.With(logging.WithJobID(ctx, job.ID), u.log).Info().
		Str("mode", string(job.Mode)).
		Str("provider", job.Provider).
		Str("question", logging.Redact(job.Question, u.opts.Dev)).
		Msg("divination submitted")
	return job, nil
}

func (u *divinationUC) Status(ctx context.Context, userID, jobID string) (*model.Job, error) {
	job, err := u.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// Cancel aborts a pending or processing job. Cancelling a cancelled job is a
// no-op; a completed or failed job yields domain.ErrJobTerminal.
func (u *divinationUC) Cancel(ctx context.Context, userID, jobID string) (*model.Job, error) {
	var out *model.Job
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		job, err := u.jobs.FindByID(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if job.UserID != userID {
			return domain.ErrNotFound
		}
		switch job.Status {
		case model.JobStatusCancelled:
			out = job
			return nil
		case model.JobStatusCompleted, model.JobStatusError:
			return fmt.Errorf("%w: job is %s", domain.ErrJobTerminal, job.Status)
		}
		from := job.Status
		cancelled, err := u.jobs.Cancel(ctx, tx, jobID)
		if err != nil {
			return err
		}
		metrics.IncJobCancelled(string(from))
		out = cancelled
		return nil
	})
	if err != nil {
		if !errors.Is(err, domain.ErrJobTerminal) && !errors.Is(err, domain.ErrNotFound) {
			logging.With(logging.WithJobID(ctx, jobID), u.log).Error().Err(err).Msg("cancel failed")
		}
		return nil, err
	}
	logging.With(logging.WithJobID(ctx, jobID), u.log).Info().Msg("divination cancelled")
	return out, nil
}
