package repository

import (
	"context"
	"time"

	"divination-ai/internal/domain/model"
)

type JobRepository interface {
	Create(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// FetchAndMarkProcessing atomically fetches the oldest pending job and marks it as 'processing'.
	// This prevents other workers from picking up the same job.
	FetchAndMarkProcessing(ctx context.Context) (*model.Job, error)
	// Finish stores the outcome of a processing job. It returns domain.ErrJobTerminal
	// when the job left 'processing' meanwhile (e.g. it was cancelled).
	Finish(ctx context.Context, tx Tx, id string, status model.JobStatus, interpretation, aiProvider, aiModel string) error
	// Cancel moves a pending or processing job to 'cancelled' and returns the
	// job as stored afterwards.
	Cancel(ctx context.Context, tx Tx, id string) (*model.Job, error)
	// FailStale moves jobs stuck in 'processing' since before cutoff to
	// 'error' with the given interpretation and returns their ids.
	FailStale(ctx context.Context, cutoff time.Time, interpretation string) ([]string, error)
}

// RateLimiter bounds how often a key may act within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
