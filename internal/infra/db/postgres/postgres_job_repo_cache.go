package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/repository"
	"divination-ai/internal/infra/metrics"
	red "divination-ai/internal/infra/redis"
)

var _ repository.JobRepository = (*jobRepoCacheDecorator)(nil)

// jobRepoCacheDecorator serves repeated status polls from Redis. Every write
// drops the cached entry, so a poll never sees a status older than the TTL.
type jobRepoCacheDecorator struct {
	inner repository.JobRepository
	cache red.RedisClient
	ttl   time.Duration
	log   *zerolog.Logger
}

func NewJobRepoCacheDecorator(inner repository.JobRepository, cache red.RedisClient, ttl time.Duration, logger *zerolog.Logger) repository.JobRepository {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	l := logger.With().Str("component", "JobCache").Logger()
	return &jobRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl, log: &l}
}

func jobKey(id string) string { return "job:" + id }

func (d *jobRepoCacheDecorator) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	// Reads inside a transaction must see the transaction's view.
	if tx != nil {
		return d.inner.FindByID(ctx, tx, id)
	}
	val, err := d.cache.Get(ctx, jobKey(id))
	if err == nil {
		var job model.Job
		if json.Unmarshal([]byte(val), &job) == nil {
			metrics.IncCacheRequest("job", "hit")
			return &job, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		d.log.Warn().Err(err).Str("job_id", id).Msg("cache read failed")
	}

	metrics.IncCacheRequest("job", "miss")
	job, err := d.inner.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(job); err == nil {
		if err := d.cache.Set(ctx, jobKey(id), b, d.ttl); err != nil {
			d.log.Warn().Err(err).Str("job_id", id).Msg("cache write failed")
		}
	}
	return job, nil
}

func (d *jobRepoCacheDecorator) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	d.invalidate(ctx, job.ID)
	return d.inner.Create(ctx, tx, job)
}

func (d *jobRepoCacheDecorator) FetchAndMarkProcessing(ctx context.Context) (*model.Job, error) {
	job, err := d.inner.FetchAndMarkProcessing(ctx)
	if err == nil {
		d.invalidate(ctx, job.ID)
	}
	return job, err
}

func (d *jobRepoCacheDecorator) Finish(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, interpretation, aiProvider, aiModel string) error {
	err := d.inner.Finish(ctx, tx, id, status, interpretation, aiProvider, aiModel)
	d.invalidate(ctx, id)
	return err
}

func (d *jobRepoCacheDecorator) Cancel(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	job, err := d.inner.Cancel(ctx, tx, id)
	d.invalidate(ctx, id)
	return job, err
}

func (d *jobRepoCacheDecorator) FailStale(ctx context.Context, cutoff time.Time, interpretation string) ([]string, error) {
	ids, err := d.inner.FailStale(ctx, cutoff, interpretation)
	for _, id := range ids {
		d.invalidate(ctx, id)
	}
	return ids, err
}

func (d *jobRepoCacheDecorator) invalidate(ctx context.Context, id string) {
	if err := d.cache.Del(ctx, jobKey(id)); err != nil {
		d.log.Warn().Err(err).Str("job_id", id).Msg("cache invalidation failed")
	}
}
