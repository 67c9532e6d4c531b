//go:build !integration

package postgres

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/repository"
	red "divination-ai/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerJobRepo mocks the database repository that the job decorator wraps.
type mockInnerJobRepo struct {
	CreateFunc    func(ctx context.Context, tx repository.Tx, job *model.Job) error
	FindByIDFunc  func(ctx context.Context, tx repository.Tx, id string) (*model.Job, error)
	FetchFunc     func(ctx context.Context) (*model.Job, error)
	FinishFunc    func(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, interpretation, aiProvider, aiModel string) error
	CancelFunc    func(ctx context.Context, tx repository.Tx, id string) (*model.Job, error)
	FailStaleFunc func(ctx context.Context, cutoff time.Time, interpretation string) ([]string, error)
}

func (m *mockInnerJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	return m.CreateFunc(ctx, tx, job)
}
func (m *mockInnerJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return m.FindByIDFunc(ctx, tx, id)
}
func (m *mockInnerJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.Job, error) {
	return m.FetchFunc(ctx)
}
func (m *mockInnerJobRepo) Finish(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, interpretation, aiProvider, aiModel string) error {
	return m.FinishFunc(ctx, tx, id, status, interpretation, aiProvider, aiModel)
}
func (m *mockInnerJobRepo) FailStale(ctx context.Context, cutoff time.Time, interpretation string) ([]string, error) {
	return m.FailStaleFunc(ctx, cutoff, interpretation)
}
func (m *mockInnerJobRepo) Cancel(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	return m.CancelFunc(ctx, tx, id)
}

// mockRedisClient mocks our Redis client wrapper. Unset funcs behave like an
// empty cache.
type mockRedisClient struct {
	GetFunc func(ctx context.Context, key string) (string, error)
	SetFunc func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc func(ctx context.Context, keys ...string) error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetFunc == nil {
		return "", redis.Nil
	}
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if m.SetFunc == nil {
		return nil
	}
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	if m.DelFunc == nil {
		return nil
	}
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error                      { return nil }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) { return 0, nil }
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return nil
}
func (m *mockRedisClient) Close() error { return nil }
