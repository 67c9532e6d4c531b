// Package memory keeps jobs in process memory. It backs dev runs and tests
// where no Postgres is configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/repository"
)

var (
	_ repository.JobRepository      = (*JobRepo)(nil)
	_ repository.TransactionManager = TxManager{}
)

type JobRepo struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	now  func() time.Time
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[string]*model.Job), now: time.Now}
}

func (r *JobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job == nil || job.ID == "" {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j.Clone(), nil
}

// FetchAndMarkProcessing claims the oldest pending job.
func (r *JobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pending := make([]*model.Job, 0)
	for _, j := range r.jobs {
		if j.Status == model.JobStatusPending {
			pending = append(pending, j)
		}
	}
	if len(pending) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(pending, func(a, b int) bool {
		if pending[a].CreatedAt.Equal(pending[b].CreatedAt) {
			return pending[a].ID < pending[b].ID
		}
		return pending[a].CreatedAt.Before(pending[b].CreatedAt)
	})
	j := pending[0]
	j.Status = model.JobStatusProcessing
	j.UpdatedAt = r.now()
	return j.Clone(), nil
}

func (r *JobRepo) Finish(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, interpretation, aiProvider, aiModel string) error {
	if status != model.JobStatusCompleted && status != model.JobStatusError {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.JobStatusProcessing {
		return domain.ErrJobTerminal
	}
	j.Status = status
	j.Interpretation = interpretation
	j.AIProvider = aiProvider
	j.AIModel = aiModel
	j.UpdatedAt = r.now()
	return nil
}

func (r *JobRepo) Cancel(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
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
	j.UpdatedAt = r.now()
	return j.Clone(), nil
}

func (r *JobRepo) FailStale(ctx context.Context, cutoff time.Time, interpretation string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, j := range r.jobs {
		if j.Status == model.JobStatusProcessing && j.UpdatedAt.Before(cutoff) {
			j.Status = model.JobStatusError
			j.Interpretation = interpretation
			j.UpdatedAt = r.now()
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// TxManager runs fn directly; the repo guards each call on its own.
type TxManager struct{}

func (TxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}
