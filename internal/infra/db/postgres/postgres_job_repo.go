package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
	"divination-ai/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

const jobColumns = `id, user_id, mode, status, question, draw, metadata, provider,
       interpretation, ai_provider, ai_model, created_at, updated_at`

type jobRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewJobRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *jobRepo {
	return &jobRepo{pool: pool, tm: tm}
}

func (r *jobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	draw, err := json.Marshal(job.Draw)
	if err != nil {
		return fmt.Errorf("encode draw: %w", err)
	}
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = job.CreatedAt

	const q = `
INSERT INTO divination_jobs (id, user_id, mode, status, question, draw, metadata, provider,
                             interpretation, ai_provider, ai_model, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`
	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, job.UserID, job.Mode, job.Status, job.Question, draw, meta, job.Provider,
		job.Interpretation, job.AIProvider, job.AIModel, job.CreatedAt, job.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM divination_jobs WHERE id = $1;`
	return scanJob(pickRow(ctx, r.pool, tx, q, id))
}

// FetchAndMarkProcessing claims the oldest pending job. Concurrent workers
// skip rows another transaction already locked.
func (r *jobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.Job, error) {
	var job *model.Job
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const fetch = `
SELECT id FROM divination_jobs
WHERE status = 'pending'
ORDER BY created_at, id
LIMIT 1
FOR UPDATE SKIP LOCKED;`
		var id string
		if err := pickRow(ctx, r.pool, tx, fetch).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrNotFound
			}
			return err
		}

		q := `UPDATE divination_jobs SET status = 'processing', updated_at = now()
WHERE id = $1 RETURNING ` + jobColumns + `;`
		j, err := scanJob(pickRow(ctx, r.pool, tx, q, id))
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Finish stores the outcome of a processing job. A job that left processing
// meanwhile (cancelled) yields domain.ErrJobTerminal.
func (r *jobRepo) Finish(ctx context.Context, tx repository.Tx, id string, status model.JobStatus, interpretation, aiProvider, aiModel string) error {
	if status != model.JobStatusCompleted && status != model.JobStatusError {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE divination_jobs
SET status = $2, interpretation = $3, ai_provider = $4, ai_model = $5, updated_at = now()
WHERE id = $1 AND status = 'processing';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, interpretation, aiProvider, aiModel)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrTerminal(ctx, tx, id)
	}
	return nil
}

func (r *jobRepo) Cancel(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	q := `UPDATE divination_jobs SET status = 'cancelled', updated_at = now()
WHERE id = $1 AND status IN ('pending', 'processing') RETURNING ` + jobColumns + `;`
	job, err := scanJob(pickRow(ctx, r.pool, tx, q, id))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, r.missOrTerminal(ctx, tx, id)
	}
	return job, err
}

// FailStale errors out jobs a crashed worker left in processing.
func (r *jobRepo) FailStale(ctx context.Context, cutoff time.Time, interpretation string) ([]string, error) {
	const q = `
UPDATE divination_jobs
SET status = 'error', interpretation = $2, updated_at = now()
WHERE status = 'processing' AND updated_at < $1
RETURNING id;`
	rows, err := r.pool.Query(ctx, q, cutoff, interpretation)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *jobRepo) missOrTerminal(ctx context.Context, tx repository.Tx, id string) error {
	if _, err := r.FindByID(ctx, tx, id); err != nil {
		return err
	}
	return domain.ErrJobTerminal
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j          model.Job
		draw, meta []byte
	)
	err := row.Scan(&j.ID, &j.UserID, &j.Mode, &j.Status, &j.Question, &draw, &meta, &j.Provider,
		&j.Interpretation, &j.AIProvider, &j.AIModel, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	if err := json.Unmarshal(draw, &j.Draw); err != nil {
		return nil, fmt.Errorf("%w: draw: %v", domain.ErrReadDatabaseRow, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &j.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	return &j, nil
}
