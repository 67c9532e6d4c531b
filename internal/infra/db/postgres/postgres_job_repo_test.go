//go:build integration

package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"divination-ai/internal/domain"
	"divination-ai/internal/domain/model"
)

func newPendingJob(created time.Time) *model.Job {
	return &model.Job{
		ID:        ulid.Make().String(),
		UserID:    "user-1",
		Mode:      model.ModeHexagram,
		Status:    model.JobStatusPending,
		Question:  "Will the harvest be good?",
		Draw:      model.HexagramDraw(model.Hexagram{Lines: []model.LineValue{1, 0, 2, 1, 3, 2}}),
		Metadata:  model.Metadata{Gender: "male", Target: "self"},
		Provider:  "gemini",
		CreatedAt: created,
	}
}

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	tm := NewTxManager(testPool)
	repo := NewJobRepo(testPool, tm)

	t.Run("should create and read back a job with its draw", func(t *testing.T) {
		cleanup(t)
		job := newPendingJob(time.Now().UTC().Truncate(time.Microsecond))
		if err := repo.Create(ctx, nil, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := repo.Create(ctx, nil, job); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists on duplicate id, got %v", err)
		}
		got, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.Draw.Hexagram == nil || len(got.Draw.Hexagram.MovingPositions()) != 2 {
			t.Fatalf("draw did not round-trip: %+v", got.Draw)
		}
		if got.Metadata.Gender != "male" || got.Status != model.JobStatusPending {
			t.Fatalf("unexpected job %+v", got)
		}
		if _, err := repo.FindByID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("should claim the oldest pending job and finish it", func(t *testing.T) {
		cleanup(t)
		now := time.Now()
		older, newer := newPendingJob(now.Add(-time.Minute)), newPendingJob(now)
		_ = repo.Create(ctx, nil, newer)
		_ = repo.Create(ctx, nil, older)

		claimed, err := repo.FetchAndMarkProcessing(ctx)
		if err != nil {
			t.Fatalf("fetch: %v", err)
		}
		if claimed.ID != older.ID || claimed.Status != model.JobStatusProcessing {
			t.Fatalf("expected older job in processing, got %s %s", claimed.ID, claimed.Status)
		}
		if err := repo.Finish(ctx, nil, claimed.ID, model.JobStatusCompleted, "text", "gemini", "gemini-2.5-flash"); err != nil {
			t.Fatalf("finish: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, claimed.ID)
		if got.Status != model.JobStatusCompleted || got.AIModel != "gemini-2.5-flash" {
			t.Fatalf("unexpected finished job %+v", got)
		}
		if err := repo.Finish(ctx, nil, claimed.ID, model.JobStatusError, "late", "", ""); !errors.Is(err, domain.ErrJobTerminal) {
			t.Fatalf("expected ErrJobTerminal, got %v", err)
		}
	})

	t.Run("concurrent workers never claim the same job", func(t *testing.T) {
		cleanup(t)
		for i := 0; i < 10; i++ {
			_ = repo.Create(ctx, nil, newPendingJob(time.Now().Add(time.Duration(i)*time.Millisecond)))
		}
		var mu sync.Mutex
		seen := map[string]int{}
		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					job, err := repo.FetchAndMarkProcessing(ctx)
					if err != nil {
						return
					}
					mu.Lock()
					seen[job.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		if len(seen) != 10 {
			t.Fatalf("expected 10 claimed jobs, got %d", len(seen))
		}
		for id, n := range seen {
			if n != 1 {
				t.Fatalf("job %s claimed %d times", id, n)
			}
		}
	})

	t.Run("cancel wins over a late result", func(t *testing.T) {
		cleanup(t)
		job := newPendingJob(time.Now())
		_ = repo.Create(ctx, nil, job)
		_, _ = repo.FetchAndMarkProcessing(ctx)

		cancelled, err := repo.Cancel(ctx, nil, job.ID)
		if err != nil || cancelled.Status != model.JobStatusCancelled {
			t.Fatalf("cancel: %+v %v", cancelled, err)
		}
		if err := repo.Finish(ctx, nil, job.ID, model.JobStatusCompleted, "late", "", ""); !errors.Is(err, domain.ErrJobTerminal) {
			t.Fatalf("expected ErrJobTerminal, got %v", err)
		}
		if _, err := repo.Cancel(ctx, nil, job.ID); !errors.Is(err, domain.ErrJobTerminal) {
			t.Fatalf("expected ErrJobTerminal on second cancel, got %v", err)
		}
		if _, err := repo.Cancel(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("stale processing jobs are failed", func(t *testing.T) {
		cleanup(t)
		job := newPendingJob(time.Now())
		_ = repo.Create(ctx, nil, job)
		_, _ = repo.FetchAndMarkProcessing(ctx)

		ids, err := repo.FailStale(ctx, time.Now().Add(-time.Hour), "stale")
		if err != nil || len(ids) != 0 {
			t.Fatalf("fresh job must survive, got %v %v", ids, err)
		}
		ids, err = repo.FailStale(ctx, time.Now().Add(time.Minute), "stale")
		if err != nil || len(ids) != 1 || ids[0] != job.ID {
			t.Fatalf("expected %s reaped, got %v %v", job.ID, ids, err)
		}
		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.Status != model.JobStatusError || got.Interpretation != "stale" {
			t.Fatalf("unexpected reaped job %+v", got)
		}
	})
}
