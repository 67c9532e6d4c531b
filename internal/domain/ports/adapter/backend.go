package adapter

import (
	"context"

	"divination-ai/internal/domain/model"
)

// SubmitParams is one divination request as the client sends it.
type SubmitParams struct {
	Mode     model.Mode
	Question string
	Draw     model.Draw
	Metadata model.Metadata
	Provider string
}

// JobBackend is the divination backend as seen by a client session. Every
// call carries the caller's bearer credential.
type JobBackend interface {
	// Submit creates a job and returns it in pending or processing state.
	Submit(ctx context.Context, p SubmitParams) (model.Job, error)
	// GetStatus reads the job. It must not change it.
	GetStatus(ctx context.Context, jobID string) (model.Job, error)
	// Cancel asks the backend to abort the job. Best effort.
	Cancel(ctx context.Context, jobID string) error
}
