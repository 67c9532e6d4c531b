package apiv1

import (
	"encoding/json"

	"divination-ai/internal/domain/model"
)

// JobID is the path parameter of the job routes.
type JobID = string

// SubmitRequest is the body of POST /api/v1/divinations. Draw is the
// mode-specific payload (lines, spread cards or birth data).
type SubmitRequest struct {
	Mode     string          `json:"mode"`
	Question string          `json:"question"`
	Draw     json.RawMessage `json:"draw"`
	Metadata *model.Metadata `json:"metadata,omitempty"`
	Provider string          `json:"provider,omitempty"`
}

type SubmitResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type JobResponse struct {
	ID             string `json:"id"`
	Mode           string `json:"mode,omitempty"`
	Status         string `json:"status"`
	Interpretation string `json:"interpretation,omitempty"`
	Provider       string `json:"provider,omitempty"`
}

type CancelResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func toJobResponse(j *model.Job) JobResponse {
	return JobResponse{
		ID:             j.ID,
		Mode:           string(j.Mode),
		Status:         string(j.Status),
		Interpretation: j.Interpretation,
		Provider:       j.Provider,
	}
}
