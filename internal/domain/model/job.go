package model

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

// IsTerminal reports whether no further status change can happen.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	}
	return false
}

// Job is one interpretation request. The backend owns it; clients only see
// ID, Status and Interpretation.
type Job struct {
	ID             string
	UserID         string
	Mode           Mode
	Status         JobStatus
	Question       string
	Draw           Draw
	Metadata       Metadata
	Provider       string
	Interpretation string // set for completed and error jobs
	AIProvider     string
	AIModel        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Clone returns a deep copy of j.
func (j *Job) Clone() *Job {
	cp := *j
	cp.Draw = j.Draw.Clone()
	return &cp
}

// Metadata carries the mode-specific extras that are not part of the draw.
type Metadata struct {
	Gender string `json:"gender,omitempty"` // male | female
	Target string `json:"target,omitempty"` // self | parent | friend | other
}
