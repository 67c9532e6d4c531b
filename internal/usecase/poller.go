package usecase

import (
	"time"

	"divination-ai/internal/domain/model"
)

// PollAction is what the session should do on a poll tick.
type PollAction int

const (
	PollSkip    PollAction = iota // previous request still in flight, or polling is over
	PollIssue                     // send one status request
	PollTimeout                   // hard timeout reached
)

// PollOutcome classifies a status response.
type PollOutcome int

const (
	PollContinue PollOutcome = iota
	PollTerminal
	PollTimedOut
	PollIgnored // no request was outstanding; the response is stale
)

// JobPoller decides when a job is polled and when polling ends. It does no
// I/O and keeps no timers; the session feeds it ticks and responses.
//
// At most one request is in flight. A terminal response always wins over the
// hard timeout. Once done, every tick is a skip.
type JobPoller struct {
	jobID    string
	deadline time.Time
	inFlight bool
	done     bool
	issued   int
}

func NewJobPoller(jobID string, startedAt time.Time, hardTimeout time.Duration) *JobPoller {
	return &JobPoller{jobID: jobID, deadline: startedAt.Add(hardTimeout)}
}

func (p *JobPoller) JobID() string { return p.jobID }

// Issued is the number of status requests sent so far.
func (p *JobPoller) Issued() int { return p.issued }

func (p *JobPoller) Done() bool { return p.done }

func (p *JobPoller) InFlight() bool { return p.inFlight }

func (p *JobPoller) expired(now time.Time) bool { return !now.Before(p.deadline) }

// Tick is evaluated on every poll interval. Past the deadline with no request
// in flight one last request is issued so a job that finished right before
// the deadline is still seen as finished.
func (p *JobPoller) Tick(now time.Time) PollAction {
	if p.done {
		return PollSkip
	}
	if p.inFlight {
		if p.expired(now) {
			p.done = true
			p.inFlight = false
			return PollTimeout
		}
		return PollSkip
	}
	p.inFlight = true
	p.issued++
	return PollIssue
}

// Resolve applies the response to the request Tick issued. err is a transient
// failure: it is swallowed unless the deadline has passed.
func (p *JobPoller) Resolve(now time.Time, job *model.Job, err error) PollOutcome {
	if p.done || !p.inFlight {
		return PollIgnored
	}
	p.inFlight = false
	if err == nil && job != nil && job.Status.IsTerminal() {
		p.done = true
		return PollTerminal
	}
	if p.expired(now) {
		p.done = true
		return PollTimedOut
	}
	return PollContinue
}

// Stop ends polling without an outcome, e.g. on cancel.
func (p *JobPoller) Stop() {
	p.done = true
	p.inFlight = false
}
