package model

import "time"

// SessionState is the client-side lifecycle of one divination.
type SessionState string

const (
	SessionIdle               SessionState = "idle"
	SessionDrawing            SessionState = "drawing"
	SessionAwaitingSubmission SessionState = "awaiting-submission"
	SessionPolling            SessionState = "polling"
	SessionCompleted          SessionState = "completed"
	SessionError              SessionState = "error"
	SessionCancelled          SessionState = "cancelled"
	SessionTimedOut           SessionState = "timed-out"
)

// IsTerminal reports whether only a reset can leave the state.
func (s SessionState) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionError, SessionCancelled, SessionTimedOut:
		return true
	}
	return false
}

// SessionEvent drives Transition.
type SessionEvent string

const (
	EventBeginDraw       SessionEvent = "begin_draw"
	EventDrawConfirmed   SessionEvent = "draw_confirmed"
	EventSubmitSucceeded SessionEvent = "submit_succeeded"
	EventSubmitFailed    SessionEvent = "submit_failed"
	EventJobCompleted    SessionEvent = "job_completed"
	EventJobFailed       SessionEvent = "job_failed"
	EventJobCancelled    SessionEvent = "job_cancelled"
	EventHardTimeout     SessionEvent = "hard_timeout"
	EventCancel          SessionEvent = "cancel"
	EventReset           SessionEvent = "reset"
)

type transitionKey struct {
	from  SessionState
	event SessionEvent
}

var sessionTransitions = map[transitionKey]SessionState{
	{SessionIdle, EventBeginDraw}:                     SessionDrawing,
	{SessionDrawing, EventDrawConfirmed}:              SessionAwaitingSubmission,
	{SessionDrawing, EventSubmitFailed}:               SessionError,
	{SessionAwaitingSubmission, EventSubmitSucceeded}: SessionPolling,
	{SessionAwaitingSubmission, EventSubmitFailed}:    SessionError,
	{SessionPolling, EventJobCompleted}:               SessionCompleted,
	{SessionPolling, EventJobFailed}:                  SessionError,
	{SessionPolling, EventJobCancelled}:               SessionCancelled,
	{SessionPolling, EventHardTimeout}:                SessionTimedOut,
	{SessionPolling, EventCancel}:                     SessionCancelled,
	{SessionCompleted, EventReset}:                    SessionIdle,
	{SessionError, EventReset}:                        SessionIdle,
	{SessionCancelled, EventReset}:                    SessionIdle,
	{SessionTimedOut, EventReset}:                     SessionIdle,
}

// Transition is the pure session state machine. Events that are not valid in
// state leave it unchanged and report false.
func Transition(state SessionState, event SessionEvent) (SessionState, bool) {
	next, ok := sessionTransitions[transitionKey{state, event}]
	if !ok {
		return state, false
	}
	return next, true
}

// JobEvent maps a terminal job status to the session event it triggers.
func JobEvent(s JobStatus) (SessionEvent, bool) {
	switch s {
	case JobStatusCompleted:
		return EventJobCompleted, true
	case JobStatusError:
		return EventJobFailed, true
	case JobStatusCancelled:
		return EventJobCancelled, true
	}
	return "", false
}

// SessionSnapshot is the read-only view of a session handed to renderers.
type SessionSnapshot struct {
	Mode       Mode
	State      SessionState
	Draw       *Draw
	JobID      string
	JobStatus  JobStatus
	Provider   string
	Progress   float64 // 0..100, advisory
	Elapsed    time.Duration
	Message    string // interpretation, backend error text or a status note
	Cancelling bool   // a cancel request is still on its way to the backend
}
