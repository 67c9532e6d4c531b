package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrUnauthorized    = errors.New("unauthorized")

	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Draw / symbol errors
	ErrInvalidDraw       = errors.New("invalid divination draw")
	ErrUnknownCard       = errors.New("card is not part of the shuffled deck")
	ErrSelectionFull     = errors.New("spread already has all of its cards")
	ErrSelectionShort    = errors.New("spread is missing cards")
	ErrReshuffleLimit    = errors.New("reshuffle limit reached")
	ErrUnknownSpread     = errors.New("unknown spread type")
	ErrUnknownMode       = errors.New("unknown divination mode")
	ErrEmptyQuestion     = errors.New("question is required")
	ErrQuestionTooLong   = errors.New("question is too long")
	ErrMissingProvider   = errors.New("ai provider is not configured")
	ErrInvalidTransition = errors.New("event not allowed in current session state")

	// Job lifecycle errors
	ErrJobTerminal    = errors.New("job already reached a terminal status")
	ErrRateLimited    = errors.New("too many divination requests")
	ErrWorkerQueue    = errors.New("worker queue full")
	ErrBackendRequest = errors.New("backend request failed")
)
