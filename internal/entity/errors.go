package entity

import "errors"

// Domain errors
var (
	// Lookup errors
	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")

	// Validation errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrMissingField    = errors.New("required field is missing")

	// Orchestration errors
	ErrInvalidState       = errors.New("invalid pipeline state")
	ErrPreconditionFailed = errors.New("precondition failed")

	// Model output errors
	ErrMalformedOutput = errors.New("malformed model output")

	// Infrastructure errors
	ErrBackendUnavailable = errors.New("backend unavailable")
)
