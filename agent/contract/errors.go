package contract

import "errors"

var (
	ErrGeneration      = errors.New("text generation failed")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrUnknownTool     = errors.New("unknown tool requested")
	ErrToolExecution   = errors.New("tool execution failed")
	ErrPersistence     = errors.New("session store operation failed")
	ErrSessionNotFound = errors.New("session not found")
	ErrTicketNotFound  = errors.New("imported ticket not found")
	ErrValidation      = errors.New("validation failed")
)
