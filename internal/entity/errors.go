package entity

import "errors"

// Domain errors. The gateway wraps every failed call with exactly one of the
// failure kinds so callers can classify with errors.Is.
var (
	// ErrNetwork covers failures where the request never produced a usable
	// response (connection errors, timeouts, 5xx). Retrying is safe for
	// idempotent reads; the state machine decides for writes.
	ErrNetwork = errors.New("network failure")

	// ErrValidation covers rejected input (4xx other than 404/429). Retrying
	// without changing the input will fail again.
	ErrValidation = errors.New("validation failure")

	// ErrQuotaExceeded is terminal until the server-side window resets. New
	// session creation must be blocked, not merely reported.
	ErrQuotaExceeded = errors.New("session quota exceeded")

	// ErrSessionNotFound means the local session id is stale. It triggers a
	// silent local reset, never a user-facing error.
	ErrSessionNotFound = errors.New("session not found")

	// ErrRequirementsGeneration means the conversation completed but the
	// summarization step failed. Retryable via a dedicated re-generation
	// call that does not re-run the conversation.
	ErrRequirementsGeneration = errors.New("requirements generation failed")

	// State machine errors
	ErrInvalidTransition  = errors.New("command not valid in current state")
	ErrTransitionInFlight = errors.New("another transition is in flight")
	ErrQuestionRequired   = errors.New("question is required and cannot be skipped")
)

// IsRetryable reports whether a failed call may be repeated verbatim.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrRequirementsGeneration)
}
