package pipeline

import "errors"

// ErrorKind classifies run failures. Business outcomes (credit denied,
// out of stock, low-confidence match) are never errors - they are Decide
// verdicts that route to Reject.
type ErrorKind string

const (
	// KindClassificationFailure: the classification capability failed after
	// retries. The message is left unprocessed and eventually parked.
	KindClassificationFailure ErrorKind = "classification_failure"

	// KindExtractionFailure: the extraction capability failed after retries
	// (transport-level, not "no lines found" - that routes to Reject).
	KindExtractionFailure ErrorKind = "extraction_failure"

	// KindCapabilityUnavailable: transient I/O from any external interface.
	KindCapabilityUnavailable ErrorKind = "capability_unavailable"
)

// RunError is a pipeline run failure. Retryable errors leave the message
// unprocessed so the next poll retries it; the worker parks a message
// whose retries are exhausted.
type RunError struct {
	Kind      ErrorKind
	Err       error
	Retryable bool
}

func (e *RunError) Error() string {
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func NewRetryableError(kind ErrorKind, err error) *RunError {
	return &RunError{Kind: kind, Err: err, Retryable: true}
}

func NewFatalError(kind ErrorKind, err error) *RunError {
	return &RunError{Kind: kind, Err: err, Retryable: false}
}

// IsRetryable reports whether the worker should leave the message for a
// later poll rather than parking it immediately.
func IsRetryable(err error) bool {
	var runErr *RunError
	if errors.As(err, &runErr) {
		return runErr.Retryable
	}
	return false
}
