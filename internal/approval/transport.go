package approval

import "context"

// Verdict is one poll result from the approval transport.
type Verdict int

const (
	VerdictPending Verdict = iota
	VerdictApproved
	VerdictDenied
)

// Transport is the human-approval channel. It posts a request where an
// operator can see it and reports replies; the caller owns the deadline -
// Poll itself must never block indefinitely.
type Transport interface {
	// RequestApproval posts a human-readable order summary and returns a
	// handle for polling replies to that specific request.
	RequestApproval(ctx context.Context, summary string) (string, error)

	// Poll checks for a decision on the given handle.
	Poll(ctx context.Context, handle string) (Verdict, error)
}
