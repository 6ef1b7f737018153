package domain

// ApprovalState is the Approval Gate state machine position.
// REQUESTED is the in-flight state; the other three are terminal.
// TIMED_OUT is treated identically to DENIED everywhere that matters.
type ApprovalState string

const (
	ApprovalRequested ApprovalState = "REQUESTED"
	ApprovalApproved  ApprovalState = "APPROVED"
	ApprovalDenied    ApprovalState = "DENIED"
	ApprovalTimedOut  ApprovalState = "TIMED_OUT"
)

// Resolved reports whether the gate has left the REQUESTED state.
func (s ApprovalState) Resolved() bool {
	return s == ApprovalApproved || s == ApprovalDenied || s == ApprovalTimedOut
}

// OutcomeKind tags the terminal result of a pipeline run.
type OutcomeKind string

const (
	OutcomeFulfilled OutcomeKind = "fulfilled"
	OutcomeRejected  OutcomeKind = "rejected"
	// OutcomeDenied is an order that passed every business check but was
	// denied (or timed out) at the human approval gate. Audited separately
	// from rejections: the customer is not messaged and nothing is written.
	OutcomeDenied OutcomeKind = "denied"
	// OutcomeSkipped is a message classified as not an order.
	OutcomeSkipped OutcomeKind = "skipped"
)

// FulfillmentOutcome records a completed order. Constructed only after the
// Approval Gate returned APPROVED; NeedsManualFollowUp is set when a
// post-approval write failed and an operator has to reconcile by hand.
type FulfillmentOutcome struct {
	MessageID           string
	OrderID             int64
	DocumentRef         string
	Approval            ApprovalState
	NeedsManualFollowUp bool
}

// RejectionOutcome records an explained non-fulfillment. Constructing one
// never mutates record-store state.
type RejectionOutcome struct {
	MessageID   string
	Explanation string
}

// Outcome is the terminal result of one pipeline run. Exactly one of the
// pointer fields matching Kind is set.
type Outcome struct {
	Kind        OutcomeKind
	Fulfillment *FulfillmentOutcome
	Rejection   *RejectionOutcome
}

// Terminal reports whether the outcome permits marking the source message
// processed. All constructed outcomes are terminal; a run that fails
// mid-pipeline produces an error instead of an Outcome.
func (o Outcome) Terminal() bool {
	return o.Kind != ""
}
