package domain

type DecisionStatus string

const (
	StatusFulfillable   DecisionStatus = "FULFILLABLE"
	StatusUnfulfillable DecisionStatus = "UNFULFILLABLE"
)

// ReasonCategory names the first failing fulfillability condition.
// Checked in a fixed order: credit, then stock, then match confidence.
type ReasonCategory string

const (
	ReasonCredit          ReasonCategory = "credit"
	ReasonStock           ReasonCategory = "stock"
	ReasonMatchConfidence ReasonCategory = "match-confidence"
)

// Decision is the routing verdict produced by the Decide stage.
// Status is a deterministic function of the embedded order.
type Decision struct {
	Status   DecisionStatus
	Category ReasonCategory // empty when fulfillable
	Reason   string         // always explains the verdict
	Order    ResolvedOrder
}
