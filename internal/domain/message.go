package domain

// Message is one inbound order email as delivered by the mail bridge.
// ID is stable and unique; it is the idempotency key for the whole
// pipeline run and is carried unchanged through every downstream entity.
type Message struct {
	ID       string
	ThreadID string // reply thread; replies must land here
	Sender   string
	Subject  string
	Body     string
}

// ClassifiedMessage is the Classify stage verdict on a Message.
type ClassifiedMessage struct {
	Message    Message
	IsOrder    bool
	Confidence float64 // in [0,1]
	Reason     string  // non-empty whenever IsOrder is false
}

// LineRequest is one requested product/quantity pair pulled out of the
// email body. Unknown fields stay empty rather than guessed.
type LineRequest struct {
	LineRef     string // stable identifier for the line if the email gave one
	SKUHint     string // product code from the email, if any
	Description string
	Quantity    int // strictly positive
	Unit        string
}

// ExtractedOrder is the structured order request produced by the Extract
// stage. At least one line is required; extraction yielding zero lines is
// a parse failure, not an empty order.
type ExtractedOrder struct {
	MessageID     string
	PONumber      string
	CustomerName  string
	ContactPerson string
	CustomerEmail string
	Lines         []LineRequest
	Notes         string
}
