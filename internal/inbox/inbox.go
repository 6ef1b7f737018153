package inbox

import (
	"context"

	"paperco.app/intake/internal/domain"
)

// Transport is the inbound message capability. The mail bridge feeds
// unprocessed messages in on one side; the pipeline consumes them one at a
// time and acknowledges each only after a terminal outcome.
type Transport interface {
	// Next returns the next unprocessed message, or nil when none is
	// available within the transport's blocking window.
	Next(ctx context.Context) (*domain.Message, error)

	// Reply sends a reply into the original message thread. The optional
	// attachment is a document reference (e.g. an invoice URL).
	Reply(ctx context.Context, threadID, body, attachment string) error

	// MarkProcessed acknowledges a message so it is never redelivered.
	// Called exactly once per message, after a terminal outcome.
	MarkProcessed(ctx context.Context, id string) error

	// MarkForReview parks a message on the manual-review channel and
	// acknowledges it, so an operator handles it instead of the pipeline.
	MarkForReview(ctx context.Context, msg domain.Message, reason string) error
}
