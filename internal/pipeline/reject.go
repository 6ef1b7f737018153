package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"paperco.app/intake/common/logger"
	"paperco.app/intake/internal/domain"
	"paperco.app/intake/internal/inbox"
)

// Rejecter runs the unfulfillable path: compose an explanatory reply and
// send it into the original thread. Rejections are customer-facing only -
// no record-store mutation, no approval request, no internal notification.
type Rejecter struct {
	mail inbox.Transport
}

func NewRejecter(mail inbox.Transport) *Rejecter {
	return &Rejecter{mail: mail}
}

// RejectDecision handles an UNFULFILLABLE verdict from Decide.
func (r *Rejecter) RejectDecision(ctx context.Context, decision domain.Decision) (domain.Outcome, error) {
	order := decision.Order
	explanation := decisionExplanation(decision)
	return r.send(ctx, order.MessageID, order.ThreadID, order.CustomerName, explanation)
}

// RejectParseFailure handles garbled input the Extract stage could not
// turn into an order. Decide is never consulted.
func (r *Rejecter) RejectParseFailure(ctx context.Context, msg domain.Message) (domain.Outcome, error) {
	explanation := "we could not reliably read the order details from your message. " +
		"Please resend your order with one product and quantity per line, or contact our sales team."
	return r.send(ctx, msg.ID, msg.ThreadID, msg.Sender, explanation)
}

func (r *Rejecter) send(ctx context.Context, messageID, threadID, recipient, explanation string) (domain.Outcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Stage:     logger.Ptr("reject"),
		Component: "intake.pipeline.reject",
	})

	body := fmt.Sprintf("Dear %s,\n\nUnfortunately we cannot fulfill your order at this time: %s\n\nBest regards\nPaperCo Sales",
		recipient, explanation)

	if err := r.mail.Reply(ctx, threadID, body, ""); err != nil {
		// Without the reply the sender never learns the outcome; leave the
		// message unprocessed so the next poll retries. No writes happened,
		// so the retry is safe.
		return domain.Outcome{}, NewRetryableError(KindCapabilityUnavailable,
			fmt.Errorf("sending rejection reply: %w", err))
	}

	slog.InfoContext(ctx, "rejection sent", "explanation", logger.Truncate(explanation, 120))

	return domain.Outcome{
		Kind: domain.OutcomeRejected,
		Rejection: &domain.RejectionOutcome{
			MessageID:   messageID,
			Explanation: explanation,
		},
	}, nil
}

func decisionExplanation(decision domain.Decision) string {
	switch decision.Category {
	case domain.ReasonCredit:
		return "your account's available credit does not cover this order. " + decision.Reason
	case domain.ReasonStock:
		return "one or more items are not available in the requested quantity. " + decision.Reason
	case domain.ReasonMatchConfidence:
		return "we could not confidently identify some of the requested products in our catalog. " + decision.Reason
	default:
		return decision.Reason
	}
}
