package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"paperco.app/intake/common/logger"
	"paperco.app/intake/internal/domain"
)

// Gate is the blocking human-confirmation checkpoint. It issues one
// approval request, polls the transport at a fixed interval, and resolves
// REQUESTED into APPROVED, DENIED or TIMED_OUT. No reply by the deadline
// is a denial; the fail-safe default is to not ship.
type Gate struct {
	transport Transport
	timeout   time.Duration
	interval  time.Duration
}

func NewGate(transport Transport, timeout, interval time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Gate{transport: transport, timeout: timeout, interval: interval}
}

// Await posts the summary and blocks until the gate resolves. The returned
// state is always terminal. Transport errors during polling are logged and
// the loop keeps going; only a failure to issue the request itself is an
// error, since then no human ever saw the order.
func (g *Gate) Await(ctx context.Context, summary string) (domain.ApprovalState, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "intake.approval.gate",
	})

	handle, err := g.transport.RequestApproval(ctx, summary)
	if err != nil {
		return domain.ApprovalRequested, fmt.Errorf("issuing approval request: %w", err)
	}

	slog.InfoContext(ctx, "approval requested",
		"handle", handle,
		"timeout", g.timeout)

	deadline := time.NewTimer(g.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Worker shutdown mid-wait resolves like a timeout: deny.
			slog.WarnContext(ctx, "approval wait cancelled, treating as timed out",
				"handle", handle)
			return domain.ApprovalTimedOut, nil

		case <-deadline.C:
			slog.WarnContext(ctx, "approval timed out, defaulting to deny",
				"handle", handle,
				"timeout", g.timeout)
			return domain.ApprovalTimedOut, nil

		case <-ticker.C:
			verdict, pollErr := g.transport.Poll(ctx, handle)
			if pollErr != nil {
				slog.WarnContext(ctx, "approval poll failed, will retry",
					"handle", handle,
					"error", pollErr)
				continue
			}
			switch verdict {
			case VerdictApproved:
				slog.InfoContext(ctx, "order approved by human", "handle", handle)
				return domain.ApprovalApproved, nil
			case VerdictDenied:
				slog.InfoContext(ctx, "order denied by human", "handle", handle)
				return domain.ApprovalDenied, nil
			}
		}
	}
}

// FormatSummary builds the human-readable order summary an operator sees
// before approving.
func FormatSummary(order domain.ResolvedOrder) string {
	summary := fmt.Sprintf("Order awaiting approval\n\nCustomer: %s\nTotal: EUR %.2f\nItems: %d\n",
		order.CustomerName, order.Totals.Total, len(order.Lines))
	for _, l := range order.Lines {
		summary += fmt.Sprintf("- %dx %s (%s) @ EUR %.2f -> EUR %.2f\n",
			l.RequestedQty, l.ProductName, l.MatchedSKU, l.UnitPrice, l.Subtotal)
	}
	summary += "\nReply `approve` or `deny` to this message."
	return summary
}
