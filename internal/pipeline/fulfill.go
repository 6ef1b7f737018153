package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"paperco.app/intake/common/id"
	"paperco.app/intake/common/logger"
	"paperco.app/intake/internal/approval"
	"paperco.app/intake/internal/domain"
	"paperco.app/intake/internal/inbox"
	"paperco.app/intake/internal/notify"
	"paperco.app/intake/internal/renderer"
	"paperco.app/intake/internal/store"
)

// errAlreadyFulfilled aborts the write transaction when an order for this
// message id already exists. The rollback is harmless: nothing else was
// touched yet, and the prior run's writes stand.
var errAlreadyFulfilled = fmt.Errorf("order already fulfilled for this message")

// Fulfiller runs the fulfillable path: render the document, hold at the
// approval gate, then commit the write sequence in one transaction and
// confirm to the customer. No record-store mutation happens before the
// gate returns APPROVED.
type Fulfiller struct {
	renderer renderer.Renderer
	gate     *approval.Gate
	tx       store.TxRunner
	mail     inbox.Transport
	notifier notify.Notifier
}

func NewFulfiller(
	docRenderer renderer.Renderer,
	gate *approval.Gate,
	tx store.TxRunner,
	mail inbox.Transport,
	notifier notify.Notifier,
) *Fulfiller {
	return &Fulfiller{
		renderer: docRenderer,
		gate:     gate,
		tx:       tx,
		mail:     mail,
		notifier: notifier,
	}
}

func (f *Fulfiller) Fulfill(ctx context.Context, decision domain.Decision) (domain.Outcome, error) {
	order := decision.Order
	orderID := id.New()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Stage:      logger.Ptr("fulfill"),
		OrderID:    logger.Ptr(orderID),
		CustomerID: logger.Ptr(order.CustomerID),
		Component:  "intake.pipeline.fulfill",
	})

	// Step 1: render the order document. Nothing has been promised or
	// written yet, so a renderer outage just retries the whole run later.
	docRef, err := f.renderer.Render(ctx, order, orderID)
	if err != nil {
		return domain.Outcome{}, NewRetryableError(KindCapabilityUnavailable,
			fmt.Errorf("rendering document: %w", err))
	}

	// Step 2: the approval gate. Blocking by design - no write-side
	// effect may happen until a human (or the timeout) resolves it.
	state, err := f.gate.Await(ctx, approval.FormatSummary(order))
	if err != nil {
		return domain.Outcome{}, NewRetryableError(KindCapabilityUnavailable,
			fmt.Errorf("approval gate: %w", err))
	}

	// Step 3: anything but APPROVED stops here. This is not a rejection:
	// the customer is not messaged and the store is untouched. Audited
	// under its own outcome kind.
	if state != domain.ApprovalApproved {
		slog.WarnContext(ctx, "fulfillable order denied at approval gate",
			"approval_state", state,
			"customer", order.CustomerName,
			"total", order.Totals.Total)
		return domain.Outcome{Kind: domain.OutcomeDenied}, nil
	}

	// Step 4: the post-approval write sequence, one transaction. The
	// order row goes in first with the message id as conflict key, so a
	// retried run bails out before touching inventory or credit.
	replay := false
	txErr := f.tx.WithStore(ctx, func(s store.RecordStore) error {
		inserted, err := s.PersistOrder(ctx, buildOrderRecord(order, orderID, docRef))
		if err != nil {
			return err
		}
		if !inserted {
			return errAlreadyFulfilled
		}
		for _, line := range order.Lines {
			if err := s.ReserveInventory(ctx, line.MatchedSKU, line.RequestedQty); err != nil {
				return err
			}
		}
		return s.IncreaseExposure(ctx, order.CustomerID, order.Totals.Total)
	})

	switch {
	case txErr == nil:
	case errors.Is(txErr, errAlreadyFulfilled):
		replay = true
		slog.InfoContext(ctx, "order already fulfilled, skipping writes")
	default:
		// Approval and document are preserved; an operator reconciles by
		// hand. The confirmation reply is suppressed - a promise must not
		// go out without a durable record behind it.
		slog.ErrorContext(ctx, "post-approval write failed, needs manual follow-up",
			"error", txErr)
		f.notifier.Notify(ctx, notify.Event{
			Kind:         "order_needs_follow_up",
			MessageID:    order.MessageID,
			OrderID:      orderID,
			CustomerName: order.CustomerName,
			Total:        order.Totals.Total,
			DocumentRef:  docRef,
			Detail:       txErr.Error(),
		})
		return domain.Outcome{
			Kind: domain.OutcomeFulfilled,
			Fulfillment: &domain.FulfillmentOutcome{
				MessageID:           order.MessageID,
				OrderID:             orderID,
				DocumentRef:         docRef,
				Approval:            state,
				NeedsManualFollowUp: true,
			},
		}, nil
	}

	outcome := domain.FulfillmentOutcome{
		MessageID:   order.MessageID,
		OrderID:     orderID,
		DocumentRef: docRef,
		Approval:    state,
	}

	// Step 5: confirm to the customer, then tell operations. A failed
	// reply flags the order instead of failing the run - the record is
	// durable, resending is an operator action, not a pipeline retry.
	if err := f.mail.Reply(ctx, order.ThreadID, confirmationBody(order, orderID), docRef); err != nil {
		slog.ErrorContext(ctx, "confirmation reply failed, flagging order", "error", err)
		outcome.NeedsManualFollowUp = true
		flagErr := f.tx.WithStore(ctx, func(s store.RecordStore) error {
			return s.FlagManualFollowUp(ctx, orderID)
		})
		if flagErr != nil {
			slog.ErrorContext(ctx, "failed to flag order for follow-up", "error", flagErr)
		}
	}

	f.notifier.Notify(ctx, notify.Event{
		Kind:         "order_fulfilled",
		MessageID:    order.MessageID,
		OrderID:      orderID,
		CustomerName: order.CustomerName,
		Total:        order.Totals.Total,
		ItemCount:    len(order.Lines),
		DocumentRef:  docRef,
	})

	slog.InfoContext(ctx, "order fulfilled",
		"replay", replay,
		"document_ref", docRef,
		"needs_follow_up", outcome.NeedsManualFollowUp)

	return domain.Outcome{Kind: domain.OutcomeFulfilled, Fulfillment: &outcome}, nil
}

func buildOrderRecord(order domain.ResolvedOrder, orderID int64, docRef string) store.OrderRecord {
	lines := make([]store.OrderLineRecord, len(order.Lines))
	for i, l := range order.Lines {
		lines[i] = store.OrderLineRecord{
			SKU:         l.MatchedSKU,
			Description: l.Request.Description,
			Quantity:    l.RequestedQty,
			UnitPrice:   l.UnitPrice,
			Subtotal:    l.Subtotal,
		}
	}
	return store.OrderRecord{
		OrderID:     orderID,
		MessageID:   order.MessageID,
		CustomerID:  order.CustomerID,
		PONumber:    order.PONumber,
		DocumentRef: docRef,
		Totals:      order.Totals,
		Lines:       lines,
	}
}

func confirmationBody(order domain.ResolvedOrder, orderID int64) string {
	body := fmt.Sprintf("Dear %s,\n\nThank you for your order", order.CustomerName)
	if order.PONumber != "" {
		body += fmt.Sprintf(" (ref %s)", order.PONumber)
	}
	body += fmt.Sprintf(". We confirm order %d:\n\n", orderID)
	for _, l := range order.Lines {
		body += fmt.Sprintf("- %dx %s @ EUR %.2f -> EUR %.2f\n",
			l.RequestedQty, l.ProductName, l.UnitPrice, l.Subtotal)
	}
	body += fmt.Sprintf("\nSubtotal: EUR %.2f\nVAT: EUR %.2f\nShipping: EUR %.2f\nTotal: EUR %.2f\n",
		order.Totals.Subtotal, order.Totals.Tax, order.Totals.Shipping, order.Totals.Total)
	body += "\nYour invoice is attached.\n\nBest regards\nPaperCo Sales"
	return body
}
