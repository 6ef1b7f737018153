package notify

import "context"

// Event is an operations notification. Only fulfillments emit one;
// rejections are customer-facing and stay off the internal channel.
type Event struct {
	Kind         string  `json:"kind"`
	MessageID    string  `json:"message_id"`
	OrderID      int64   `json:"order_id,omitempty"`
	CustomerName string  `json:"customer_name,omitempty"`
	Total        float64 `json:"total,omitempty"`
	ItemCount    int     `json:"item_count,omitempty"`
	DocumentRef  string  `json:"document_ref,omitempty"`
	Detail       string  `json:"detail,omitempty"`
}

// Notifier is fire-and-forget: implementations log failures and move on,
// a notification must never block or fail the pipeline.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Noop discards events. Used when no webhook is configured.
type Noop struct{}

func (Noop) Notify(context.Context, Event) {}
