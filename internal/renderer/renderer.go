package renderer

import (
	"context"

	"paperco.app/intake/internal/domain"
)

// Renderer is the document-rendering capability: a stateless, pure
// function of the order content. The returned reference is attached to the
// confirmation reply and the operations notification.
type Renderer interface {
	Render(ctx context.Context, order domain.ResolvedOrder, orderID int64) (string, error)
}
