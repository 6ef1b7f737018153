package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"paperco.app/intake/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInsufficientStock is returned by ReserveInventory when the guarded
// decrement would take availability below zero.
var ErrInsufficientStock = errors.New("insufficient stock")

// CreditProfile is a customer's credit position as persisted.
type CreditProfile struct {
	CustomerID   string
	Name         string
	CreditLimit  float64
	OpenExposure float64
}

// NewCustomer holds the fields for creating a customer on the fly from an
// order. Credit terms come from configuration, not from the message.
type NewCustomer struct {
	Name          string
	ContactPerson string
	Email         string
	CreditLimit   float64
}

// OrderLineRecord is one persisted order line.
type OrderLineRecord struct {
	SKU         string
	Description string
	Quantity    int
	UnitPrice   float64
	Subtotal    float64
}

// OrderRecord is the durable form of a fulfilled order.
type OrderRecord struct {
	OrderID             int64
	MessageID           string
	CustomerID          string
	PONumber            string
	DocumentRef         string
	Totals              domain.Totals
	Lines               []OrderLineRecord
	NeedsManualFollowUp bool
}

// RecordStore is the persistent business-record capability. Write
// operations are only invoked post-approval and are safe to retry:
// PersistOrder is idempotent per message id, and the pair of balance
// mutations runs inside one transaction via TxRunner so a replayed order
// either sees the conflict or applies exactly once.
type RecordStore interface {
	GetCreditProfile(ctx context.Context, customerID string) (*CreditProfile, error)
	CreateCustomer(ctx context.Context, fields NewCustomer) (*CreditProfile, error)

	// ReserveInventory decrements availability for a SKU, guarded so two
	// concurrent orders cannot oversell: the decrement only applies while
	// qty_available covers it.
	ReserveInventory(ctx context.Context, sku string, qty int) error

	// IncreaseExposure adds the order total to the customer's open exposure.
	IncreaseExposure(ctx context.Context, customerID string, amount float64) error

	// PersistOrder writes the order and its lines. Returns false without
	// writing anything when an order for the same message id already
	// exists, which is how a retried run stays at-most-once.
	PersistOrder(ctx context.Context, rec OrderRecord) (bool, error)

	// FlagManualFollowUp marks a persisted order for operator attention.
	FlagManualFollowUp(ctx context.Context, orderID int64) error
}

// TxRunner executes a function against a RecordStore bound to a single
// database transaction. The post-approval write sequence runs through this
// so inventory, exposure and the order row commit or roll back together.
type TxRunner interface {
	WithStore(ctx context.Context, fn func(RecordStore) error) error
}

// Querier is the subset of pgx shared by pools and transactions.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
