package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"paperco.app/intake/common/id"
	"paperco.app/intake/core/db"
)

// PgStore implements RecordStore against Postgres. It is constructed over
// either the pool or a transaction, so the same queries serve both the
// read path and the post-approval transactional write sequence.
type PgStore struct {
	q Querier
}

func NewPgStore(q Querier) *PgStore {
	return &PgStore{q: q}
}

func (s *PgStore) GetCreditProfile(ctx context.Context, customerID string) (*CreditProfile, error) {
	var p CreditProfile
	err := s.q.QueryRow(ctx,
		`SELECT id, name, credit_limit, open_exposure FROM customers WHERE id = $1`,
		customerID,
	).Scan(&p.CustomerID, &p.Name, &p.CreditLimit, &p.OpenExposure)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting credit profile: %w", err)
	}
	return &p, nil
}

func (s *PgStore) CreateCustomer(ctx context.Context, fields NewCustomer) (*CreditProfile, error) {
	customerID := fmt.Sprintf("C-%d", id.New())

	_, err := s.q.Exec(ctx,
		`INSERT INTO customers (id, name, contact_person, email, credit_limit, open_exposure)
		 VALUES ($1, $2, $3, $4, $5, 0)`,
		customerID, fields.Name, fields.ContactPerson, fields.Email, fields.CreditLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("creating customer: %w", err)
	}

	return &CreditProfile{
		CustomerID:   customerID,
		Name:         fields.Name,
		CreditLimit:  fields.CreditLimit,
		OpenExposure: 0,
	}, nil
}

func (s *PgStore) ReserveInventory(ctx context.Context, sku string, qty int) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE products SET qty_available = qty_available - $2
		 WHERE sku = $1 AND qty_available >= $2`,
		sku, qty,
	)
	if err != nil {
		return fmt.Errorf("reserving inventory for %s: %w", sku, err)
	}
	if tag.RowsAffected() == 0 {
		// Either the SKU vanished or stock moved under us. Both read the
		// same to the caller: the reservation did not happen.
		return fmt.Errorf("sku %s qty %d: %w", sku, qty, ErrInsufficientStock)
	}
	return nil
}

func (s *PgStore) IncreaseExposure(ctx context.Context, customerID string, amount float64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE customers SET open_exposure = open_exposure + $2 WHERE id = $1`,
		customerID, amount,
	)
	if err != nil {
		return fmt.Errorf("increasing exposure for %s: %w", customerID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s: %w", customerID, ErrNotFound)
	}
	return nil
}

func (s *PgStore) PersistOrder(ctx context.Context, rec OrderRecord) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`INSERT INTO orders (id, message_id, customer_id, po_number, document_ref,
		                     subtotal, tax, shipping, total, needs_follow_up)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (message_id) DO NOTHING`,
		rec.OrderID, rec.MessageID, rec.CustomerID, rec.PONumber, rec.DocumentRef,
		rec.Totals.Subtotal, rec.Totals.Tax, rec.Totals.Shipping, rec.Totals.Total,
		rec.NeedsManualFollowUp,
	)
	if err != nil {
		return false, fmt.Errorf("persisting order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for i, line := range rec.Lines {
		_, err := s.q.Exec(ctx,
			`INSERT INTO order_lines (order_id, line_no, sku, description, quantity, unit_price, subtotal)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.OrderID, i+1, line.SKU, line.Description, line.Quantity, line.UnitPrice, line.Subtotal,
		)
		if err != nil {
			return false, fmt.Errorf("persisting order line %d: %w", i+1, err)
		}
	}

	return true, nil
}

func (s *PgStore) FlagManualFollowUp(ctx context.Context, orderID int64) error {
	tag, err := s.q.Exec(ctx,
		`UPDATE orders SET needs_follow_up = TRUE WHERE id = $1`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("flagging order %d: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", orderID, ErrNotFound)
	}
	return nil
}

// PgTxRunner adapts core/db transactions to the RecordStore interface.
type PgTxRunner struct {
	db *db.DB
}

func NewPgTxRunner(database *db.DB) *PgTxRunner {
	return &PgTxRunner{db: database}
}

func (r *PgTxRunner) WithStore(ctx context.Context, fn func(RecordStore) error) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(NewPgStore(tx))
	})
}
