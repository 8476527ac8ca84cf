package postgres

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/genovahq/insurance/internal/domain/errors"
	"github.com/genovahq/insurance/internal/domain/insurance"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository implements insurance.OrderDataProvider against the local
// order store. In a full deployment this is the read side of the host
// commerce system's order data.
type OrderRepository struct {
	pool *pgxpool.Pool
	tx   *TxManager
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool, tx: NewTxManager(pool)}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// GetOrderInsuranceInput loads the order header and line items needed for a
// policy purchase request.
func (r *OrderRepository) GetOrderInsuranceInput(ctx context.Context, orderID string) (*insurance.OrderInput, error) {
	input := &insurance.OrderInput{OrderID: orderID}

	err := r.db(ctx).QueryRow(ctx,
		`SELECT buyer_name, buyer_email, total_cents FROM orders WHERE id = $1`, orderID,
	).Scan(&input.Buyer.Name, &input.Buyer.Email, &input.TotalCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}

	rows, err := r.db(ctx).Query(ctx,
		`SELECT sku, name, quantity, unit_price_cents, line_total_cents
		 FROM order_items WHERE order_id = $1 ORDER BY sku`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item insurance.OrderItem
		if err := rows.Scan(&item.SKU, &item.Name, &item.Quantity, &item.UnitPriceCents, &item.LineTotalCents); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		input.Items = append(input.Items, item)
	}
	return input, rows.Err()
}

// CreateOrder stores an order header with its items in one transaction, so a
// failed item insert never leaves a half-written order behind. Used by the
// checkout event intake and test fixtures.
func (r *OrderRepository) CreateOrder(ctx context.Context, input *insurance.OrderInput) error {
	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := r.db(ctx).Exec(ctx,
			`INSERT INTO orders (id, buyer_name, buyer_email, total_cents, created_at)
			 VALUES ($1, $2, $3, $4, NOW())
			 ON CONFLICT (id) DO NOTHING`,
			input.OrderID, input.Buyer.Name, input.Buyer.Email, input.TotalCents,
		)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for _, item := range input.Items {
			_, err := r.db(ctx).Exec(ctx,
				`INSERT INTO order_items (id, order_id, sku, name, quantity, unit_price_cents, line_total_cents)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				uuid.New(), input.OrderID, item.SKU, item.Name, item.Quantity, item.UnitPriceCents, item.LineTotalCents,
			)
			if err != nil {
				return fmt.Errorf("insert order item %s: %w", item.SKU, err)
			}
		}
		return nil
	})
}
