package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/FulfillmentGo/internal/domain"
	"github.com/utafrali/FulfillmentGo/internal/repository"
	"github.com/utafrali/FulfillmentGo/pkg/database"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
)

// OrderRepository implements repository.OrderRepository using PostgreSQL.
type OrderRepository struct {
	pool database.DBTX
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool database.DBTX) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// CreateWithPayment inserts the order, its items, and its PENDING payment in
// one transaction. The same transaction enforces the one-pending-payment-per-
// customer rule and the stock feasibility pre-check, so a failed check rolls
// everything back.
func (r *OrderRepository) CreateWithPayment(ctx context.Context, o *domain.Order, p *domain.Payment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// A customer with an order still awaiting payment may not place another.
	var hasPending bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM payments p
			JOIN orders o ON o.id = p.order_id
			WHERE o.customer_id = $1
			  AND p.status = 'PENDING'
			  AND p.deleted_at IS NULL
			  AND o.deleted_at IS NULL
		)`, o.CustomerID).Scan(&hasPending)
	if err != nil {
		return fmt.Errorf("check pending payment: %w", err)
	}
	if hasPending {
		return apperrors.Conflict("customer already has an order awaiting payment")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, customer_id, status, status_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		o.ID, o.CustomerID, o.Status, o.StatusMessage, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, product_id, quantity)
			VALUES ($1, $2, $3, $4)`,
			item.ID, item.OrderID, item.ProductID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, status, status_message, method, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OrderID, p.Status, p.StatusMessage, p.Method, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	// Feasibility pre-check: aggregate availability must cover each line.
	// The actual hold happens later under row locks; this only rejects
	// orders that cannot possibly be fulfilled right now. Surfaces as a
	// validation error to the API caller; the insufficient-stock kind is
	// reserved for the async reserve handler.
	for _, item := range o.Items {
		var available int
		err = tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(available), 0) FROM stock_lots WHERE product_id = $1`,
			item.ProductID,
		).Scan(&available)
		if err != nil {
			return fmt.Errorf("check stock for product %s: %w", item.ProductID, err)
		}
		if available < item.Quantity {
			return apperrors.InvalidInput(fmt.Sprintf("insufficient stock for product %s", item.ProductID))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

const orderColumns = `o.id, o.customer_id, o.status, o.status_message, o.created_at, o.updated_at`

// GetByID retrieves a non-deleted order by ID, eagerly loading its items in a
// single query via JSONB_AGG.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `,
			COALESCE(
				JSONB_AGG(
					JSONB_BUILD_OBJECT(
						'id', oi.id,
						'order_id', oi.order_id,
						'product_id', oi.product_id,
						'quantity', oi.quantity
					) ORDER BY oi.id
				) FILTER (WHERE oi.id IS NOT NULL),
				'[]'::jsonb
			) AS items
		FROM orders o
		LEFT JOIN order_items oi ON o.id = oi.order_id
		WHERE o.id = $1 AND o.deleted_at IS NULL
		GROUP BY ` + orderColumns

	var (
		o         domain.Order
		itemsJSON []byte
	)

	ctx, end := database.TraceQuery(ctx, "GetOrder", query)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.CustomerID, &o.Status, &o.StatusMessage, &o.CreatedAt, &o.UpdatedAt, &itemsJSON,
	)
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}

	o.Items = []domain.OrderItem{}
	if len(itemsJSON) > 0 && string(itemsJSON) != "null" && string(itemsJSON) != "[]" {
		if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}

	return &o, nil
}

// List returns non-deleted orders matching the filter with the total count.
func (r *OrderRepository) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	conditions := []string{"deleted_at IS NULL"}
	args := []any{}
	argIndex := 1

	if filter.CustomerID != nil {
		conditions = append(conditions, fmt.Sprintf("customer_id = $%d", argIndex))
		args = append(args, *filter.CustomerID)
		argIndex++
	}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT id, customer_id, status, status_message, created_at, updated_at,
			   count(*) OVER() AS total_count
		FROM orders
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		strings.Join(conditions, " AND "), argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := make([]domain.Order, 0)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.CustomerID, &o.Status, &o.StatusMessage, &o.CreatedAt, &o.UpdatedAt, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		o.Items = []domain.OrderItem{}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate orders: %w", err)
	}

	return orders, totalCount, nil
}

// Transition applies a guarded status update. The status filter absorbs
// duplicate and out-of-order deliveries: when the current status is not in
// allowedFrom, no row updates and the current order is returned with
// transitioned=false.
func (r *OrderRepository) Transition(ctx context.Context, id string, allowedFrom []string, status, message string) (*domain.Order, bool, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status = $2, status_message = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL AND status = ANY($4)
		RETURNING id, customer_id, status, status_message, created_at, updated_at`,
		id, status, message, allowedFrom,
	).Scan(&o.ID, &o.CustomerID, &o.Status, &o.StatusMessage, &o.CreatedAt, &o.UpdatedAt)
	if err == nil {
		return &o, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("transition order %s to %s: %w", id, status, err)
	}

	// No row matched: either the order is gone or it is not in a source
	// status for this transition.
	err = r.pool.QueryRow(ctx, `
		SELECT id, customer_id, status, status_message, created_at, updated_at
		FROM orders
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&o.ID, &o.CustomerID, &o.Status, &o.StatusMessage, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, apperrors.NotFound("order", id)
		}
		return nil, false, fmt.Errorf("load order %s after transition miss: %w", id, err)
	}

	return &o, false, nil
}
