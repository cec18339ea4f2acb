package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/FulfillmentGo/internal/domain"
	"github.com/utafrali/FulfillmentGo/pkg/database"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
)

// StockRepository implements repository.StockRepository using PostgreSQL.
type StockRepository struct {
	pool database.DBTX
}

// NewStockRepository creates a new PostgreSQL-backed stock repository.
func NewStockRepository(pool database.DBTX) *StockRepository {
	return &StockRepository{pool: pool}
}

// Reserve holds stock for every order line inside one transaction. Each line
// is satisfied from a single lot with enough available quantity, locked with
// FOR UPDATE; the first shortfall rolls the whole reservation back. An order
// that already has reservation rows is a redelivery and returns nil.
func (r *StockRepository) Reserve(ctx context.Context, orderID string, items []domain.OrderItem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_reservations WHERE order_id = $1)`,
		orderID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check existing reservations: %w", err)
	}
	if exists {
		return nil
	}

	for _, item := range items {
		// Single-lot policy: the line must fit in one lot. Prefer the
		// fullest lot so small lots drain last.
		var lotID string
		err = tx.QueryRow(ctx, `
			SELECT id FROM stock_lots
			WHERE product_id = $1 AND available >= $2
			ORDER BY available DESC
			LIMIT 1
			FOR UPDATE`,
			item.ProductID, item.Quantity,
		).Scan(&lotID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return apperrors.InsufficientStock(item.ProductID)
			}
			return fmt.Errorf("lock stock lot for product %s: %w", item.ProductID, err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE stock_lots
			SET available = available - $2, reserved = reserved + $2, updated_at = NOW()
			WHERE id = $1`,
			lotID, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("reserve on lot %s: %w", lotID, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO stock_reservations (id, order_id, lot_id, product_id, quantity, state, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`,
			uuid.New().String(), orderID, lotID, item.ProductID, item.Quantity, domain.ReservationActive,
		)
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// Sell flips the order's active reservations to sold and removes the sold
// quantity from each lot's reserved counter. Zero flipped rows means the
// delivery was a duplicate.
func (r *StockRepository) Sell(ctx context.Context, orderID string) (int, error) {
	return r.settle(ctx, orderID, domain.ReservationSold)
}

// Release flips the order's active reservations to released and moves the
// quantity back from reserved to available.
func (r *StockRepository) Release(ctx context.Context, orderID string) (int, error) {
	return r.settle(ctx, orderID, domain.ReservationReleased)
}

// settle applies the compensating or finalizing side of a reservation under
// row locks on the affected lots.
func (r *StockRepository) settle(ctx context.Context, orderID, state string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT r.lot_id, r.quantity
		FROM stock_reservations r
		JOIN stock_lots l ON l.id = r.lot_id
		WHERE r.order_id = $1 AND r.state = $2
		ORDER BY r.lot_id
		FOR UPDATE OF l`,
		orderID, domain.ReservationActive,
	)
	if err != nil {
		return 0, fmt.Errorf("lock reservations for order %s: %w", orderID, err)
	}

	type hold struct {
		lotID    string
		quantity int
	}
	var holds []hold
	for rows.Next() {
		var h hold
		if err := rows.Scan(&h.lotID, &h.quantity); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan reservation: %w", err)
		}
		holds = append(holds, h)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate reservations: %w", err)
	}

	if len(holds) == 0 {
		return 0, nil
	}

	lotUpdate := `UPDATE stock_lots SET reserved = reserved - $2, updated_at = NOW() WHERE id = $1`
	if state == domain.ReservationReleased {
		lotUpdate = `UPDATE stock_lots SET reserved = reserved - $2, available = available + $2, updated_at = NOW() WHERE id = $1`
	}

	for _, h := range holds {
		if _, err := tx.Exec(ctx, lotUpdate, h.lotID, h.quantity); err != nil {
			return 0, fmt.Errorf("settle lot %s: %w", h.lotID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE stock_reservations SET state = $2, updated_at = NOW()
		WHERE order_id = $1 AND state = $3`,
		orderID, state, domain.ReservationActive,
	)
	if err != nil {
		return 0, fmt.Errorf("flip reservations for order %s: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return len(holds), nil
}

// Availability aggregates available and reserved quantity per product.
func (r *StockRepository) Availability(ctx context.Context) ([]domain.ProductAvailability, error) {
	query := `
		SELECT product_id, COALESCE(SUM(available), 0), COALESCE(SUM(reserved), 0)
		FROM stock_lots
		GROUP BY product_id
		ORDER BY product_id`

	ctx, end := database.TraceQuery(ctx, "StockAvailability", query)
	rows, err := r.pool.Query(ctx, query)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("query availability: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ProductAvailability, 0)
	for rows.Next() {
		var pa domain.ProductAvailability
		if err := rows.Scan(&pa.ProductID, &pa.Available, &pa.Reserved); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		out = append(out, pa)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate availability: %w", err)
	}

	return out, nil
}
