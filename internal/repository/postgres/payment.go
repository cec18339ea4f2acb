package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/utafrali/FulfillmentGo/internal/domain"
	"github.com/utafrali/FulfillmentGo/pkg/database"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
)

// PaymentRepository implements repository.PaymentRepository using PostgreSQL.
type PaymentRepository struct {
	pool database.DBTX
}

// NewPaymentRepository creates a new PostgreSQL-backed payment repository.
func NewPaymentRepository(pool database.DBTX) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// GetByOrderID retrieves the newest non-deleted payment for an order.
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	var p domain.Payment
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_id, status, status_message, method, created_at, updated_at
		FROM payments
		WHERE order_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT 1`,
		orderID,
	).Scan(&p.ID, &p.OrderID, &p.Status, &p.StatusMessage, &p.Method, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("payment for order", orderID)
		}
		return nil, fmt.Errorf("get payment by order: %w", err)
	}
	return &p, nil
}

// MarkPaid settles the order's PENDING payment as PAID. The status guard makes
// duplicate deliveries benign no-ops and guarantees PAID never reverts.
func (r *PaymentRepository) MarkPaid(ctx context.Context, orderID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, status_message = 'payment settled', updated_at = NOW()
		WHERE order_id = $1 AND status = $3 AND deleted_at IS NULL`,
		orderID, domain.PaymentStatusPaid, domain.PaymentStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment paid for order %s: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkFailed settles the order's PENDING payment as FAILED with the reason.
// PAID and already-FAILED payments are untouched.
func (r *PaymentRepository) MarkFailed(ctx context.Context, orderID, reason string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE payments
		SET status = $2, status_message = $3, updated_at = NOW()
		WHERE order_id = $1 AND status = $4 AND deleted_at IS NULL`,
		orderID, domain.PaymentStatusFailed, reason, domain.PaymentStatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark payment failed for order %s: %w", orderID, err)
	}
	return tag.RowsAffected() > 0, nil
}
