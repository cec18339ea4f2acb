package repository

import (
	"context"

	"github.com/utafrali/FulfillmentGo/internal/domain"
)

// OrderFilter defines filter criteria for listing orders.
type OrderFilter struct {
	CustomerID *string
	Status     *string
	Page       int
	PerPage    int
}

// OrderRepository defines the interface for order persistence operations.
type OrderRepository interface {
	// CreateWithPayment atomically inserts the order, its items, and its
	// PENDING payment. Inside the same transaction it rejects when the
	// customer already has a non-deleted PENDING payment (conflict) or when
	// aggregate stock cannot cover an item (insufficient stock).
	CreateWithPayment(ctx context.Context, order *domain.Order, payment *domain.Payment) error

	// GetByID retrieves a non-deleted order by ID, including items.
	GetByID(ctx context.Context, id string) (*domain.Order, error)

	// List returns non-deleted orders matching the filter plus the total count.
	List(ctx context.Context, filter OrderFilter) ([]domain.Order, int, error)

	// Transition moves the order to status with the given message, only when
	// its current status is one of allowedFrom. Returns the updated order and
	// true when the transition applied; the current order and false when it
	// was absorbed as a duplicate or out-of-order delivery.
	Transition(ctx context.Context, id string, allowedFrom []string, status, message string) (*domain.Order, bool, error)
}

// PaymentRepository defines the interface for payment persistence operations.
type PaymentRepository interface {
	// GetByOrderID retrieves the newest non-deleted payment for an order.
	GetByOrderID(ctx context.Context, orderID string) (*domain.Payment, error)

	// MarkPaid settles the order's PENDING payment as PAID. Returns false
	// when no PENDING payment exists (duplicate delivery); PAID never reverts.
	MarkPaid(ctx context.Context, orderID string) (bool, error)

	// MarkFailed settles the order's PENDING payment as FAILED with a reason.
	// Returns false when no PENDING payment exists.
	MarkFailed(ctx context.Context, orderID, reason string) (bool, error)
}

// StockRepository defines the interface for the stock ledger.
type StockRepository interface {
	// Reserve holds stock for every order line, all-or-nothing, under row
	// locks. Each line is satisfied from a single lot with enough available
	// quantity. Redelivery for an order that already has reservations is a
	// no-op. A shortfall returns an insufficient-stock error naming the
	// product.
	Reserve(ctx context.Context, orderID string, items []domain.OrderItem) error

	// Sell flips the order's active reservations to sold and removes the
	// quantity from the lots' reserved counters. Returns the number of
	// reservations flipped; zero means duplicate delivery.
	Sell(ctx context.Context, orderID string) (int, error)

	// Release flips the order's active reservations to released and moves the
	// quantity back from reserved to available. Returns the number flipped.
	Release(ctx context.Context, orderID string) (int, error)

	// Availability aggregates available and reserved quantity per product.
	Availability(ctx context.Context) ([]domain.ProductAvailability, error)
}
