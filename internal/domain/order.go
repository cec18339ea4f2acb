package domain

import "time"

// Order status constants. An order is created PENDING, moves to RESERVED once
// stock is held for it, and ends COMPLETED after payment and sale. REJECTED is
// terminal and reachable from PENDING (stock shortfall) or RESERVED (payment
// failure).
const (
	OrderStatusPending   = "PENDING"
	OrderStatusReserved  = "RESERVED"
	OrderStatusCompleted = "COMPLETED"
	OrderStatusRejected  = "REJECTED"
)

// Order represents a customer order moving through the fulfillment saga.
type Order struct {
	ID            string      `json:"id"`
	CustomerID    string      `json:"customer_id"`
	Status        string      `json:"status"`
	StatusMessage string      `json:"status_message,omitempty"`
	Items         []OrderItem `json:"items"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	DeletedAt     *time.Time  `json:"deleted_at,omitempty"`
}

// OrderItem represents a line item in an order.
type OrderItem struct {
	ID        string `json:"id"`
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// TerminalStatuses returns the statuses that absorb further transitions.
func TerminalStatuses() []string {
	return []string{OrderStatusCompleted, OrderStatusRejected}
}

// IsTerminal reports whether the status is terminal.
func IsTerminal(status string) bool {
	return status == OrderStatusCompleted || status == OrderStatusRejected
}

// AllowedSources returns the statuses an order may be in when transitioning to
// target. A transition from a status not in this set must be dropped as a
// duplicate or out-of-order delivery.
func AllowedSources(target string) []string {
	switch target {
	case OrderStatusPending:
		// Status-message refresh on the freshly created order.
		return []string{OrderStatusPending}
	case OrderStatusReserved:
		return []string{OrderStatusPending}
	case OrderStatusCompleted:
		return []string{OrderStatusReserved}
	case OrderStatusRejected:
		return []string{OrderStatusPending, OrderStatusReserved}
	default:
		return nil
	}
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	for _, s := range AllowedSources(target) {
		if o.Status == s {
			return true
		}
	}
	return false
}
