package domain

import "time"

// Payment status constants. A payment is created PENDING alongside its order.
// PAID never reverts; FAILED is set when charge attempts are exhausted.
const (
	PaymentStatusPending = "PENDING"
	PaymentStatusPaid    = "PAID"
	PaymentStatusFailed  = "FAILED"
)

// Payment represents the single payment attached to an order. At most one
// non-deleted PENDING payment exists per order.
type Payment struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	Status        string     `json:"status"`
	StatusMessage string     `json:"status_message,omitempty"`
	Method        string     `json:"method"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// IsSettled reports whether the payment reached a final state.
func (p *Payment) IsSettled() bool {
	return p.Status == PaymentStatusPaid || p.Status == PaymentStatusFailed
}
