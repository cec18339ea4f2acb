package payment

import (
	"context"
	"time"
)

// ChargeInput holds the parameters for charging an order's payment.
type ChargeInput struct {
	OrderID string
	Method  string
}

// ChargeResult is the successful outcome of a charge.
type ChargeResult struct {
	Reference string
	ChargedAt time.Time
}

// Provider charges payments. A declined or unreachable charge returns an
// error; the caller decides the retry policy.
type Provider interface {
	Name() string
	Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error)
}
