package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// Simulator is a payment provider that takes a configurable amount of time
// per charge and declines a configurable percentage of them. It stands in for
// a real gateway in every environment.
type Simulator struct {
	duration        time.Duration
	failProbability float64 // percent, 0-100
	roll            func() float64
}

// NewSimulator creates a simulator. failProbability is a percentage: 0 never
// declines, 100 always declines.
func NewSimulator(duration time.Duration, failProbability float64) *Simulator {
	if failProbability < 0 {
		failProbability = 0
	}
	if failProbability > 100 {
		failProbability = 100
	}
	return &Simulator{
		duration:        duration,
		failProbability: failProbability,
		roll:            rand.Float64, // #nosec G404 -- simulated charge outcome, not security sensitive
	}
}

// Name identifies the provider in logs.
func (s *Simulator) Name() string { return "simulator" }

// Charge sleeps for the configured duration, then succeeds or declines based
// on the failure probability. The sleep respects context cancellation.
func (s *Simulator) Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error) {
	if s.duration > 0 {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("charge order %s: %w", input.OrderID, ctx.Err())
		case <-time.After(s.duration):
		}
	}

	if s.roll()*100 < s.failProbability {
		return nil, fmt.Errorf("charge order %s: declined by provider", input.OrderID)
	}

	return &ChargeResult{
		Reference: uuid.New().String(),
		ChargedAt: time.Now().UTC(),
	}, nil
}
