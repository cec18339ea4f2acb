package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker/v2"
)

var breakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "payment_circuit_breaker_state",
		Help: "Current state of the payment provider circuit breaker (0=closed, 1=half-open, 2=open)",
	},
	[]string{"provider"},
)

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// BreakerConfig holds circuit breaker settings for the payment provider.
type BreakerConfig struct {
	// MaxRequests is the number of requests allowed in the half-open state.
	MaxRequests uint32
	// Interval is the cyclic period of the closed state for clearing counts.
	Interval time.Duration
	// Timeout is how long the breaker stays open before moving to half-open.
	Timeout time.Duration
	// FailureRatio trips the breaker once reached.
	FailureRatio float64
	// MinRequests is the minimum sample before the ratio is evaluated.
	MinRequests uint32
}

// DefaultBreakerConfig returns sensible defaults for the payment breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// BreakerProvider wraps a Provider with circuit breaker protection so a
// misbehaving gateway fails fast instead of holding payment workers.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[*ChargeResult]
}

// NewBreakerProvider wraps the given provider with a circuit breaker.
func NewBreakerProvider(inner Provider, cfg BreakerConfig, logger *slog.Logger) *BreakerProvider {
	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("payment circuit breaker state change",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			breakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	}

	breakerState.WithLabelValues(inner.Name()).Set(0)

	return &BreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*ChargeResult](settings),
	}
}

// Name identifies the wrapped provider.
func (p *BreakerProvider) Name() string { return p.inner.Name() }

// Charge runs the charge through the breaker. When the breaker is open the
// charge fails immediately with gobreaker.ErrOpenState.
func (p *BreakerProvider) Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error) {
	return p.breaker.Execute(func() (*ChargeResult, error) {
		return p.inner.Charge(ctx, input)
	})
}
