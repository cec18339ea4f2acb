package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/utafrali/FulfillmentGo/internal/event"
	"github.com/utafrali/FulfillmentGo/internal/payment"
	"github.com/utafrali/FulfillmentGo/internal/queue"
)

// QueuePayments is the durable queue charge jobs run on.
const QueuePayments = "payments"

// JobEnqueuer is the subset of the queue store the payment service enqueues
// through.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, queueName string, payload []byte, maxAttempts int) (int64, error)
}

type chargeJob struct {
	OrderID string `json:"order_id"`
	Method  string `json:"method"`
}

// PaymentService runs charges through the payment provider on the durable
// queue. A transient provider failure retries with backoff; once attempts are
// exhausted the dead-letter hook reports the failure into the saga exactly
// once.
type PaymentService struct {
	jobs        JobEnqueuer
	provider    payment.Provider
	bus         EventBus
	maxAttempts int
	logger      *slog.Logger
}

// NewPaymentService creates the payment service.
func NewPaymentService(
	jobs JobEnqueuer,
	provider payment.Provider,
	bus EventBus,
	maxAttempts int,
	logger *slog.Logger,
) *PaymentService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &PaymentService{
		jobs:        jobs,
		provider:    provider,
		bus:         bus,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Start enqueues the charge job for an order.
func (s *PaymentService) Start(ctx context.Context, orderID, method string) error {
	payload, err := json.Marshal(chargeJob{OrderID: orderID, Method: method})
	if err != nil {
		return fmt.Errorf("marshal charge job: %w", err)
	}

	jobID, err := s.jobs.Enqueue(ctx, QueuePayments, payload, s.maxAttempts)
	if err != nil {
		return fmt.Errorf("enqueue charge for order %s: %w", orderID, err)
	}

	s.logger.InfoContext(ctx, "charge enqueued",
		slog.String("order_id", orderID),
		slog.Int64("job_id", jobID),
	)
	return nil
}

// ChargeHandler returns the queue handler that runs one charge attempt.
func (s *PaymentService) ChargeHandler() queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var charge chargeJob
		if err := json.Unmarshal(job.Payload, &charge); err != nil {
			s.logger.ErrorContext(ctx, "undecodable charge job dropped",
				slog.Int64("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			return nil
		}

		result, err := s.provider.Charge(ctx, payment.ChargeInput{
			OrderID: charge.OrderID,
			Method:  charge.Method,
		})
		if err != nil {
			return fmt.Errorf("charge via %s: %w", s.provider.Name(), err)
		}

		s.logger.InfoContext(ctx, "charge succeeded",
			slog.String("order_id", charge.OrderID),
			slog.String("reference", result.Reference),
		)

		return s.bus.EmitNew(ctx, event.PaymentSuccess, charge.OrderID, event.PaymentSuccessData{
			OrderID: charge.OrderID,
		})
	}
}

// DeadLetter returns the hook invoked when a charge job exhausts its
// attempts. It reports the failure into the saga.
func (s *PaymentService) DeadLetter() queue.DeadLetterFunc {
	return func(ctx context.Context, job *queue.Job, cause error) {
		var charge chargeJob
		if err := json.Unmarshal(job.Payload, &charge); err != nil {
			s.logger.ErrorContext(ctx, "undecodable dead charge job",
				slog.Int64("job_id", job.ID),
				slog.String("error", err.Error()),
			)
			return
		}

		reason := "payment failed"
		if cause != nil {
			reason = cause.Error()
		}

		s.logger.WarnContext(ctx, "charge attempts exhausted",
			slog.String("order_id", charge.OrderID),
			slog.String("reason", reason),
		)

		if err := s.bus.EmitNew(ctx, event.PaymentFailed, charge.OrderID, event.PaymentFailedData{
			OrderID: charge.OrderID,
			Reason:  reason,
		}); err != nil {
			s.logger.ErrorContext(ctx, "failed to emit order.payment.failed event",
				slog.String("order_id", charge.OrderID),
				slog.String("error", err.Error()),
			)
		}
	}
}
