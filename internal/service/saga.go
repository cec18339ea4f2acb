package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/FulfillmentGo/internal/cache"
	"github.com/utafrali/FulfillmentGo/internal/domain"
	"github.com/utafrali/FulfillmentGo/internal/event"
	"github.com/utafrali/FulfillmentGo/internal/repository"
)

// PaymentStarter enqueues the charge attempt for a reserved order.
type PaymentStarter interface {
	Start(ctx context.Context, orderID, method string) error
}

// Saga coordinates the order side of the fulfillment flow. It reacts to saga
// events, applies the matching status transition, and emits the next step.
// The local write and the follow-on emit are separate transactions, so a
// handler can fail after its write committed; on redelivery the follow-on is
// re-derived from current state rather than skipped, otherwise the retry
// would absorb the duplicate write and drop the next step.
type Saga struct {
	orders   repository.OrderRepository
	payments repository.PaymentRepository
	charger  PaymentStarter
	bus      EventBus
	cache    *cache.Invalidator
	logger   *slog.Logger
}

// NewSaga creates the order saga coordinator.
func NewSaga(
	orders repository.OrderRepository,
	payments repository.PaymentRepository,
	charger PaymentStarter,
	bus EventBus,
	invalidator *cache.Invalidator,
	logger *slog.Logger,
) *Saga {
	return &Saga{
		orders:   orders,
		payments: payments,
		charger:  charger,
		bus:      bus,
		cache:    invalidator,
		logger:   logger,
	}
}

// transition applies a guarded status change and, when it lands, invalidates
// caches and broadcasts order.updated. Returns the order after the attempt and
// whether the transition applied.
func (s *Saga) transition(ctx context.Context, orderID, target, message string) (*domain.Order, bool, error) {
	order, applied, err := s.orders.Transition(ctx, orderID, domain.AllowedSources(target), target, message)
	if err != nil {
		return nil, false, fmt.Errorf("transition order %s to %s: %w", orderID, target, err)
	}
	if !applied {
		s.logger.InfoContext(ctx, "order transition absorbed",
			slog.String("order_id", orderID),
			slog.String("target", target),
			slog.String("current", order.Status),
		)
		return order, false, nil
	}

	s.cache.OrderChanged(ctx, orderID)

	if err := s.bus.EmitNew(ctx, event.OrderUpdated, orderID, event.OrderUpdatedData{
		OrderID:       order.ID,
		Status:        order.Status,
		StatusMessage: order.StatusMessage,
		CustomerID:    order.CustomerID,
	}); err != nil {
		return nil, false, fmt.Errorf("emit order.updated for %s: %w", orderID, err)
	}

	s.logger.InfoContext(ctx, "order transitioned",
		slog.String("order_id", orderID),
		slog.String("status", order.Status),
	)
	return order, true, nil
}

// HandleOrderCreated acknowledges the new order and asks the stock ledger to
// reserve its lines.
func (s *Saga) HandleOrderCreated(ctx context.Context, evt *event.Event) error {
	var data event.OrderCreatedData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	_, applied, err := s.transition(ctx, data.OrderID, domain.OrderStatusPending, "order created, awaiting stock reservation")
	if err != nil {
		return err
	}
	if !applied {
		return nil
	}

	order, err := s.orders.GetByID(ctx, data.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s for reservation: %w", data.OrderID, err)
	}

	items := make([]event.ReserveItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = event.ReserveItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	return s.bus.EmitNew(ctx, event.StockReserve, order.ID, event.StockReserveData{
		OrderID: order.ID,
		Items:   items,
	})
}

// HandleOrderReserved marks the order RESERVED and starts the payment. A
// redelivery whose transition was already applied still re-drives the charge
// while the payment is unsettled: the original delivery may have committed
// the transition and then failed to enqueue the charge job.
func (s *Saga) HandleOrderReserved(ctx context.Context, evt *event.Event) error {
	var data event.OrderReservedData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	order, _, err := s.transition(ctx, data.OrderID, domain.OrderStatusReserved, "stock reserved, awaiting payment")
	if err != nil {
		return err
	}
	if order.Status != domain.OrderStatusReserved {
		// Stale event; the order has already moved on.
		return nil
	}

	payment, err := s.payments.GetByOrderID(ctx, data.OrderID)
	if err != nil {
		return fmt.Errorf("load payment for order %s: %w", data.OrderID, err)
	}
	if payment.IsSettled() {
		return nil
	}

	if err := s.charger.Start(ctx, data.OrderID, payment.Method); err != nil {
		return fmt.Errorf("start payment for order %s: %w", data.OrderID, err)
	}
	return nil
}

// HandlePaymentSuccess settles the payment as PAID and asks the stock ledger
// to sell the reserved lines. On a redelivery the guarded MarkPaid is a
// no-op, but as long as the payment really is PAID the sell command is
// re-emitted: the first delivery may have settled the payment and then
// failed to emit.
func (s *Saga) HandlePaymentSuccess(ctx context.Context, evt *event.Event) error {
	var data event.PaymentSuccessData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	settled, err := s.payments.MarkPaid(ctx, data.OrderID)
	if err != nil {
		return fmt.Errorf("mark payment paid for order %s: %w", data.OrderID, err)
	}
	if !settled {
		payment, err := s.payments.GetByOrderID(ctx, data.OrderID)
		if err != nil {
			return fmt.Errorf("load payment for order %s: %w", data.OrderID, err)
		}
		if payment.Status != domain.PaymentStatusPaid {
			s.logger.WarnContext(ctx, "stale payment success ignored",
				slog.String("order_id", data.OrderID),
				slog.String("payment_status", payment.Status),
			)
			return nil
		}
		s.logger.InfoContext(ctx, "payment already paid, re-driving sell",
			slog.String("order_id", data.OrderID),
		)
	}

	return s.bus.EmitNew(ctx, event.StockSell, data.OrderID, event.StockSellData{
		OrderID: data.OrderID,
	})
}

// HandlePaymentFailed settles the payment as FAILED and asks the stock ledger
// to release the held lines. Mirrors HandlePaymentSuccess on redelivery: a
// payment already FAILED re-emits the release, a payment in any other state
// makes the event stale.
func (s *Saga) HandlePaymentFailed(ctx context.Context, evt *event.Event) error {
	var data event.PaymentFailedData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	settled, err := s.payments.MarkFailed(ctx, data.OrderID, data.Reason)
	if err != nil {
		return fmt.Errorf("mark payment failed for order %s: %w", data.OrderID, err)
	}
	if !settled {
		payment, err := s.payments.GetByOrderID(ctx, data.OrderID)
		if err != nil {
			return fmt.Errorf("load payment for order %s: %w", data.OrderID, err)
		}
		if payment.Status != domain.PaymentStatusFailed {
			s.logger.WarnContext(ctx, "stale payment failure ignored",
				slog.String("order_id", data.OrderID),
				slog.String("payment_status", payment.Status),
			)
			return nil
		}
		s.logger.InfoContext(ctx, "payment already failed, re-driving release",
			slog.String("order_id", data.OrderID),
		)
	}

	return s.bus.EmitNew(ctx, event.StockRelease, data.OrderID, event.StockReleaseData{
		OrderID: data.OrderID,
		Reason:  data.Reason,
	})
}

// HandleOrderCompleted closes the saga on the happy path.
func (s *Saga) HandleOrderCompleted(ctx context.Context, evt *event.Event) error {
	var data event.OrderCompletedData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	_, _, err := s.transition(ctx, data.OrderID, domain.OrderStatusCompleted, "order completed")
	return err
}

// HandleOrderRejected closes the saga on a compensation path. The reason
// (stock shortfall, exhausted charge attempts) becomes the status message.
func (s *Saga) HandleOrderRejected(ctx context.Context, evt *event.Event) error {
	var data event.OrderRejectedData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	message := data.Reason
	if message == "" {
		message = "order rejected"
	}

	_, _, err := s.transition(ctx, data.OrderID, domain.OrderStatusRejected, message)
	return err
}

// dropUndecodable logs and swallows a payload that cannot be decoded.
// Retrying would fail the same way forever.
func (s *Saga) dropUndecodable(ctx context.Context, evt *event.Event, err error) error {
	s.logger.ErrorContext(ctx, "undecodable saga event dropped",
		slog.String("event_id", evt.EventID),
		slog.String("event", evt.Name),
		slog.String("error", err.Error()),
	)
	return nil
}
