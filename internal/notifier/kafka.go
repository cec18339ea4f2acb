package notifier

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/FulfillmentGo/internal/event"
	"github.com/utafrali/FulfillmentGo/pkg/kafka"
)

// Publisher is the subset of the Kafka producer the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, evt *kafka.Event) error
}

// OrderUpdates pushes order status changes to a Kafka topic so downstream
// consumers (storefront, notifications) can react per customer.
type OrderUpdates struct {
	producer Publisher
	topic    string
	logger   *slog.Logger
}

// NewOrderUpdates creates the Kafka notifier for order status changes.
func NewOrderUpdates(producer Publisher, topic string, logger *slog.Logger) *OrderUpdates {
	return &OrderUpdates{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// Handle converts an order.updated saga event into the external Kafka
// envelope and publishes it keyed by order. A publish failure is returned so
// the event is retried by the queue.
func (n *OrderUpdates) Handle(ctx context.Context, evt *event.Event) error {
	var data event.OrderUpdatedData
	if err := evt.UnmarshalData(&data); err != nil {
		n.logger.ErrorContext(ctx, "undecodable order update dropped",
			slog.String("event_id", evt.EventID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	out, err := kafka.NewEvent(event.OrderUpdated, data.OrderID, "order", event.Source, data)
	if err != nil {
		return fmt.Errorf("build order update event: %w", err)
	}
	if evt.CorrelationID != "" {
		out = out.WithCorrelationID(evt.CorrelationID)
	}

	if err := n.producer.Publish(ctx, n.topic, out); err != nil {
		return fmt.Errorf("publish order update: %w", err)
	}

	n.logger.DebugContext(ctx, "order update published",
		slog.String("order_id", data.OrderID),
		slog.String("status", data.Status),
		slog.String("customer_id", data.CustomerID),
	)
	return nil
}
