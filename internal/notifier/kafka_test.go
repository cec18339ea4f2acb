package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/FulfillmentGo/internal/event"
	"github.com/utafrali/FulfillmentGo/pkg/kafka"
)

type fakePublisher struct {
	topic string
	event *kafka.Event
	err   error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, evt *kafka.Event) error {
	f.topic = topic
	f.event = evt
	return f.err
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestOrderUpdates_PublishesToTopic(t *testing.T) {
	pub := &fakePublisher{}
	n := NewOrderUpdates(pub, "order-updates", newTestLogger())

	evt, err := event.New(event.OrderUpdated, "order-1", event.OrderUpdatedData{
		OrderID:       "order-1",
		Status:        "RESERVED",
		StatusMessage: "stock reserved, awaiting payment",
		CustomerID:    "cust-1",
	})
	require.NoError(t, err)
	evt = evt.WithCorrelationID("corr-1")

	require.NoError(t, n.Handle(context.Background(), evt))

	require.NotNil(t, pub.event)
	assert.Equal(t, "order-updates", pub.topic)
	assert.Equal(t, event.OrderUpdated, pub.event.EventType)
	assert.Equal(t, "order-1", pub.event.AggregateID)
	assert.Equal(t, "corr-1", pub.event.CorrelationID)

	var data event.OrderUpdatedData
	require.NoError(t, pub.event.UnmarshalData(&data))
	assert.Equal(t, "cust-1", data.CustomerID)
	assert.Equal(t, "RESERVED", data.Status)
}

func TestOrderUpdates_PublishErrorIsReturned(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	n := NewOrderUpdates(pub, "order-updates", newTestLogger())

	evt, err := event.New(event.OrderUpdated, "order-1", event.OrderUpdatedData{OrderID: "order-1"})
	require.NoError(t, err)

	err = n.Handle(context.Background(), evt)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestOrderUpdates_DropsUndecodablePayload(t *testing.T) {
	pub := &fakePublisher{}
	n := NewOrderUpdates(pub, "order-updates", newTestLogger())

	evt, err := event.New(event.OrderUpdated, "order-1", "not an object")
	require.NoError(t, err)

	assert.NoError(t, n.Handle(context.Background(), evt))
	assert.Nil(t, pub.event, "nothing published for poison payload")
}
