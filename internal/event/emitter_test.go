package event

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func mustEvent(t *testing.T, name, aggregateID string, data any) *Event {
	t.Helper()
	evt, err := New(name, aggregateID, data)
	require.NoError(t, err)
	return evt
}

func TestEmitter_PublishDispatchesInRegistrationOrder(t *testing.T) {
	emitter := NewEmitter(testLogger())

	var calls []string
	emitter.Subscribe(OrderCreated, func(ctx context.Context, evt *Event) error {
		calls = append(calls, "first")
		return nil
	})
	emitter.Subscribe(OrderCreated, func(ctx context.Context, evt *Event) error {
		calls = append(calls, "second")
		return nil
	})

	evt := mustEvent(t, OrderCreated, "order-001", OrderCreatedData{OrderID: "order-001", CustomerID: "cust-001"})
	err := emitter.Publish(context.Background(), evt)

	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestEmitter_PublishRunsAllHandlersDespiteFailure(t *testing.T) {
	emitter := NewEmitter(testLogger())

	boom := errors.New("handler broke")
	secondCalled := false
	emitter.Subscribe(OrderReserved, func(ctx context.Context, evt *Event) error {
		return boom
	})
	emitter.Subscribe(OrderReserved, func(ctx context.Context, evt *Event) error {
		secondCalled = true
		return nil
	})

	evt := mustEvent(t, OrderReserved, "order-001", OrderReservedData{OrderID: "order-001"})
	err := emitter.Publish(context.Background(), evt)

	assert.ErrorIs(t, err, boom)
	assert.True(t, secondCalled)
}

func TestEmitter_PublishJoinsMultipleFailures(t *testing.T) {
	emitter := NewEmitter(testLogger())

	errA := errors.New("a failed")
	errB := errors.New("b failed")
	emitter.Subscribe(OrderRejected, func(ctx context.Context, evt *Event) error { return errA })
	emitter.Subscribe(OrderRejected, func(ctx context.Context, evt *Event) error { return errB })

	evt := mustEvent(t, OrderRejected, "order-001", OrderRejectedData{OrderID: "order-001", Reason: "no stock"})
	err := emitter.Publish(context.Background(), evt)

	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
}

func TestEmitter_PublishWithoutSubscribersIsNoOp(t *testing.T) {
	emitter := NewEmitter(testLogger())

	evt := mustEvent(t, OrderCompleted, "order-001", OrderCompletedData{OrderID: "order-001"})
	err := emitter.Publish(context.Background(), evt)

	assert.NoError(t, err)
}

func TestEmitter_SubscribersAreScopedByEventName(t *testing.T) {
	emitter := NewEmitter(testLogger())

	createdCalled := false
	emitter.Subscribe(OrderCreated, func(ctx context.Context, evt *Event) error {
		createdCalled = true
		return nil
	})

	evt := mustEvent(t, OrderCompleted, "order-001", OrderCompletedData{OrderID: "order-001"})
	require.NoError(t, emitter.Publish(context.Background(), evt))

	assert.False(t, createdCalled)
}
