package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestInvalidator_OrderChanged(t *testing.T) {
	mr, client := newTestRedis(t)
	inv := NewInvalidator(client, newTestLogger())

	require.NoError(t, mr.Set(OrderKey("order-1"), "cached"))
	require.NoError(t, mr.Set(OrderListKey("cust-1", "PENDING", 1, 20), "cached"))
	require.NoError(t, mr.Set(OrderKey("order-2"), "cached"))

	inv.OrderChanged(context.Background(), "order-1")

	assert.False(t, mr.Exists(OrderKey("order-1")))
	assert.False(t, mr.Exists(OrderListKey("cust-1", "PENDING", 1, 20)))
	assert.True(t, mr.Exists(OrderKey("order-2")), "other orders stay cached")
}

func TestInvalidator_StockChanged(t *testing.T) {
	mr, client := newTestRedis(t)
	inv := NewInvalidator(client, newTestLogger())

	require.NoError(t, mr.Set(StockAvailabilityKey(), "cached"))

	inv.StockChanged(context.Background())

	assert.False(t, mr.Exists(StockAvailabilityKey()))
}

func TestInvalidator_NilClientIsNoOp(t *testing.T) {
	inv := NewInvalidator(nil, newTestLogger())

	inv.OrderChanged(context.Background(), "order-1")
	inv.StockChanged(context.Background())
}

func TestInvalidator_SurvivesRedisFailure(t *testing.T) {
	mr, client := newTestRedis(t)
	inv := NewInvalidator(client, newTestLogger())

	mr.Close()

	inv.OrderChanged(context.Background(), "order-1")
	inv.StockChanged(context.Background())
}
