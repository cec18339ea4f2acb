package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Key prefixes for cached read models. Repositories never read these;
// handlers populate them and the invalidator clears them on writes.
const (
	keyStockAvailability = "stock:availability"
	keyOrderPrefix       = "order:"
	keyOrderListPattern  = "orders:list:*"
)

// Invalidator clears cached read models after mutations. Deletes are
// best-effort: a failed invalidation is logged and otherwise ignored, the
// entries expire on their own TTL.
type Invalidator struct {
	client *redis.Client
	logger *slog.Logger
}

// NewInvalidator creates an Invalidator. The client may be nil, in which case
// every call is a no-op. That keeps the saga usable when Redis is down.
func NewInvalidator(client *redis.Client, logger *slog.Logger) *Invalidator {
	return &Invalidator{client: client, logger: logger}
}

// OrderChanged drops the cached order and any cached order listings.
func (i *Invalidator) OrderChanged(ctx context.Context, orderID string) {
	if i.client == nil {
		return
	}
	i.delete(ctx, keyOrderPrefix+orderID)
	i.deletePattern(ctx, keyOrderListPattern)
}

// StockChanged drops the cached stock availability snapshot.
func (i *Invalidator) StockChanged(ctx context.Context) {
	if i.client == nil {
		return
	}
	i.delete(ctx, keyStockAvailability)
}

// OrderKey returns the cache key for a single order.
func OrderKey(orderID string) string { return keyOrderPrefix + orderID }

// StockAvailabilityKey returns the cache key for the availability snapshot.
func StockAvailabilityKey() string { return keyStockAvailability }

// OrderListKey returns the cache key for a page of the order listing.
func OrderListKey(customerID, status string, page, perPage int) string {
	return fmt.Sprintf("orders:list:%s:%s:%d:%d", customerID, status, page, perPage)
}

func (i *Invalidator) delete(ctx context.Context, keys ...string) {
	if err := i.client.Del(ctx, keys...).Err(); err != nil {
		i.logger.WarnContext(ctx, "cache invalidation failed",
			slog.Any("keys", keys),
			slog.String("error", err.Error()),
		)
	}
}

func (i *Invalidator) deletePattern(ctx context.Context, pattern string) {
	iter := i.client.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		i.logger.WarnContext(ctx, "cache key scan failed",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()),
		)
		return
	}
	if len(keys) > 0 {
		i.delete(ctx, keys...)
	}
}
