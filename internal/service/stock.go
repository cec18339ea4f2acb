package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/FulfillmentGo/internal/cache"
	"github.com/utafrali/FulfillmentGo/internal/domain"
	"github.com/utafrali/FulfillmentGo/internal/event"
	"github.com/utafrali/FulfillmentGo/internal/repository"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
)

const availabilityCacheTTL = 30 * time.Second

// StockService reacts to stock commands from the saga and serves the
// availability read model.
type StockService struct {
	stock  repository.StockRepository
	bus    EventBus
	cache  *cache.Invalidator
	redis  *redis.Client
	logger *slog.Logger
}

// NewStockService creates the stock service. The Redis client is optional;
// without it availability reads always hit Postgres.
func NewStockService(
	stock repository.StockRepository,
	bus EventBus,
	invalidator *cache.Invalidator,
	redisClient *redis.Client,
	logger *slog.Logger,
) *StockService {
	return &StockService{
		stock:  stock,
		bus:    bus,
		cache:  invalidator,
		redis:  redisClient,
		logger: logger,
	}
}

// HandleReserve holds stock for every line of the order. Success answers with
// order.reserved; a shortfall answers with order.rejected naming the product.
// Any other failure is returned so the queue retries the command.
func (s *StockService) HandleReserve(ctx context.Context, evt *event.Event) error {
	var data event.StockReserveData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	items := make([]domain.OrderItem, len(data.Items))
	for i, item := range data.Items {
		items[i] = domain.OrderItem{
			OrderID:   data.OrderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
	}

	err := s.stock.Reserve(ctx, data.OrderID, items)
	if err != nil {
		if errors.Is(err, apperrors.ErrInsufficientStock) {
			s.logger.InfoContext(ctx, "reservation rejected",
				slog.String("order_id", data.OrderID),
				slog.String("reason", err.Error()),
			)
			return s.bus.EmitNew(ctx, event.OrderRejected, data.OrderID, event.OrderRejectedData{
				OrderID: data.OrderID,
				Reason:  err.Error(),
			})
		}
		return fmt.Errorf("reserve stock for order %s: %w", data.OrderID, err)
	}

	s.cache.StockChanged(ctx)

	return s.bus.EmitNew(ctx, event.OrderReserved, data.OrderID, event.OrderReservedData{
		OrderID: data.OrderID,
	})
}

// HandleSell turns the order's holds into sales and reports completion. Zero
// flipped holds means a redelivery whose flip already committed; completion
// is still reported because the first delivery may have died between the
// flip and the emit. products.sell only ever follows a PAID payment, so the
// holds behind a zero flip were sold, never released.
func (s *StockService) HandleSell(ctx context.Context, evt *event.Event) error {
	var data event.StockSellData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	sold, err := s.stock.Sell(ctx, data.OrderID)
	if err != nil {
		return fmt.Errorf("sell stock for order %s: %w", data.OrderID, err)
	}
	if sold > 0 {
		s.cache.StockChanged(ctx)
	} else {
		s.logger.InfoContext(ctx, "sell absorbed, no active holds",
			slog.String("order_id", data.OrderID),
		)
	}

	return s.bus.EmitNew(ctx, event.OrderCompleted, data.OrderID, event.OrderCompletedData{
		OrderID: data.OrderID,
	})
}

// HandleRelease returns the order's holds to the shelf and reports rejection.
// Like HandleSell, a redelivery with zero flipped holds still reports so the
// final transition is never lost.
func (s *StockService) HandleRelease(ctx context.Context, evt *event.Event) error {
	var data event.StockReleaseData
	if err := evt.UnmarshalData(&data); err != nil {
		return s.dropUndecodable(ctx, evt, err)
	}

	released, err := s.stock.Release(ctx, data.OrderID)
	if err != nil {
		return fmt.Errorf("release stock for order %s: %w", data.OrderID, err)
	}
	if released > 0 {
		s.cache.StockChanged(ctx)
	} else {
		s.logger.InfoContext(ctx, "release absorbed, no active holds",
			slog.String("order_id", data.OrderID),
		)
	}

	return s.bus.EmitNew(ctx, event.OrderRejected, data.OrderID, event.OrderRejectedData{
		OrderID: data.OrderID,
		Reason:  data.Reason,
	})
}

// Availability returns available and reserved quantity per product, cached
// for a short window in Redis.
func (s *StockService) Availability(ctx context.Context) ([]domain.ProductAvailability, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, cache.StockAvailabilityKey()).Bytes()
		if err == nil {
			var availability []domain.ProductAvailability
			if err := json.Unmarshal(cached, &availability); err == nil {
				return availability, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "availability cache read failed",
				slog.String("error", err.Error()),
			)
		}
	}

	availability, err := s.stock.Availability(ctx)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	if s.redis != nil {
		if data, err := json.Marshal(availability); err == nil {
			if err := s.redis.Set(ctx, cache.StockAvailabilityKey(), data, availabilityCacheTTL).Err(); err != nil {
				s.logger.WarnContext(ctx, "availability cache write failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return availability, nil
}

func (s *StockService) dropUndecodable(ctx context.Context, evt *event.Event, err error) error {
	s.logger.ErrorContext(ctx, "undecodable stock command dropped",
		slog.String("event_id", evt.EventID),
		slog.String("event", evt.Name),
		slog.String("error", err.Error()),
	)
	return nil
}
