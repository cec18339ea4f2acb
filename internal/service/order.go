package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/FulfillmentGo/internal/domain"
	"github.com/utafrali/FulfillmentGo/internal/event"
	"github.com/utafrali/FulfillmentGo/internal/repository"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
)

// EventBus is the subset of the durable event bus services emit through.
type EventBus interface {
	EmitNew(ctx context.Context, name, aggregateID string, data any) error
}

// OrderService implements the business logic for order operations.
type OrderService struct {
	orders repository.OrderRepository
	bus    EventBus
	logger *slog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(orders repository.OrderRepository, bus EventBus, logger *slog.Logger) *OrderService {
	return &OrderService{
		orders: orders,
		bus:    bus,
		logger: logger,
	}
}

// CreateOrderItemInput holds the parameters for an order line item.
type CreateOrderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CreateOrderInput holds the parameters for creating an order.
type CreateOrderInput struct {
	CustomerID    string
	Items         []CreateOrderItemInput
	PaymentMethod string
}

// CreateOrder creates a PENDING order with its PENDING payment and kicks off
// the fulfillment saga by emitting order.created.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*domain.Order, error) {
	if input.CustomerID == "" {
		return nil, apperrors.InvalidInput("customer_id is required")
	}
	if len(input.Items) == 0 {
		return nil, apperrors.InvalidInput("order must contain at least one item")
	}
	for _, item := range input.Items {
		if item.ProductID == "" {
			return nil, apperrors.InvalidInput("product_id is required on every item")
		}
		if item.Quantity <= 0 {
			return nil, apperrors.InvalidInput("quantity must be positive")
		}
	}

	now := time.Now().UTC()
	orderID := uuid.New().String()

	items := make([]domain.OrderItem, len(input.Items))
	for i, itemInput := range input.Items {
		items[i] = domain.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: itemInput.ProductID,
			Quantity:  itemInput.Quantity,
		}
	}

	order := &domain.Order{
		ID:            orderID,
		CustomerID:    input.CustomerID,
		Status:        domain.OrderStatusPending,
		StatusMessage: "order received",
		Items:         items,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	method := input.PaymentMethod
	if method == "" {
		method = "card"
	}
	payment := &domain.Payment{
		ID:            uuid.New().String(),
		OrderID:       orderID,
		Status:        domain.PaymentStatusPending,
		StatusMessage: "awaiting charge",
		Method:        method,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.orders.CreateWithPayment(ctx, order, payment); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := s.bus.EmitNew(ctx, event.OrderCreated, order.ID, event.OrderCreatedData{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
	}); err != nil {
		// The order exists; the saga simply has not started. Surface it loudly,
		// operators can re-emit from the jobs table.
		s.logger.ErrorContext(ctx, "failed to emit order.created event",
			slog.String("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.String("customer_id", order.CustomerID),
		slog.Int("items", len(order.Items)),
	)

	return order, nil
}

// GetOrder retrieves a single order by ID.
func (s *OrderService) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return order, nil
}

// ListOrdersInput holds the filter parameters for listing orders.
type ListOrdersInput struct {
	CustomerID string
	Status     string
	Page       int
	PerPage    int
}

// ListOrders returns a page of orders matching the filter plus the total count.
func (s *OrderService) ListOrders(ctx context.Context, input ListOrdersInput) ([]domain.Order, int, error) {
	if input.Page < 1 {
		input.Page = 1
	}
	if input.PerPage < 1 {
		input.PerPage = 20
	}
	if input.PerPage > 100 {
		input.PerPage = 100
	}

	filter := repository.OrderFilter{
		Page:    input.Page,
		PerPage: input.PerPage,
	}
	if input.CustomerID != "" {
		filter.CustomerID = &input.CustomerID
	}
	if input.Status != "" {
		switch input.Status {
		case domain.OrderStatusPending, domain.OrderStatusReserved,
			domain.OrderStatusCompleted, domain.OrderStatusRejected:
		default:
			return nil, 0, apperrors.InvalidInput("unknown order status")
		}
		filter.Status = &input.Status
	}

	orders, total, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}
