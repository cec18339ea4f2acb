package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Saga event names. Order events report lifecycle progress; product events
// instruct the stock ledger.
const (
	OrderCreated   = "order.created"
	OrderReserved  = "order.reserved"
	OrderRejected  = "order.rejected"
	OrderCompleted = "order.completed"
	OrderUpdated   = "order.updated"
	PaymentSuccess = "order.payment.success"
	PaymentFailed  = "order.payment.failed"
	StockReserve   = "products.reserve"
	StockSell      = "products.sell"
	StockRelease   = "products.release"
)

// Source identifier stamped on every event this service emits.
const Source = "fulfillment-service"

// Event is the envelope all saga events travel in, both through the durable
// queue and on the in-process emitter.
type Event struct {
	EventID       string          `json:"event_id"`
	Name          string          `json:"name"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Source        string          `json:"source"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// New creates an event with a generated ID and current timestamp. The
// aggregate ID is the order the event belongs to.
func New(name, aggregateID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Event{
		EventID:     uuid.New().String(),
		Name:        name,
		AggregateID: aggregateID,
		Timestamp:   time.Now().UTC(),
		Source:      Source,
		Data:        dataBytes,
	}, nil
}

// WithCorrelationID sets the correlation ID on the event.
func (e *Event) WithCorrelationID(id string) *Event {
	e.CorrelationID = id
	return e
}

// Marshal serializes the event to JSON bytes.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an event from JSON bytes.
func Unmarshal(data []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, err
	}
	return &evt, nil
}

// UnmarshalData deserializes the event data payload into the given target.
func (e *Event) UnmarshalData(target any) error {
	return json.Unmarshal(e.Data, target)
}

// --- Payloads ---

// OrderCreatedData is the payload for order.created.
type OrderCreatedData struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
}

// OrderReservedData is the payload for order.reserved.
type OrderReservedData struct {
	OrderID string `json:"order_id"`
}

// OrderRejectedData is the payload for order.rejected.
type OrderRejectedData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderCompletedData is the payload for order.completed.
type OrderCompletedData struct {
	OrderID string `json:"order_id"`
}

// OrderUpdatedData is the payload for order.updated, pushed to external
// listeners. CustomerID lets the push channel fan out per customer.
type OrderUpdatedData struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	StatusMessage string `json:"status_message"`
	CustomerID    string `json:"customer_id"`
}

// PaymentSuccessData is the payload for order.payment.success.
type PaymentSuccessData struct {
	OrderID string `json:"order_id"`
}

// PaymentFailedData is the payload for order.payment.failed.
type PaymentFailedData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// ReserveItem is one order line inside a products.reserve payload.
type ReserveItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// StockReserveData is the payload for products.reserve.
type StockReserveData struct {
	OrderID string        `json:"order_id"`
	Items   []ReserveItem `json:"items"`
}

// StockSellData is the payload for products.sell.
type StockSellData struct {
	OrderID string `json:"order_id"`
}

// StockReleaseData is the payload for products.release.
type StockReleaseData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}
