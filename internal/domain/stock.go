package domain

import "time"

// Reservation state constants. A reservation is created active when stock is
// held for an order, then flipped to sold or released exactly once.
const (
	ReservationActive   = "active"
	ReservationSold     = "sold"
	ReservationReleased = "released"
)

// StockLot is a batch of on-hand inventory for a product. Available and
// Reserved never go negative; reserving moves quantity from Available to
// Reserved, selling removes it from Reserved, releasing moves it back.
type StockLot struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Available int       `json:"available"`
	Reserved  int       `json:"reserved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StockReservation records stock held against a lot for one order line, so
// that sell and release can run from the order ID alone.
type StockReservation struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	LotID     string    `json:"lot_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProductAvailability is the aggregate available quantity for one product
// across all its lots.
type ProductAvailability struct {
	ProductID string `json:"product_id"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}
