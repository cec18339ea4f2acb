package postgres

import (
	"context"
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/FulfillmentGo/internal/domain"
	"github.com/utafrali/FulfillmentGo/pkg/database"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
)

func setupStockRepo(t *testing.T) (*StockRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewStockRepository(mock)
	return repo, mock
}

func reservationExistsRow(exists bool) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"exists"}).AddRow(exists)
}

func TestStockRepository_Reserve_Success(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	items := []domain.OrderItem{
		{ID: "item-001", OrderID: "order-001", ProductID: "prod-001", Quantity: 2},
		{ID: "item-002", OrderID: "order-001", ProductID: "prod-002", Quantity: 1},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("order-001").
		WillReturnRows(reservationExistsRow(false))
	for i, item := range items {
		lotID := []string{"lot-001", "lot-002"}[i]
		mock.ExpectQuery("SELECT id FROM stock_lots").
			WithArgs(item.ProductID, item.Quantity).
			WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(lotID))
		mock.ExpectExec("UPDATE stock_lots").
			WithArgs(lotID, item.Quantity).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("INSERT INTO stock_reservations").
			WithArgs(pgxmock.AnyArg(), "order-001", lotID, item.ProductID, item.Quantity, domain.ReservationActive).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	err := repo.Reserve(context.Background(), "order-001", items)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Reserve_RedeliveryIsNoOp(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("order-001").
		WillReturnRows(reservationExistsRow(true))
	mock.ExpectRollback()

	err := repo.Reserve(context.Background(), "order-001", []domain.OrderItem{
		{ProductID: "prod-001", Quantity: 2},
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Reserve_NoLotLargeEnough(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("order-001").
		WillReturnRows(reservationExistsRow(false))
	mock.ExpectQuery("SELECT id FROM stock_lots").
		WithArgs("prod-001", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.Reserve(context.Background(), "order-001", []domain.OrderItem{
		{ProductID: "prod-001", Quantity: 50},
	})

	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.Contains(t, err.Error(), "prod-001")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Sell_FlipsActiveHolds(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT r.lot_id, r.quantity").
		WithArgs("order-001", domain.ReservationActive).
		WillReturnRows(pgxmock.NewRows([]string{"lot_id", "quantity"}).
			AddRow("lot-001", 2).
			AddRow("lot-002", 1))
	mock.ExpectExec("UPDATE stock_lots SET reserved = reserved").
		WithArgs("lot-001", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE stock_lots SET reserved = reserved").
		WithArgs("lot-002", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE stock_reservations").
		WithArgs("order-001", domain.ReservationSold, domain.ReservationActive).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	flipped, err := repo.Sell(context.Background(), "order-001")

	require.NoError(t, err)
	assert.Equal(t, 2, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Sell_DuplicateDeliveryFlipsNothing(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT r.lot_id, r.quantity").
		WithArgs("order-001", domain.ReservationActive).
		WillReturnRows(pgxmock.NewRows([]string{"lot_id", "quantity"}))
	mock.ExpectRollback()

	flipped, err := repo.Sell(context.Background(), "order-001")

	require.NoError(t, err)
	assert.Zero(t, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Release_RestoresAvailability(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT r.lot_id, r.quantity").
		WithArgs("order-001", domain.ReservationActive).
		WillReturnRows(pgxmock.NewRows([]string{"lot_id", "quantity"}).
			AddRow("lot-001", 3))
	mock.ExpectExec(`UPDATE stock_lots SET reserved = reserved - \$2, available = available \+ \$2`).
		WithArgs("lot-001", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE stock_reservations").
		WithArgs("order-001", domain.ReservationReleased, domain.ReservationActive).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	flipped, err := repo.Release(context.Background(), "order-001")

	require.NoError(t, err)
	assert.Equal(t, 1, flipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepository_Availability(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT product_id").
		WillReturnRows(pgxmock.NewRows([]string{"product_id", "available", "reserved"}).
			AddRow("prod-001", 10, 2).
			AddRow("prod-002", 0, 5))

	out, err := repo.Availability(context.Background())

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "prod-001", out[0].ProductID)
	assert.Equal(t, 10, out[0].Available)
	assert.Equal(t, 2, out[0].Reserved)
	assert.Equal(t, "prod-002", out[1].ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
